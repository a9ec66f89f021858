// internal/events/types.go
package events

// Type tags the kind of an event on the bus.
type Type string

const (
	TypeBrowserStarted         Type = "browser_started"
	TypeBrowserStopped         Type = "browser_stopped"
	TypeNavigationStarted      Type = "navigation_started"
	TypeNavigationCompleted    Type = "navigation_completed"
	TypeDOMContentLoaded       Type = "dom_content_loaded"
	TypeDOMChanged             Type = "dom_changed"
	TypePageLoad               Type = "page_load"
	TypeFrameNavigated         Type = "frame_navigated"
	TypeNetworkRequestStarted  Type = "network_request_started"
	TypeNetworkRequestFinished Type = "network_request_completed"
	TypeNetworkIdle            Type = "network_idle"
	TypeActionStarted          Type = "action_started"
	TypeActionCompleted        Type = "action_completed"
	TypeElementClicked         Type = "element_clicked"
	TypeElementTyped           Type = "element_typed"
	TypeElementHighlighted     Type = "element_highlighted"
	TypeConsoleMessage         Type = "console_message"
	TypeDialog                 Type = "dialog"
	TypeDownloadStarted        Type = "download_started"
	TypeDownloadCompleted      Type = "download_completed"
	TypeStepStarted            Type = "step_started"
	TypeStepCompleted          Type = "step_completed"
	TypeError                  Type = "error"
	TypeCrash                  Type = "crash"
)

// BrowserStarted is published once the session is connected to a page target.
type BrowserStarted struct {
	CDPURL   string `json:"cdp_url,omitempty"`
	TargetID string `json:"target_id"`
}

// BrowserStopped is published when the session closes.
type BrowserStopped struct {
	Reason string `json:"reason,omitempty"`
}

// Navigation carries the URL of a started or completed navigation.
type Navigation struct {
	URL string `json:"url"`
	// Error is set on a completed navigation that failed.
	Error string `json:"error,omitempty"`
}

// FrameNavigated reports a frame committing a new document.
type FrameNavigated struct {
	FrameID   string `json:"frame_id"`
	URL       string `json:"url"`
	MainFrame bool   `json:"main_frame"`
}

// DOMChanged reports that the document was replaced and node ids are stale.
type DOMChanged struct {
	TargetID string `json:"target_id"`
}

// PageLifecycle covers DOMContentLoaded and load.
type PageLifecycle struct {
	Timestamp float64 `json:"timestamp"`
}

// NetworkRequest describes a request start or completion.
type NetworkRequest struct {
	RequestID    string `json:"request_id"`
	URL          string `json:"url,omitempty"`
	Method       string `json:"method,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	Status       int64  `json:"status,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Failed       bool   `json:"failed,omitempty"`
	ErrorText    string `json:"error_text,omitempty"`
}

// NetworkIdle is published when no requests have been in flight for the idle window.
type NetworkIdle struct {
	InFlight int `json:"in_flight"`
}

// Action reports the start and end of a registry action.
type Action struct {
	Name    string                 `json:"name"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// ElementClicked reports where a click landed. Scripted is true when the
// element was clicked from page script instead of by mouse events.
type ElementClicked struct {
	BackendNodeID int64   `json:"backend_node_id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Scripted      bool    `json:"scripted"`
}

// ElementTyped reports text entered into an element.
type ElementTyped struct {
	BackendNodeID int64  `json:"backend_node_id"`
	Text          string `json:"text"`
	Cleared       bool   `json:"cleared"`
}

// ElementHighlighted reports an element whose index was drawn on the page.
type ElementHighlighted struct {
	BackendNodeID int64 `json:"backend_node_id"`
	Index         int   `json:"index"`
}

// ConsoleMessage is a console API call from the page.
type ConsoleMessage struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Dialog reports a JavaScript dialog and how it was handled.
type Dialog struct {
	DialogType string `json:"dialog_type"`
	Message    string `json:"message"`
	Accepted   bool   `json:"accepted"`
}

// Download tracks a file download.
type Download struct {
	GUID     string `json:"guid"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	State    string `json:"state,omitempty"`
}

// Step reports agent loop progress.
type Step struct {
	Number  int    `json:"number"`
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
}

// Error is a non-fatal error surfaced to observers.
type Error struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Line    int64  `json:"line,omitempty"`
}

// Crash reports that the page target crashed.
type Crash struct {
	TargetID string `json:"target_id"`
}
