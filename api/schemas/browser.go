package schemas

// -- Low-Level Input Schemas --

// MouseEventType defines the type of a mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton defines the mouse button being pressed.
type MouseButton string

const (
	ButtonNone   MouseButton = "none"
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// MouseEventData encapsulates all data for a mouse event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
	Modifiers  KeyModifier    `json:"modifiers"`
	DeltaX     float64        `json:"deltaX"`
	DeltaY     float64        `json:"deltaY"`
}

// KeyEventType mirrors the CDP Input.dispatchKeyEvent type values.
type KeyEventType string

const (
	KeyDown    KeyEventType = "keyDown"
	KeyUp      KeyEventType = "keyUp"
	KeyRawDown KeyEventType = "rawKeyDown"
	KeyChar    KeyEventType = "char"
)

// KeyEventData represents a single structured key event.
type KeyEventData struct {
	Type KeyEventType
	// Key is the DOM key value ("a", "Enter", "Tab").
	Key string
	// Code is the physical key code ("KeyA", "Enter").
	Code string
	// Text is the character generated by the event, empty for non-printing keys.
	Text string
	// WindowsVirtualKeyCode is required by Chrome for editing commands such as Backspace.
	WindowsVirtualKeyCode int64
	// Modifiers is a bitmask of active modifiers.
	Modifiers KeyModifier
}

// KeyModifier represents keyboard modifiers (Ctrl, Alt, Shift, Meta).
// These values correspond directly to the CDP modifiers bitfield.
type KeyModifier int

const (
	ModNone  KeyModifier = 0
	ModAlt   KeyModifier = 1
	ModCtrl  KeyModifier = 2
	ModMeta  KeyModifier = 4
	ModShift KeyModifier = 8
)

// -- Page Geometry Schemas --

// Viewport is the visible area of the page in CSS pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LayoutMetrics describes the visible viewport and the scrollable content size.
type LayoutMetrics struct {
	Viewport      Viewport `json:"viewport"`
	ScrollX       float64  `json:"scrollX"`
	ScrollY       float64  `json:"scrollY"`
	ContentWidth  float64  `json:"contentWidth"`
	ContentHeight float64  `json:"contentHeight"`
}

// TabInfo identifies a browser tab (page target).
type TabInfo struct {
	TargetID string `json:"targetId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Active   bool   `json:"active"`
}
