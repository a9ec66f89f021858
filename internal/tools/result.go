// internal/tools/result.go
package tools

import "fmt"

// ActionResult is what every action reports back to the agent.
type ActionResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Ok builds a successful result. data may be nil.
func Ok(message string, data map[string]interface{}) ActionResult {
	if data == nil {
		data = map[string]interface{}{}
	}
	return ActionResult{Success: true, Message: message, Data: data}
}

// Fail builds a failed result.
func Fail(msg string) ActionResult {
	return ActionResult{Success: false, Error: msg, Data: map[string]interface{}{}}
}

// Failf builds a failed result from a format string.
func Failf(format string, args ...interface{}) ActionResult {
	return Fail(fmt.Sprintf(format, args...))
}

// IsDone reports whether the result came from the done action.
func (r ActionResult) IsDone() bool {
	done, _ := r.Data["done"].(bool)
	return done
}

// Summary is the one-line text shown in the agent's action history.
func (r ActionResult) Summary() string {
	if r.Success {
		return r.Message
	}
	return r.Error
}
