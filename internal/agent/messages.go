// internal/agent/messages.go
package agent

import (
	"fmt"
	"strings"

	"github.com/madanlalit/heimdall/internal/browser/dom"
	"github.com/madanlalit/heimdall/internal/llmclient"
	"github.com/madanlalit/heimdall/internal/tools"
)

// DefaultSystemPrompt is used when agent.system_prompt is empty.
const DefaultSystemPrompt = `You are a browser automation agent. Your task is to interact with web pages to accomplish user goals.

Guidelines:
1. Analyze the page elements shown with [index] numbers
2. Use the available tools to interact with elements
3. Click buttons, fill forms, navigate as needed
4. Call 'done' when the task is complete
5. Be efficient - use the minimum actions needed

Always respond with tool calls to take actions. Do not just describe what to do.`

// BuildMessages renders one step's prompt: the system prompt, then a single
// user turn holding the task, the element list and the recent actions.
// Each step starts a fresh conversation; history reaches the model only
// through the recent actions block.
func BuildMessages(systemPrompt, task string, state *dom.SerializedDOM, history []StepRecord) []llmclient.Message {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	b.WriteString("Current page elements:\n")
	if state != nil {
		b.WriteString(state.Text)
		fmt.Fprintf(&b, "\n\nAvailable elements: %d\n", state.ElementCount)
		if s := state.ScrollInfo; s != nil {
			fmt.Fprintf(&b, "Scroll position: %.0f,%.0f of %.0fx%.0f (viewport %.0fx%.0f)\n",
				s.ScrollX, s.ScrollY, s.ContentWidth, s.ContentHeight, s.ViewportWidth, s.ViewportHeight)
		}
	} else {
		b.WriteString("\n\nAvailable elements: 0\n")
	}

	if len(history) > 0 {
		b.WriteString("\n\nRecent actions:\n")
		for _, rec := range history {
			b.WriteString(rec.historyLine())
			b.WriteByte('\n')
		}
	}

	return []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: systemPrompt},
		{Role: llmclient.RoleUser, Content: b.String()},
	}
}

func (r StepRecord) historyLine() string {
	status := "✓"
	if !r.Success {
		status = "✗"
	}
	params := "{}"
	if len(r.Params) > 0 {
		if b, err := json.Marshal(r.Params); err == nil {
			params = string(b)
		}
	}
	line := fmt.Sprintf("- %s %s(%s)", status, r.Action, params)
	if !r.Success && r.Error != "" {
		line += ": " + r.Error
	}
	return line
}

// ToolsFromDefinitions converts registry definitions to LLM tool declarations.
func ToolsFromDefinitions(defs []tools.Definition) []llmclient.Tool {
	out := make([]llmclient.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, llmclient.Tool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

// claimsCompletion reports whether a reply without tool calls says the task is finished.
func claimsCompletion(content string) bool {
	lower := strings.ToLower(content)
	for _, word := range []string{"complete", "done", "finished", "successful"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
