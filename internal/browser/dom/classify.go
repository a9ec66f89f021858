// internal/browser/dom/classify.go
package dom

import "strings"

var interactiveTags = map[string]bool{
	"A":        true,
	"BUTTON":   true,
	"INPUT":    true,
	"SELECT":   true,
	"TEXTAREA": true,
	"LABEL":    true,
	"DETAILS":  true,
	"SUMMARY":  true,
	"OPTION":   true,
	"OPTGROUP": true,
}

var interactiveRoles = map[string]bool{
	"button":     true,
	"link":       true,
	"menuitem":   true,
	"option":     true,
	"radio":      true,
	"checkbox":   true,
	"tab":        true,
	"textbox":    true,
	"combobox":   true,
	"slider":     true,
	"spinbutton": true,
	"search":     true,
	"searchbox":  true,
	"listbox":    true,
	"switch":     true,
	"treeitem":   true,
}

var eventHandlerAttrs = []string{"onclick", "onmousedown", "onmouseup", "onkeydown", "onkeyup"}

// IsVisible reports whether the node has a layout box with positive area.
func IsVisible(n *Node) bool {
	b := n.BoundingBox
	return b != nil && b.Width > 0 && b.Height > 0
}

// IsInteractive reports whether the LLM should be offered the node as a target.
func IsInteractive(n *Node) bool {
	if interactiveTags[strings.ToUpper(n.TagName)] {
		return true
	}
	if interactiveRoles[n.AXRole] || interactiveRoles[n.Attributes["role"]] {
		return true
	}
	if ce, ok := n.Attributes["contenteditable"]; ok && ce != "" && ce != "false" {
		return true
	}
	for _, attr := range eventHandlerAttrs {
		if _, ok := n.Attributes[attr]; ok {
			return true
		}
	}
	if _, ok := n.Attributes["tabindex"]; ok {
		return true
	}
	// Raw substring match; "cursor: default; pointer-events: auto" also qualifies.
	style := n.Attributes["style"]
	return strings.Contains(style, "cursor") && strings.Contains(style, "pointer")
}
