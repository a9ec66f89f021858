// internal/browser/dom/serializer.go
package dom

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute values echoed into descriptions are cut to this many characters.
const maxAttrLen = 30

var testIDAttrs = []string{"data-testid", "data-cy", "data-test", "data-selenium"}

// Serialize indexes the visible, interactive nodes in order and renders one
// "[i] description" line per node. Calling it twice on the same nodes yields
// the same result.
func Serialize(nodes []*Node) *SerializedDOM {
	out := &SerializedDOM{SelectorMap: make(map[int]SelectorEntry)}

	var lines []string
	for _, n := range nodes {
		if n == nil || !IsVisible(n) || !IsInteractive(n) {
			continue
		}
		idx := len(lines)
		out.SelectorMap[idx] = SelectorEntry{
			BackendID:  n.BackendID,
			Tag:        n.TagName,
			Attributes: n.Attributes,
			Selectors:  GenerateSelectors(n),
			Hash:       StableHash(n),
		}
		lines = append(lines, "["+strconv.Itoa(idx)+"] "+Describe(n))
	}

	out.Text = strings.Join(lines, "\n")
	out.ElementCount = len(lines)
	return out
}

// Describe renders the node as a compact line: tag, name and the attributes
// that constrain valid input.
func Describe(n *Node) string {
	tag := strings.ToLower(n.TagName)
	parts := []string{tag}
	attr := func(name string) (string, bool) {
		v, ok := n.Attributes[name]
		return v, ok
	}
	add := func(format string, args ...interface{}) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}

	if n.AXName != "" {
		add("%q", n.AXName)
	}
	if tag == "div" {
		if role := n.Role(); role != "" {
			add("role=%s", role)
		}
	}
	editable := isContentEditable(n)
	if editable {
		parts = append(parts, "contenteditable")
	}
	if v, _ := attr("type"); v != "" {
		add("type=%s", v)
	}

	placeholder, _ := attr("placeholder")
	if placeholder == "" && editable {
		placeholder, _ = attr("data-placeholder")
	}
	if placeholder != "" {
		add("placeholder=%q", truncate(placeholder))
	}
	if v, _ := attr("aria-label"); v != "" && n.AXName == "" {
		add("%q", v)
	}

	if _, ok := attr("required"); ok {
		parts = append(parts, "required")
	}
	if v, _ := attr("pattern"); v != "" {
		add("pattern=%q", truncate(v))
	}
	for _, hint := range []struct{ attr, label string }{
		{"min", "min"},
		{"max", "max"},
		{"minlength", "minlen"},
		{"maxlength", "maxlen"},
		{"step", "step"},
		{"inputmode", "inputmode"},
	} {
		if v, _ := attr(hint.attr); v != "" {
			add("%s=%s", hint.label, v)
		}
	}
	if v, _ := attr("autocomplete"); v != "" && v != "on" && v != "off" {
		add("autocomplete=%s", v)
	}

	if v, _ := attr("accept"); v != "" {
		add("accept=%q", truncate(v))
	}
	if _, ok := attr("multiple"); ok {
		parts = append(parts, "multiple")
	}

	for _, name := range testIDAttrs {
		if v, _ := attr(name); v != "" {
			add("%s=%q", name, v)
			break
		}
	}

	if _, ok := attr("disabled"); ok {
		parts = append(parts, "disabled")
	}
	if _, ok := attr("readonly"); ok {
		parts = append(parts, "readonly")
	}
	return strings.Join(parts, " ")
}

func isContentEditable(n *Node) bool {
	v, ok := n.Attributes["contenteditable"]
	return ok && v != "" && v != "false"
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxAttrLen {
		return s
	}
	return string(r[:maxAttrLen])
}
