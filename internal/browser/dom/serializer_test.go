// internal/browser/dom/serializer_test.go
package dom

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(n *Node, name string) *Node {
	n.AXName = name
	return n
}

func TestSerialize(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		out := Serialize(nil)
		assert.Empty(t, out.Text)
		assert.Empty(t, out.SelectorMap)
		assert.Zero(t, out.ElementCount)
		assert.Nil(t, out.ScrollInfo)
	})

	t.Run("filters and indexes densely in order", func(t *testing.T) {
		hidden := visibleNode("A", nil)
		hidden.BoundingBox = &BoundingBox{}
		nodes := []*Node{
			visibleNode("DIV", nil),
			named(withID(visibleNode("BUTTON", nil), 10), "Click me"),
			hidden,
			withID(visibleNode("INPUT", map[string]string{"type": "checkbox"}), 30),
			nil,
		}

		out := Serialize(nodes)
		require.Equal(t, 2, out.ElementCount)
		assert.Equal(t, "[0] button \"Click me\"\n[1] input type=checkbox", out.Text)
		assert.Equal(t, int64(10), out.SelectorMap[0].BackendID)
		assert.Equal(t, "BUTTON", out.SelectorMap[0].Tag)
		assert.Equal(t, int64(30), out.SelectorMap[1].BackendID)
		assert.Equal(t, StableHash(nodes[3]), out.SelectorMap[1].Hash)
		assert.Equal(t, map[string]string{"text": "Click me"}, out.SelectorMap[0].Selectors)
	})

	t.Run("idempotent", func(t *testing.T) {
		nodes := []*Node{
			named(visibleNode("A", map[string]string{"href": "/home"}), "Home"),
			visibleNode("INPUT", map[string]string{"type": "text", "name": "q"}),
		}
		first, second := Serialize(nodes), Serialize(nodes)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Serialize is not idempotent (-first +second):\n%s", diff)
		}
	})
}

func withID(n *Node, id int64) *Node {
	n.BackendID = id
	return n
}

func TestDescribe(t *testing.T) {
	long := strings.Repeat("A", 50)

	tests := []struct {
		name   string
		node   *Node
		want   string
		absent []string
	}{
		{"tag only", visibleNode("BUTTON", nil), "button", nil},
		{"accessible name", named(visibleNode("BUTTON", nil), "Submit"), `button "Submit"`, nil},
		{"input type", visibleNode("INPUT", map[string]string{"type": "email"}), "input type=email", nil},
		{"placeholder", visibleNode("INPUT", map[string]string{"placeholder": "Search here"}), `input placeholder="Search here"`, nil},
		{"placeholder truncated", visibleNode("INPUT", map[string]string{"placeholder": long}), `input placeholder="` + strings.Repeat("A", 30) + `"`, nil},
		{"div ax role", func() *Node { n := visibleNode("DIV", nil); n.AXRole = "textbox"; return n }(), "div role=textbox", nil},
		{"div role attribute", visibleNode("DIV", map[string]string{"role": "combobox"}), "div role=combobox", nil},
		{"role hidden on other tags", visibleNode("SPAN", map[string]string{"role": "button"}), "span", nil},
		{
			"contenteditable with data placeholder",
			visibleNode("DIV", map[string]string{"contenteditable": "true", "data-placeholder": "Write a reply"}),
			`div contenteditable placeholder="Write a reply"`, nil,
		},
		{
			"data placeholder needs contenteditable",
			visibleNode("DIV", map[string]string{"data-placeholder": "x", "tabindex": "0"}),
			"div", nil,
		},
		{"aria label without name", visibleNode("BUTTON", map[string]string{"aria-label": "Close dialog"}), `button "Close dialog"`, nil},
		{
			"aria label suppressed by name",
			named(visibleNode("BUTTON", map[string]string{"aria-label": "Close dialog"}), "Close"),
			`button "Close"`, []string{"Close dialog"},
		},
		{
			"validation hints",
			visibleNode("INPUT", map[string]string{
				"type": "text", "required": "", "pattern": "[0-9]{5}", "minlength": "5", "maxlength": "255",
			}),
			`input type=text required pattern="[0-9]{5}" minlen=5 maxlen=255`, nil,
		},
		{
			"numeric range",
			visibleNode("INPUT", map[string]string{"type": "number", "min": "1", "max": "100", "step": "5"}),
			"input type=number min=1 max=100 step=5", nil,
		},
		{
			"input mode and autocomplete",
			visibleNode("INPUT", map[string]string{"inputmode": "numeric", "autocomplete": "one-time-code"}),
			"input inputmode=numeric autocomplete=one-time-code", nil,
		},
		{"trivial autocomplete", visibleNode("INPUT", map[string]string{"autocomplete": "off"}), "input", nil},
		{
			"file input",
			visibleNode("INPUT", map[string]string{"type": "file", "accept": "image/png,image/jpeg", "multiple": ""}),
			`input type=file accept="image/png,image/jpeg" multiple`, nil,
		},
		{
			"first test id wins",
			visibleNode("BUTTON", map[string]string{"data-cy": "cy-id", "data-testid": "submit-btn"}),
			`button data-testid="submit-btn"`, []string{"cy-id"},
		},
		{"data-cy fallback", visibleNode("BUTTON", map[string]string{"data-cy": "cy-id"}), `button data-cy="cy-id"`, nil},
		{"disabled", visibleNode("BUTTON", map[string]string{"disabled": ""}), "button disabled", nil},
		{"readonly", visibleNode("INPUT", map[string]string{"type": "text", "readonly": ""}), "input type=text readonly", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.node)
			assert.Equal(t, tt.want, got)
			for _, s := range tt.absent {
				assert.NotContains(t, got, s)
			}
		})
	}
}
