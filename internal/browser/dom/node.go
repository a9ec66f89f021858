// internal/browser/dom/node.go
package dom

import (
	"context"

	"github.com/chromedp/cdproto/domsnapshot"

	"github.com/madanlalit/heimdall/api/schemas"
)

// BoundingBox is a node's layout rectangle in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is one element of a page snapshot.
type Node struct {
	BackendID int64
	// TagName is upper case, as reported by the snapshot.
	TagName    string
	Attributes map[string]string
	// BoundingBox is nil when the node has no layout box.
	BoundingBox *BoundingBox
	AXName      string
	AXRole      string
	// ParentIndex indexes the raw snapshot arrays, -1 for the root.
	ParentIndex int
}

// Attr returns the attribute value and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attributes[name]
	return v, ok
}

// Role returns the accessibility role, falling back to the role attribute.
func (n *Node) Role() string {
	if n.AXRole != "" {
		return n.AXRole
	}
	return n.Attributes["role"]
}

// AXNode is the slice of the accessibility tree the builder joins on.
type AXNode struct {
	BackendID int64
	Name      string
	Role      string
}

// ScrollInfo describes the viewport and the scrollable document size.
type ScrollInfo struct {
	ViewportWidth  float64 `json:"viewportWidth"`
	ViewportHeight float64 `json:"viewportHeight"`
	ScrollX        float64 `json:"scrollX"`
	ScrollY        float64 `json:"scrollY"`
	ContentWidth   float64 `json:"contentWidth"`
	ContentHeight  float64 `json:"contentHeight"`
}

// SelectorEntry maps a serialized index back to the page element.
type SelectorEntry struct {
	BackendID  int64             `json:"backendId"`
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes"`
	Selectors  map[string]string `json:"selectors"`
	Hash       uint64            `json:"hash"`
}

// SerializedDOM is the indexed, textual view of the page handed to the LLM.
type SerializedDOM struct {
	Text         string
	SelectorMap  map[int]SelectorEntry
	ElementCount int
	// ScrollInfo is nil when the layout metrics could not be read.
	ScrollInfo *ScrollInfo
}

// Source is the set of protocol calls a snapshot needs.
type Source interface {
	// CaptureSnapshot returns the flattened documents and their shared string table.
	CaptureSnapshot(ctx context.Context) ([]*domsnapshot.DocumentSnapshot, []string, error)
	FullAXTree(ctx context.Context) ([]AXNode, error)
	LayoutMetrics(ctx context.Context) (*schemas.LayoutMetrics, error)
}
