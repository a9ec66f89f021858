// internal/browser/dom/builder.go
package dom

import (
	"strings"

	"github.com/chromedp/cdproto/domsnapshot"
)

// Node names that can never be interactive; dropped before classification.
var skippedNames = map[string]bool{
	"#TEXT":    true,
	"#COMMENT": true,
	"SCRIPT":   true,
	"STYLE":    true,
	"META":     true,
	"LINK":     true,
	"HEAD":     true,
}

// BuildNodes fuses the first document of a snapshot with the accessibility
// tree. Nodes are returned in snapshot order.
func BuildNodes(docs []*domsnapshot.DocumentSnapshot, strs []string, ax []AXNode) []*Node {
	if len(docs) == 0 || docs[0] == nil || docs[0].Nodes == nil {
		return nil
	}
	doc := docs[0]
	tree := doc.Nodes

	lookup := func(idx int64) string {
		if idx < 0 || idx >= int64(len(strs)) {
			return ""
		}
		return strs[idx]
	}

	// Layout rows are indexed separately from the node arrays.
	boxes := make(map[int64]*BoundingBox)
	if layout := doc.Layout; layout != nil {
		for row, nodeIdx := range layout.NodeIndex {
			if _, seen := boxes[nodeIdx]; seen || row >= len(layout.Bounds) {
				continue
			}
			if b := layout.Bounds[row]; len(b) >= 4 {
				boxes[nodeIdx] = &BoundingBox{X: b[0], Y: b[1], Width: b[2], Height: b[3]}
			}
		}
	}

	axByBackend := make(map[int64]AXNode, len(ax))
	for _, n := range ax {
		if n.BackendID != 0 {
			axByBackend[n.BackendID] = n
		}
	}

	var nodes []*Node
	for i, backendID := range tree.BackendNodeID {
		if backendID == 0 {
			continue
		}
		var name string
		if i < len(tree.NodeName) {
			name = lookup(int64(tree.NodeName[i]))
		}
		if skippedNames[strings.ToUpper(name)] {
			continue
		}

		attrs := make(map[string]string)
		if i < len(tree.Attributes) {
			pairs := tree.Attributes[i]
			for j := 0; j+1 < len(pairs); j += 2 {
				attrs[lookup(pairs[j])] = lookup(pairs[j+1])
			}
		}

		parent := -1
		if i < len(tree.ParentIndex) {
			parent = int(tree.ParentIndex[i])
		}

		a := axByBackend[int64(backendID)]
		nodes = append(nodes, &Node{
			BackendID:   int64(backendID),
			TagName:     name,
			Attributes:  attrs,
			BoundingBox: boxes[int64(i)],
			AXName:      a.Name,
			AXRole:      a.Role,
			ParentIndex: parent,
		})
	}
	return nodes
}
