// internal/browser/dom/hash.go
package dom

import (
	"hash/fnv"
	"sort"
	"strings"
)

// dynamicClasses are state tokens frameworks toggle on the same element.
var dynamicClasses = map[string]bool{
	"focus":       true,
	"focused":     true,
	"hover":       true,
	"hovered":     true,
	"active":      true,
	"selected":    true,
	"disabled":    true,
	"animation":   true,
	"animating":   true,
	"transition":  true,
	"loading":     true,
	"open":        true,
	"opened":      true,
	"closed":      true,
	"expanded":    true,
	"collapsed":   true,
	"visible":     true,
	"hidden":      true,
	"pressed":     true,
	"checked":     true,
	"highlighted": true,
	"current":     true,
	"entering":    true,
	"leaving":     true,
}

func isDynamicClass(token string) bool {
	t := strings.ToLower(token)
	t = strings.TrimPrefix(t, "is-")
	t = strings.TrimPrefix(t, "has-")
	return dynamicClasses[t]
}

// stableClasses drops dynamic state tokens and sorts the rest.
func stableClasses(class string) string {
	var kept []string
	for _, token := range strings.Fields(class) {
		if !isDynamicClass(token) {
			kept = append(kept, token)
		}
	}
	sort.Strings(kept)
	return strings.Join(kept, " ")
}

// StableHash identifies the same logical element across snapshots, ignoring
// CSS state classes and inline styles.
func StableHash(n *Node) uint64 {
	h := fnv.New64a()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(strings.ToLower(n.TagName))
	write(n.Role())

	names := make([]string, 0, len(n.Attributes))
	for name := range n.Attributes {
		if name != "style" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		value := n.Attributes[name]
		if name == "class" {
			value = stableClasses(value)
		}
		write(name)
		write(value)
	}
	return h.Sum64()
}
