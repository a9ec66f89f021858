// internal/browser/dom/hash_test.go
package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStableHash(t *testing.T) {
	hashOf := func(tag string, attrs map[string]string) uint64 {
		return StableHash(visibleNode(tag, attrs))
	}

	t.Run("deterministic", func(t *testing.T) {
		attrs := map[string]string{"id": "submit", "class": "btn primary", "type": "submit"}
		assert.Equal(t, hashOf("BUTTON", attrs), hashOf("BUTTON", attrs))
	})

	t.Run("tag case does not matter", func(t *testing.T) {
		assert.Equal(t, hashOf("BUTTON", map[string]string{"id": "x"}), hashOf("button", map[string]string{"id": "x"}))
	})

	t.Run("identity attributes change the hash", func(t *testing.T) {
		assert.NotEqual(t, hashOf("BUTTON", map[string]string{"id": "a"}), hashOf("BUTTON", map[string]string{"id": "b"}))
		assert.NotEqual(t, hashOf("BUTTON", map[string]string{"id": "x"}), hashOf("A", map[string]string{"id": "x"}))
		assert.NotEqual(t, hashOf("BUTTON", map[string]string{"class": "btn primary"}), hashOf("BUTTON", map[string]string{"class": "btn secondary"}))
	})

	t.Run("dynamic classes are ignored", func(t *testing.T) {
		base := hashOf("BUTTON", map[string]string{"id": "x", "class": "btn"})
		for token := range dynamicClasses {
			assert.Equal(t, base, hashOf("BUTTON", map[string]string{"id": "x", "class": "btn " + token}), token)
		}
		assert.Equal(t, base, hashOf("BUTTON", map[string]string{"id": "x", "class": "Active btn is-open has-focus"}))
	})

	t.Run("class order does not matter", func(t *testing.T) {
		assert.Equal(t, hashOf("DIV", map[string]string{"class": "a b"}), hashOf("DIV", map[string]string{"class": "b  a"}))
	})

	t.Run("style is excluded", func(t *testing.T) {
		assert.Equal(t, hashOf("DIV", map[string]string{"id": "x", "style": "color: red"}), hashOf("DIV", map[string]string{"id": "x", "style": "color: blue"}))
	})

	t.Run("role participates", func(t *testing.T) {
		plain := visibleNode("DIV", map[string]string{"id": "x"})
		withRole := visibleNode("DIV", map[string]string{"id": "x"})
		withRole.AXRole = "button"
		assert.NotEqual(t, StableHash(plain), StableHash(withRole))
	})

	t.Run("attribute boundaries are unambiguous", func(t *testing.T) {
		assert.NotEqual(t, hashOf("DIV", map[string]string{"ab": "c"}), hashOf("DIV", map[string]string{"a": "bc"}))
	})
}
