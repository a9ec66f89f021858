package element

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/madanlalit/heimdall/api/schemas"
)

func TestCharKey(t *testing.T) {
	tests := []struct {
		in   rune
		want KeyInfo
	}{
		{'a', KeyInfo{Key: "a", Code: "KeyA", VK: 65, Text: "a"}},
		{'Z', KeyInfo{Key: "Z", Code: "KeyZ", VK: 90, Modifiers: schemas.ModShift, Text: "Z"}},
		{'7', KeyInfo{Key: "7", Code: "Digit7", VK: 55, Text: "7"}},
		{' ', KeyInfo{Key: " ", Code: "Space", VK: 32, Text: " "}},
		{'-', KeyInfo{Key: "-", Code: "Minus", VK: 189, Text: "-"}},
		{'?', KeyInfo{Key: "?", Code: "Slash", VK: 191, Modifiers: schemas.ModShift, Text: "?"}},
		{'@', KeyInfo{Key: "@", Code: "Digit2", VK: 50, Modifiers: schemas.ModShift, Text: "@"}},
		{'\n', KeyInfo{Key: "Enter", Code: "Enter", VK: 13, Text: "\r"}},
		{'\t', KeyInfo{Key: "Tab", Code: "Tab", VK: 9}},
		{'é', KeyInfo{Key: "é", Text: "é"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, CharKey(tt.in))
		})
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in     string
		want   KeyInfo
		wantOK bool
	}{
		{"Enter", KeyInfo{Key: "Enter", Code: "Enter", VK: 13, Text: "\r"}, true},
		{"return", KeyInfo{Key: "Enter", Code: "Enter", VK: 13, Text: "\r"}, true},
		{"esc", KeyInfo{Key: "Escape", Code: "Escape", VK: 27}, true},
		{"ArrowDown", KeyInfo{Key: "ArrowDown", Code: "ArrowDown", VK: 40}, true},
		{"Shift+Tab", KeyInfo{Key: "Tab", Code: "Tab", VK: 9, Modifiers: schemas.ModShift}, true},
		{"Control+a", KeyInfo{Key: "a", Code: "KeyA", VK: 65, Modifiers: schemas.ModCtrl}, true},
		{"cmd+shift+k", KeyInfo{Key: "k", Code: "KeyK", VK: 75, Modifiers: schemas.ModMeta | schemas.ModShift}, true},
		{"Shift+a", KeyInfo{Key: "a", Code: "KeyA", VK: 65, Modifiers: schemas.ModShift, Text: "a"}, true},
		{"+", KeyInfo{Key: "+", Code: "Equal", VK: 187, Modifiers: schemas.ModShift, Text: "+"}, true},
		{"Control++", KeyInfo{Key: "+", Code: "Equal", VK: 187, Modifiers: schemas.ModShift | schemas.ModCtrl}, true},
		{"  ", KeyInfo{}, false},
		{"Control+", KeyInfo{}, false},
		{"NotAKey", KeyInfo{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseKey(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
