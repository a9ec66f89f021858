// internal/browser/element/keys.go
package element

import (
	"strings"
	"unicode"

	"github.com/madanlalit/heimdall/api/schemas"
)

// KeyInfo describes how a key is reported to the page.
type KeyInfo struct {
	Key       string
	Code      string
	VK        int64
	Modifiers schemas.KeyModifier
	// Text is what a char event inserts; empty for non-printing keys.
	Text string
}

type punct struct {
	code string
	vk   int64
	mod  schemas.KeyModifier
}

// US QWERTY punctuation and the shifted characters that share a physical key.
var punctuation = map[rune]punct{
	' ':  {"Space", 32, schemas.ModNone},
	'-':  {"Minus", 189, schemas.ModNone},
	'=':  {"Equal", 187, schemas.ModNone},
	'[':  {"BracketLeft", 219, schemas.ModNone},
	']':  {"BracketRight", 221, schemas.ModNone},
	'\\': {"Backslash", 220, schemas.ModNone},
	';':  {"Semicolon", 186, schemas.ModNone},
	'\'': {"Quote", 222, schemas.ModNone},
	',':  {"Comma", 188, schemas.ModNone},
	'.':  {"Period", 190, schemas.ModNone},
	'/':  {"Slash", 191, schemas.ModNone},
	'`':  {"Backquote", 192, schemas.ModNone},
	'_':  {"Minus", 189, schemas.ModShift},
	'+':  {"Equal", 187, schemas.ModShift},
	'{':  {"BracketLeft", 219, schemas.ModShift},
	'}':  {"BracketRight", 221, schemas.ModShift},
	'|':  {"Backslash", 220, schemas.ModShift},
	':':  {"Semicolon", 186, schemas.ModShift},
	'"':  {"Quote", 222, schemas.ModShift},
	'<':  {"Comma", 188, schemas.ModShift},
	'>':  {"Period", 190, schemas.ModShift},
	'?':  {"Slash", 191, schemas.ModShift},
	'~':  {"Backquote", 192, schemas.ModShift},
	'!':  {"Digit1", 49, schemas.ModShift},
	'@':  {"Digit2", 50, schemas.ModShift},
	'#':  {"Digit3", 51, schemas.ModShift},
	'$':  {"Digit4", 52, schemas.ModShift},
	'%':  {"Digit5", 53, schemas.ModShift},
	'^':  {"Digit6", 54, schemas.ModShift},
	'&':  {"Digit7", 55, schemas.ModShift},
	'*':  {"Digit8", 56, schemas.ModShift},
	'(':  {"Digit9", 57, schemas.ModShift},
	')':  {"Digit0", 48, schemas.ModShift},
}

// namedKeys maps DOM key names to their code and virtual key code.
var namedKeys = map[string]KeyInfo{
	"Enter":      {Key: "Enter", Code: "Enter", VK: 13, Text: "\r"},
	"Tab":        {Key: "Tab", Code: "Tab", VK: 9},
	"Backspace":  {Key: "Backspace", Code: "Backspace", VK: 8},
	"Delete":     {Key: "Delete", Code: "Delete", VK: 46},
	"Escape":     {Key: "Escape", Code: "Escape", VK: 27},
	"Space":      {Key: " ", Code: "Space", VK: 32, Text: " "},
	"ArrowUp":    {Key: "ArrowUp", Code: "ArrowUp", VK: 38},
	"ArrowDown":  {Key: "ArrowDown", Code: "ArrowDown", VK: 40},
	"ArrowLeft":  {Key: "ArrowLeft", Code: "ArrowLeft", VK: 37},
	"ArrowRight": {Key: "ArrowRight", Code: "ArrowRight", VK: 39},
	"Home":       {Key: "Home", Code: "Home", VK: 36},
	"End":        {Key: "End", Code: "End", VK: 35},
	"PageUp":     {Key: "PageUp", Code: "PageUp", VK: 33},
	"PageDown":   {Key: "PageDown", Code: "PageDown", VK: 34},
	"Insert":     {Key: "Insert", Code: "Insert", VK: 45},
	"F1":         {Key: "F1", Code: "F1", VK: 112},
	"F5":         {Key: "F5", Code: "F5", VK: 116},
	"F12":        {Key: "F12", Code: "F12", VK: 123},
}

// aliases accepts the spellings LLMs tend to produce.
var aliases = map[string]string{
	"return":     "Enter",
	"enter":      "Enter",
	"tab":        "Tab",
	"esc":        "Escape",
	"escape":     "Escape",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"del":        "Delete",
	"space":      "Space",
	"up":         "ArrowUp",
	"arrowup":    "ArrowUp",
	"down":       "ArrowDown",
	"arrowdown":  "ArrowDown",
	"left":       "ArrowLeft",
	"arrowleft":  "ArrowLeft",
	"right":      "ArrowRight",
	"arrowright": "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
}

// CharKey returns the key description for typing a single character.
// Characters outside the map are sent with their own key and no code.
func CharKey(r rune) KeyInfo {
	text := string(r)
	switch {
	case r == '\n' || r == '\r':
		return namedKeys["Enter"]
	case r == '\t':
		return namedKeys["Tab"]
	case r <= unicode.MaxASCII && unicode.IsLetter(r):
		upper := unicode.ToUpper(r)
		info := KeyInfo{Key: text, Code: "Key" + string(upper), VK: int64(upper), Text: text}
		if unicode.IsUpper(r) {
			info.Modifiers = schemas.ModShift
		}
		return info
	case r >= '0' && r <= '9':
		return KeyInfo{Key: text, Code: "Digit" + text, VK: int64(r), Text: text}
	}
	if p, ok := punctuation[r]; ok {
		return KeyInfo{Key: text, Code: p.code, VK: p.vk, Modifiers: p.mod, Text: text}
	}
	return KeyInfo{Key: text, Text: text}
}

// ParseKey parses "Enter", "a", "Control+a" or "Shift+Tab" into a key and
// modifier mask.
func ParseKey(combo string) (KeyInfo, bool) {
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return KeyInfo{}, false
	}

	var parts []string
	switch {
	case combo == "+":
		parts = []string{"+"}
	case strings.HasSuffix(combo, "++"):
		// "Control++" presses the plus key.
		parts = append(strings.Split(strings.TrimSuffix(combo, "++"), "+"), "+")
	default:
		parts = strings.Split(combo, "+")
	}

	keyPart := parts[len(parts)-1]
	mods := schemas.ParseModifiers(parts[:len(parts)-1])

	info, ok := lookupKey(keyPart)
	if !ok {
		return KeyInfo{}, false
	}
	info.Modifiers |= mods
	// A modified printable key is a shortcut, not text entry.
	if mods&(schemas.ModCtrl|schemas.ModMeta|schemas.ModAlt) != 0 {
		info.Text = ""
	}
	return info, true
}

func lookupKey(name string) (KeyInfo, bool) {
	if info, ok := namedKeys[name]; ok {
		return info, true
	}
	if canonical, ok := aliases[strings.ToLower(name)]; ok {
		return namedKeys[canonical], true
	}
	runes := []rune(name)
	if len(runes) == 1 {
		return CharKey(runes[0]), true
	}
	return KeyInfo{}, false
}
