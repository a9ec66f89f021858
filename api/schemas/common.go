package schemas

import "strings"

// String renders the modifier mask the way shortcut strings are written ("Ctrl+Shift").
func (m KeyModifier) String() string {
	if m == ModNone {
		return ""
	}
	var parts []string
	if m&ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if m&ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if m&ModMeta != 0 {
		parts = append(parts, "Meta")
	}
	if m&ModShift != 0 {
		parts = append(parts, "Shift")
	}
	return strings.Join(parts, "+")
}

// ParseModifiers converts modifier names ("ctrl", "Shift", "meta", "alt") into a mask.
// Unknown names are ignored.
func ParseModifiers(names []string) KeyModifier {
	var m KeyModifier
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "alt", "option":
			m |= ModAlt
		case "ctrl", "control":
			m |= ModCtrl
		case "meta", "cmd", "command":
			m |= ModMeta
		case "shift":
			m |= ModShift
		}
	}
	return m
}
