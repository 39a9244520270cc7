// Package input normalizes client input events and injects them into a page.
package input

import "strings"

// Kind is an input event type as sent by clients.
type Kind string

const (
	KindClick     Kind = "click"
	KindType      Kind = "type"
	KindKey       Kind = "key"
	KindKeyPress  Kind = "keypress"
	KindKeyDown   Kind = "keydown"
	KindKeyUp     Kind = "keyup"
	KindScroll    Kind = "scroll"
	KindMouseMove Kind = "mousemove"
)

// Known reports whether the router handles this kind.
func (k Kind) Known() bool {
	switch k {
	case KindClick, KindType, KindKey, KindKeyPress, KindKeyDown, KindKeyUp, KindScroll, KindMouseMove:
		return true
	}
	return false
}

// Event is one client input event. Coordinates are in viewport pixels.
type Event struct {
	Type   Kind    `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button string  `json:"button,omitempty"`
	Text   string  `json:"text,omitempty"`
	Key    string  `json:"key,omitempty"`
	DeltaX float64 `json:"deltaX,omitempty"`
	DeltaY float64 `json:"deltaY,omitempty"`
}

// keyAliases maps lowercased key names to DOM key values. Mobile keyboards
// send lowercase names such as "backspace" and "enter".
var keyAliases = map[string]string{
	"backspace":  "Backspace",
	"enter":      "Enter",
	"return":     "Enter",
	"tab":        "Tab",
	"escape":     "Escape",
	"esc":        "Escape",
	"delete":     "Delete",
	"del":        "Delete",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"arrowright": "ArrowRight",
	"up":         "ArrowUp",
	"down":       "ArrowDown",
	"left":       "ArrowLeft",
	"right":      "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
	"space":      " ",
	"spacebar":   " ",
}

// NormalizeKey returns the canonical DOM key value for name. Single
// characters are returned unchanged so "A" and "a" stay distinct.
func NormalizeKey(name string) string {
	if len([]rune(name)) == 1 {
		return name
	}
	trimmed := strings.TrimSpace(name)
	if canonical, ok := keyAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}
