// Package input captures system-wide keyboard and mouse input through
// low-level OS hooks and hands normalized events to consumer workers.
package input

import (
	"fmt"
	"strings"
)

// KeyboardEvent is a normalized keyboard hook event.
type KeyboardEvent struct {
	Code    uint32 // platform virtual-key code
	Time    uint32 // platform tick, milliseconds
	Pressed bool
}

// MouseKind enumerates the mouse hook subtypes that are escalated.
type MouseKind uint8

const (
	MouseMove MouseKind = iota + 1
	MouseWheel
	MouseWheelH
	MouseLeftDown
	MouseLeftUp
	MouseRightDown
	MouseRightUp
	MouseMiddleDown
	MouseMiddleUp
)

var mouseKindNames = map[MouseKind]string{
	MouseMove:       "move",
	MouseWheel:      "wheel",
	MouseWheelH:     "wheel_h",
	MouseLeftDown:   "left_down",
	MouseLeftUp:     "left_up",
	MouseRightDown:  "right_down",
	MouseRightUp:    "right_up",
	MouseMiddleDown: "middle_down",
	MouseMiddleUp:   "middle_up",
}

func (k MouseKind) String() string {
	if name, ok := mouseKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("mouse_kind(%d)", uint8(k))
}

// ParseMouseKind resolves a config name such as "left_down".
func ParseMouseKind(name string) (MouseKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range mouseKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown mouse kind %q", name)
}

// MouseEvent is a normalized mouse hook event. X and Y are screen
// coordinates as reported by the hook.
type MouseEvent struct {
	Kind MouseKind
	X    int32
	Y    int32
}
