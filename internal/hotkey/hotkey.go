// Package hotkey matches key and button chords against the captured input
// stream and fires callbacks when a registered combination is held.
package hotkey

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gkvm/internal/input"
)

// Manager handles hotkey registration and matching
type Manager struct {
	mu           sync.RWMutex
	hotkeys      []*registeredHotkey
	currentState map[string]bool // keys/buttons currently held
	logger       *slog.Logger
}

type registeredHotkey struct {
	parts    []string // e.g. ["CTRL", "ALT", "MOUSE4"]
	original string
	callback func()
}

var aliases = map[string]string{
	"CONTROL": "CTRL",
	"ESCAPE":  "ESC",
	"WIN":     "CMD",
	"META":    "CMD",
	"RETURN":  "ENTER",
	"DEL":     "DELETE",
}

// NewManager creates a new hotkey manager. A nil logger uses slog.Default.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		currentState: make(map[string]bool),
		logger:       logger.With("component", "hotkey"),
	}
}

// Register registers a hotkey string (e.g. "Ctrl+Alt+1", "Mouse2+Mouse3")
// and returns its index. An empty string registers nothing.
func (m *Manager) Register(hotkeyStr string, callback func()) (int, error) {
	if strings.TrimSpace(hotkeyStr) == "" {
		return -1, nil
	}
	if callback == nil {
		return -1, fmt.Errorf("hotkey %q: callback is required", hotkeyStr)
	}

	parts := strings.Split(strings.ToUpper(hotkeyStr), "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return -1, fmt.Errorf("hotkey %q: empty key name", hotkeyStr)
		}
		if alias, ok := aliases[p]; ok {
			p = alias
		}
		parts[i] = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = append(m.hotkeys, &registeredHotkey{
		parts:    parts,
		original: hotkeyStr,
		callback: callback,
	})

	return len(m.hotkeys) - 1, nil
}

// Clear removes all registered hotkeys
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
}

// UpdateState records a key or button transition and checks for matches.
func (m *Manager) UpdateState(key string, isDown bool) {
	if key == "" {
		return
	}
	m.mu.Lock()
	key = strings.ToUpper(key)
	if isDown {
		m.currentState[key] = true
	} else {
		delete(m.currentState, key)
	}
	m.mu.Unlock()

	if isDown {
		m.checkMatches()
	}
}

// Held reports whether key is currently down.
func (m *Manager) Held(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentState[strings.ToUpper(key)]
}

func (m *Manager) checkMatches() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, hk := range m.hotkeys {
		match := true
		for _, part := range hk.parts {
			if !m.currentState[part] {
				match = false
				break
			}
		}

		if match {
			m.logger.Info("Hotkey triggered", "hotkey", hk.original)
			go hk.callback()
		}
	}
}

// ForwardKeyboard feeds a captured key transition into the matcher. Keys
// without a name are ignored.
func (m *Manager) ForwardKeyboard(ev input.KeyboardEvent) error {
	m.UpdateState(vkCodeToName(ev.Code), ev.Pressed)
	return nil
}

// ForwardMouse feeds a captured button transition into the matcher.
func (m *Manager) ForwardMouse(ev input.MouseEvent) error {
	switch ev.Kind {
	case input.MouseLeftDown:
		m.UpdateState("MOUSE1", true)
	case input.MouseLeftUp:
		m.UpdateState("MOUSE1", false)
	case input.MouseMiddleDown:
		m.UpdateState("MOUSE2", true)
	case input.MouseMiddleUp:
		m.UpdateState("MOUSE2", false)
	case input.MouseRightDown:
		m.UpdateState("MOUSE3", true)
	case input.MouseRightUp:
		m.UpdateState("MOUSE3", false)
	}
	return nil
}

// KeyboardForwarder adapts the manager to a keyboard worker.
func (m *Manager) KeyboardForwarder() input.Forwarder[input.KeyboardEvent] {
	return input.ForwarderFunc[input.KeyboardEvent](m.ForwardKeyboard)
}

// MouseForwarder adapts the manager to a mouse worker.
func (m *Manager) MouseForwarder() input.Forwarder[input.MouseEvent] {
	return input.ForwarderFunc[input.MouseEvent](m.ForwardMouse)
}
