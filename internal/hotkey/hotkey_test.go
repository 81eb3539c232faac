package hotkey

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"gkvm/internal/input"
)

func newTestManager() *Manager {
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func expectFired(t *testing.T, fired <-chan struct{}, want bool) {
	t.Helper()
	select {
	case <-fired:
		if !want {
			t.Fatal("hotkey fired unexpectedly")
		}
	case <-time.After(200 * time.Millisecond):
		if want {
			t.Fatal("hotkey did not fire")
		}
	}
}

func TestEscapeChordFromKeyboardEvents(t *testing.T) {
	m := newTestManager()
	fired := make(chan struct{}, 1)
	if _, err := m.Register("Ctrl+Alt+Shift+Esc", func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	fwd := m.KeyboardForwarder()
	for _, vk := range []uint32{0xA2, 0xA4, 0xA0} {
		if err := fwd.Forward(input.KeyboardEvent{Code: vk, Pressed: true}); err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
	}
	expectFired(t, fired, false)

	fwd.Forward(input.KeyboardEvent{Code: 0x1B, Pressed: true})
	expectFired(t, fired, true)
}

func TestReleaseBreaksChord(t *testing.T) {
	m := newTestManager()
	fired := make(chan struct{}, 1)
	m.Register("ctrl + f12", func() { fired <- struct{}{} })

	m.ForwardKeyboard(input.KeyboardEvent{Code: 0x11, Pressed: true})
	m.ForwardKeyboard(input.KeyboardEvent{Code: 0x11, Pressed: false})
	if m.Held("ctrl") {
		t.Error("Expected CTRL to be released")
	}
	m.ForwardKeyboard(input.KeyboardEvent{Code: 0x7B, Pressed: true})
	expectFired(t, fired, false)
}

func TestMouseButtonsParticipate(t *testing.T) {
	m := newTestManager()
	fired := make(chan struct{}, 1)
	m.Register("Mouse2+Mouse3", func() { fired <- struct{}{} })

	fwd := m.MouseForwarder()
	fwd.Forward(input.MouseEvent{Kind: input.MouseMove})
	fwd.Forward(input.MouseEvent{Kind: input.MouseMiddleDown})
	fwd.Forward(input.MouseEvent{Kind: input.MouseRightDown})
	expectFired(t, fired, true)

	if !m.Held("MOUSE3") {
		t.Error("Expected MOUSE3 held")
	}
	fwd.Forward(input.MouseEvent{Kind: input.MouseRightUp})
	if m.Held("MOUSE3") {
		t.Error("Expected MOUSE3 released")
	}
}

func TestRegisterAliasesAndErrors(t *testing.T) {
	m := newTestManager()

	if id, err := m.Register("", func() {}); err != nil || id != -1 {
		t.Errorf("empty hotkey: got id=%d err=%v", id, err)
	}
	if _, err := m.Register("Ctrl++A", func() {}); err == nil {
		t.Error("Expected error for empty key name")
	}
	if _, err := m.Register("Ctrl+A", nil); err == nil {
		t.Error("Expected error for nil callback")
	}

	fired := make(chan struct{}, 1)
	if id, err := m.Register("Control+Escape", func() { fired <- struct{}{} }); err != nil || id != 0 {
		t.Fatalf("Register failed: id=%d err=%v", id, err)
	}
	m.UpdateState("CTRL", true)
	m.UpdateState("ESC", true)
	expectFired(t, fired, true)
}

func TestClear(t *testing.T) {
	m := newTestManager()
	fired := make(chan struct{}, 1)
	m.Register("A", func() { fired <- struct{}{} })
	m.Clear()

	m.UpdateState("A", true)
	expectFired(t, fired, false)
}

func TestVKCodeToName(t *testing.T) {
	tests := []struct {
		vk   uint32
		want string
	}{
		{0xA3, "CTRL"},
		{0x5C, "CMD"},
		{0x41, "A"},
		{0x39, "9"},
		{0x70, "F1"},
		{0x87, "F24"},
		{0xFF, ""},
	}
	for _, tt := range tests {
		if got := vkCodeToName(tt.vk); got != tt.want {
			t.Errorf("vkCodeToName(0x%X) = %q, want %q", tt.vk, got, tt.want)
		}
	}
}
