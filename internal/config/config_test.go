package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gkvm/internal/input"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.Dispatch.KeyboardCapacity != input.DefaultCapacity || cfg.Dispatch.MouseCapacity != input.DefaultCapacity {
		t.Errorf("Expected default capacities %d, got %+v", input.DefaultCapacity, cfg.Dispatch)
	}
	if cfg.EscapeHotkey != "Ctrl+Alt+Shift+F12" {
		t.Errorf("unexpected escape hotkey %q", cfg.EscapeHotkey)
	}
	if cfg.Journal.Enabled {
		t.Error("journal must be off by default")
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	m := newTestManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := m.Get().Log.Level; got != "info" {
		t.Errorf("Expected default level, got %q", got)
	}
}

func TestLoadYAML(t *testing.T) {
	m := newTestManager(t)
	writeFile(t, m.Path(), `
log:
  level: debug
  format: json
dispatch:
  keyboard_capacity: 32
suppress:
  keys: [0x5B, 0x5C]
  mouse: [wheel, Middle_Down]
journal:
  enabled: true
`)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log section %+v", cfg.Log)
	}
	if cfg.Dispatch.KeyboardCapacity != 32 {
		t.Errorf("Expected keyboard capacity 32, got %d", cfg.Dispatch.KeyboardCapacity)
	}
	if cfg.Dispatch.MouseCapacity != input.DefaultCapacity {
		t.Errorf("omitted mouse capacity must keep default, got %d", cfg.Dispatch.MouseCapacity)
	}
	if len(cfg.Suppress.Keys) != 2 || cfg.Suppress.Keys[0] != 0x5B {
		t.Errorf("unexpected keys %v", cfg.Suppress.Keys)
	}
	if !cfg.Journal.Enabled {
		t.Error("Expected journal enabled")
	}

	policy, err := cfg.SuppressPolicy()
	if err != nil {
		t.Fatalf("SuppressPolicy failed: %v", err)
	}
	if !policy.EatKeyboard(input.KeyboardEvent{Code: 0x5C}) {
		t.Error("Expected 0x5C to be suppressed")
	}
	if !policy.EatMouse(input.MouseEvent{Kind: input.MouseMiddleDown}) {
		t.Error("Expected middle_down to be suppressed")
	}
	if policy.EatMouse(input.MouseEvent{Kind: input.MouseMove}) {
		t.Error("move must not be suppressed")
	}
}

func TestLoadInvalidKeepsPrevious(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "zero capacity", body: "dispatch:\n  mouse_capacity: 0\n", want: "mouse_capacity"},
		{name: "unknown mouse kind", body: "suppress:\n  mouse: [x_button]\n", want: "suppress.mouse"},
		{name: "key out of range", body: "suppress:\n  keys: [0x1FF]\n", want: "suppress.keys"},
		{name: "bad level", body: "log:\n  level: loud\n", want: "log.level"},
		{name: "bad format", body: "log:\n  format: xml\n", want: "log.format"},
		{name: "not yaml", body: "log: [\n", want: "parse"},
		{name: "malformed escape hotkey", body: "escape_hotkey: Ctrl++\n", want: "escape_hotkey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			writeFile(t, m.Path(), tt.body)

			err := m.Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Expected error mentioning %q, got %v", tt.want, err)
			}
			if err := m.Get().Validate(); err != nil {
				t.Errorf("previous configuration was replaced: %v", err)
			}
		})
	}
}

func TestEscapeHotkeyAvoidsTaskManagerChord(t *testing.T) {
	parts := map[string]bool{}
	for _, p := range strings.Split(strings.ToUpper(DefaultEscapeHotkey), "+") {
		parts[strings.TrimSpace(p)] = true
	}
	if parts["CTRL"] && parts["SHIFT"] && parts["ESC"] {
		t.Errorf("default escape hotkey %q contains Ctrl+Shift+Esc", DefaultEscapeHotkey)
	}
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	m := newTestManager(t)

	created, err := m.LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Fatal("Expected the default file to be written")
	}
	if _, err := os.Stat(m.Path()); err != nil {
		t.Fatalf("config file missing after first run: %v", err)
	}

	writeFile(t, m.Path(), "escape_hotkey: Ctrl+F11\n")
	created, err = m.LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("existing file must not be overwritten")
	}
	if got := m.Get().EscapeHotkey; got != "Ctrl+F11" {
		t.Errorf("Expected existing file to be loaded, got %q", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	m := newTestManager(t)
	cfg := DefaultConfig()
	cfg.Suppress.Mouse = []string{"left_down"}
	cfg.EscapeHotkey = "Ctrl+F12"
	m.Set(cfg)

	if err := m.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	other, err := NewManager(m.Path())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := other.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := other.Get()
	if got.EscapeHotkey != "Ctrl+F12" || len(got.Suppress.Mouse) != 1 {
		t.Errorf("unexpected reloaded config %+v", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := newTestManager(t)
	cfg := DefaultConfig()
	cfg.Suppress.Keys = []uint32{0x5B}
	m.Set(cfg)

	got := m.Get()
	got.Suppress.Keys[0] = 0x41
	cfg.Suppress.Keys[0] = 0x42

	if m.Get().Suppress.Keys[0] != 0x5B {
		t.Error("callers must not be able to mutate the stored configuration")
	}
}

func TestChangeCallback(t *testing.T) {
	m := newTestManager(t)
	var seen *Config
	m.RegisterChangeCallback(func(c *Config) {
		// Re-entering the manager must not deadlock.
		_ = m.Get()
		seen = c
	})

	cfg := DefaultConfig()
	cfg.Log.Level = "error"
	m.Set(cfg)

	if seen == nil || seen.Log.Level != "error" {
		t.Errorf("callback did not observe the update: %+v", seen)
	}
}

func TestJournalPath(t *testing.T) {
	cfg := DefaultConfig()
	base := filepath.Join("tmp", "gkvm", "config.yaml")
	if got := cfg.JournalPath(base); got != filepath.Join("tmp", "gkvm", "journal.db") {
		t.Errorf("unexpected default journal path %q", got)
	}
	cfg.Journal.Path = "events.db"
	if got := cfg.JournalPath(base); got != "events.db" {
		t.Errorf("Expected explicit path, got %q", got)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	m := newTestManager(t)
	reloaded := make(chan *Config, 4)
	m.RegisterChangeCallback(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	watchErr := make(chan error, 1)
	go func() { watchErr <- m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	// The watcher registers asynchronously; keep rewriting until it notices.
	for {
		writeFile(t, m.Path(), "suppress:\n  keys: [0x5B]\n")
		select {
		case c := <-reloaded:
			// A reload can observe the file mid-write; wait for the full content.
			if len(c.Suppress.Keys) != 1 || c.Suppress.Keys[0] != 0x5B {
				continue
			}
			cancel()
			if err := <-watchErr; err != nil {
				t.Fatalf("Watch returned error: %v", err)
			}
			return
		case <-tick.C:
		case <-deadline:
			cancel()
			t.Fatal("timed out waiting for reload")
		}
	}
}
