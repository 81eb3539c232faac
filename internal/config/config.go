// Package config provides configuration management for the capture host.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.yaml.in/yaml/v3"

	"gkvm/internal/input"
)

const fileName = "config.yaml"

// Config represents the application configuration
type Config struct {
	// Log controls the slog handler
	Log LogConfig `yaml:"log"`

	// Dispatch sizes the hook-to-worker channels
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Suppress lists input that is eaten instead of passed to other applications
	Suppress SuppressConfig `yaml:"suppress"`

	// EscapeHotkey lifts all suppression for the rest of the run (e.g. "Ctrl+Alt+Shift+F12")
	EscapeHotkey string `yaml:"escape_hotkey,omitempty"`

	// Journal records forwarded events to SQLite
	Journal JournalConfig `yaml:"journal"`
}

// LogConfig selects log level ("debug", "info", "warn", "error") and format ("text", "json")
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DispatchConfig holds channel capacities. They apply at the next start.
type DispatchConfig struct {
	KeyboardCapacity int `yaml:"keyboard_capacity"`
	MouseCapacity    int `yaml:"mouse_capacity"`
}

// SuppressConfig lists virtual-key codes and mouse kinds to eat
type SuppressConfig struct {
	Keys  []uint32 `yaml:"keys,omitempty"`
	Mouse []string `yaml:"mouse,omitempty"`
}

// JournalConfig enables the SQLite event journal
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// DefaultEscapeHotkey avoids Ctrl+Shift+Esc, which Windows keeps for Task Manager.
const DefaultEscapeHotkey = "Ctrl+Alt+Shift+F12"

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Dispatch: DispatchConfig{
			KeyboardCapacity: input.DefaultCapacity,
			MouseCapacity:    input.DefaultCapacity,
		},
		EscapeHotkey: DefaultEscapeHotkey,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unsupported value %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	if c.Dispatch.KeyboardCapacity <= 0 {
		return fmt.Errorf("dispatch.keyboard_capacity must be positive, got %d", c.Dispatch.KeyboardCapacity)
	}
	if c.Dispatch.MouseCapacity <= 0 {
		return fmt.Errorf("dispatch.mouse_capacity must be positive, got %d", c.Dispatch.MouseCapacity)
	}
	for _, name := range c.Suppress.Mouse {
		if _, err := input.ParseMouseKind(name); err != nil {
			return fmt.Errorf("suppress.mouse: %w", err)
		}
	}
	if c.EscapeHotkey != "" {
		for _, part := range strings.Split(c.EscapeHotkey, "+") {
			if strings.TrimSpace(part) == "" {
				return fmt.Errorf("escape_hotkey: empty key name in %q", c.EscapeHotkey)
			}
		}
	}
	for _, vk := range c.Suppress.Keys {
		if vk == 0 || vk > 0xFF {
			return fmt.Errorf("suppress.keys: virtual-key code %#x out of range", vk)
		}
	}
	return nil
}

// SuppressPolicy builds the eat policy described by the suppress section.
func (c *Config) SuppressPolicy() (*input.SuppressPolicy, error) {
	kinds := make([]input.MouseKind, 0, len(c.Suppress.Mouse))
	for _, name := range c.Suppress.Mouse {
		k, err := input.ParseMouseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return input.NewSuppressPolicy(c.Suppress.Keys, kinds), nil
}

// JournalPath returns the journal database location, defaulting to the
// config directory.
func (c *Config) JournalPath(configPath string) string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(filepath.Dir(configPath), "journal.db")
}

func (c *Config) clone() *Config {
	cp := *c
	cp.Suppress.Keys = append([]uint32(nil), c.Suppress.Keys...)
	cp.Suppress.Mouse = append([]string(nil), c.Suppress.Mouse...)
	return &cp
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func(*Config)
	logger     *slog.Logger
}

// NewManager creates a configuration manager for path. An empty path uses
// the per-user default location.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
		logger:     slog.Default().With("component", "config"),
	}, nil
}

// DefaultPath returns the path to the configuration file, creating its
// directory if needed.
func DefaultPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "gkvm")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "gkvm")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "gkvm")
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", err
	}

	return filepath.Join(configDir, fileName), nil
}

// SetLogger replaces the logger used for reload messages.
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger.With("component", "config")
}

// Path returns the file the manager reads and writes.
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk. A missing file keeps the
// defaults. An invalid file leaves the current configuration untouched.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate %s: %w", m.configPath, err)
	}

	m.Set(cfg)
	return nil
}

// LoadOrCreate loads the file, writing the defaults first when it does not
// exist yet. created reports whether the file was written.
func (m *Manager) LoadOrCreate() (created bool, err error) {
	if _, err := os.Stat(m.configPath); errors.Is(err, os.ErrNotExist) {
		if err := m.Save(); err != nil {
			return false, fmt.Errorf("write default config: %w", err)
		}
		return true, nil
	} else if err != nil {
		return false, err
	}
	return false, m.Load()
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	m.logger.Debug("Saving configuration", "path", m.configPath, "bytes", len(data))
	return os.WriteFile(m.configPath, data, 0o644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.clone()
}

// Set updates the configuration and notifies the change callback
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config.clone()
	fn := m.onChanged
	snapshot := m.config.clone()
	m.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// Watch reloads the file whenever it changes on disk until ctx is done.
// The directory is watched rather than the file so that editors that
// replace the file on save are picked up.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(m.configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(m.configPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := m.Load(); err != nil {
				m.log().Warn("Reload failed, keeping previous configuration", "error", err)
				continue
			}
			m.log().Info("Configuration reloaded", "path", m.configPath)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log().Warn("Watcher error", "error", err)
		}
	}
}

func (m *Manager) log() *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logger
}
