// GKVM - global keyboard and mouse capture host
// Installs low-level input hooks and hands every key and mouse event to
// background workers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gkvm/internal/config"
	"gkvm/internal/hotkey"
	"gkvm/internal/input"
	"gkvm/internal/journal"
	"gkvm/internal/logging"
	"gkvm/internal/osutils"
	"gkvm/internal/singleinstance"
	"gkvm/internal/tray"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to config.yaml (default: per-user config directory)")
	withTray   = flag.Bool("tray", false, "Show a system tray icon")
	showVer    = flag.Bool("version", false, "Show version")
	logLevel   = flag.String("log-level", "", "Override log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("gkvm version %s\n", version)
		return
	}

	if err := run(); err != nil {
		if errors.Is(err, singleinstance.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "gkvm is already running")
			os.Exit(1)
		}
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	created, err := cfgMgr.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := cfgMgr.Get()
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	base, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	sessionID := logging.NewSessionID()
	logger := logging.WithSession(base, sessionID)
	slog.SetDefault(logger)
	cfgMgr.SetLogger(logger)

	lock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if err != nil {
		return err
	}
	defer lock.Release()

	if created {
		logger.Info("Wrote default configuration", "path", cfgMgr.Path())
	}

	admin, elevated := osutils.IsAdmin(), osutils.IsElevated()
	logger.Info("Process privileges", "admin", admin, "elevated", elevated)
	if !elevated {
		logger.Info("Running without elevation; input aimed at elevated windows will not be seen")
	}

	s, err := newSession(cfgMgr.Path(), cfg, sessionID, logger, input.NewPlatform())
	if err != nil {
		return err
	}
	defer s.close()

	cfgMgr.RegisterChangeCallback(s.applyConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := cfgMgr.Watch(ctx); err != nil {
			logger.Warn("Config watch stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Shutting down", "signal", sig.String())
			s.manager.Stop()
		case <-ctx.Done():
		}
	}()

	logger.Info("Starting capture", "version", version, "config", cfgMgr.Path())
	if *withTray {
		return s.runWithTray(ctx, tray.New("GKVM", "GKVM - starting"))
	}
	return s.manager.Run()
}

// session wires one capture run: policy, consumers and the hook manager.
type session struct {
	logger  *slog.Logger
	policy  *input.SwitchablePolicy
	hotkeys *hotkey.Manager
	journal *journal.Journal
	manager *input.Manager
}

func newSession(cfgPath string, cfg *config.Config, sessionID string, logger *slog.Logger, platform input.Platform) (*session, error) {
	suppress, err := cfg.SuppressPolicy()
	if err != nil {
		return nil, err
	}
	s := &session{
		logger:  logger,
		policy:  input.NewSwitchablePolicy(suppress),
		hotkeys: hotkey.NewManager(logger),
	}

	if err := s.registerHotkeys(cfg); err != nil {
		return nil, err
	}

	keyboard := []input.Forwarder[input.KeyboardEvent]{s.hotkeys.KeyboardForwarder(), keyLogger(logger)}
	mouse := []input.Forwarder[input.MouseEvent]{s.hotkeys.MouseForwarder()}

	if cfg.Journal.Enabled {
		path := cfg.JournalPath(cfgPath)
		j, err := journal.Open(path, sessionID)
		if err != nil {
			return nil, err
		}
		s.journal = j
		keyboard = append(keyboard, j.KeyboardForwarder())
		mouse = append(mouse, j.MouseForwarder())
		logger.Info("Journal enabled", "path", path)
	}

	s.manager = input.NewManager(platform, input.Options{
		KeyboardCapacity:  cfg.Dispatch.KeyboardCapacity,
		MouseCapacity:     cfg.Dispatch.MouseCapacity,
		Policy:            s.policy,
		KeyboardForwarder: input.Chain(keyboard...),
		MouseForwarder:    input.Chain(mouse...),
		Logger:            logger,
	})
	return s, nil
}

// escape lifts suppression for the rest of the run.
func (s *session) escape() {
	if !s.policy.Enabled() {
		return
	}
	s.policy.Disable()
	s.logger.Warn("Suppression disabled by escape hotkey")
}

func (s *session) registerHotkeys(cfg *config.Config) error {
	s.hotkeys.Clear()
	if _, err := s.hotkeys.Register(cfg.EscapeHotkey, s.escape); err != nil {
		return fmt.Errorf("escape hotkey: %w", err)
	}
	return nil
}

// applyConfig swaps in a reloaded suppression policy and escape hotkey.
// Capacity and log changes take effect at the next start.
func (s *session) applyConfig(cfg *config.Config) {
	suppress, err := cfg.SuppressPolicy()
	if err != nil {
		s.logger.Warn("Ignoring suppression update", "error", err)
		return
	}
	s.policy.Store(suppress)
	if err := s.registerHotkeys(cfg); err != nil {
		s.logger.Warn("Escape hotkey not updated", "error", err)
	}
	s.logger.Info("Suppression policy updated",
		"keys", len(cfg.Suppress.Keys), "mouse", len(cfg.Suppress.Mouse), "escape_hotkey", cfg.EscapeHotkey)
}

func (s *session) close() {
	if s.journal == nil {
		return
	}
	if c, err := s.journal.Counts(context.Background()); err == nil {
		s.logger.Info("Journal closed", "session", s.journal.Session(), "keyboard", c.Keyboard, "mouse", c.Mouse)
	}
	if err := s.journal.Close(); err != nil {
		s.logger.Warn("Journal close failed", "error", err)
	}
}

// trayUI is the part of the tray the session drives.
type trayUI interface {
	AddMenuItem(title string, callback func()) int
	AddSeparator()
	OnExit(fn func())
	SetStatus(tooltip string)
	SetItemChecked(id int, checked bool)
	SetItemTitle(id int, title string)
	Ready() <-chan struct{}
	Run()
	Stop()
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "Disable suppression"
	}
	return "Enable suppression"
}

// runWithTray keeps the tray loop on the calling goroutine and the hook
// loop on its own locked thread. Either side ending stops the other.
func (s *session) runWithTray(ctx context.Context, t trayUI) error {
	suppressID := t.AddMenuItem("Suppression enabled", nil)
	var toggleID int
	toggleID = t.AddMenuItem(toggleTitle(s.policy.Enabled()), func() {
		if s.policy.Enabled() {
			s.policy.Disable()
		} else {
			s.policy.Enable()
		}
		t.SetItemChecked(suppressID, s.policy.Enabled())
		t.SetItemTitle(toggleID, toggleTitle(s.policy.Enabled()))
	})
	t.AddSeparator()
	t.AddMenuItem("Quit", func() {
		s.manager.Stop()
	})
	t.OnExit(s.manager.Stop)

	runErr := make(chan error, 1)
	go func() {
		runErr <- s.manager.Run()
		// A quit sent before the tray window exists is lost.
		<-t.Ready()
		t.Stop()
	}()

	go func() {
		select {
		case <-t.Ready():
		case <-ctx.Done():
			return
		}
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			enabled := s.policy.Enabled()
			t.SetItemChecked(suppressID, enabled)
			t.SetItemTitle(toggleID, toggleTitle(enabled))
			select {
			case <-ticker.C:
				t.SetStatus(statusLine(s.manager))
			case <-ctx.Done():
				return
			}
		}
	}()

	t.Run()
	s.manager.Stop()
	return <-runErr
}

func statusLine(m *input.Manager) string {
	st := m.Stats()
	return fmt.Sprintf("GKVM - %s (keys %d, mouse %d, dropped %d)",
		m.State(), st.KeyboardSent, st.MouseSent, st.KeyboardDropped+st.MouseDropped)
}

// keyLogger traces key transitions at debug level.
func keyLogger(logger *slog.Logger) input.Forwarder[input.KeyboardEvent] {
	return input.ForwarderFunc[input.KeyboardEvent](func(ev input.KeyboardEvent) error {
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			logger.Debug("Key event", "code", fmt.Sprintf("0x%02X", ev.Code), "time", ev.Time, "pressed", ev.Pressed)
		}
		return nil
	})
}
