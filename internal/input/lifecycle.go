package input

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// HookKind identifies a low-level hook type. Values match the platform's
// hook ids.
type HookKind int32

const (
	HookKeyboard HookKind = 13 // WH_KEYBOARD_LL
	HookMouse    HookKind = 14 // WH_MOUSE_LL
)

func (k HookKind) String() string {
	switch k {
	case HookKeyboard:
		return "keyboard"
	case HookMouse:
		return "mouse"
	}
	return fmt.Sprintf("hook(%d)", int32(k))
}

// Platform is the OS hook registration facility plus the message loop
// that delivers hook invocations. All methods except Quit are called from
// the goroutine running Manager.Run, which is locked to its OS thread.
type Platform interface {
	// ModuleHandle resolves the module identity hooks are registered under.
	ModuleHandle() (uintptr, error)
	// Install registers proc for kind and returns an opaque handle.
	Install(kind HookKind, proc HookProc, module uintptr) (uintptr, error)
	// Uninstall releases a handle returned by Install.
	Uninstall(handle uintptr) error
	// CallNext passes an event to the next hook in the chain.
	CallNext(code int32, wParam, lParam uintptr) uintptr
	// PumpMessages retrieves and dispatches messages until the quit signal.
	PumpMessages() error
	// Quit makes PumpMessages return. It may be called from any goroutine,
	// before or during PumpMessages.
	Quit()
}

// HookHandle is a live hook registration. It is released at most once.
type HookHandle struct {
	kind     HookKind
	raw      uintptr
	released atomic.Bool
}

// Kind returns the hook type.
func (h *HookHandle) Kind() HookKind { return h.kind }

// Released reports whether the registration has been given back.
func (h *HookHandle) Released() bool { return h.released.Load() }

// State is a hook manager lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateChannelsReady
	StateHooksInstalled
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateChannelsReady:
		return "channels_ready"
	case StateHooksInstalled:
		return "hooks_installed"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options configures a Manager.
type Options struct {
	KeyboardCapacity  int
	MouseCapacity     int
	Policy            EatPolicy
	KeyboardForwarder Forwarder[KeyboardEvent]
	MouseForwarder    Forwarder[MouseEvent]
	Logger            *slog.Logger
}

// Manager owns the dispatch channels, the hook registrations and the
// consumer workers for one capture session.
type Manager struct {
	platform Platform
	opts     Options
	logger   *slog.Logger
	state    atomic.Int32
	started  atomic.Bool
	senders  Senders
	adapter  *Adapter

	mu             sync.Mutex
	hooks          []*HookHandle
	keyboardWorker *Worker[KeyboardEvent]
	mouseWorker    *Worker[MouseEvent]
}

// NewManager creates a manager driving the given platform.
func NewManager(platform Platform, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		platform: platform,
		opts:     opts,
		logger:   logger.With("component", "hooks"),
	}
	m.adapter = NewAdapter(&m.senders, opts.Policy, platform.CallNext)
	return m
}

// Run creates the channels and workers, installs both hooks and pumps
// messages until Stop. Errors are returned only for startup failures;
// in that case no hook is left installed.
func (m *Manager) Run() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	// Hooks are delivered on the thread that installed them.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	kbd, mouse, err := m.initChannels()
	if err != nil {
		m.setState(StateTerminated)
		return err
	}
	m.startWorkers(kbd, mouse)
	defer m.drain(kbd, mouse)

	if err := m.install(); err != nil {
		return err
	}

	m.setState(StateRunning)
	m.logger.Info("Hooks installed, pumping messages")
	if err := m.platform.PumpMessages(); err != nil {
		m.logger.Warn("Message loop ended with error", "error", err)
	}

	m.setState(StateShuttingDown)
	m.uninstallAll()
	return nil
}

// Stop ends the message loop. It is safe to call at any time and more
// than once.
func (m *Manager) Stop() {
	m.platform.Quit()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns the hook callback counters.
func (m *Manager) Stats() Stats {
	return m.adapter.Stats()
}

// WorkerStats returns the consumer worker counters. Both are zero before
// Run starts the workers.
func (m *Manager) WorkerStats() (keyboard, mouse WorkerStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keyboardWorker != nil {
		keyboard = m.keyboardWorker.Stats()
	}
	if m.mouseWorker != nil {
		mouse = m.mouseWorker.Stats()
	}
	return keyboard, mouse
}

// LiveHooks returns the number of hooks currently registered.
func (m *Manager) LiveHooks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.hooks {
		if !h.Released() {
			n++
		}
	}
	return n
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

func (m *Manager) initChannels() (*Channel[KeyboardEvent], *Channel[MouseEvent], error) {
	kbd := NewChannel[KeyboardEvent](m.opts.KeyboardCapacity)
	if err := m.senders.Keyboard.Set(kbd); err != nil {
		return nil, nil, fmt.Errorf("keyboard channel: %w", err)
	}
	mouse := NewChannel[MouseEvent](m.opts.MouseCapacity)
	if err := m.senders.Mouse.Set(mouse); err != nil {
		return nil, nil, fmt.Errorf("mouse channel: %w", err)
	}
	m.setState(StateChannelsReady)
	m.logger.Debug("Dispatch channels ready", "keyboard_capacity", kbd.Cap(), "mouse_capacity", mouse.Cap())
	return kbd, mouse, nil
}

func (m *Manager) startWorkers(kbd *Channel[KeyboardEvent], mouse *Channel[MouseEvent]) {
	kw := NewWorker[KeyboardEvent]("keyboard", kbd.Receive(), &StaleFilter{}, m.opts.KeyboardForwarder, m.logger)
	mw := NewWorker[MouseEvent]("mouse", mouse.Receive(), nil, m.opts.MouseForwarder, m.logger)

	m.mu.Lock()
	m.keyboardWorker, m.mouseWorker = kw, mw
	m.mu.Unlock()

	go kw.Run()
	go mw.Run()
}

// install registers the mouse hook and then the keyboard hook. If the
// second registration fails the first is released before returning.
func (m *Manager) install() error {
	if !m.senders.Ready() {
		return ErrChannelNotInitialized
	}

	module, err := m.platform.ModuleHandle()
	if err != nil {
		return fmt.Errorf("resolve module handle: %w", err)
	}

	mouse, err := m.hook(HookMouse, m.adapter.MouseProc, module)
	if err != nil {
		return err
	}
	keyboard, err := m.hook(HookKeyboard, m.adapter.KeyboardProc, module)
	if err != nil {
		m.unhook(mouse)
		return err
	}

	m.mu.Lock()
	m.hooks = append(m.hooks, mouse, keyboard)
	m.mu.Unlock()
	m.setState(StateHooksInstalled)
	return nil
}

func (m *Manager) hook(kind HookKind, proc HookProc, module uintptr) (*HookHandle, error) {
	raw, err := m.platform.Install(kind, proc, module)
	if err != nil {
		return nil, fmt.Errorf("install %s hook: %w", kind, err)
	}
	m.logger.Debug("Hook installed", "kind", kind)
	return &HookHandle{kind: kind, raw: raw}, nil
}

// unhook releases h. Releasing twice, or a failed release, is logged only.
func (m *Manager) unhook(h *HookHandle) {
	if !h.released.CompareAndSwap(false, true) {
		m.logger.Debug("Hook already released", "kind", h.kind)
		return
	}
	if err := m.platform.Uninstall(h.raw); err != nil {
		m.logger.Warn("Failed to uninstall hook", "kind", h.kind, "error", err)
		return
	}
	m.logger.Debug("Hook uninstalled", "kind", h.kind)
}

func (m *Manager) uninstallAll() {
	m.mu.Lock()
	hooks := m.hooks
	m.mu.Unlock()
	for _, h := range hooks {
		m.unhook(h)
	}
}

// drain closes both channels once no callback can run any more, waits for
// the workers to finish and reports the session counters.
func (m *Manager) drain(kbd *Channel[KeyboardEvent], mouse *Channel[MouseEvent]) {
	kbd.Close()
	mouse.Close()

	m.mu.Lock()
	kw, mw := m.keyboardWorker, m.mouseWorker
	m.mu.Unlock()
	<-kw.Done()
	<-mw.Done()

	m.setState(StateTerminated)

	s := m.adapter.Stats()
	ks, ms := kw.Stats(), mw.Stats()
	m.logger.Info("Hook session ended",
		"keyboard_sent", s.KeyboardSent,
		"keyboard_dropped", s.KeyboardDropped,
		"keyboard_stale", ks.Stale,
		"keyboard_forwarded", ks.Forwarded,
		"mouse_sent", s.MouseSent,
		"mouse_dropped", s.MouseDropped,
		"mouse_forwarded", ms.Forwarded,
		"malformed", s.Malformed,
		"recovered", s.Recovered,
	)
}
