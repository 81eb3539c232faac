package input

import (
	"runtime/debug"
	"sync/atomic"
	"unsafe"
)

// HookProc is invoked by the platform once per hook event, on the thread
// that pumps messages. lParam is the raw platform pointer.
type HookProc func(code int32, wParam uintptr, lParam unsafe.Pointer) uintptr

// NextHook passes an event on to the next hook in the chain and returns
// that hook's result.
type NextHook func(code int32, wParam, lParam uintptr) uintptr

// eatResult is returned to the OS to stop the event from propagating.
const eatResult uintptr = 1

// Stats counts per-event conditions seen by the hook callbacks.
type Stats struct {
	KeyboardSent    uint64
	KeyboardDropped uint64
	KeyboardEaten   uint64
	MouseSent       uint64
	MouseDropped    uint64
	MouseEaten      uint64
	Malformed       uint64
	Recovered       uint64
}

// Adapter holds the two hook callbacks. Neither callback blocks, logs, or
// lets a panic escape; every path ends in either eatResult or the next
// hook's result.
type Adapter struct {
	senders *Senders
	policy  EatPolicy
	next    NextHook

	keyboardSent    atomic.Uint64
	keyboardDropped atomic.Uint64
	keyboardEaten   atomic.Uint64
	mouseSent       atomic.Uint64
	mouseDropped    atomic.Uint64
	mouseEaten      atomic.Uint64
	malformed       atomic.Uint64
	recovered       atomic.Uint64
}

// NewAdapter wires callbacks to the given senders. A nil policy never eats.
func NewAdapter(senders *Senders, policy EatPolicy, next NextHook) *Adapter {
	if policy == nil {
		policy = PassThrough{}
	}
	return &Adapter{senders: senders, policy: policy, next: next}
}

// KeyboardProc is the WH_KEYBOARD_LL callback.
func (a *Adapter) KeyboardProc(code int32, wParam uintptr, lParam unsafe.Pointer) uintptr {
	if code >= 0 && a.keyboard(wParam, lParam) {
		return eatResult
	}
	return a.next(code, wParam, uintptr(lParam))
}

// MouseProc is the WH_MOUSE_LL callback.
func (a *Adapter) MouseProc(code int32, wParam uintptr, lParam unsafe.Pointer) uintptr {
	if code >= 0 && a.mouse(wParam, lParam) {
		return eatResult
	}
	return a.next(code, wParam, uintptr(lParam))
}

// keyboard decodes, classifies and enqueues one event and reports whether
// it should be eaten.
func (a *Adapter) keyboard(wParam uintptr, lParam unsafe.Pointer) (eat bool) {
	defer a.recoverFault(&eat)

	raw, ok := readKeyboard(lParam)
	if !ok {
		a.malformed.Add(1)
		return false
	}

	ev := KeyboardEvent{Code: raw.VkCode, Time: raw.Time}
	switch wParam {
	case WM_KEYDOWN, WM_SYSKEYDOWN:
		ev.Pressed = true
	case WM_KEYUP, WM_SYSKEYUP:
	default:
		return false
	}

	tx := a.senders.Keyboard.Load()
	if tx == nil || !tx.TrySend(ev) {
		a.keyboardDropped.Add(1)
		return false
	}
	a.keyboardSent.Add(1)

	if a.policy.EatKeyboard(ev) {
		a.keyboardEaten.Add(1)
		return true
	}
	return false
}

func (a *Adapter) mouse(wParam uintptr, lParam unsafe.Pointer) (eat bool) {
	defer a.recoverFault(&eat)

	raw, ok := readMouse(lParam)
	if !ok {
		a.malformed.Add(1)
		return false
	}

	kind := classifyMouse(wParam)
	if kind == 0 {
		return false
	}
	ev := MouseEvent{Kind: kind, X: raw.Pt.X, Y: raw.Pt.Y}

	tx := a.senders.Mouse.Load()
	if tx == nil || !tx.TrySend(ev) {
		a.mouseDropped.Add(1)
		return false
	}
	a.mouseSent.Add(1)

	if a.policy.EatMouse(ev) {
		a.mouseEaten.Add(1)
		return true
	}
	return false
}

func classifyMouse(wParam uintptr) MouseKind {
	switch wParam {
	case WM_MOUSEMOVE:
		return MouseMove
	case WM_MOUSEWHEEL:
		return MouseWheel
	case WM_MOUSEHWHEEL:
		return MouseWheelH
	case WM_LBUTTONDOWN:
		return MouseLeftDown
	case WM_LBUTTONUP:
		return MouseLeftUp
	case WM_RBUTTONDOWN:
		return MouseRightDown
	case WM_RBUTTONUP:
		return MouseRightUp
	case WM_MBUTTONDOWN:
		return MouseMiddleDown
	case WM_MBUTTONUP:
		return MouseMiddleUp
	}
	return 0
}

func (a *Adapter) recoverFault(eat *bool) {
	if r := recover(); r != nil {
		a.recovered.Add(1)
		*eat = false
	}
}

// readKeyboard copies the hook struct out of platform memory. Faults while
// reading surface as a recoverable panic.
func readKeyboard(p unsafe.Pointer) (KBDLLHOOKSTRUCT, bool) {
	if p == nil || !rawAddressValid(uintptr(p), kbdAlign) {
		return KBDLLHOOKSTRUCT{}, false
	}
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	return *(*KBDLLHOOKSTRUCT)(p), true
}

func readMouse(p unsafe.Pointer) (MSLLHOOKSTRUCT, bool) {
	if p == nil || !rawAddressValid(uintptr(p), mouseAlign) {
		return MSLLHOOKSTRUCT{}, false
	}
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	return *(*MSLLHOOKSTRUCT)(p), true
}

// Stats returns a snapshot of the callback counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		KeyboardSent:    a.keyboardSent.Load(),
		KeyboardDropped: a.keyboardDropped.Load(),
		KeyboardEaten:   a.keyboardEaten.Load(),
		MouseSent:       a.mouseSent.Load(),
		MouseDropped:    a.mouseDropped.Load(),
		MouseEaten:      a.mouseEaten.Load(),
		Malformed:       a.malformed.Load(),
		Recovered:       a.recovered.Load(),
	}
}
