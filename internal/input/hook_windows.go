//go:build windows

package input

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procPeekMessage         = user32.NewProc("PeekMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessage     = user32.NewProc("DispatchMessageW")
	procPostThreadMessage   = user32.NewProc("PostThreadMessageW")
)

const (
	WM_QUIT     = 0x0012
	PM_NOREMOVE = 0x0000
)

type MSG struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      POINT
}

// Callbacks made with windows.NewCallback are never released, so the
// process owns exactly one trampoline per hook kind. The trampolines
// dispatch to whichever HookProc is armed for that kind.
var (
	armedKeyboard atomic.Pointer[HookProc]
	armedMouse    atomic.Pointer[HookProc]

	keyboardCallback = sync.OnceValue(func() uintptr {
		return windows.NewCallback(keyboardTrampoline)
	})
	mouseCallback = sync.OnceValue(func() uintptr {
		return windows.NewCallback(mouseTrampoline)
	})
)

func keyboardTrampoline(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	return trampoline(&armedKeyboard, nCode, wParam, lParam)
}

func mouseTrampoline(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	return trampoline(&armedMouse, nCode, wParam, lParam)
}

func trampoline(slot *atomic.Pointer[HookProc], nCode int32, wParam, lParam uintptr) uintptr {
	if proc := slot.Load(); proc != nil {
		// lParam points at OS-owned memory that stays valid for the whole callback.
		return (*proc)(nCode, wParam, unsafe.Pointer(lParam))
	}
	return callNextHook(nCode, wParam, lParam)
}

func callNextHook(nCode int32, wParam, lParam uintptr) uintptr {
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

type winPlatform struct {
	threadID atomic.Uint32
	quit     atomic.Bool

	mu    sync.Mutex
	kinds map[uintptr]HookKind
}

// NewPlatform returns the user32 low-level hook facility.
func NewPlatform() Platform {
	return &winPlatform{kinds: make(map[uintptr]HookKind)}
}

func armedSlot(kind HookKind) (*atomic.Pointer[HookProc], func() uintptr) {
	switch kind {
	case HookKeyboard:
		return &armedKeyboard, keyboardCallback
	case HookMouse:
		return &armedMouse, mouseCallback
	}
	return nil, nil
}

// ModuleHandle records the calling thread as the message loop thread,
// makes sure it has a message queue so Quit can post to it, and returns
// the handle of the running executable.
func (p *winPlatform) ModuleHandle() (uintptr, error) {
	p.threadID.Store(windows.GetCurrentThreadId())

	var msg MSG
	procPeekMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0, PM_NOREMOVE)

	var h windows.Handle
	if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, nil, &h); err != nil {
		return 0, fmt.Errorf("GetModuleHandleExW: %w", err)
	}
	return uintptr(h), nil
}

func (p *winPlatform) Install(kind HookKind, proc HookProc, module uintptr) (uintptr, error) {
	slot, callback := armedSlot(kind)
	if slot == nil {
		return 0, fmt.Errorf("unknown hook kind %d", int32(kind))
	}
	if !slot.CompareAndSwap(nil, &proc) {
		return 0, ErrHookArmed
	}

	h, _, err := procSetWindowsHookEx.Call(uintptr(kind), callback(), module, 0)
	if h == 0 {
		slot.Store(nil)
		return 0, fmt.Errorf("SetWindowsHookExW: %w", err)
	}

	p.mu.Lock()
	p.kinds[h] = kind
	p.mu.Unlock()
	return h, nil
}

func (p *winPlatform) Uninstall(handle uintptr) error {
	p.mu.Lock()
	kind, ok := p.kinds[handle]
	delete(p.kinds, handle)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown hook handle %#x", handle)
	}

	ret, _, err := procUnhookWindowsHookEx.Call(handle)
	// Once unhooked, or if the hook is gone anyway, nothing calls the slot.
	if slot, _ := armedSlot(kind); slot != nil {
		slot.Store(nil)
	}
	if ret == 0 {
		return fmt.Errorf("UnhookWindowsHookEx: %w", err)
	}
	return nil
}

func (p *winPlatform) CallNext(code int32, wParam, lParam uintptr) uintptr {
	return callNextHook(code, wParam, lParam)
}

// PumpMessages runs GetMessageW until WM_QUIT (0) or failure (-1).
func (p *winPlatform) PumpMessages() error {
	if p.quit.Load() {
		return nil
	}

	var msg MSG
	for {
		ret, _, err := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			return fmt.Errorf("GetMessageW: %w", err)
		case 0:
			return nil
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessage.Call(uintptr(unsafe.Pointer(&msg)))
	}
}

func (p *winPlatform) Quit() {
	p.quit.Store(true)
	if tid := p.threadID.Load(); tid != 0 {
		procPostThreadMessage.Call(uintptr(tid), WM_QUIT, 0, 0)
	}
}
