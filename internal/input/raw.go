package input

import "unsafe"

// Low-level hook message identifiers (wParam values).
const (
	WM_KEYDOWN     = 0x0100
	WM_KEYUP       = 0x0101
	WM_SYSKEYDOWN  = 0x0104
	WM_SYSKEYUP    = 0x0105
	WM_MOUSEMOVE   = 0x0200
	WM_LBUTTONDOWN = 0x0201
	WM_LBUTTONUP   = 0x0202
	WM_RBUTTONDOWN = 0x0204
	WM_RBUTTONUP   = 0x0205
	WM_MBUTTONDOWN = 0x0207
	WM_MBUTTONUP   = 0x0208
	WM_MOUSEWHEEL  = 0x020A
	WM_MOUSEHWHEEL = 0x020E
)

// KBDLLHOOKSTRUCT mirrors the structure passed in lParam to a
// WH_KEYBOARD_LL hook.
type KBDLLHOOKSTRUCT struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// MSLLHOOKSTRUCT mirrors the structure passed in lParam to a WH_MOUSE_LL
// hook.
type MSLLHOOKSTRUCT struct {
	Pt          POINT
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type POINT struct {
	X, Y int32
}

// The first 64KiB of the address space is never mapped on the hook
// platform; anything in there is a bogus lParam.
const minRawAddress = 0x10000

// rawAddressValid rejects lParam values that cannot point at a hook struct
// of the given alignment, without dereferencing them.
func rawAddressValid(addr uintptr, align uintptr) bool {
	if addr < minRawAddress {
		return false
	}
	return addr%align == 0
}

var (
	kbdAlign   = unsafe.Alignof(KBDLLHOOKSTRUCT{})
	mouseAlign = unsafe.Alignof(MSLLHOOKSTRUCT{})
)
