//go:build !windows

package input

// Stub implementation for platforms without low-level input hooks.

type stubPlatform struct{}

// NewPlatform returns a platform whose every registration fails with
// ErrUnsupported.
func NewPlatform() Platform {
	return stubPlatform{}
}

func (stubPlatform) ModuleHandle() (uintptr, error) {
	return 0, ErrUnsupported
}

func (stubPlatform) Install(HookKind, HookProc, uintptr) (uintptr, error) {
	return 0, ErrUnsupported
}

func (stubPlatform) Uninstall(uintptr) error {
	return ErrUnsupported
}

func (stubPlatform) CallNext(int32, uintptr, uintptr) uintptr {
	return 0
}

func (stubPlatform) PumpMessages() error {
	return ErrUnsupported
}

func (stubPlatform) Quit() {}
