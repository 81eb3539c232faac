package input

import "errors"

var (
	// ErrChannelInitialized is returned when a dispatch slot is set twice.
	ErrChannelInitialized = errors.New("dispatch channel already initialized")

	// ErrChannelNotInitialized is returned when hooks are armed before the
	// dispatch channels exist.
	ErrChannelNotInitialized = errors.New("dispatch channel not initialized")

	// ErrUnsupported is returned by the hook platform on systems without a
	// low-level input hook facility.
	ErrUnsupported = errors.New("low-level input hooks not supported on this platform")

	// ErrAlreadyRunning is returned when Run is called on a manager that has
	// already left the Uninitialized state.
	ErrAlreadyRunning = errors.New("hook manager already started")

	// ErrHookArmed is returned when a hook kind is installed while another
	// callback of the same kind is still armed in this process.
	ErrHookArmed = errors.New("hook already armed in this process")
)
