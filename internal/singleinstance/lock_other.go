//go:build !windows

package singleinstance

import "errors"

// Lock is a no-op where hooks cannot be installed anyway.
type Lock struct{}

// TryLock always succeeds on non-Windows platforms except for an empty name.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("mutex name is required")
	}
	return &Lock{}, nil
}

// Release is a no-op on non-Windows platforms.
func (l *Lock) Release() error { return nil }
