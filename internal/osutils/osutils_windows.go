//go:build windows

// Package osutils holds small process-level OS queries.
package osutils

import (
	"golang.org/x/sys/windows"
)

// IsAdmin reports whether the effective token carries the built-in
// Administrators group. Under UAC a filtered admin token reports false.
func IsAdmin() bool {
	sid, err := windows.CreateWellKnownSid(windows.WinBuiltinAdministratorsSid)
	if err != nil {
		return false
	}
	// A zero token checks the calling thread's effective token.
	member, err := windows.Token(0).IsMember(sid)
	return err == nil && member
}

// IsElevated reports whether the process token is elevated (UAC).
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
