//go:build !windows

// Package osutils holds small process-level OS queries.
package osutils

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// IsElevated is a stub for non-Windows platforms
func IsElevated() bool {
	return false
}
