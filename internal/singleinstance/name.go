// Package singleinstance keeps a second copy of the capture host from
// installing a competing set of hooks.
package singleinstance

import (
	"errors"
	"os"
	"os/user"
	"regexp"
	"strings"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

const namePrefix = `Global\gkvm-`

var invalidNameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidNameRune.ReplaceAllString(value, "_")
}

// DefaultMutexName returns the per-user lock name.
func DefaultMutexName() string {
	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return namePrefix + sanitizeUsername(username)
}
