// Package instance enforces that one stevedore runs per machine (per user
// session on Windows) through a named OS lock.
//
// The lock is released by the OS when the holding process exits, including
// on crash, so a stale holder never blocks the next launch.
package instance

import (
	"errors"
	"strings"
	"sync"
)

// ErrAlreadyRunning is returned by Acquire when another process holds the lock.
var ErrAlreadyRunning = errors.New("another instance of Stevedore is already running")

// Guard is an acquired single-instance lock.
type Guard struct {
	once sync.Once
	err  error
	h    osHandle
}

// Acquire tries to take the named lock without blocking. It fails with an
// error wrapping ErrAlreadyRunning when another holder exists. Any other
// error means the lock could not be checked at all.
func Acquire(name string) (*Guard, error) {
	name = normalizeName(name)
	h, err := acquire(name)
	if err != nil {
		return nil, err
	}
	return &Guard{h: h}, nil
}

// Release frees the lock. Safe to call more than once.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		g.err = g.h.release()
	})
	return g.err
}

// normalizeName maps the lock name onto characters valid in both a kernel
// object name and a file name.
func normalizeName(raw string) string {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return "stevedore"
	}
	return normalized
}
