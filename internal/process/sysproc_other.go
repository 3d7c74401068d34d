//go:build !windows

package process

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// detachedAttr puts the process in its own group so terminal signals aimed
// at the supervisor do not reach it; it only dies through Release.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func hiddenAttr() *syscall.SysProcAttr {
	return nil
}

// Alive reports whether pid names a running process.
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	// EPERM: alive but owned by another user
	return err == nil || errors.Is(err, unix.EPERM)
}
