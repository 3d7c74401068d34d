//go:build windows

package process

import (
	"syscall"

	"golang.org/x/sys/windows"
)

const stillActive = 259

// detachedAttr starts a process without a console window. The supervisor
// is itself a GUI-subsystem binary, so there is no console to inherit.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

func hiddenAttr() *syscall.SysProcAttr {
	return detachedAttr()
}

// Alive reports whether pid names a running process.
func Alive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}
