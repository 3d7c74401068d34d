//go:build windows

package wsl

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modwslapi                       = windows.NewLazySystemDLL("wslapi.dll")
	procWslIsDistributionRegistered = modwslapi.NewProc("WslIsDistributionRegistered")
)

// nativeIsRegistered asks wslapi.dll directly, which avoids spawning wsl.exe
// and parsing its localized output.
func nativeIsRegistered(name string) (bool, error) {
	if err := procWslIsDistributionRegistered.Find(); err != nil {
		return false, errNoNative
	}
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return false, err
	}
	r, _, _ := procWslIsDistributionRegistered.Call(uintptr(unsafe.Pointer(p)))
	return r != 0, nil
}
