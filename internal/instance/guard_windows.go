//go:build windows

package instance

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// osHandle is a named kernel mutex. Its existence is the lock: the kernel
// destroys it when the last handle closes, which happens at process exit.
type osHandle struct {
	h windows.Handle
}

func acquire(name string) (osHandle, error) {
	objName, err := windows.UTF16PtrFromString(`Local\stevedore-` + name)
	if err != nil {
		return osHandle{}, fmt.Errorf("encode lock name %q: %w", name, err)
	}

	h, err := windows.CreateMutex(nil, false, objName)
	if err != nil {
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			// CreateMutex hands back a valid handle to the existing object.
			if h != 0 {
				windows.CloseHandle(h)
			}
			return osHandle{}, fmt.Errorf("lock %q: %w", name, ErrAlreadyRunning)
		}
		return osHandle{}, fmt.Errorf("create mutex %q: %w", name, err)
	}
	return osHandle{h: h}, nil
}

func (o osHandle) release() error {
	if o.h == 0 {
		return nil
	}
	return windows.CloseHandle(o.h)
}
