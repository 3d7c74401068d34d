//go:build !windows

package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// osHandle holds an exclusive flock on a well-known file. The zero-byte lock
// file is harmless if orphaned: the kernel drops the flock when the fd closes.
type osHandle struct {
	file *os.File
}

// lockDir is where lock files are created. Tests point it elsewhere.
var lockDir = os.TempDir

func acquire(name string) (osHandle, error) {
	path := filepath.Join(lockDir(), name+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return osHandle{}, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return osHandle{}, fmt.Errorf("lock %q: %w", name, ErrAlreadyRunning)
		}
		return osHandle{}, fmt.Errorf("flock %s: %w", path, err)
	}
	return osHandle{file: f}, nil
}

func (o osHandle) release() error {
	if o.file == nil {
		return nil
	}
	unix.Flock(int(o.file.Fd()), unix.LOCK_UN)
	return o.file.Close()
}
