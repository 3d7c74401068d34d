package process

import (
	"os"
)

// Reap kills a leftover process from a previous run that did not shut down
// cleanly. A pid that is no longer alive is skipped.
func Reap(pid int) {
	if pid <= 0 || !Alive(pid) {
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	log.WithField("pid", pid).Info("reaping orphan process")
	if err := proc.Kill(); err != nil {
		log.WithField("pid", pid).WithError(err).Warn("kill orphan")
		return
	}
	proc.Wait()
}
