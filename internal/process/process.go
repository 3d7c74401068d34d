// Package process owns externally spawned background processes.
//
// A Process is started detached from any console and is never talked to
// after spawn. Release is the only way to end it: kill, wait, ignore errors.
package process

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/slonopotamus/stevedore/internal/logging"
)

// Role tags what a process is for.
type Role string

const (
	RoleEngine Role = "engine"
	RoleProxy  Role = "proxy"
)

// releaseTimeout bounds how long Release waits for exit after the kill.
const releaseTimeout = 10 * time.Second

var log = logging.For("process")

// Spec describes a process to spawn.
type Spec struct {
	Role Role
	Path string
	Args []string

	// Env replaces the inherited environment when non-nil.
	Env []string

	// Stdout and Stderr default to discarding output.
	Stdout io.Writer
	Stderr io.Writer
}

// Process is one spawned OS process owned by the caller of Spawn.
type Process struct {
	role Role
	cmd  *exec.Cmd

	exited  chan struct{}
	waitErr error

	releaseOnce sync.Once
}

// Spawn starts a background process with no console window.
func Spawn(spec Spec) (*Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.SysProcAttr = detachedAttr()
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s (%s): %w", spec.Role, spec.Path, err)
	}

	p := &Process{
		role:   spec.Role,
		cmd:    cmd,
		exited: make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	log.WithField("role", spec.Role).WithField("pid", cmd.Process.Pid).Debug("spawned")
	return p, nil
}

// Role returns the role tag given at spawn.
func (p *Process) Role() Role {
	return p.role
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Alive reports whether the process has not exited yet.
func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Release kills the process and waits for it to exit. Errors are logged and
// dropped. Safe to call more than once and on a nil Process.
func (p *Process) Release() {
	if p == nil {
		return
	}
	p.releaseOnce.Do(func() {
		entry := log.WithField("role", p.role).WithField("pid", p.Pid())
		if p.Alive() {
			if err := p.cmd.Process.Kill(); err != nil {
				entry.WithError(err).Debug("kill")
			}
		}
		select {
		case <-p.exited:
			entry.WithField("exit", p.waitErr).Debug("released")
		case <-time.After(releaseTimeout):
			entry.Warn("process did not exit after kill")
		}
	})
}

// Handle is an owned process as its owner sees it.
type Handle interface {
	Role() Role
	Pid() int
	Alive() bool
	Release()
}

// Spawner starts background processes.
type Spawner interface {
	Spawn(spec Spec) (Handle, error)
}

// ExecSpawner spawns real OS processes.
type ExecSpawner struct{}

// Spawn implements Spawner.
func (ExecSpawner) Spawn(spec Spec) (Handle, error) {
	p, err := Spawn(spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Set is an ordered collection of owned processes.
type Set struct {
	procs []Handle
}

// Add takes ownership of p.
func (s *Set) Add(p Handle) {
	s.procs = append(s.procs, p)
}

// Len returns the number of owned processes.
func (s *Set) Len() int {
	return len(s.procs)
}

// Processes returns the owned processes in spawn order.
func (s *Set) Processes() []Handle {
	return append([]Handle(nil), s.procs...)
}

// ReleaseAll releases every process, newest first, and empties the set.
func (s *Set) ReleaseAll() {
	for i := len(s.procs) - 1; i >= 0; i-- {
		s.procs[i].Release()
	}
	s.procs = nil
}

// Command builds a short-lived CLI invocation that never flashes a console
// window. The caller runs it.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = hiddenAttr()
	return cmd
}
