package fake

import (
	"sync"

	"github.com/slonopotamus/stevedore/internal/process"
)

// Spawner hands out in-memory processes. Fail, when set, decides per spec
// whether the spawn errors.
type Spawner struct {
	mu      sync.Mutex
	nextPid int
	spawned []*Process

	Fail func(spec process.Spec) error
}

// Spawn implements process.Spawner.
func (s *Spawner) Spawn(spec process.Spec) (process.Handle, error) {
	s.mu.Lock()
	fail := s.Fail
	s.mu.Unlock()
	if fail != nil {
		if err := fail(spec); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPid++
	p := &Process{Spec: spec, pid: 10000 + s.nextPid, alive: true}
	s.spawned = append(s.spawned, p)
	return p, nil
}

// Spawned returns every process handed out, in spawn order.
func (s *Spawner) Spawned() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.spawned...)
}

// Alive returns the processes not yet released.
func (s *Spawner) Alive() []*Process {
	var out []*Process
	for _, p := range s.Spawned() {
		if p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// Process is a fake process.Handle.
type Process struct {
	Spec process.Spec

	mu       sync.Mutex
	pid      int
	alive    bool
	releases int
}

func (p *Process) Role() process.Role { return p.Spec.Role }
func (p *Process) Pid() int           { return p.pid }

func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Release marks the process dead and counts the call.
func (p *Process) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
	p.releases++
}

// Exit simulates the process dying on its own.
func (p *Process) Exit() {
	p.mu.Lock()
	p.alive = false
	p.mu.Unlock()
}

// Releases reports how many times Release was called.
func (p *Process) Releases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases
}
