// Package supervisor is the composition root of a stevedore session.
//
// State transitions:
//
//	IDLE → STARTING → RUNNING → STOPPING → STOPPED
//
// Any startup failure unwinds the steps already done, in reverse, and lands
// in FAILED. Teardown after Quit runs the same unwind: restore the docker
// context, stop the distribution, close the journal session, release the
// instance lock.
package supervisor

import (
	"context"
	"os"
	"sync"

	"github.com/slonopotamus/stevedore/internal/artifact"
	"github.com/slonopotamus/stevedore/internal/config"
	"github.com/slonopotamus/stevedore/internal/distro"
	"github.com/slonopotamus/stevedore/internal/dockerctx"
	"github.com/slonopotamus/stevedore/internal/instance"
	"github.com/slonopotamus/stevedore/internal/journal"
	"github.com/slonopotamus/stevedore/internal/logging"
	"github.com/slonopotamus/stevedore/internal/process"
)

var log = logging.For("supervisor")

// State of the session.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Event is an input to the event loop. Quit is the only one.
type Event int

const (
	EventQuit Event = iota
)

// Lock is a held single-instance lock.
type Lock interface {
	Release() error
}

// Distribution is the guest lifecycle the supervisor drives.
type Distribution interface {
	Name() string
	EnsureRunning(ctx context.Context) (*distro.Running, error)
	Stop()
	OnSpawn(fn func(process.Handle))
	OnRelease(fn func(process.Handle))
	OnImport(fn func(*artifact.Report))
}

// Router manages docker contexts.
type Router interface {
	CreateOrUpdate(ctx context.Context, name, host string) error
	Activate(ctx context.Context, name string) error
	RestoreDefault(ctx context.Context)
	SetPrevious(name string)
	OnRecord(fn func(name string))
	Previous() (string, bool)
	Contexts() []dockerctx.Context
}

// Options configures a Supervisor.
type Options struct {
	LockName string

	// Contexts are created or updated in order. Activate names the one
	// switched to afterwards.
	Contexts []config.Context
	Activate string

	// Artifact is recorded with each import in the journal.
	Artifact     string
	GuestVersion string
}

// Supervisor owns one session.
type Supervisor struct {
	opts    Options
	distro  Distribution
	router  Router
	journal *journal.DB // nil disables crash recovery

	acquire func(name string) (Lock, error)
	reap    func(pid int)

	mu      sync.Mutex
	state   State
	lock    Lock
	session *journal.Session
	undo    []step
	running *distro.Running

	events   chan Event
	shutdown sync.Once

	onStateChange func(State)
}

type step struct {
	name string
	fn   func()
}

// New returns a Supervisor. db may be nil.
func New(opts Options, d Distribution, r Router, db *journal.DB) *Supervisor {
	s := &Supervisor{
		opts:    opts,
		distro:  d,
		router:  r,
		journal: db,
		acquire: func(name string) (Lock, error) { return instance.Acquire(name) },
		reap:    process.Reap,
		state:   StateIdle,
		events:  make(chan Event, 1),
	}

	d.OnSpawn(s.recordSpawn)
	d.OnRelease(s.recordRelease)
	d.OnImport(s.recordImport)
	r.OnRecord(s.recordPrevious)
	return s
}

// SetJournal attaches the session journal. Call it after Lock and before
// Start.
func (s *Supervisor) SetJournal(db *journal.DB) {
	s.mu.Lock()
	s.journal = db
	s.mu.Unlock()
}

// OnStateChange registers a callback for state changes. It may run on any
// goroutine that drives the supervisor.
func (s *Supervisor) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onStateChange = fn
	s.mu.Unlock()
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running describes the started distribution, or nil before startup.
func (s *Supervisor) Running() *distro.Running {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Contexts returns the docker contexts this session manages.
func (s *Supervisor) Contexts() []dockerctx.Context {
	return s.router.Contexts()
}

// Lock acquires the instance lock. It must succeed before anything else
// touches the distribution or docker. Calling it again is a no-op.
func (s *Supervisor) Lock() error {
	s.mu.Lock()
	held := s.lock != nil
	s.mu.Unlock()
	if held {
		return nil
	}

	l, err := s.acquire(s.opts.LockName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lock = l
	s.mu.Unlock()
	s.push("release instance lock", func() {
		if err := l.Release(); err != nil {
			log.WithError(err).Warn("release instance lock")
		}
	})
	log.WithField("lock", s.opts.LockName).Debug("instance lock acquired")
	return nil
}

// Start brings the session up. On error every completed step has already
// been undone.
func (s *Supervisor) Start(ctx context.Context) (err error) {
	if err := s.Lock(); err != nil {
		s.setState(StateFailed)
		return err
	}
	s.setState(StateStarting)

	defer func() {
		if err != nil {
			log.WithError(err).Error("startup failed, unwinding")
			s.unwind()
			s.setState(StateFailed)
		}
	}()

	s.beginSession()
	s.recover()

	// A failed EnsureRunning may already have booted the guest.
	s.push("stop distribution", s.distro.Stop)
	run, err := s.distro.EnsureRunning(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.running = run
	s.mu.Unlock()

	for _, c := range s.opts.Contexts {
		if err := s.router.CreateOrUpdate(ctx, c.Name, c.Host); err != nil {
			return err
		}
	}
	// Activate records the prior context before switching, even when the
	// switch itself fails, so the restore goes on the stack first.
	s.push("restore docker context", func() {
		if prev, ok := s.router.Previous(); ok {
			log.WithField("context", prev).Debug("restoring docker context")
		}
		s.router.RestoreDefault(context.Background())
	})
	if s.opts.Activate != "" {
		if err := s.router.Activate(ctx, s.opts.Activate); err != nil {
			return err
		}
	}

	s.setState(StateRunning)
	log.WithField("distribution", s.distro.Name()).Info("stevedore is running")
	return nil
}

// Run blocks until Quit is called or ctx is done, then tears the session
// down.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-s.events:
			if ev == EventQuit {
				log.Info("quit requested")
				s.Shutdown()
				return nil
			}
		case <-ctx.Done():
			log.Info("context done, quitting")
			s.Shutdown()
			return nil
		}
	}
}

// Quit asks the event loop to stop. It never blocks.
func (s *Supervisor) Quit() {
	select {
	case s.events <- EventQuit:
	default:
	}
}

// Shutdown undoes every completed step in reverse order. Only the first
// call does anything.
func (s *Supervisor) Shutdown() {
	s.shutdown.Do(func() {
		if s.State() == StateFailed {
			return
		}
		s.setState(StateStopping)
		s.unwind()
		s.setState(StateStopped)
	})
}

func (s *Supervisor) push(name string, fn func()) {
	s.mu.Lock()
	s.undo = append(s.undo, step{name: name, fn: fn})
	s.mu.Unlock()
}

func (s *Supervisor) unwind() {
	s.mu.Lock()
	steps := s.undo
	s.undo = nil
	s.mu.Unlock()

	for i := len(steps) - 1; i >= 0; i-- {
		log.WithField("step", steps[i].name).Debug("undo")
		steps[i].fn()
	}

	s.mu.Lock()
	s.lock = nil
	s.running = nil
	s.mu.Unlock()
}

// beginSession opens the journal session. Journal failures only cost crash
// recovery, so they are logged and startup goes on.
func (s *Supervisor) beginSession() {
	if s.journal == nil {
		return
	}
	sess, err := s.journal.Begin(os.Getpid())
	if err != nil {
		log.WithError(err).Warn("begin journal session")
		return
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	s.push("end journal session", func() {
		if err := s.journal.End(sess.ID); err != nil {
			log.WithError(err).Warn("end journal session")
		}
	})
}

// recover cleans up after sessions that never ended: it reaps the processes
// they left running and carries their recorded docker context forward.
func (s *Supervisor) recover() {
	sess := s.currentSession()
	if s.journal == nil || sess == nil {
		return
	}
	stale, err := s.journal.Unfinished()
	if err != nil {
		log.WithError(err).Warn("list unfinished sessions")
		return
	}

	seeded := false
	for _, old := range stale {
		if old.ID == sess.ID {
			continue
		}
		entry := log.WithField("session", old.ID).WithField("started", old.StartedAt)
		entry.Warn("recovering from unclean shutdown")

		procs, err := s.journal.UnreleasedProcesses(old.ID)
		if err != nil {
			entry.WithError(err).Warn("list orphan processes")
		}
		for _, p := range procs {
			entry.WithField("role", p.Role).WithField("pid", p.PID).Info("reaping orphan")
			s.reap(p.PID)
			if err := s.journal.ReleaseProcess(old.ID, p.PID); err != nil {
				entry.WithError(err).Warn("mark orphan released")
			}
		}

		// The oldest crashed session saw the user's own context.
		if !seeded && old.PreviousContext != "" {
			s.router.SetPrevious(old.PreviousContext)
			seeded = true
		}

		if err := s.journal.MarkRecovered(old.ID); err != nil {
			entry.WithError(err).Warn("mark session recovered")
		}
	}
}

func (s *Supervisor) currentSession() *journal.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Supervisor) recordSpawn(p process.Handle) {
	if sess := s.currentSession(); sess != nil {
		if err := s.journal.RecordProcess(sess.ID, string(p.Role()), p.Pid()); err != nil {
			log.WithError(err).Warn("journal process")
		}
	}
}

func (s *Supervisor) recordRelease(p process.Handle) {
	if sess := s.currentSession(); sess != nil {
		if err := s.journal.ReleaseProcess(sess.ID, p.Pid()); err != nil {
			log.WithError(err).Warn("journal process release")
		}
	}
}

func (s *Supervisor) recordImport(rep *artifact.Report) {
	if s.journal == nil {
		return
	}
	err := s.journal.SaveRegistration(&journal.Registration{
		Name:         s.distro.Name(),
		Artifact:     s.opts.Artifact,
		Digest:       rep.Digest.String(),
		GuestVersion: s.opts.GuestVersion,
	})
	if err != nil {
		log.WithError(err).Warn("journal registration")
	}
}

func (s *Supervisor) recordPrevious(name string) {
	if sess := s.currentSession(); sess != nil {
		if err := s.journal.SetPreviousContext(sess.ID, name); err != nil {
			log.WithError(err).Warn("journal previous context")
		}
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	fn := s.onStateChange
	s.mu.Unlock()

	log.WithField("state", st).Debug("supervisor state")
	if fn != nil {
		fn(st)
	}
}
