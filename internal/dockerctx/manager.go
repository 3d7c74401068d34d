// Package dockerctx points the docker CLI at the right engine.
//
// The Manager creates or updates named contexts, switches to one, and puts
// the user's previous context back at teardown. The previous context is
// recorded once, before the first switch, and restored at most once.
package dockerctx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slonopotamus/stevedore/internal/config"
	"github.com/slonopotamus/stevedore/internal/logging"
)

// ErrContextSwitch means a context could not be created or activated.
var ErrContextSwitch = errors.New("docker context switch failed")

var log = logging.For("dockerctx")

// State of a managed context within the session.
type State int

const (
	StateAbsent State = iota
	StateCreated
	StateActive
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	default:
		return "absent"
	}
}

// Context is a managed docker context.
type Context struct {
	Name  string
	Host  string
	State State
}

// Manager tracks the contexts one session creates and activates.
type Manager struct {
	client  Client
	timeout time.Duration

	mu       sync.Mutex
	contexts map[string]*Context
	order    []string

	seed     string
	previous string
	recorded bool
	restored bool

	onRecord func(name string)
}

// NewManager returns a Manager. timeout bounds each docker call; zero means
// no per-call bound.
func NewManager(client Client, timeout time.Duration) *Manager {
	return &Manager{
		client:   client,
		timeout:  timeout,
		contexts: make(map[string]*Context),
	}
}

// OnRecord registers a callback run when the previous context is recorded.
func (m *Manager) OnRecord(fn func(name string)) {
	m.onRecord = fn
}

// SetPrevious makes Activate record name instead of asking docker. Used
// after a crash, when docker still reports the context the crashed session
// switched to.
func (m *Manager) SetPrevious(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recorded {
		m.seed = name
	}
}

// Previous returns the recorded context and whether one was recorded.
func (m *Manager) Previous() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previous, m.recorded
}

// Contexts returns the managed contexts in creation order.
func (m *Manager) Contexts() []Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Context, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, *m.contexts[name])
	}
	return out
}

// CreateOrUpdate points the named context at host, creating it if needed.
func (m *Manager) CreateOrUpdate(ctx context.Context, name, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cctx, cancel := m.callContext(ctx)
	err := m.client.Update(cctx, name, host)
	cancel()
	if err != nil {
		log.WithError(err).WithField("context", name).Debug("update failed, creating")
		cctx, cancel := m.callContext(ctx)
		cerr := m.client.Create(cctx, name, host)
		cancel()
		if cerr != nil {
			return fmt.Errorf("%w: create %s: %w", ErrContextSwitch, name, cerr)
		}
	}

	c, ok := m.contexts[name]
	if !ok {
		c = &Context{Name: name}
		m.contexts[name] = c
		m.order = append(m.order, name)
	}
	c.Host = host
	if c.State == StateAbsent {
		c.State = StateCreated
	}
	log.WithField("context", name).WithField("host", host).Info("context ready")
	return nil
}

// Activate switches docker to name. The first call records the context that
// was active before it.
func (m *Manager) Activate(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.recorded {
		prev := m.seed
		if prev == "" {
			cctx, cancel := m.callContext(ctx)
			cur, err := m.client.Show(cctx)
			cancel()
			if err != nil || cur == "" {
				log.WithError(err).Debug("docker context show failed, assuming default")
				cur = config.DefaultContextName
			}
			prev = cur
		}
		m.previous = prev
		m.recorded = true
		log.WithField("context", prev).Info("recorded previous context")
		if m.onRecord != nil {
			m.onRecord(prev)
		}
	}

	cctx, cancel := m.callContext(ctx)
	err := m.client.Use(cctx, name)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: use %s: %w", ErrContextSwitch, name, err)
	}
	m.markActive(name)
	log.WithField("context", name).Info("context activated")
	return nil
}

// RestoreDefault switches back to the recorded context. It runs at most once
// and does nothing if Activate never ran. Failures are logged.
func (m *Manager) RestoreDefault(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.recorded || m.restored {
		return
	}
	m.restored = true

	cctx, cancel := m.callContext(ctx)
	err := m.client.Use(cctx, m.previous)
	cancel()
	if err != nil {
		log.WithError(err).WithField("context", m.previous).Warn("restore docker context")
		return
	}
	m.markActive(m.previous)
	log.WithField("context", m.previous).Info("context restored")
}

func (m *Manager) markActive(name string) {
	for _, c := range m.contexts {
		if c.State == StateActive {
			c.State = StateCreated
		}
	}
	if c, ok := m.contexts[name]; ok {
		c.State = StateActive
	}
}

func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}
