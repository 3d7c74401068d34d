// Package distro owns the WSL distribution that hosts the docker engine.
//
// A Controller makes sure the distribution is registered, starts dockerd
// inside it plus the host-side socket proxy, and tears both down again.
// Registration is durable: Stop only terminates the running instance, so
// the next EnsureRunning finds the distribution registered and skips the
// import.
package distro

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/slonopotamus/stevedore/internal/artifact"
	"github.com/slonopotamus/stevedore/internal/endpoint"
	"github.com/slonopotamus/stevedore/internal/logging"
	"github.com/slonopotamus/stevedore/internal/logstore"
	"github.com/slonopotamus/stevedore/internal/process"
	"github.com/slonopotamus/stevedore/internal/wsl"
)

var (
	// ErrRegistration means the import or the liveness probe failed.
	ErrRegistration = errors.New("distribution registration failed")

	// ErrProcessSpawn means dockerd or the proxy did not start.
	ErrProcessSpawn = errors.New("failed to start engine processes")
)

// probeToken is echoed by the liveness probe.
const probeToken = "stevedore-alive"

var log = logging.For("distro")

// Guest is the wsl.exe surface the controller drives.
type Guest interface {
	wsl.Backend

	// Bin is the wsl.exe binary. dockerd is spawned through it.
	Bin() string
	ExecArgs(name string, argv ...string) []string
	Exec(ctx context.Context, name string, argv ...string) ([]byte, error)
	Terminate(ctx context.Context, name string) error
	Unregister(ctx context.Context, name string) error
}

// Options configures a Controller.
type Options struct {
	Name         string
	InstallDir   string // where wsl --import keeps the virtual disk
	Artifact     string // root filesystem tarball
	GuestVersion string

	ProxyBin    string
	GuestSocket string // engine socket inside the guest
	ProxyListen string // host endpoint the proxy exposes

	// Logs captures engine and proxy output. Nil discards it.
	Logs *logstore.Store

	CommandTimeout time.Duration
	ImportTimeout  time.Duration
	ReadyTimeout   time.Duration

	ReimportOnProbeFailure bool
}

// Running describes a started distribution.
type Running struct {
	Name     string
	Imported bool // this call imported the distribution
	Endpoint string
	Ready    bool // the proxy endpoint accepted a connection
	Pids     map[process.Role]int
}

// Controller drives one distribution. All methods are safe for concurrent
// use, but calls are serialized.
type Controller struct {
	opts    Options
	guest   Guest
	spawner process.Spawner

	mu    sync.Mutex
	state State
	procs process.Set

	onStateChange func(State)
	onSpawn       func(process.Handle)
	onRelease     func(process.Handle)
	onImport      func(*artifact.Report)
}

// New returns a Controller. A nil spawner spawns real processes.
func New(opts Options, guest Guest, spawner process.Spawner) *Controller {
	if spawner == nil {
		spawner = process.ExecSpawner{}
	}
	if opts.GuestSocket == "" {
		opts.GuestSocket = "/var/run/docker.sock"
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.ImportTimeout == 0 {
		opts.ImportTimeout = 10 * time.Minute
	}
	return &Controller{
		opts:    opts,
		guest:   guest,
		spawner: spawner,
	}
}

// OnStateChange registers a callback for state transitions.
func (c *Controller) OnStateChange(fn func(State)) {
	c.onStateChange = fn
}

// OnSpawn registers a callback run after each owned process starts.
func (c *Controller) OnSpawn(fn func(process.Handle)) {
	c.onSpawn = fn
}

// OnRelease registers a callback run after each owned process is released.
func (c *Controller) OnRelease(fn func(process.Handle)) {
	c.onRelease = fn
}

// OnImport registers a callback run after a successful import.
func (c *Controller) OnImport(fn func(*artifact.Report)) {
	c.onImport = fn
}

// Name is the distribution name.
func (c *Controller) Name() string {
	return c.opts.Name
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Processes returns the owned processes in spawn order.
func (c *Controller) Processes() []process.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.procs.Processes()
}

// EnsureRunning registers the distribution if needed and starts dockerd and
// the proxy. Leftovers of an earlier run are cleared first. On failure the
// guest instance is terminated again; the registration stays.
func (c *Controller) EnsureRunning(ctx context.Context) (*Running, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	imported, err := c.register(ctx)
	if err != nil {
		c.stopLocked()
		return nil, err
	}

	if err := c.start(); err != nil {
		c.stopLocked()
		return nil, err
	}
	c.setState(StateRunning)

	run := &Running{
		Name:     c.opts.Name,
		Imported: imported,
		Endpoint: c.opts.ProxyListen,
		Pids:     make(map[process.Role]int),
	}
	for _, p := range c.procs.Processes() {
		run.Pids[p.Role()] = p.Pid()
	}

	if c.opts.ReadyTimeout > 0 && c.opts.ProxyListen != "" {
		if err := endpoint.WaitReady(ctx, c.opts.ProxyListen, c.opts.ReadyTimeout); err != nil {
			entry := log.WithError(err)
			if c.opts.Logs != nil {
				entry = entry.WithField("proxy_output", c.opts.Logs.For(string(process.RoleProxy)).TailText(5))
			}
			entry.Warn("engine endpoint not ready yet")
		} else {
			run.Ready = true
		}
	}

	log.WithField("distribution", c.opts.Name).WithField("imported", imported).Info("distribution running")
	return run, nil
}

// Stop releases the owned processes, removes stale engine sockets inside
// the guest and terminates the guest instance. Failures are logged and
// never returned.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	transition := c.state != StateAbsent
	if transition {
		c.setState(StateTerminating)
	}

	c.releaseProcs()

	entry := log.WithField("distribution", c.opts.Name)

	// --exec runs without a shell, so the glob needs one.
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CommandTimeout)
	if _, err := c.guest.Exec(ctx, c.opts.Name, "sh", "-c", "rm -f /var/run/docker*"); err != nil {
		entry.WithError(err).Debug("remove stale engine sockets")
	}
	cancel()

	ctx, cancel = context.WithTimeout(context.Background(), c.opts.CommandTimeout)
	if err := c.guest.Terminate(ctx, c.opts.Name); err != nil {
		entry.WithError(err).Debug("terminate distribution")
	}
	cancel()

	if transition {
		c.setState(StateTerminated)
	}
}

// register imports an absent distribution or probes a registered one.
func (c *Controller) register(ctx context.Context) (imported bool, err error) {
	qctx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	registered, err := c.guest.IsRegistered(qctx, c.opts.Name)
	cancel()
	if err != nil {
		return false, fmt.Errorf("%w: query %s: %w", ErrRegistration, c.opts.Name, err)
	}

	if !registered {
		return true, c.importDistribution(ctx)
	}
	c.setState(StateRegistered)

	perr := c.probe(ctx)
	if perr == nil {
		return false, nil
	}
	if !c.opts.ReimportOnProbeFailure {
		return false, fmt.Errorf("%w: %s does not respond: %w", ErrRegistration, c.opts.Name, perr)
	}

	log.WithError(perr).WithField("distribution", c.opts.Name).Warn("liveness probe failed, re-importing")
	uctx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	err = c.guest.Unregister(uctx, c.opts.Name)
	cancel()
	if err != nil {
		return false, fmt.Errorf("%w: unregister %s: %w", ErrRegistration, c.opts.Name, err)
	}
	c.setState(StateAbsent)
	return true, c.importDistribution(ctx)
}

func (c *Controller) importDistribution(ctx context.Context) error {
	c.setState(StateRegistering)

	rep, err := artifact.Verify(c.opts.Artifact)
	if err != nil {
		c.setState(StateAbsent)
		return fmt.Errorf("%w: %w", ErrRegistration, err)
	}

	if err := os.MkdirAll(c.opts.InstallDir, 0700); err != nil {
		c.setState(StateAbsent)
		return fmt.Errorf("%w: create install dir: %w", ErrRegistration, err)
	}

	log.WithField("distribution", c.opts.Name).
		WithField("artifact", c.opts.Artifact).
		WithField("digest", rep.Digest.String()).
		Info("importing distribution")

	ictx, cancel := context.WithTimeout(ctx, c.opts.ImportTimeout)
	defer cancel()
	if err := c.guest.Import(ictx, c.opts.Name, c.opts.InstallDir, c.opts.Artifact, c.opts.GuestVersion); err != nil {
		c.setState(StateAbsent)
		return fmt.Errorf("%w: import %s: %w", ErrRegistration, c.opts.Name, err)
	}

	c.setState(StateRegistered)
	if c.onImport != nil {
		c.onImport(rep)
	}
	return nil
}

func (c *Controller) probe(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()
	out, err := c.guest.Exec(pctx, c.opts.Name, "echo", probeToken)
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(string(out)); got != probeToken {
		return fmt.Errorf("unexpected probe output %q", got)
	}
	return nil
}

// start spawns dockerd and the proxy. On failure every process already
// spawned is released; the registration stays.
func (c *Controller) start() error {
	specs := []process.Spec{
		{
			Role: process.RoleEngine,
			Path: c.guest.Bin(),
			Args: c.guest.ExecArgs(c.opts.Name, "dockerd"),
		},
		{
			Role: process.RoleProxy,
			Path: c.opts.ProxyBin,
			Args: []string{
				"-c", "wsl://" + c.opts.Name + c.opts.GuestSocket,
				"-l", c.opts.ProxyListen,
			},
		},
	}

	for _, spec := range specs {
		if c.opts.Logs != nil {
			pl := c.opts.Logs.For(string(spec.Role))
			spec.Stdout = pl.Stream(logstore.StreamStdout)
			spec.Stderr = pl.Stream(logstore.StreamStderr)
		}
		p, err := c.spawner.Spawn(spec)
		if err != nil {
			c.releaseProcs()
			return fmt.Errorf("%w: %s: %w", ErrProcessSpawn, spec.Role, err)
		}
		c.procs.Add(p)
		if c.onSpawn != nil {
			c.onSpawn(p)
		}
	}
	return nil
}

// releaseProcs releases every owned process, newest first.
func (c *Controller) releaseProcs() {
	procs := c.procs.Processes()
	c.procs.ReleaseAll()
	if c.onRelease != nil {
		for _, p := range procs {
			c.onRelease(p)
		}
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	log.WithField("distribution", c.opts.Name).WithField("from", c.state).WithField("to", s).Debug("state")
	c.state = s
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}
