// Package supervisor runs the step daemon's update, build and launch lifecycle.
//
// A single background worker executes update cycles one at a time. Each cycle tears down
// the running daemon, checks the remote for a new revision, rebuilds when needed, writes
// the daemon configuration and launches the artifact behind a PipeTransport. Requesting a
// new cycle cancels the one in flight; Close abandons everything and kills the daemon.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/stepd-host/internal/build"
	appcfg "git.home.luguber.info/inful/stepd-host/internal/config"
	"git.home.luguber.info/inful/stepd-host/internal/eventstore"
	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/git"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
	"git.home.luguber.info/inful/stepd-host/internal/metrics"
	"git.home.luguber.info/inful/stepd-host/internal/procstats"
	"git.home.luguber.info/inful/stepd-host/internal/settings"
	"git.home.luguber.info/inful/stepd-host/internal/transport"
	"git.home.luguber.info/inful/stepd-host/internal/workspace"
)

// UpdateChecker brings the local checkout in line with the remote.
type UpdateChecker interface {
	Check(ctx context.Context, repoPath, remoteURL string) (git.RepositoryState, error)
}

// Builder produces and installs the daemon artifact.
type Builder interface {
	Build(ctx context.Context, repoPath string, env map[string]string) (build.Result, error)
}

// Host is the capability surface the embedding application provides.
type Host interface {
	Settings() (settings.Settings, error)
	DataDir() string
	// OnReady is called once per cycle whose daemon reached Running.
	OnReady(c *Cycle)
}

// Options configures a Supervisor. Config is required; nil collaborators get defaults.
type Options struct {
	Config  *appcfg.Config
	Checker UpdateChecker
	Builder Builder
	Events  eventstore.Sink
	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Supervisor owns at most one daemon process at a time.
type Supervisor struct {
	host     Host
	cfg      *appcfg.Config
	layout   workspace.Layout
	checker  UpdateChecker
	builder  Builder
	events   eventstore.Sink
	recorder metrics.Recorder
	logger   *slog.Logger

	teardownTimeout time.Duration

	mu        sync.Mutex
	state     State
	current   *transport.PipeTransport
	owner     *Cycle // cycle that launched current
	active    *Cycle
	pending   *Cycle
	lastCycle string
	lastErr   error
	closed    bool

	notify     chan struct{}
	closing    chan struct{}
	workerDone chan struct{}
	startOnce  sync.Once
	started    bool
}

// New creates a Supervisor in state Starting. No work happens until Start.
func New(host Host, opts Options) (*Supervisor, error) {
	if host == nil {
		return nil, ferrors.InternalError("supervisor requires a host").Build()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = appcfg.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	layout := workspace.New(host.DataDir(), cfg)

	s := &Supervisor{
		host:            host,
		cfg:             cfg,
		layout:          layout,
		checker:         opts.Checker,
		builder:         opts.Builder,
		events:          opts.Events,
		recorder:        opts.Metrics,
		logger:          logger,
		teardownTimeout: cfg.Launch.TeardownTimeout,
		state:           Starting,
		notify:          make(chan struct{}, 1),
		closing:         make(chan struct{}),
		workerDone:      make(chan struct{}),
	}
	if s.checker == nil {
		s.checker = git.NewChecker(cfg.Repository, logger)
	}
	if s.builder == nil {
		s.builder = build.NewPipeline(cfg.Build, layout.ArtifactPath(), logger)
	}
	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
	}
	if s.teardownTimeout <= 0 {
		s.teardownTimeout = appcfg.DefaultTeardownTimeout
	}
	s.recorder.SetSupervisorState(Starting.String())
	return s, nil
}

// Layout exposes the data-directory layout the supervisor uses.
func (s *Supervisor) Layout() workspace.Layout { return s.layout }

// Start launches the background worker and requests the first update cycle.
func (s *Supervisor) Start() *Cycle {
	return s.Update()
}

func (s *Supervisor) startWorker() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.loop()
	})
}

// Update requests a new cycle, starting the worker if needed. Any cycle in flight is
// cancelled and the running daemon is torn down by the worker before the new cycle
// checks for updates.
func (s *Supervisor) Update() *Cycle {
	c := newCycle()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.finish(OutcomeAbandoned, errClosed())
		return c
	}
	superseded := s.pending
	s.pending = c
	if s.active != nil {
		s.active.cancel()
	}
	s.mu.Unlock()

	if superseded != nil {
		superseded.finish(OutcomeAbandoned, nil)
		s.record(eventstore.Event{CycleID: superseded.ID, Type: eventstore.CycleAbandoned, Message: "superseded before start"})
	}
	s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.CycleRequested})
	s.logger.Info("Update requested", logfields.CycleID(c.ID))

	s.startWorker()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return c
}

// Close kills the daemon and abandons every cycle. It is idempotent and leaves the
// supervisor in Crashed.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	from := s.state
	s.state = Crashed
	close(s.closing)
	active, pending := s.active, s.pending
	s.pending = nil
	t, owner := s.current, s.owner
	s.current, s.owner = nil, nil
	started := s.started
	s.mu.Unlock()

	if active != nil {
		active.cancel()
	}
	if pending != nil {
		pending.finish(OutcomeAbandoned, errClosed())
	}
	if owner != nil {
		owner.cancel()
	}
	s.stopProcess(s.logger, t)

	s.recorder.SetSupervisorState(Crashed.String())
	if from != Crashed {
		s.record(eventstore.Event{Type: eventstore.StateChanged, State: Crashed.String(), Message: "closed"})
	}
	s.logger.Info("Supervisor closed", slog.String("from", from.String()))

	if started {
		select {
		case <-s.workerDone:
		case <-time.After(s.teardownTimeout):
			s.logger.Warn("Update worker still busy after close; its result will be discarded")
		}
	}
	return nil
}

// Connect returns the live transport. It fails unless the daemon is Running.
func (s *Supervisor) Connect() (*transport.PipeTransport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running && s.current != nil {
		return s.current, nil
	}
	msg := "Step Daemon is still updating."
	if s.state == Crashed {
		msg = Crashed.Text()
	}
	return nil, ferrors.ProcessError(msg).WithContext("state", s.state.String()).Build()
}

// Status is a snapshot of the supervisor for the host's status query.
type Status struct {
	State     string     `json:"state"`
	Text      string     `json:"text"`
	Running   bool       `json:"running"`
	Updating  bool       `json:"updating"`
	PID       int        `json:"pid,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	CycleID   string     `json:"cycle_id,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status returns the current state snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:    s.state.String(),
		Text:     s.state.Text(),
		Running:  s.state == Running,
		Updating: s.state.Updating(),
		CycleID:  s.lastCycle,
	}
	if s.current != nil {
		st.PID = s.current.PID()
		started := s.current.StartedAt()
		st.StartedAt = &started
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resources samples the running daemon's resource usage.
func (s *Supervisor) Resources(ctx context.Context) (procstats.Stats, error) {
	s.mu.Lock()
	t := s.current
	s.mu.Unlock()
	if t == nil {
		return procstats.Stats{}, ferrors.ProcessError("step daemon is not running").Build()
	}
	return procstats.Sample(ctx, t.PID(), s.layout.Root)
}

func (s *Supervisor) loop() {
	defer close(s.workerDone)
	for {
		select {
		case <-s.closing:
			return
		case <-s.notify:
		}
		for {
			c := s.take()
			if c == nil {
				break
			}
			s.runCycle(c)
			s.mu.Lock()
			if s.active == c {
				s.active = nil
			}
			s.mu.Unlock()
		}
	}
}

func (s *Supervisor) take() *Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	c := s.pending
	s.pending = nil
	s.active = c
	return c
}

// transition moves to a new state on behalf of c. It refuses once c is abandoned or the
// supervisor is closed, so a stale cycle never overwrites newer state.
func (s *Supervisor) transition(c *Cycle, to State, lastErr error) bool {
	s.mu.Lock()
	if s.closed || c.abandoned() {
		s.mu.Unlock()
		return false
	}
	from := s.state
	s.state = to
	s.lastCycle = c.ID
	s.lastErr = lastErr
	s.mu.Unlock()

	s.recorder.SetSupervisorState(to.String())
	if from != to {
		s.logger.Info("Supervisor state changed",
			logfields.CycleID(c.ID),
			slog.String("from", from.String()),
			logfields.State(to.String()))
		msg := ""
		if lastErr != nil {
			msg = lastErr.Error()
		}
		s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.StateChanged, State: to.String(), Message: msg})
	}
	return true
}

// stopProcess kills t and waits, bounded by the teardown timeout, for its handles to be
// released.
func (s *Supervisor) stopProcess(log *slog.Logger, t *transport.PipeTransport) {
	if t == nil {
		return
	}
	log.Info("Stopping step daemon", logfields.PID(t.PID()))
	if err := t.Close(); err != nil {
		log.Warn("Failed to kill step daemon", logfields.PID(t.PID()), logfields.Error(err))
	}
	select {
	case <-t.Done():
	case <-time.After(s.teardownTimeout):
		log.Warn("Step daemon did not exit within teardown timeout",
			logfields.PID(t.PID()),
			logfields.Duration(s.teardownTimeout))
	}
}

// watch turns an unrequested exit of the current daemon into Crashed.
func (s *Supervisor) watch(c *Cycle, t *transport.PipeTransport) {
	<-t.Done()

	s.mu.Lock()
	crashed := !t.Closed() && s.current == t && !s.closed
	if s.current == t {
		s.current, s.owner = nil, nil
	}
	var exitErr error
	if crashed {
		exitErr = ferrors.ProcessError("step daemon exited unexpectedly").
			WithCause(t.ExitErr()).
			WithContext("pid", t.PID()).
			Build()
		s.state = Crashed
		s.lastErr = exitErr
	}
	s.mu.Unlock()

	reason := metrics.ExitRequested
	if crashed {
		reason = metrics.ExitCrashed
		s.recorder.SetSupervisorState(Crashed.String())
		s.logger.Error("Step daemon crashed", logfields.CycleID(c.ID), logfields.PID(t.PID()), logfields.Error(exitErr))
		s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.StateChanged, State: Crashed.String(), Message: exitErr.Error()})
	}
	s.recorder.IncProcessExit(reason)
	s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.ProcessExited, PID: t.PID(), Message: reason})
}

// record is best effort; sink failures are logged and never affect the lifecycle.
func (s *Supervisor) record(e eventstore.Event) {
	if s.events == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.events.Record(ctx, e); err != nil {
		s.logger.Warn("Failed to record lifecycle event", slog.String("type", string(e.Type)), logfields.Error(err))
	}
}

func errClosed() error {
	return ferrors.ProcessError("supervisor is closed").Build()
}
