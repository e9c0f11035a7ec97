package supervisor

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/stepd-host/internal/build"
	"git.home.luguber.info/inful/stepd-host/internal/daemonconfig"
	"git.home.luguber.info/inful/stepd-host/internal/eventstore"
	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/git"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
	"git.home.luguber.info/inful/stepd-host/internal/metrics"
	"git.home.luguber.info/inful/stepd-host/internal/observability"
	"git.home.luguber.info/inful/stepd-host/internal/settings"
	"git.home.luguber.info/inful/stepd-host/internal/transport"
)

// runCycle executes one update cycle on the worker goroutine.
func (s *Supervisor) runCycle(c *Cycle) {
	ctx := observability.WithCycleID(c.ctx, c.ID)
	log := observability.Logger(ctx, s.logger)

	// The previous daemon is gone before anything else happens.
	s.mu.Lock()
	old, oldOwner := s.current, s.owner
	s.current, s.owner = nil, nil
	s.mu.Unlock()
	if oldOwner != nil {
		oldOwner.cancel()
	}
	s.stopProcess(log, old)

	if s.abandon(c) {
		return
	}
	if !s.transition(c, CheckingForUpdates, nil) {
		s.abandon(c)
		return
	}

	if err := s.layout.Create(); err != nil {
		s.fail(ctx, c, ferrors.FileSystemError("failed to prepare data directory").WithCause(err).WithContext("path", s.layout.Root).Build())
		return
	}
	snapshot, err := s.host.Settings()
	if err != nil {
		s.fail(ctx, c, err)
		return
	}

	repoPath := s.layout.RepoPath()
	artifact := s.layout.ArtifactPath()
	remote := s.cfg.Repository.URL

	needBuild, ok := s.checkForUpdates(observability.WithStage(ctx, "check"), c, repoPath, remote, artifact)
	if !ok {
		return
	}

	if needBuild {
		if !s.transition(c, Building, nil) {
			s.abandon(c)
			return
		}
		if !s.build(observability.WithStage(ctx, "build"), c, repoPath) {
			return
		}
	}

	if !s.transition(c, Launching, nil) {
		s.abandon(c)
		return
	}
	t, err := s.launch(observability.WithStage(ctx, "launch"), snapshot)
	if err != nil {
		s.fail(ctx, c, err)
		return
	}

	s.mu.Lock()
	if s.closed || c.abandoned() {
		s.mu.Unlock()
		log.Info("Cycle abandoned during launch; stopping new daemon", logfields.PID(t.PID()))
		s.stopProcess(log, t)
		s.abandon(c)
		return
	}
	s.current, s.owner = t, c
	s.state = Running
	s.lastCycle = c.ID
	s.lastErr = nil
	s.mu.Unlock()

	go s.watch(c, t)

	s.recorder.SetSupervisorState(Running.String())
	log.Info("Supervisor state changed", slog.String("from", Launching.String()), logfields.State(Running.String()), logfields.PID(t.PID()))
	s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.StateChanged, State: Running.String()})
	s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.ProcessStarted, PID: t.PID()})

	if c.finish(OutcomeRunning, nil) {
		s.host.OnReady(c)
	}
}

// checkForUpdates reports whether a build is needed. ok is false when the cycle ended.
func (s *Supervisor) checkForUpdates(ctx context.Context, c *Cycle, repoPath, remote, artifact string) (needBuild, ok bool) {
	log := observability.Logger(ctx, s.logger)

	state, err := s.checker.Check(ctx, repoPath, remote)
	if c.abandoned() {
		s.abandon(c)
		return false, false
	}
	if err != nil {
		if git.HasCheckout(repoPath) && build.Installed(artifact) {
			log.Warn("Update check failed; using existing checkout and artifact",
				logfields.URL(remote),
				logfields.Error(err))
			s.recorder.IncUpdateCheck(metrics.CheckFallback)
			s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.UpdateChecked, Message: "fallback: " + err.Error()})
			return false, true
		}
		s.recorder.IncUpdateCheck(metrics.CheckFailed)
		s.fail(ctx, c, err)
		return false, false
	}

	result := metrics.CheckUpToDate
	if state.UpdateNeeded {
		result = metrics.CheckUpdateNeeded
	}
	s.recorder.IncUpdateCheck(result)
	s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.UpdateChecked, Revision: state.RemoteRevision, Message: result})
	log.Info("Update check finished",
		logfields.Revision(state.LocalRevision),
		logfields.RemoteRevision(state.RemoteRevision),
		logfields.Branch(state.Branch),
		slog.Bool("update_needed", state.UpdateNeeded))

	if state.UpdateNeeded {
		return true, true
	}
	if !build.Installed(artifact) {
		log.Warn("Step daemon artifact is missing; rebuilding", logfields.Path(artifact))
		return true, true
	}
	return false, true
}

// build runs the toolchain. It returns false when the cycle ended.
func (s *Supervisor) build(ctx context.Context, c *Cycle, repoPath string) bool {
	start := time.Now()
	res, err := s.builder.Build(ctx, repoPath, s.cfg.Build.Env)
	elapsed := time.Since(start)
	if c.abandoned() {
		s.abandon(c)
		return false
	}
	s.recorder.ObserveBuildDuration(elapsed)
	s.recorder.IncBuildOutcome(res.String())
	s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.BuildFinished, Message: res.String()})
	if err == nil && !res.IsSuccess() {
		err = ferrors.BuildError("build failed").WithContext("result", res.String()).Build()
	}
	if err != nil {
		s.fail(ctx, c, err)
		return false
	}
	return true
}

// launch writes the daemon configuration and spawns the artifact in the data directory.
func (s *Supervisor) launch(ctx context.Context, snapshot settings.Settings) (*transport.PipeTransport, error) {
	log := observability.Logger(ctx, s.logger)
	if _, err := daemonconfig.Write(snapshot, s.layout.ConfigPath()); err != nil {
		return nil, err
	}
	args, err := daemonconfig.Args(snapshot, s.layout.ConfigArg())
	if err != nil {
		return nil, err
	}
	log.Info("Launching step daemon", logfields.Path(s.layout.ArtifactPath()), slog.Any("args", args))
	return transport.Start(transport.LaunchSpec{
		Path:         s.layout.ArtifactPath(),
		Args:         args,
		Dir:          s.layout.Root,
		WriteTimeout: s.cfg.Launch.WriteTimeout,
	}, s.logger)
}

// fail ends c in Crashed unless it was abandoned meanwhile.
func (s *Supervisor) fail(ctx context.Context, c *Cycle, err error) {
	if c.abandoned() {
		s.abandon(c)
		return
	}
	log := observability.Logger(ctx, s.logger)
	attrs := []any{logfields.Error(err)}
	if ce, ok := ferrors.AsClassified(err); ok {
		attrs = append(attrs, slog.String("category", string(ce.Category())))
	}
	log.Error("Update cycle failed", attrs...)
	if !s.transition(c, Crashed, err) {
		s.abandon(c)
		return
	}
	c.finish(OutcomeFailed, err)
}

// abandon ends c as abandoned if it was cancelled. It reports whether it did.
func (s *Supervisor) abandon(c *Cycle) bool {
	s.mu.Lock()
	gone := s.closed || c.abandoned()
	s.mu.Unlock()
	if !gone {
		return false
	}
	if c.finish(OutcomeAbandoned, nil) {
		s.logger.Info("Update cycle abandoned", logfields.CycleID(c.ID))
		s.record(eventstore.Event{CycleID: c.ID, Type: eventstore.CycleAbandoned})
	}
	return true
}
