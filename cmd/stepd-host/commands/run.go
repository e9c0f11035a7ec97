package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/stepd-host/internal/eventstore"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
	"git.home.luguber.info/inful/stepd-host/internal/metrics"
	"git.home.luguber.info/inful/stepd-host/internal/notify"
	"git.home.luguber.info/inful/stepd-host/internal/scheduler"
	"git.home.luguber.info/inful/stepd-host/internal/supervisor"
	"git.home.luguber.info/inful/stepd-host/internal/transport"
	"git.home.luguber.info/inful/stepd-host/internal/version"
	"git.home.luguber.info/inful/stepd-host/internal/watch"
)

// settingsDebounce coalesces editor save bursts into one update.
const settingsDebounce = 500 * time.Millisecond

// RunCmd implements the 'run' command.
type RunCmd struct {
	Attach bool `help:"Pipe this terminal's stdin and stdout through the daemon once it is running"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	env, err := newEnvironment(root, g.Logger)
	if err != nil {
		return err
	}
	cfg := env.cfg
	logger := env.logger
	logger.Info("Starting stepd host", slog.String("version", version.Version), logfields.Path(env.layout.Root))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sinks, closeSinks := openSinks(cfg.EventStorePath(), cfg.Events.NATSURL, cfg.Events.NATSSubject, logger)
	defer closeSinks()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var reg *prom.Registry
	if cfg.Monitoring.MetricsAddr != "" {
		reg = prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorder(reg)
	}

	sup, err := supervisor.New(env.host, supervisor.Options{
		Config:  cfg,
		Events:  sinks,
		Metrics: recorder,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sup.Close(); err != nil {
			logger.Error("Failed to close supervisor", logfields.Error(err))
		}
	}()

	if reg != nil {
		srv := newMonitoringServer(cfg.Monitoring.MetricsAddr, reg, sup)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Monitoring server failed", logfields.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("Monitoring endpoint listening", slog.String("addr", cfg.Monitoring.MetricsAddr))
	}

	if r.Attach {
		env.host.HandleReady(func(*supervisor.Cycle) { go pumpOutput(ctx, sup, os.Stdout, logger) })
		go pumpInput(ctx, sup, os.Stdin, logger)
	}

	if cfg.Update.Schedule != "" {
		sched, err := scheduler.New(logger)
		if err != nil {
			return err
		}
		if _, err := sched.ScheduleUpdates(cfg.Update.Schedule, func() { sup.Update() }); err != nil {
			return err
		}
		sched.Start()
		defer func() { _ = sched.Stop() }()
	}

	if cfg.Update.WatchSettings {
		w, err := watch.New(env.host.SettingsPath(), settingsDebounce, func() {
			logger.Info("Settings changed; restarting step daemon")
			sup.Update()
		}, logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			logger.Warn("Settings watcher unavailable", logfields.Error(err))
		} else {
			defer func() { _ = w.Stop() }()
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	if cfg.Update.OnStart {
		sup.Start()
	} else {
		logger.Info("Waiting for an update request (SIGHUP, schedule or settings change)")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, stopping step daemon")
			return nil
		case <-hup:
			logger.Info("SIGHUP received; updating step daemon")
			sup.Update()
		}
	}
}

// openSinks opens the configured lifecycle event sinks. Unavailable sinks are logged and
// skipped.
func openSinks(storePath, natsURL, natsSubject string, logger *slog.Logger) (eventstore.Sink, func()) {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks eventstore.MultiSink
	var closers []func() error
	if storePath != "" {
		store, err := eventstore.NewSQLiteStore(storePath)
		if err != nil {
			logger.Warn("Event store unavailable", logfields.Path(storePath), logfields.Error(err))
		} else {
			sinks = append(sinks, store)
			closers = append(closers, store.Close)
		}
	}
	if natsURL != "" {
		pub, err := notify.Connect(natsURL, natsSubject, "stepd-host")
		if err != nil {
			logger.Warn("NATS publisher unavailable", logfields.URL(natsURL), logfields.Error(err))
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, pub.Close)
		}
	}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("Failed to close event sink", logfields.Error(err))
			}
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll
	}
	return sinks, closeAll
}

// newMonitoringServer serves /metrics and the supervisor status as JSON on /status.
func newMonitoringServer(addr string, reg *prom.Registry, sup *supervisor.Supervisor) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sup.Status())
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// pumpOutput copies daemon output lines to w until the transport ends.
func pumpOutput(ctx context.Context, sup *supervisor.Supervisor, w io.Writer, logger *slog.Logger) {
	tr, err := sup.Connect()
	if err != nil {
		logger.Warn("Attach failed", logfields.Error(err))
		return
	}
	for ctx.Err() == nil {
		line, err := tr.ReadLine(500 * time.Millisecond)
		switch {
		case err == nil:
			fmt.Fprintln(w, line)
		case transport.IsTimeout(err):
			continue
		default:
			logger.Debug("Attached output ended", logfields.Error(err))
			return
		}
	}
}

// pumpInput forwards terminal lines to whichever daemon is currently running.
func pumpInput(ctx context.Context, sup *supervisor.Supervisor, r io.Reader, logger *slog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		tr, err := sup.Connect()
		if err != nil {
			logger.Warn("Line dropped", logfields.Error(err))
			continue
		}
		if _, err := tr.Write([]byte(sc.Text() + "\n")); err != nil {
			logger.Warn("Line dropped", logfields.Error(err))
		}
	}
}
