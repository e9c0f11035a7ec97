package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	appcfg "git.home.luguber.info/inful/stepd-host/internal/config"
	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/logbridge"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
)

const (
	// waitDelay bounds how long Wait lingers on pipes held open by toolchain children.
	waitDelay    = 5 * time.Second
	cleanTimeout = 2 * time.Minute
)

// Pipeline is one toolchain recipe: build command, clean command and artifact locations.
type Pipeline struct {
	Command      []string
	CleanCommand []string
	Output       string // artifact path relative to the checkout
	ArtifactPath string // stable install path
	Env          map[string]string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// NewPipeline builds a Pipeline from configuration.
func NewPipeline(cfg appcfg.BuildConfig, artifactPath string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Command:      slices.Clone(cfg.Command),
		CleanCommand: slices.Clone(cfg.CleanCommand),
		Output:       cfg.Output,
		ArtifactPath: artifactPath,
		Env:          maps.Clone(cfg.Env),
		Timeout:      cfg.Timeout,
		Logger:       logger,
	}
}

// Build runs the toolchain in repoPath. envOverrides take precedence over the
// pipeline's own environment. On success the artifact is installed executable at
// ArtifactPath.
func (p *Pipeline) Build(ctx context.Context, repoPath string, envOverrides map[string]string) (Result, error) {
	if len(p.Command) == 0 {
		return BuildFailed, ferrors.ConfigError("build command is empty").WithContext("field", "build.command").Build()
	}
	env := maps.Clone(p.Env)
	if env == nil {
		env = map[string]string{}
	}
	maps.Copy(env, envOverrides)

	buildCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	p.Logger.Info("Building step daemon", logfields.Path(repoPath), slog.Any("command", p.Command))
	code, err := p.run(buildCtx, repoPath, env, p.Command)
	if err != nil {
		p.Logger.Error("Step daemon build failed",
			logfields.ExitCode(code),
			logfields.Duration(time.Since(start)),
			logfields.Error(err))
		p.clean(ctx, repoPath, env)

		b := ferrors.BuildError("toolchain build failed").
			WithCause(err).
			WithContext("exit_code", code).
			WithContext("path", repoPath)
		switch {
		case ctx.Err() != nil:
			b = b.WithCategory(ferrors.CategoryTimeout).WithContext("reason", "cancelled")
		case errors.Is(buildCtx.Err(), context.DeadlineExceeded):
			b = b.WithContext("reason", "timeout")
		}
		return BuildFailed, b.Build()
	}

	src := filepath.Join(repoPath, p.Output)
	if err := Install(src, p.ArtifactPath); err != nil {
		p.Logger.Error("Step daemon artifact could not be installed", logfields.Path(src), logfields.Error(err))
		return BuildFailed, ferrors.BuildError("install build artifact").WithCause(err).WithContext("path", src).Build()
	}
	p.Logger.Info("Step daemon built", logfields.Path(p.ArtifactPath), logfields.Duration(time.Since(start)))
	return BuiltOk, nil
}

// run executes argv with stdout at info and stderr at warn, both labelled source=build.
func (p *Pipeline) run(ctx context.Context, dir string, env map[string]string, argv []string) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), env)
	cmd.WaitDelay = waitDelay

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	outDone := logbridge.New(p.Logger, "build").Run(outR, nil)
	errDone := logbridge.New(p.Logger, "build").WithLevel(slog.LevelWarn).Run(errR, nil)

	err := cmd.Run()
	_ = outW.Close()
	_ = errW.Close()
	<-outDone
	<-errDone

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return code, err
	}
	return code, nil
}

func (p *Pipeline) clean(ctx context.Context, repoPath string, env map[string]string) {
	if len(p.CleanCommand) == 0 {
		return
	}
	cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanTimeout)
	defer cancel()
	if code, err := p.run(cleanCtx, repoPath, env, p.CleanCommand); err != nil {
		p.Logger.Warn("Clean after failed build did not succeed", logfields.ExitCode(code), logfields.Error(err))
	}
}

// mergeEnv appends overrides in key order; later entries win in os/exec.
func mergeEnv(base []string, overrides map[string]string) []string {
	out := slices.Clone(base)
	for _, k := range slices.Sorted(maps.Keys(overrides)) {
		out = append(out, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return out
}
