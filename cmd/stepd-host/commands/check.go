package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/stepd-host/internal/build"
	"git.home.luguber.info/inful/stepd-host/internal/git"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
)

// CheckCmd implements the 'check' command.
type CheckCmd struct {
	NoBuild bool `help:"Only report whether an update is available"`
	Force   bool `help:"Build even when the checkout is up to date"`
}

func (c *CheckCmd) Run(g *Global, root *CLI) error {
	env, err := newEnvironment(root, g.Logger)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repoPath := env.layout.RepoPath()
	artifact := env.layout.ArtifactPath()
	checker := git.NewChecker(env.cfg.Repository, env.logger)
	state, err := checker.Check(ctx, repoPath, env.cfg.Repository.URL)
	if err != nil {
		return err
	}
	installed := build.Installed(artifact)
	fmt.Printf("branch:          %s\n", state.Branch)
	fmt.Printf("local revision:  %s\n", orNone(logfields.ShortRev(state.LocalRevision)))
	fmt.Printf("remote revision: %s\n", logfields.ShortRev(state.RemoteRevision))
	fmt.Printf("update needed:   %t\n", state.UpdateNeeded)
	fmt.Printf("artifact:        %s (installed: %t)\n", artifact, installed)

	if c.NoBuild || (!state.UpdateNeeded && installed && !c.Force) {
		return nil
	}
	pipeline := build.NewPipeline(env.cfg.Build, artifact, env.logger)
	res, err := pipeline.Build(ctx, repoPath, nil)
	fmt.Printf("build:           %s\n", res)
	return err
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
