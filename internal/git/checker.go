package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	appcfg "git.home.luguber.info/inful/stepd-host/internal/config"
	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
	"git.home.luguber.info/inful/stepd-host/internal/retry"
)

// RepositoryState is the outcome of one update check.
type RepositoryState struct {
	LocalRevision  string // HEAD before the fetch ("" for a fresh clone)
	RemoteRevision string // tip of the tracked remote branch
	Branch         string
	FreshCheckout  bool
	UpdateNeeded   bool
}

// Checker performs update checks against a single remote.
type Checker struct {
	Branch string // "" follows the remote default branch
	Auth   *appcfg.AuthConfig
	Retry  retry.Policy
	Logger *slog.Logger
}

// NewChecker builds a Checker from repository configuration.
func NewChecker(cfg appcfg.RepositoryConfig, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		Branch: cfg.Branch,
		Auth:   cfg.Auth,
		Retry:  retry.FromRepository(cfg),
		Logger: logger,
	}
}

// Check brings repoPath in line with remoteURL and reports whether a rebuild is needed.
func (c *Checker) Check(ctx context.Context, repoPath, remoteURL string) (RepositoryState, error) {
	var state RepositoryState
	auth, err := authMethod(c.Auth)
	if err != nil {
		return state, ferrors.AuthError("failed to set up git authentication").WithCause(err).WithContext("url", remoteURL).Build()
	}

	repository, fresh, err := c.openOrClone(ctx, repoPath, remoteURL, auth)
	if err != nil {
		return state, err
	}
	state.FreshCheckout = fresh

	if !fresh {
		if head, herr := repository.Head(); herr == nil {
			state.LocalRevision = head.Hash().String()
		}
		if err := c.fetch(ctx, repository, remoteURL, auth); err != nil {
			return state, err
		}
	}

	branch, err := c.resolveBranch(repository)
	if err != nil {
		return state, ferrors.RepoError("cannot determine tracked branch").WithCause(err).WithContext("url", remoteURL).Build()
	}
	state.Branch = branch

	remoteRef, err := repository.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return state, ferrors.RepoError("remote branch not found").
			WithCause(err).
			WithContext("branch", branch).
			WithContext("url", remoteURL).
			Build()
	}
	state.RemoteRevision = remoteRef.Hash().String()

	if !fresh && state.LocalRevision == state.RemoteRevision {
		c.Logger.Info("Step daemon source is up to date", logfields.Branch(branch), logfields.Revision(state.LocalRevision))
		return state, nil
	}

	if err := resetTo(repository, branch, remoteRef.Hash()); err != nil {
		return state, ferrors.RepoError("failed to reset checkout").
			WithCause(err).
			WithContext("branch", branch).
			WithContext("path", repoPath).
			Build()
	}
	state.UpdateNeeded = true
	c.Logger.Info("Step daemon source updated",
		logfields.Branch(branch),
		logfields.Revision(state.LocalRevision),
		logfields.RemoteRevision(state.RemoteRevision),
		slog.Bool("fresh", fresh))
	return state, nil
}

// HasCheckout reports whether repoPath contains a git working copy.
func HasCheckout(repoPath string) bool {
	_, err := os.Stat(filepath.Join(repoPath, ".git"))
	return err == nil
}

func (c *Checker) openOrClone(ctx context.Context, repoPath, remoteURL string, auth transport.AuthMethod) (*git.Repository, bool, error) {
	if HasCheckout(repoPath) {
		repository, err := git.PlainOpen(repoPath)
		if err != nil {
			return nil, false, ferrors.RepoError("open checkout").WithCause(err).WithContext("path", repoPath).Build()
		}
		return repository, false, nil
	}

	c.Logger.Info("Cloning step daemon source", logfields.URL(remoteURL), logfields.Path(repoPath))
	opts := &git.CloneOptions{URL: remoteURL, Auth: auth, Tags: git.NoTags}
	if c.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(c.Branch)
	}

	var repository *git.Repository
	err := c.Retry.Do(ctx, func() error {
		// A failed clone can leave a partial directory behind.
		if err := os.RemoveAll(repoPath); err != nil {
			return ferrors.FileSystemError("remove stale checkout").WithCause(err).WithContext("path", repoPath).Build()
		}
		r, err := git.PlainCloneContext(ctx, repoPath, false, opts)
		if err != nil {
			return ClassifyGitError(err, "clone", remoteURL)
		}
		repository = r
		return nil
	}, isPermanent, c.logRetry("clone"))
	if err != nil {
		return nil, false, ClassifyGitError(err, "clone", remoteURL)
	}
	return repository, true, nil
}

func (c *Checker) fetch(ctx context.Context, repository *git.Repository, remoteURL string, auth transport.AuthMethod) error {
	opts := &git.FetchOptions{
		RemoteName: "origin",
		RemoteURL:  remoteURL,
		Tags:       git.NoTags,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Auth:       auth,
		Force:      true,
	}
	err := c.Retry.Do(ctx, func() error {
		if err := repository.FetchContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return ClassifyGitError(err, "fetch", remoteURL)
		}
		return nil
	}, isPermanent, c.logRetry("fetch"))
	return ClassifyGitError(err, "fetch", remoteURL)
}

func (c *Checker) logRetry(op string) func(int, error) {
	return func(attempt int, err error) {
		c.Logger.Warn("Retrying git operation", slog.String("operation", op), logfields.Attempt(attempt), logfields.Error(err))
	}
}

// resolveBranch follows: explicit branch, checked out branch, origin/HEAD, then master/main.
func (c *Checker) resolveBranch(repository *git.Repository) (string, error) {
	if c.Branch != "" {
		return c.Branch, nil
	}
	if head, err := repository.Head(); err == nil && head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	if def, err := resolveRemoteDefaultBranch(repository); err == nil && def != "" {
		return def, nil
	}
	for _, candidate := range []string{"master", "main"} {
		if _, err := repository.Reference(plumbing.NewRemoteReferenceName("origin", candidate), true); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no tracked branch found")
}

func resolveRemoteDefaultBranch(repo *git.Repository) (string, error) {
	ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), false)
	if err != nil {
		return "", err
	}
	target := ref.Target()
	if !target.IsRemote() {
		return "", fmt.Errorf("origin/HEAD points at %q", target)
	}
	return strings.TrimPrefix(target.String(), "refs/remotes/origin/"), nil
}

// resetTo points the local branch at hash, checks it out and hard resets the tree.
func resetTo(repository *git.Repository, branch string, hash plumbing.Hash) error {
	local := plumbing.NewBranchReferenceName(branch)
	if err := repository.Storer.SetReference(plumbing.NewHashReference(local, hash)); err != nil {
		return fmt.Errorf("set branch ref: %w", err)
	}
	wt, err := repository.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: local, Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("hard reset: %w", err)
	}
	return nil
}
