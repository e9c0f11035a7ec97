package git

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
)

// ClassifyGitError translates go-git failures into ClassifiedErrors. Network failures
// are retryable; authentication and missing repositories are not.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := ferrors.AsClassified(err); ok {
		return err
	}

	builder := ferrors.RepoError("git "+op+" failed").
		WithCause(err).
		WithContext("op", op).
		WithContext("url", url)

	l := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		builder.WithCategory(ferrors.CategoryTimeout)
	case errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) ||
		strings.Contains(l, "authentication") || strings.Contains(l, "not authorized") || strings.Contains(l, "invalid credentials"):
		builder.WithCategory(ferrors.CategoryAuth).UserAction()
	case errors.Is(err, transport.ErrRepositoryNotFound) || strings.Contains(l, "repository not found") || strings.Contains(l, "does not exist"):
		builder.UserAction()
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		builder.WithCategory(ferrors.CategoryConfig).UserAction()
	case strings.Contains(l, "remote hung up") || strings.Contains(l, "connection reset") || strings.Contains(l, "connection refused") ||
		strings.Contains(l, "timeout") || strings.Contains(l, "no route to host") || strings.Contains(l, "no such host") ||
		strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		builder.WithCategory(ferrors.CategoryNetwork).Retryable()
	default:
		builder.Retryable()
	}
	return builder.Build()
}

func isPermanent(err error) bool {
	switch ferrors.GetRetryStrategy(err) {
	case ferrors.RetryBackoff, ferrors.RetryImmediate:
		return false
	default:
		return true
	}
}
