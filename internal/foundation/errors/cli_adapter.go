package errors

import (
	"context"
	"fmt"
	"log/slog"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor determines the process exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	classified, ok := AsClassified(err)
	if !ok {
		return 1
	}
	switch classified.Category() {
	case CategoryValidation:
		return 2
	case CategoryAuth:
		return 5
	case CategoryConfig:
		return 7
	case CategoryRepo, CategoryNetwork:
		return 8
	case CategoryInternal:
		return 10
	case CategoryBuild, CategoryFileSystem:
		return 11
	case CategoryProcess, CategoryTimeout:
		return 12
	default:
		return 1
	}
}

// FormatError formats an error for display on stderr.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	classified, ok := AsClassified(err)
	if !ok || a.verbose {
		return fmt.Sprintf("Error: %v", err)
	}
	msg := "Error: " + classified.Message()
	if field, ok := classified.Context().GetString("field"); ok {
		msg = fmt.Sprintf("Error: %s (%s)", classified.Message(), field)
	}
	if classified.CanRetry() {
		hint := "temporary failure, try again"
		if classified.IsCategory(CategoryNetwork) {
			hint = "network unavailable, try again"
		}
		msg += " [" + hint + "]"
	}
	return msg
}

// Log records the error at a level derived from its severity.
func (a *CLIErrorAdapter) Log(err error) {
	if err == nil {
		return
	}
	level := slog.LevelError
	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("category", string(GetCategory(err))),
		slog.String("retry", string(GetRetryStrategy(err))),
	}
	if classified, ok := AsClassified(err); ok {
		if classified.Severity() == SeverityWarning {
			level = slog.LevelWarn
		}
		attrs = append(attrs, slog.Bool("fatal", classified.IsFatal()))
	}
	a.logger.Log(context.Background(), level, "command failed", attrs...)
}
