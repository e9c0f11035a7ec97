package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid jerk vector").
			WithSeverity(SeverityFatal).
			WithContext("field", "sjerk").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		field, exists := err.Context().GetString("field")
		if !exists || field != "sjerk" {
			t.Errorf("expected context field=sjerk, got %v", field)
		}
	})

	t.Run("Classification survives wrapping", func(t *testing.T) {
		base := BuildError("toolchain exited 2").Build()
		wrapped := fmt.Errorf("cycle: %w", base)

		if !IsClassified(wrapped) {
			t.Fatal("expected wrapped error to be classified")
		}
		if !HasCategory(wrapped, CategoryBuild) {
			t.Error("expected build category through wrap")
		}
		if GetCategory(fmt.Errorf("plain")) != CategoryInternal {
			t.Error("expected unclassified errors to report internal")
		}
	})

	t.Run("WithContext does not mutate original", func(t *testing.T) {
		orig := ProcessError("spawn failed").WithContext("path", "/a").Build()
		derived := orig.WithContext("pid", 42)

		if _, ok := orig.Context().Get("pid"); ok {
			t.Error("expected original context to be untouched")
		}
		if v, _ := derived.Context().Get("pid"); v != 42 {
			t.Errorf("expected pid=42 on derived error, got %v", v)
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Wrap keeps cause", func(t *testing.T) {
		cause := stderrors.New("connection reset")
		err := WrapError(cause, CategoryNetwork, "fetch failed").Retryable().Build()

		if !stderrors.Is(err, cause) {
			t.Error("expected error to wrap cause")
		}
		if !err.CanRetry() {
			t.Error("expected backoff error to allow retry")
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name     string
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
			retry    RetryStrategy
		}{
			{"ConfigError", ConfigError("test"), CategoryConfig, SeverityFatal, RetryUserAction},
			{"ValidationError", ValidationError("test"), CategoryValidation, SeverityFatal, RetryNever},
			{"RepoError", RepoError("test"), CategoryRepo, SeverityError, RetryNever},
			{"NetworkError", NetworkError("test"), CategoryNetwork, SeverityError, RetryBackoff},
			{"BuildError", BuildError("test"), CategoryBuild, SeverityFatal, RetryUserAction},
			{"ProcessError", ProcessError("test"), CategoryProcess, SeverityError, RetryUserAction},
			{"TimeoutError", TimeoutError("test"), CategoryTimeout, SeverityWarning, RetryImmediate},
			{"InternalError", InternalError("test"), CategoryInternal, SeverityFatal, RetryNever},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.builder.Build()
				if err.Category() != tt.category {
					t.Errorf("expected category %s, got %s", tt.category, err.Category())
				}
				if err.Severity() != tt.severity {
					t.Errorf("expected severity %s, got %s", tt.severity, err.Severity())
				}
				if err.RetryStrategy() != tt.retry {
					t.Errorf("expected retry strategy %s, got %s", tt.retry, err.RetryStrategy())
				}
			})
		}
	})
}

func TestCLIErrorAdapterExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	cases := map[error]int{
		nil:                                 0,
		stderrors.New("x"):                  1,
		ConfigError("bad").Build():          7,
		RepoError("clone").Build():          8,
		BuildError("exit 1").Build():        11,
		ProcessError("exited").Build():      12,
		ValidationError("data_dir").Build(): 2,
	}
	for err, want := range cases {
		if got := a.ExitCodeFor(err); got != want {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestCLIErrorAdapterFormat(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	err := ConfigError("malformed number").WithContext("field", "tickrate").Build()
	if got := a.FormatError(err); got != "Error: malformed number (tickrate)" {
		t.Errorf("unexpected format %q", got)
	}
}

func TestCLIErrorAdapterRetryHint(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	if got := a.FormatError(NetworkError("fetch failed").Build()); got != "Error: fetch failed [network unavailable, try again]" {
		t.Errorf("unexpected format %q", got)
	}
	if got := a.FormatError(TimeoutError("read").Build()); got != "Error: read [temporary failure, try again]" {
		t.Errorf("unexpected format %q", got)
	}
	if got := a.FormatError(BuildError("exit 2").Build()); got != "Error: exit 2" {
		t.Errorf("unexpected format %q", got)
	}
}

func TestCLIErrorAdapterLogLevelAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	a := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&buf, nil)))

	a.Log(TimeoutError("read").Build())
	out := buf.String()
	for _, want := range []string{"level=WARN", "category=timeout", "retry=immediate", "fatal=false"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q lacks %q", out, want)
		}
	}

	buf.Reset()
	a.Log(ConfigError("bad").Build())
	out = buf.String()
	for _, want := range []string{"level=ERROR", "retry=user", "fatal=true"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q lacks %q", out, want)
		}
	}

	buf.Reset()
	a.Log(stderrors.New("plain"))
	if !strings.Contains(buf.String(), "retry=never") || strings.Contains(buf.String(), "fatal=") {
		t.Errorf("unexpected log for unclassified error: %q", buf.String())
	}
}

func TestClassifiedWithContextKeepsOriginal(t *testing.T) {
	base := ConfigError("bad jerk").WithContext("field", "sjerk").Build()
	derived := base.WithContext("index", 2)

	if _, ok := base.Context().Get("index"); ok {
		t.Error("WithContext must not mutate the receiver")
	}
	if field, _ := derived.Context().GetString("field"); field != "sjerk" {
		t.Errorf("field = %q, want sjerk", field)
	}
	if idx, _ := derived.Context().Get("index"); idx != 2 {
		t.Errorf("index = %v, want 2", idx)
	}
	merged := ErrorContext{"a": 1, "b": 1}.Merge(ErrorContext{"b": 2})
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("unexpected merge %v", merged)
	}
}
