// Package errors provides the classified error taxonomy shared by the supervisor
// and its collaborators.
//
// Every failure that crosses a component boundary is a *ClassifiedError carrying a
// category (config, repo, build, process, timeout, ...), a severity and a retry
// strategy. Callers route on the category instead of parsing messages:
//
//	err := errors.ConfigError("invalid jerk vector").
//		WithContext("field", "sjerk").
//		WithCause(parseErr).
//		Build()
//
//	if errors.HasCategory(err, errors.CategoryConfig) { ... }
package errors
