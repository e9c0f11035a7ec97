// Package metrics provides the supervisor's metrics hooks.
//
// Components receive a Recorder through dependency injection. NoopRecorder is the
// default so callers never nil-check; PrometheusRecorder backs the optional
// /metrics endpoint of the CLI.
//
// Exported series (namespace "stepd"):
//
//	stepd_supervisor_state{state}          1 for the current state, 0 otherwise
//	stepd_build_duration_seconds           toolchain run time
//	stepd_build_outcomes_total{outcome}    built_ok | build_failed
//	stepd_update_checks_total{result}      up_to_date | update_needed | fallback | failed
//	stepd_process_exits_total{reason}      requested | crashed
package metrics
