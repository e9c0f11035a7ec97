// Package eventstore records supervisor lifecycle events in SQLite.
package eventstore

import (
	"context"
	"errors"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	CycleRequested Type = "cycle.requested"
	CycleAbandoned Type = "cycle.abandoned"
	StateChanged   Type = "state.changed"
	UpdateChecked  Type = "update.checked"
	BuildFinished  Type = "build.finished"
	ProcessStarted Type = "process.started"
	ProcessExited  Type = "process.exited"
)

// Event is one lifecycle event of the supervisor.
type Event struct {
	ID        int64     `json:"id,omitempty"`
	CycleID   string    `json:"cycle_id"`
	Type      Type      `json:"type"`
	State     string    `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
	Revision  string    `json:"revision,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives lifecycle events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
