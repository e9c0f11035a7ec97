package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is how an update cycle ended.
type Outcome string

const (
	OutcomePending   Outcome = ""
	OutcomeRunning   Outcome = "running"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Cycle is the handle of one requested update cycle. Ready is closed when the cycle's
// daemon reaches Running; Done is closed once the outcome is decided.
type Cycle struct {
	ID          string
	RequestedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	outcome Outcome
	err     error
}

func newCycle() *Cycle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cycle{
		ID:          uuid.NewString(),
		RequestedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Ready is closed when the daemon launched by this cycle is running.
func (c *Cycle) Ready() <-chan struct{} { return c.ready }

// Done is closed when the cycle has an outcome.
func (c *Cycle) Done() <-chan struct{} { return c.done }

// Outcome returns the cycle's outcome, OutcomePending while it is in flight.
func (c *Cycle) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Err is the failure that ended the cycle, if any.
func (c *Cycle) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Wait blocks until the cycle has an outcome or ctx is done.
func (c *Cycle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.Outcome(), c.Err()
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

func (c *Cycle) abandoned() bool { return c.ctx.Err() != nil }

// finish records the outcome once. Only a running cycle keeps its context alive; it is
// cancelled when the cycle is superseded or the supervisor closes.
func (c *Cycle) finish(o Outcome, err error) bool {
	first := false
	c.once.Do(func() {
		first = true
		c.mu.Lock()
		c.outcome = o
		c.err = err
		c.mu.Unlock()
		if o == OutcomeRunning {
			close(c.ready)
		} else {
			c.cancel()
		}
		close(c.done)
	})
	return first
}
