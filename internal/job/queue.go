package job

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// State is the lifecycle position of a queued job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Record is a job together with its queue bookkeeping.
type Record struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Job       Job       `json:"-"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress receives completion updates, as a percentage, from a running job.
type Progress interface {
	SetProgress(percent int)
}

// ProcessFunc runs one job. A returned error makes the queue retry the job
// until its attempts are exhausted.
type ProcessFunc func(ctx context.Context, rec *Record, progress Progress) error

// Queue is a durable at-least-once job queue processed by a single worker.
type Queue interface {
	// Add enqueues j and returns its waiting record.
	Add(ctx context.Context, j Job) (*Record, error)
	// Get returns the record of a job. Unknown ids yield a not-found error.
	Get(ctx context.Context, id string) (*Record, error)
	// Start processes jobs one at a time until ctx is cancelled or Close is
	// called.
	Start(ctx context.Context, fn ProcessFunc) error
	Close() error
}

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("job queue closed")

// Options tune retry behaviour shared by the queue implementations.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// Retention is how long finished records stay readable.
	Retention time.Duration
	// PollTimeout bounds how long an idle Redis worker blocks for new work.
	PollTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultOptions returns the queue defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Backoff:     time.Second,
		MaxBackoff:  time.Minute,
		Retention:   24 * time.Hour,
		PollTimeout: 5 * time.Second,
		Logger:      slog.Default(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts < 1 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = d.Backoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.Retention <= 0 {
		o.Retention = d.Retention
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = d.PollTimeout
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}

// backoff doubles the base delay per failed attempt, capped at MaxBackoff.
func (o Options) backoff(attempts int) time.Duration {
	d := o.Backoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= o.MaxBackoff {
			return o.MaxBackoff
		}
	}
	return d
}

type progressFunc func(int)

func (f progressFunc) SetProgress(percent int) { f(min(max(percent, 0), 100)) }
