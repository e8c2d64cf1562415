// Package readiness waits until the cluster's storage layer accepts
// operations, which is stronger than its containers merely running.
//
// Each attempt walks NodeRunning, AdminResponds, WriteProtected, and
// FileOpsWork in order. A stopped coordinator ends the wait immediately; a
// write-protected coordinator is asked to leave that state and re-probed on
// the next attempt.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"weatherflow/internal/cluster"
	"weatherflow/internal/logging"
	"weatherflow/internal/procexec"
	"weatherflow/internal/retry"
	"weatherflow/internal/services"
)

// ErrNodeDown means the coordinator container is not running.
var ErrNodeDown = errors.New("coordinator node down")

// State is the last observation made by a probe attempt.
type State string

const (
	StateUnknown        State = "unknown"
	StateNodeDown       State = "node-down"
	StateAdminFailing   State = "admin-unresponsive"
	StateWriteProtected State = "write-protected"
	StateFileOpsFailing State = "file-ops-failing"
	StateReady          State = "ready"
)

// Admin is the subset of cluster administration the prober needs.
type Admin interface {
	CoordinatorRunning(ctx context.Context) (bool, error)
	Report(ctx context.Context) (string, error)
	LeaveSafeMode(ctx context.Context) error
	List(ctx context.Context, remote string) (string, error)
	CoordinatorLogs(ctx context.Context, lines int) (string, error)
}

// TimeoutError reports an exhausted readiness budget.
type TimeoutError struct {
	Attempts  int
	LastState State
	LastError error
	Logs      string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("cluster not ready after %d attempts (last state %s)", e.Attempts, e.LastState)
	if e.LastError != nil {
		msg += ": " + e.LastError.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return services.ErrTimeout }

// Prober polls the coordinator until it is ready.
type Prober struct {
	admin     Admin
	logger    *slog.Logger
	sleep     retry.Sleeper
	tailLines int

	attempts  int
	lastState State
}

// Option customises a Prober.
type Option func(*Prober)

// WithSleeper replaces the wait between attempts.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(p *Prober) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithLogTail sets how many coordinator log lines a TimeoutError carries.
func WithLogTail(lines int) Option {
	return func(p *Prober) {
		if lines > 0 {
			p.tailLines = lines
		}
	}
}

// New constructs a Prober.
func New(admin Admin, logger *slog.Logger, opts ...Option) *Prober {
	p := &Prober{
		admin:     admin,
		logger:    logging.NewComponentLogger(logger, "readiness"),
		sleep:     retry.Sleep,
		tailLines: 50,
		lastState: StateUnknown,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attempts returns how many probe attempts the last wait consumed.
func (p *Prober) Attempts() int { return p.attempts }

// LastState returns the state observed by the most recent attempt.
func (p *Prober) LastState() State { return p.lastState }

// WaitUntilReady probes up to maxAttempts times with a fixed interval.
func (p *Prober) WaitUntilReady(ctx context.Context, maxAttempts int, interval time.Duration) error {
	p.attempts = 0
	p.lastState = StateUnknown
	logger := logging.WithContext(ctx, p.logger)

	policy := retry.Policy{MaxAttempts: maxAttempts, Delay: interval}
	attempts, err := retry.DoWith(ctx, policy, retry.Options{
		Sleep: p.sleep,
		OnRetry: func(attempt int, err error) {
			logger.Info("cluster not ready yet",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Int("max_attempts", maxAttempts),
				logging.String("state", string(p.lastState)),
				logging.Error(err),
			)
		},
	}, func(ctx context.Context, _ int) error {
		return p.probe(ctx)
	})
	p.attempts = attempts

	switch {
	case err == nil:
		logger.Info("cluster ready",
			logging.Int("attempts", attempts),
			logging.String(logging.FieldEventType, "cluster_ready"),
		)
		return nil
	case errors.Is(err, ErrNodeDown):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}

	recent, logErr := p.admin.CoordinatorLogs(ctx, p.tailLines)
	if logErr != nil {
		recent = fmt.Sprintf("coordinator logs unavailable: %v", logErr)
	}
	return &TimeoutError{Attempts: attempts, LastState: p.lastState, LastError: err, Logs: recent}
}

func (p *Prober) probe(ctx context.Context) error {
	running, err := p.admin.CoordinatorRunning(ctx)
	if err != nil {
		var exitErr *procexec.ExitError
		if errors.As(err, &exitErr) {
			// inspect exits non-zero when the container does not exist
			p.lastState = StateNodeDown
			return retry.Permanent(fmt.Errorf("%w: %w", ErrNodeDown, err))
		}
		p.lastState = StateUnknown
		return err
	}
	if !running {
		p.lastState = StateNodeDown
		return retry.Permanent(ErrNodeDown)
	}

	report, err := p.admin.Report(ctx)
	if err != nil {
		p.lastState = StateAdminFailing
		return services.Wrap(services.ErrTransient, "readiness", "report", "admin interface not responding", err)
	}
	if cluster.IsWriteProtected(report) {
		p.lastState = StateWriteProtected
		if leaveErr := p.admin.LeaveSafeMode(ctx); leaveErr != nil {
			logging.WithContext(ctx, p.logger).Debug("leave write-protected request failed", logging.Error(leaveErr))
		}
		return services.Wrap(services.ErrTransient, "readiness", "report", "storage layer write-protected", nil)
	}

	if _, err := p.admin.List(ctx, "/"); err != nil {
		p.lastState = StateFileOpsFailing
		return services.Wrap(services.ErrTransient, "readiness", "list", "file operations failing", err)
	}
	p.lastState = StateReady
	return nil
}
