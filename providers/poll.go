package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediastudio/metrics"
)

// Poller re-fetches job status at a fixed interval for a fixed number of attempts.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
}

// withDefaults fills zero fields from def.
func (p Poller) withDefaults(def Poller) Poller {
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// JobStatus is one observation of an asynchronous job.
type JobStatus struct {
	Done    bool
	Percent int
	Message string
}

// pollCheck fetches the job once. Returning a *JobFailedError or an error
// wrapped by stopPolling ends polling; any other error is treated as transient.
type pollCheck func(ctx context.Context, attempt int) (JobStatus, error)

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

func stopPolling(err error) error {
	return &stopError{err: err}
}

// Run polls until check reports Done, a permanent error, ctx ends, or the
// attempts run out.
func (p Poller) Run(ctx context.Context, provider, jobID string, progress ProgressFunc, check pollCheck) error {
	log := zap.S()
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := sleepContext(ctx, p.Interval); err != nil {
			return err
		}
		metrics.PollAttempts.WithLabelValues(provider).Inc()

		status, err := check(ctx, attempt)
		if err != nil {
			var failed *JobFailedError
			var stop *stopError
			switch {
			case errors.As(err, &failed):
				return err
			case errors.As(err, &stop):
				return stop.err
			case ctx.Err() != nil:
				return ctx.Err()
			}
			log.Warnf("%s: poll attempt %d/%d for job %s failed: %v", provider, attempt, p.MaxAttempts, jobID, err)
			continue
		}
		if status.Done {
			return nil
		}
		progress.report(StagePolling, status.Percent, status.Message)
	}
	return fmt.Errorf("%s: job %s: %w after %d attempts", provider, jobID, ErrPollTimeout, p.MaxAttempts)
}

// estimatePercent gives a monotonic progress guess when the provider reports none.
func estimatePercent(attempt, maxAttempts int) int {
	if maxAttempts <= 0 {
		return 10
	}
	pct := 10 + attempt*85/maxAttempts
	if pct > 95 {
		pct = 95
	}
	return pct
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
