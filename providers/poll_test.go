package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPoller = Poller{Interval: time.Millisecond, MaxAttempts: 5}

func TestPollerSucceeds(t *testing.T) {
	var seen []Progress
	calls := 0
	err := fastPoller.Run(context.Background(), "test", "job-1", func(p Progress) { seen = append(seen, p) },
		func(ctx context.Context, attempt int) (JobStatus, error) {
			calls++
			if attempt == 3 {
				return JobStatus{Done: true}, nil
			}
			return JobStatus{Percent: attempt * 20}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, seen, 2)
	assert.Equal(t, StagePolling, seen[0].Stage)
	assert.Equal(t, 40, seen[1].Percent)
}

func TestPollerTimesOut(t *testing.T) {
	calls := 0
	err := fastPoller.Run(context.Background(), "test", "job-2", nil,
		func(ctx context.Context, attempt int) (JobStatus, error) {
			calls++
			return JobStatus{Percent: 10}, nil
		})
	require.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, fastPoller.MaxAttempts, calls)
	assert.Contains(t, err.Error(), "after 5 attempts")
}

func TestPollerContinuesOnTransientErrors(t *testing.T) {
	err := fastPoller.Run(context.Background(), "test", "job-3", nil,
		func(ctx context.Context, attempt int) (JobStatus, error) {
			if attempt < 3 {
				return JobStatus{}, errors.New("status 502: bad gateway")
			}
			return JobStatus{Done: true}, nil
		})
	require.NoError(t, err)
}

func TestPollerStopsOnJobFailure(t *testing.T) {
	calls := 0
	err := fastPoller.Run(context.Background(), "test", "job-4", nil,
		func(ctx context.Context, attempt int) (JobStatus, error) {
			calls++
			return JobStatus{}, &JobFailedError{Provider: "test", JobID: "job-4", Reason: "nsfw"}
		})
	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "nsfw", failed.Reason)
	assert.Equal(t, 1, calls)
}

func TestPollerStopsOnPermanentError(t *testing.T) {
	sentinel := errors.New("decode failed")
	err := fastPoller.Run(context.Background(), "test", "job-5", nil,
		func(ctx context.Context, attempt int) (JobStatus, error) {
			return JobStatus{}, stopPolling(sentinel)
		})
	assert.ErrorIs(t, err, sentinel)
}

func TestPollerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Poller{Interval: time.Hour, MaxAttempts: 3}
	err := p.Run(ctx, "test", "job-6", nil, func(ctx context.Context, attempt int) (JobStatus, error) {
		t.Fatal("check must not run after cancellation")
		return JobStatus{}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimatePercentIsCapped(t *testing.T) {
	assert.Equal(t, 10, estimatePercent(0, 90))
	assert.LessOrEqual(t, estimatePercent(90, 90), 95)
	assert.Less(t, estimatePercent(10, 90), estimatePercent(20, 90))
}
