package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddValidatesSchedule(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(ctx, Job{Name: "bad", Schedule: "every minute", Run: noop}))
	assert.NoError(t, s.Add(ctx, Job{Name: "disabled", Schedule: "", Run: noop}))
	assert.NoError(t, s.Add(ctx, Job{Name: "cleanup", Schedule: "*/5 * * * *", Run: noop}))
	assert.Error(t, s.Add(ctx, Job{Name: "cleanup", Schedule: "@hourly", Run: noop}), "duplicate name")

	_, ok := s.NextRun("disabled")
	assert.False(t, ok)
	_, ok = s.NextRun("cleanup")
	assert.True(t, ok)
}

func TestJobsRunUntilContextDone(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs, failures atomic.Int32
	require.NoError(t, s.Add(ctx, Job{Name: "tick", Schedule: "@every 1s", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(ctx, Job{Name: "failing", Schedule: "@every 1s", Run: func(context.Context) error {
		failures.Add(1)
		return errors.New("boom")
	}}))

	s.Start(ctx)
	assert.True(t, s.IsRunning())

	next, ok := s.NextRun("tick")
	require.True(t, ok)
	assert.False(t, next.IsZero())

	require.Eventually(t, func() bool { return runs.Load() >= 1 && failures.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !s.IsRunning() }, 5*time.Second, 10*time.Millisecond)
}
