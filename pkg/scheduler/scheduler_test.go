package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestAddJob(t *testing.T) {
	s := New(time.Second)
	noop := func(ctx context.Context) error { return nil }

	assert.Equal(t, nil, s.AddJob("cleanup", "0 3 * * *", noop))
	assert.NotEqual(t, nil, s.AddJob("cleanup", "0 4 * * *", noop))
	assert.NotEqual(t, nil, s.AddJob("bad", "not a schedule", noop))

	jobs := s.ListJobs()
	assert.Equal(t, 1, len(jobs))
	assert.Equal(t, "cleanup", jobs[0].Name)

	s.RemoveJob("cleanup")
	assert.Equal(t, 0, len(s.ListJobs()))
}

func TestRunNow(t *testing.T) {
	s := New(20 * time.Millisecond)

	err := s.RunNow("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, true, errors.Is(err, context.DeadlineExceeded))

	ran := false
	err = s.RunNow("quick", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, true, ran)
}
