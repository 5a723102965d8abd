package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	if err := s.AddJob("noop", "* * * * *", func(context.Context) error { return nil }); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("hourly", "@hourly", func(context.Context) error { return nil }); err != nil {
		t.Errorf("Expected descriptor to be accepted, got %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 jobs, got %d", s.Len())
	}
}

func TestSchedulerRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	if err := s.AddJob("bad", "not a cron", func(context.Context) error { return nil }); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	var runs atomic.Int32
	done := make(chan struct{}, 1)
	err := s.AddJob("tick", "@every 1s", func(context.Context) error {
		if runs.Add(1) == 1 {
			done <- struct{}{}
		}
		return errors.New("failures are logged, not fatal")
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestSchedulerStopHonorsDeadline(t *testing.T) {
	s := NewScheduler()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	err := s.AddJob("stuck", "@every 1s", func(context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	begin := time.Now()
	s.Stop(ctx)
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Stop waited %v for a stuck job", elapsed)
	}
}
