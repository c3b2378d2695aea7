package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsInvalidSpec(t *testing.T) {
	if _, err := New(Job{Name: "bad", Spec: "not a cron", Run: func(context.Context) {}}); err == nil {
		t.Fatalf("invalid cron spec should fail")
	}
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	var a, b int32
	s, err := New(
		Job{Name: "headlines", Spec: "*/30 * * * *", Run: func(context.Context) { atomic.AddInt32(&a, 1) }},
		Job{Name: "newsletter", Spec: "5 0,12 * * *", Run: func(context.Context) { atomic.AddInt32(&b, 1) }},
	)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.RunOnce()
	if a != 1 || b != 1 {
		t.Fatalf("expected each job once, got %d %d", a, b)
	}
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	started := make(chan struct{})
	job := Job{Name: "slow", Spec: "@every 1h", Run: func(context.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
	}}
	s, err := New(job)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.run(job)
		close(done)
	}()
	<-started
	s.run(job)
	close(release)
	<-done

	if calls != 1 {
		t.Fatalf("overlapping run should be skipped, calls=%d", calls)
	}
}

func TestStartRunsAfterDelay(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, _ := New(Job{Name: "warm", Spec: "@every 1h", Run: func(context.Context) { ran <- struct{}{} }})
	s.StartupDelay = 10 * time.Millisecond
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("job did not run after startup delay")
	}
}
