package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/posworks/posgrid-backend/pkg/logger"
)

type recordingLock struct {
	held     bool
	acquires int
	releases int
}

func (l *recordingLock) Acquire(context.Context) (bool, error) {
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *recordingLock) Release(context.Context) error {
	l.releases++
	l.held = false
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func quietCronLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   quietCronLogger(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunCycleContinuesPastFailingJob(t *testing.T) {
	sweep := &countingJob{name: "session-sweep"}
	retention := &countingJob{name: "outbox-retention", err: errors.New("boom")}
	lock := &recordingLock{}
	service := newTestService(t, lock, sweep, retention)

	err := service.runCycle(context.Background())
	if err == nil {
		t.Fatal("expected the failing job's error to surface")
	}
	if !strings.Contains(err.Error(), "outbox-retention: boom") {
		t.Fatalf("expected job name in error, got %v", err)
	}
	if sweep.runs != 1 || retention.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", sweep.runs, retention.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected the lock released after the cycle, got %d releases", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &countingJob{name: "session-sweep"}
	service := newTestService(t, &recordingLock{held: true}, job)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("expected a held lock to skip quietly, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no job runs while the lock is held, got %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: quietCronLogger()})
	if err == nil {
		t.Fatal("expected an error when no lock is supplied")
	}
}
