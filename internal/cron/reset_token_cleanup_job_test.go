package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/posworks/posgrid-backend/pkg/logger"
)

type fakePurger struct {
	purged int64
	err    error
	called int
}

func (f *fakePurger) Purge(ctx context.Context) (int64, error) {
	f.called++
	if f.err != nil {
		return 0, f.err
	}
	return f.purged, nil
}

func TestResetTokenCleanupJobRunsPurger(t *testing.T) {
	purger := &fakePurger{purged: 9}
	job, err := NewResetTokenCleanupJob(ResetTokenCleanupJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Purger: purger,
	})
	if err != nil {
		t.Fatalf("NewResetTokenCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purger.called != 1 {
		t.Fatalf("purger called %d times, want 1", purger.called)
	}
}

func TestResetTokenCleanupJobPropagatesError(t *testing.T) {
	job, err := NewResetTokenCleanupJob(ResetTokenCleanupJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Purger: &fakePurger{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("NewResetTokenCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
