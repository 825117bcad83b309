package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/posworks/posgrid-backend/pkg/logger"
)

type sessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type SessionSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper sessionSweeper
}

// NewSessionSweepJob builds the job that evicts expired and deactivated
// session records from the registry's store.
func NewSessionSweepJob(params SessionSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("session sweeper required")
	}
	return &sessionSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		now:     time.Now,
	}, nil
}

type sessionSweepJob struct {
	logg    *logger.Logger
	sweeper sessionSweeper
	now     func() time.Time
}

func (j *sessionSweepJob) Name() string { return "session-sweep" }

func (j *sessionSweepJob) Run(ctx context.Context) error {
	swept, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("session sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sessions_removed": swept,
	})
	j.logg.Info(logCtx, "session sweep complete")
	return nil
}
