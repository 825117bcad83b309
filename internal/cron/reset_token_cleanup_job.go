package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/posworks/posgrid-backend/pkg/logger"
)

type resetTokenPurger interface {
	Purge(ctx context.Context) (int64, error)
}

type ResetTokenCleanupJobParams struct {
	Logger *logger.Logger
	Purger resetTokenPurger
}

// NewResetTokenCleanupJob builds the job that deletes used and expired
// password reset tokens.
func NewResetTokenCleanupJob(params ResetTokenCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purger == nil {
		return nil, fmt.Errorf("reset token purger required")
	}
	return &resetTokenCleanupJob{
		logg:   params.Logger,
		purger: params.Purger,
		now:    time.Now,
	}, nil
}

type resetTokenCleanupJob struct {
	logg   *logger.Logger
	purger resetTokenPurger
	now    func() time.Time
}

func (j *resetTokenCleanupJob) Name() string { return "reset-token-cleanup" }

func (j *resetTokenCleanupJob) Run(ctx context.Context) error {
	purged, err := j.purger.Purge(ctx)
	if err != nil {
		return fmt.Errorf("reset token cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"rows_deleted": purged,
	})
	j.logg.Info(logCtx, "reset token cleanup complete")
	return nil
}
