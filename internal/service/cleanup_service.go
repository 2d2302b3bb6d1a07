package service

import (
	"context"
	"time"

	"ai-slidegen-be/internal/pkg/logger"
	"ai-slidegen-be/internal/repository/contract"
)

type ICleanupService interface {
	Run(ctx context.Context)
	SweepOnce(ctx context.Context) (int64, error)
}

// cleanupService deletes terminal sessions once their retention window has
// passed.
type cleanupService struct {
	repo      contract.SessionRepository
	retention time.Duration
	interval  time.Duration
	logger    logger.ILogger
}

func NewCleanupService(repo contract.SessionRepository, retention time.Duration, log logger.ILogger) ICleanupService {
	return &cleanupService{
		repo:      repo,
		retention: retention,
		interval:  time.Hour,
		logger:    log,
	}
}

func (cs *cleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := cs.SweepOnce(ctx); err != nil {
				cs.logger.Error("CleanupService", "Retention sweep failed", map[string]interface{}{"error": err.Error()})
			}
		case <-ctx.Done():
			return
		}
	}
}

func (cs *cleanupService) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-cs.retention)
	deleted, err := cs.repo.DeleteTerminatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		cs.logger.Info("CleanupService", "Expired sessions removed", map[string]interface{}{"count": deleted})
	}
	return deleted, nil
}
