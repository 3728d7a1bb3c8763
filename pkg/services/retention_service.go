package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/database"
	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/repositories"
	"github.com/cervixai/screening-engine/pkg/retry"
)

// DefaultRetentionDays keeps roughly seven years of audit history, matching
// common clinical record-keeping requirements.
const DefaultRetentionDays = 2555

// RetentionService enforces the audit retention window. A purge never happens
// silently: the deletion and its marker entry commit in the same transaction,
// so the ledger always records what was removed and why.
type RetentionService interface {
	// SweepOnce purges entries older than the retention window and returns
	// the number removed. A purge of zero rows writes no marker.
	SweepOnce(ctx context.Context) (int64, error)

	// RunScheduler sweeps immediately, then on every interval tick until the
	// context is cancelled.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type retentionService struct {
	tx            database.TxRunner
	auditRepo     repositories.AuditRepository
	retentionDays int
	logger        *zap.Logger
}

// NewRetentionService creates a new RetentionService.
func NewRetentionService(tx database.TxRunner, auditRepo repositories.AuditRepository, retentionDays int, logger *zap.Logger) RetentionService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &retentionService{
		tx:            tx,
		auditRepo:     auditRepo,
		retentionDays: retentionDays,
		logger:        logger.Named("retention-service"),
	}
}

var _ RetentionService = (*retentionService)(nil)

func (s *retentionService) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	var purged int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		purged, err = s.auditRepo.PurgeOlderThan(txCtx, cutoff)
		if err != nil {
			return err
		}
		if purged == 0 {
			return nil
		}
		marker := &models.AuditEntry{
			Action:       models.ActionRetentionPurge,
			ResourceType: "audit_entry",
			Details: map[string]any{
				"purged_count":   purged,
				"cutoff":         cutoff.Format(time.RFC3339),
				"retention_days": s.retentionDays,
			},
			Severity: models.SeverityWarning,
		}
		if err := s.auditRepo.Append(txCtx, marker); err != nil {
			return fmt.Errorf("failed to record purge marker: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("retention sweep failed: %w", err)
	}

	if purged > 0 {
		s.logger.Info("Retention sweep completed",
			zap.Int64("purged", purged),
			zap.Time("cutoff", cutoff),
			zap.Int("retention_days", s.retentionDays))
	}
	return purged, nil
}

func (s *retentionService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Retention scheduler started",
			zap.Duration("interval", interval),
			zap.Int("retention_days", s.retentionDays))

		s.sweepWithRetry(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Retention scheduler stopped")
				return
			case <-ticker.C:
				s.sweepWithRetry(ctx)
			}
		}
	}()
}

// sweepWithRetry runs one sweep, retrying transient failures with backoff. A
// sweep that still fails waits for the next tick.
func (s *retentionService) sweepWithRetry(ctx context.Context) {
	err := retry.DoIfRetryable(ctx, nil, func() error {
		_, err := s.SweepOnce(ctx)
		return err
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Error("Retention sweep failed", zap.Error(err))
	}
}
