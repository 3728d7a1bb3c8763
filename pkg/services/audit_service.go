package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/repositories"
)

// AuditService writes to and reads from the compliance ledger. It extracts
// the acting identity from context; entries written without an actor are
// recorded as system actions.
type AuditService interface {
	// Record appends one entry to the ledger. A failed append must fail the
	// enclosing operation: an unaudited action is worse than a failed one,
	// so the error wraps ErrPersistenceFailure and is never swallowed.
	Record(ctx context.Context, action, resourceType string, resourceID *uuid.UUID, details map[string]any, severity models.AuditSeverity) error

	// Query returns a page of ledger entries, newest first. The page size is
	// clamped to the configured maximum.
	Query(ctx context.Context, filters models.AuditFilters) (*models.AuditPage, error)
}

type auditService struct {
	repo            repositories.AuditRepository
	defaultPageSize int
	maxPageSize     int
	logger          *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo repositories.AuditRepository, defaultPageSize, maxPageSize int, logger *zap.Logger) AuditService {
	if defaultPageSize <= 0 {
		defaultPageSize = 50
	}
	if maxPageSize <= 0 {
		maxPageSize = 500
	}
	return &auditService{
		repo:            repo,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		logger:          logger.Named("audit-service"),
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Record(ctx context.Context, action, resourceType string, resourceID *uuid.UUID, details map[string]any, severity models.AuditSeverity) error {
	entry := &models.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		Severity:     severity,
	}
	if actor, ok := models.GetActor(ctx); ok {
		actorID := actor.ID
		entry.ActorID = &actorID
		entry.ActorEmail = actor.Email
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append audit entry",
			zap.String("action", action),
			zap.String("resource_type", resourceType),
			zap.Error(err))
		return fmt.Errorf("audit append for %s failed: %w: %w", action, apperrors.ErrPersistenceFailure, err)
	}
	return nil
}

func (s *auditService) Query(ctx context.Context, filters models.AuditFilters) (*models.AuditPage, error) {
	if filters.Limit <= 0 {
		filters.Limit = s.defaultPageSize
	}
	if filters.Limit > s.maxPageSize {
		filters.Limit = s.maxPageSize
	}
	if filters.Severity != "" && !filters.Severity.IsValid() {
		return nil, fmt.Errorf("unknown audit severity %q", filters.Severity)
	}

	page, err := s.repo.Query(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	return page, nil
}
