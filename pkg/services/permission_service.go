package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/repositories"
)

// roleCacheTTL bounds how stale a cached role's permission grants may be.
// Role edits take effect within this window without a restart.
const roleCacheTTL = 5 * time.Minute

const roleCacheSize = 64

// PermissionService resolves whether the acting identity may perform an
// action on a resource type. Denial is a normal outcome, not an error;
// Authorize turns it into one for callers that want the short form.
type PermissionService interface {
	// Can reports whether the actor in ctx holds the permission. An actor
	// with an unknown or unseeded role simply has no grants.
	Can(ctx context.Context, entity, action string) (bool, error)

	// Authorize is Can with denial mapped to ErrUnauthorized.
	Authorize(ctx context.Context, entity, action string) error
}

type permissionService struct {
	roleRepo repositories.RoleRepository
	cache    *expirable.LRU[string, *models.Role]
	logger   *zap.Logger
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(roleRepo repositories.RoleRepository, logger *zap.Logger) PermissionService {
	return &permissionService{
		roleRepo: roleRepo,
		cache:    expirable.NewLRU[string, *models.Role](roleCacheSize, nil, roleCacheTTL),
		logger:   logger.Named("permission-service"),
	}
}

var _ PermissionService = (*permissionService)(nil)

func (s *permissionService) Can(ctx context.Context, entity, action string) (bool, error) {
	actor, ok := models.GetActor(ctx)
	if !ok || actor.Role == "" {
		return false, nil
	}

	role, err := s.lookupRole(ctx, actor.Role)
	if err != nil {
		return false, err
	}
	if role == nil {
		return false, nil
	}

	return role.HasPermission(models.PermissionResource(entity), action), nil
}

func (s *permissionService) Authorize(ctx context.Context, entity, action string) error {
	allowed, err := s.Can(ctx, entity, action)
	if err != nil {
		return err
	}
	if !allowed {
		actor, _ := models.GetActor(ctx)
		s.logger.Warn("Permission denied",
			zap.String("role", actor.Role),
			zap.String("resource", models.PermissionResource(entity)),
			zap.String("action", action))
		return fmt.Errorf("%s on %s: %w", action, models.PermissionResource(entity), apperrors.ErrUnauthorized)
	}
	return nil
}

// lookupRole returns the named role, serving from the expirable cache when
// possible. A missing role is returned as nil without an error.
func (s *permissionService) lookupRole(ctx context.Context, name string) (*models.Role, error) {
	if role, ok := s.cache.Get(name); ok {
		return role, nil
	}

	role, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve role %q: %w", name, err)
	}

	s.cache.Add(name, role)
	return role, nil
}
