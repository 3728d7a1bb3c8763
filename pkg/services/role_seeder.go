package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/config"
	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/repositories"
)

// SeedRoles upserts the role definitions loaded from configuration. Run at
// startup so permission grants, including admin's wildcard, exist as ordinary
// data before the first request.
func SeedRoles(ctx context.Context, repo repositories.RoleRepository, defs []config.RoleDefinition, logger *zap.Logger) error {
	for _, def := range defs {
		role := &models.Role{
			Name:        def.Name,
			Description: def.Description,
			Permissions: def.Permissions,
		}
		if err := repo.Upsert(ctx, role); err != nil {
			return fmt.Errorf("failed to seed role %q: %w", def.Name, err)
		}
	}
	logger.Info("Roles seeded", zap.Int("count", len(defs)))
	return nil
}
