package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/database"
	"github.com/cervixai/screening-engine/pkg/models"
)

// RoleRepository provides data access for roles and their permission grants.
type RoleRepository interface {
	// Upsert creates the role or, if a role with the same name exists,
	// replaces its description and permissions. Used by startup seeding.
	Upsert(ctx context.Context, role *models.Role) error

	GetByName(ctx context.Context, name string) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)
}

type roleRepository struct {
	db *database.DB
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(db *database.DB) RoleRepository {
	return &roleRepository{db: db}
}

var _ RoleRepository = (*roleRepository)(nil)

func (r *roleRepository) Upsert(ctx context.Context, role *models.Role) error {
	q := database.QuerierFrom(ctx, r.db)

	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	now := time.Now().UTC()

	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO roles (id, name, description, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
			permissions = EXCLUDED.permissions,
			updated_at = EXCLUDED.updated_at`,
		role.ID, role.Name, role.Description, perms, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert role: %w", err)
	}
	return nil
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	q := database.QuerierFrom(ctx, r.db)

	row := q.QueryRow(ctx, `
		SELECT id, name, description, permissions, created_at, updated_at
		FROM roles WHERE name = $1`, name)

	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Entity: "role", ID: name}
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (r *roleRepository) List(ctx context.Context) ([]*models.Role, error) {
	q := database.QuerierFrom(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, name, description, permissions, created_at, updated_at
		FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}

func scanRole(row pgx.Row) (*models.Role, error) {
	var role models.Role
	var perms []byte
	err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(perms, &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return &role, nil
}
