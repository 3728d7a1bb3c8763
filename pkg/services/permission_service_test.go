package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/models"
)

func seedTestRoles(t *testing.T, repo *mockRoleRepo) {
	t.Helper()
	roles := []*models.Role{
		{
			Name: models.RoleAdmin,
			Permissions: map[string][]string{
				"cases":         {"*"},
				"samples":       {"*"},
				"ai_results":    {"*"},
				"annotations":   {"*"},
				"patients":      {"*"},
				"audit_entries": {"*"},
			},
		},
		{
			Name: models.RolePathologist,
			Permissions: map[string][]string{
				"annotations": {"create", "read", "update", "sign_off"},
				"cases":       {"read"},
			},
		},
		{
			Name: models.RoleCytotechnologist,
			Permissions: map[string][]string{
				"annotations": {"create", "read", "update"},
				"cases":       {"read"},
			},
		},
	}
	for _, r := range roles {
		if err := repo.Upsert(context.Background(), r); err != nil {
			t.Fatalf("failed to seed role: %v", err)
		}
	}
}

func actorCtx(role string) context.Context {
	return models.WithActor(context.Background(), models.Actor{
		ID:    uuid.New(),
		Email: "clinician@clinic.test",
		Role:  role,
	})
}

func TestPermissionServiceResolution(t *testing.T) {
	repo := newMockRoleRepo()
	seedTestRoles(t, repo)
	svc := NewPermissionService(repo, zap.NewNop())

	tests := []struct {
		name    string
		role    string
		entity  string
		action  string
		allowed bool
	}{
		{"admin wildcard", models.RoleAdmin, "case", "cancel", true},
		{"admin wildcard on annotations", models.RoleAdmin, "annotation", "sign_off", true},
		{"pathologist can sign off", models.RolePathologist, "annotation", "sign_off", true},
		{"pathologist cannot cancel cases", models.RolePathologist, "case", "cancel", false},
		{"cytotech cannot sign off", models.RoleCytotechnologist, "annotation", "sign_off", false},
		{"cytotech can create annotations", models.RoleCytotechnologist, "annotation", "create", true},
		{"unknown role denied", "janitor", "case", "read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := svc.Can(actorCtx(tt.role), tt.entity, tt.action)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if allowed != tt.allowed {
				t.Errorf("Can(%s, %s, %s) = %v, want %v", tt.role, tt.entity, tt.action, allowed, tt.allowed)
			}
		})
	}
}

func TestPermissionServiceNoActorDenied(t *testing.T) {
	repo := newMockRoleRepo()
	seedTestRoles(t, repo)
	svc := NewPermissionService(repo, zap.NewNop())

	allowed, err := svc.Can(context.Background(), "case", "read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("request without an actor must be denied")
	}
}

func TestPermissionServiceAuthorizeMapsDenialToUnauthorized(t *testing.T) {
	repo := newMockRoleRepo()
	seedTestRoles(t, repo)
	svc := NewPermissionService(repo, zap.NewNop())

	if err := svc.Authorize(actorCtx(models.RolePathologist), "annotation", "sign_off"); err != nil {
		t.Errorf("expected grant, got %v", err)
	}

	err := svc.Authorize(actorCtx(models.RoleCytotechnologist), "annotation", "sign_off")
	if !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPermissionServicePluralizesEntity(t *testing.T) {
	repo := newMockRoleRepo()
	seedTestRoles(t, repo)
	svc := NewPermissionService(repo, zap.NewNop())

	// Grants are keyed by plural resource type; callers pass singular entity
	// names.
	allowed, err := svc.Can(actorCtx(models.RolePathologist), "case", "read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("singular entity name should resolve against plural grant key")
	}
}
