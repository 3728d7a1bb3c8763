package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
)

// PermissionWildcard grants every action on a resource type.
const PermissionWildcard = "*"

// Well-known role names. The admin role's full access is expressed as seeded
// permission data, not code.
const (
	RoleAdmin           = "admin"
	RolePathologist     = "pathologist"
	RoleCytotechnologist = "cytotechnologist"
	RolePhysician       = "physician"
)

// Role is a named bundle of resource-type → allowed-action permissions.
// Roles are read-mostly reference data loaded from configuration at startup.
type Role struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Permissions map[string][]string `json:"permissions"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// HasPermission checks whether the role grants the action on the resource
// type, either explicitly or via the wildcard.
func (r *Role) HasPermission(resourceType, action string) bool {
	actions, ok := r.Permissions[resourceType]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action || a == PermissionWildcard {
			return true
		}
	}
	return false
}

// PermissionResource maps an entity name to the plural resource-type key used
// in role permission maps (annotation → annotations, case → cases).
func PermissionResource(entity string) string {
	return inflection.Plural(entity)
}
