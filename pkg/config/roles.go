package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleDefinition is one role entry in roles.yaml. The admin role's wildcard
// access is expressed here as ordinary data so permission changes stay
// auditable like any other configuration change.
type RoleDefinition struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Permissions map[string][]string `yaml:"permissions"`
}

// LoadRoles reads the role permission bundles from the given YAML file.
func LoadRoles(path string) ([]RoleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}

	var doc struct {
		Roles []RoleDefinition `yaml:"roles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}

	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("roles file %s defines no roles", path)
	}

	seen := make(map[string]bool, len(doc.Roles))
	for _, r := range doc.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("role with empty name in %s", path)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate role %q in %s", r.Name, path)
		}
		seen[r.Name] = true
		if len(r.Permissions) == 0 {
			return nil, fmt.Errorf("role %q grants no permissions", r.Name)
		}
	}

	return doc.Roles, nil
}
