// Package auth establishes the acting identity for each request. Tokens are
// issued by an external identity provider; this package only validates them
// and hands the resulting actor to the core, which never sees credentials.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cervixai/screening-engine/pkg/models"
)

// Claims is the JWT claims structure issued by the identity provider. It
// embeds RegisteredClaims for the standard fields (sub, iss, exp) and adds
// the clinician identity the engine needs.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"` // Clinician email address
	Role  string `json:"role,omitempty"`  // Role name resolved against seeded roles
}

// ToActor converts validated claims into the acting identity. The subject
// must be the clinician's UUID.
func (c *Claims) ToActor() (models.Actor, error) {
	if c.Subject == "" {
		return models.Actor{}, fmt.Errorf("missing subject in token claims")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid subject format: %w", err)
	}
	if c.Role == "" {
		return models.Actor{}, fmt.Errorf("missing role in token claims")
	}
	return models.Actor{ID: id, Email: c.Email, Role: c.Role}, nil
}
