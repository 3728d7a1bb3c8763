// Package models contains domain types for the screening engine.
package models

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated identity performing an operation. Identity is
// established by the session layer; the core only consumes it.
type Actor struct {
	ID    uuid.UUID
	Email string
	Role  string
}

// actorKey is the context key for storing the acting identity.
type actorKey struct{}

// WithActor returns a new context with the acting identity attached.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// GetActor retrieves the acting identity from the context. Returns the actor
// and true if present, otherwise a zero value and false.
func GetActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
