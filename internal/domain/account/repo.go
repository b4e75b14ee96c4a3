package account

import (
	"context"

	"github.com/elanza/clinic/internal/platform/auth"
)

type UserRepository interface {
	// GetByID returns the user or a NotFound error.
	GetByID(ctx context.Context, id string) (*User, error)
	// UpsertProfile creates the user with role if missing, otherwise updates
	// the profile and keeps the stored role.
	UpsertProfile(ctx context.Context, u *User) error
	UpdateRole(ctx context.Context, id string, role auth.Role) (*User, error)
	Delete(ctx context.Context, id string) error
	// List returns up to f.Limit users ordered by email then id.
	List(ctx context.Context, f ListFilter) ([]*User, error)
}
