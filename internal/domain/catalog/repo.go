package catalog

import (
	"context"
)

type Repository interface {
	// GetByID returns a non-deleted service or a NotFound error.
	GetByID(ctx context.Context, id string) (*Service, error)
	// List returns non-deleted services ordered by Order then name. When
	// activeOnly is set, inactive services and categories are left out.
	List(ctx context.Context, activeOnly bool) ([]*Service, error)
	// Create fails with AlreadyExists when the id is taken.
	Create(ctx context.Context, s *Service) error
	Update(ctx context.Context, s *Service) error
	SoftDelete(ctx context.Context, id string) error
}
