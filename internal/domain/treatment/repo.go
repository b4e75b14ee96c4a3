package treatment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PackageRepository interface {
	Create(ctx context.Context, p *Package) error
	GetByID(ctx context.Context, id uuid.UUID) (*Package, error)
	ListByUser(ctx context.Context, userID string) ([]*Package, error)
	// ConsumeSession increments usedAppointments unless the package is
	// exhausted, and reports whether it did.
	ConsumeSession(ctx context.Context, id uuid.UUID) (bool, error)
	// ListSales returns packages purchased in [from, to) with service and
	// client names, oldest first.
	ListSales(ctx context.Context, from, to time.Time) ([]*Sale, error)
}

type HistoryRepository interface {
	Create(ctx context.Context, e *HistoryEntry) error
	// ListByPackage returns every entry of the package, newest first.
	ListByPackage(ctx context.Context, packageID uuid.UUID) ([]*HistoryEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdatePhotos(ctx context.Context, id uuid.UUID, photos []string) error
}
