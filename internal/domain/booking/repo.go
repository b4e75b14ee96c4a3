package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/elanza/clinic/internal/domain/catalog"
)

type AppointmentRepository interface {
	// Create persists a scheduled appointment. A conflicting scheduled
	// appointment of the same doctor fails with AlreadyExists.
	Create(ctx context.Context, a *Appointment) error
	// GetByID returns the appointment or a NotFound error.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// MarkCancelled moves a scheduled appointment to cancelled and reports
	// whether a row changed.
	MarkCancelled(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error)
	// ListScheduledByDoctorBetween returns the doctor's scheduled
	// appointments intersecting [from, to).
	ListScheduledByDoctorBetween(ctx context.Context, doctorID string, from, to time.Time) ([]*Appointment, error)
	ListScheduledByUser(ctx context.Context, userID string) ([]*Appointment, error)
	ListScheduledByUserService(ctx context.Context, userID, serviceID string) ([]*Appointment, error)
	// ListByUser returns every appointment of the user, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Appointment, error)
}

type ScheduleRepository interface {
	// Get returns the doctor's schedule or a NotFound error.
	Get(ctx context.Context, doctorID string) (*DoctorSchedule, error)
	Upsert(ctx context.Context, s *DoctorSchedule) error
}

// ServiceLookup resolves services by id.
type ServiceLookup interface {
	GetByID(ctx context.Context, id string) (*catalog.Service, error)
}
