package catalog

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/elanza/clinic/internal/platform/apperr"
)

// Input is the writable part of a Service.
type Input struct {
	Name                        string              `json:"name" validate:"required,max=120"`
	Description                 string              `json:"description" validate:"max=4000"`
	DurationMinutes             int                 `json:"durationMinutes" validate:"gte=0,lte=720"`
	Capacity                    int                 `json:"capacity" validate:"gte=0"`
	Order                       int                 `json:"order"`
	Active                      *bool               `json:"active"`
	IsCategory                  bool                `json:"isCategory"`
	ParentServiceID             *string             `json:"parentServiceId"`
	Price                       decimal.Decimal     `json:"price"`
	BookingRules                *BookingRules       `json:"bookingRules"`
	CancellationPolicy          *CancellationPolicy `json:"cancellationPolicy"`
	IncompatibleSameDayServices []string            `json:"incompatibleSameDayServices" validate:"dive,required"`
	Images                      []string            `json:"images" validate:"dive,required"`
}

type Catalog struct {
	repo   Repository
	logger zerolog.Logger
}

func NewCatalog(repo Repository, logger zerolog.Logger) *Catalog {
	return &Catalog{repo: repo, logger: logger.With().Str("component", "catalog").Logger()}
}

func (c *Catalog) Get(ctx context.Context, id string) (*Service, error) {
	if id == "" {
		return nil, apperr.New(apperr.InvalidArgument, "service id is required")
	}
	s, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Surface(c.logger, "catalog.get", err, map[string]interface{}{"service_id": id})
	}
	return s, nil
}

func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]*Service, error) {
	items, err := c.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, apperr.Surface(c.logger, "catalog.list", err, nil)
	}
	if items == nil {
		items = []*Service{}
	}
	return items, nil
}

func (c *Catalog) Create(ctx context.Context, in Input) (*Service, error) {
	id := Slug(in.Name)
	if id == "" {
		return nil, apperr.New(apperr.InvalidArgument, "name must contain letters or digits")
	}
	s := &Service{ID: id, Active: true}
	if err := c.apply(ctx, s, in); err != nil {
		return nil, err
	}
	if err := c.repo.Create(ctx, s); err != nil {
		return nil, apperr.Surface(c.logger, "catalog.create", err, map[string]interface{}{"service_id": id})
	}
	return s, nil
}

func (c *Catalog) Update(ctx context.Context, id string, in Input) (*Service, error) {
	s, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.apply(ctx, s, in); err != nil {
		return nil, err
	}
	if err := c.repo.Update(ctx, s); err != nil {
		return nil, apperr.Surface(c.logger, "catalog.update", err, map[string]interface{}{"service_id": id})
	}
	return s, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperr.New(apperr.InvalidArgument, "service id is required")
	}
	if err := c.repo.SoftDelete(ctx, id); err != nil {
		return apperr.Surface(c.logger, "catalog.delete", err, map[string]interface{}{"service_id": id})
	}
	return nil
}

// apply validates in and copies it onto s. Incompatible and parent ids must
// name existing services; the incompatibility list is de-duplicated.
func (c *Catalog) apply(ctx context.Context, s *Service, in Input) error {
	if in.Name == "" {
		return apperr.New(apperr.InvalidArgument, "name is required")
	}
	if in.DurationMinutes < 0 {
		return apperr.New(apperr.InvalidArgument, "durationMinutes must be positive")
	}
	if in.Price.IsNegative() {
		return apperr.New(apperr.InvalidArgument, "price must not be negative")
	}
	if err := validateRules(in.BookingRules, in.CancellationPolicy); err != nil {
		return err
	}

	incompatible := make([]string, 0, len(in.IncompatibleSameDayServices))
	seen := make(map[string]bool)
	for _, other := range in.IncompatibleSameDayServices {
		if other == s.ID {
			return apperr.New(apperr.InvalidArgument, "a service cannot be incompatible with itself")
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		if _, err := c.repo.GetByID(ctx, other); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				return apperr.Newf(apperr.InvalidArgument, "incompatible service %q does not exist", other)
			}
			return apperr.Surface(c.logger, "catalog.apply", err, map[string]interface{}{"service_id": other})
		}
		incompatible = append(incompatible, other)
	}
	if in.ParentServiceID != nil && *in.ParentServiceID != "" {
		if *in.ParentServiceID == s.ID {
			return apperr.New(apperr.InvalidArgument, "a service cannot be its own parent")
		}
		if _, err := c.repo.GetByID(ctx, *in.ParentServiceID); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				return apperr.Newf(apperr.InvalidArgument, "parent service %q does not exist", *in.ParentServiceID)
			}
			return apperr.Surface(c.logger, "catalog.apply", err, map[string]interface{}{"service_id": *in.ParentServiceID})
		}
	} else {
		in.ParentServiceID = nil
	}

	s.Name = in.Name
	s.Description = in.Description
	s.DurationMinutes = in.DurationMinutes
	if s.DurationMinutes == 0 {
		s.DurationMinutes = DefaultDurationMinutes
	}
	s.Capacity = in.Capacity
	s.Order = in.Order
	if in.Active != nil {
		s.Active = *in.Active
	}
	s.IsCategory = in.IsCategory
	s.ParentServiceID = in.ParentServiceID
	s.Price = in.Price
	s.BookingRules = in.BookingRules
	s.CancellationPolicy = in.CancellationPolicy
	s.IncompatibleSameDayServices = incompatible
	s.Images = in.Images
	return nil
}

func validateRules(br *BookingRules, cp *CancellationPolicy) error {
	if br != nil {
		for name, v := range map[string]int{
			"maxPerDay":                   br.MaxPerDay,
			"maxPerWeek":                  br.MaxPerWeek,
			"maxPerMonth":                 br.MaxPerMonth,
			"minAdvanceBookingHours":      br.MinAdvanceBookingHours,
			"minDaysBetweenAppointments":  br.MinDaysBetweenAppointments,
			"maxActiveFutureAppointments": br.MaxActiveFutureAppointments,
		} {
			if v < 0 {
				return apperr.Newf(apperr.InvalidArgument, "bookingRules.%s must not be negative", name)
			}
		}
	}
	if cp != nil && cp.MinHoursBeforeAppointment < 0 {
		return apperr.New(apperr.InvalidArgument, "cancellationPolicy.minHoursBeforeAppointment must not be negative")
	}
	return nil
}
