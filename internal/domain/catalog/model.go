package catalog

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const DefaultDurationMinutes = 60

// BookingRules limits how often one user may book a service. A zero value
// means the rule is not enforced.
type BookingRules struct {
	MaxPerDay                   int `json:"maxPerDay,omitempty" validate:"gte=0"`
	MaxPerWeek                  int `json:"maxPerWeek,omitempty" validate:"gte=0"`
	MaxPerMonth                 int `json:"maxPerMonth,omitempty" validate:"gte=0"`
	MinAdvanceBookingHours      int `json:"minAdvanceBookingHours,omitempty" validate:"gte=0"`
	MinDaysBetweenAppointments  int `json:"minDaysBetweenAppointments,omitempty" validate:"gte=0"`
	MaxActiveFutureAppointments int `json:"maxActiveFutureAppointments,omitempty" validate:"gte=0"`
}

// CancellationPolicy gates client cancellations. A policy that omits
// allowCancellation permits cancelling; only an explicit false forbids it.
type CancellationPolicy struct {
	AllowCancellation         *bool `json:"allowCancellation,omitempty"`
	AllowReschedule           bool  `json:"allowReschedule"`
	MinHoursBeforeAppointment int   `json:"minHoursBeforeAppointment,omitempty" validate:"gte=0"`
}

// CancellationAllowed reports whether the policy permits cancelling at all.
func (p *CancellationPolicy) CancellationAllowed() bool {
	return p == nil || p.AllowCancellation == nil || *p.AllowCancellation
}

// Service is a bookable treatment, or a category grouping treatments.
type Service struct {
	ID                          string              `json:"id"`
	Name                        string              `json:"name"`
	Description                 string              `json:"description,omitempty"`
	DurationMinutes             int                 `json:"durationMinutes"`
	Capacity                    int                 `json:"capacity,omitempty"`
	Order                       int                 `json:"order"`
	Active                      bool                `json:"active"`
	IsCategory                  bool                `json:"isCategory"`
	ParentServiceID             *string             `json:"parentServiceId,omitempty"`
	Price                       decimal.Decimal     `json:"price"`
	BookingRules                *BookingRules       `json:"bookingRules,omitempty"`
	CancellationPolicy          *CancellationPolicy `json:"cancellationPolicy,omitempty"`
	IncompatibleSameDayServices []string            `json:"incompatibleSameDayServices,omitempty"`
	Images                      []string            `json:"images,omitempty"`
	Deleted                     bool                `json:"-"`
	CreatedAt                   time.Time           `json:"createdAt"`
	UpdatedAt                   time.Time           `json:"updatedAt"`
}

// Duration is the length of one appointment for the service.
func (s *Service) Duration() time.Duration {
	m := s.DurationMinutes
	if m <= 0 {
		m = DefaultDurationMinutes
	}
	return time.Duration(m) * time.Minute
}

// Incompatible reports whether an appointment for serviceID on the same day
// blocks booking s.
func (s *Service) Incompatible(serviceID string) bool {
	for _, id := range s.IncompatibleSameDayServices {
		if id == serviceID {
			return true
		}
	}
	return false
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug derives a service id from its display name: accents removed, lower
// case, runs of anything but letters and digits collapsed to one dash.
func Slug(name string) string {
	plain, _, err := transform.String(stripMarks, name)
	if err != nil {
		plain = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
