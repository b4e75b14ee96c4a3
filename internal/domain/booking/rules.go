package booking

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/elanza/clinic/internal/domain/catalog"
	"github.com/elanza/clinic/internal/platform/apperr"
)

// HasOverlap reports whether [start, end) intersects any scheduled
// appointment in existing other than exclude. Touching intervals do not
// overlap.
func HasOverlap(existing []*Appointment, start, end time.Time, exclude uuid.UUID) bool {
	for _, a := range existing {
		if !a.Scheduled() || (exclude != uuid.Nil && a.ID == exclude) {
			continue
		}
		if a.StartTime.Before(end) && start.Before(a.EndTime) {
			return true
		}
	}
	return false
}

// WeekNumber is ceil((dayOfYear + weekday of January 1st) / 7) with a
// 1-based day of year and Sunday = 0. Weeks start on the weekday of
// January 1st, not on Monday.
func WeekNumber(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	return int(math.Ceil(float64(t.YearDay()+int(jan1.Weekday())) / 7))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameWeek(a, b time.Time) bool {
	return a.Year() == b.Year() && WeekNumber(a) == WeekNumber(b)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func countWhere(existing []*Appointment, loc *time.Location, start time.Time, match func(a, b time.Time) bool) int {
	n := 0
	for _, a := range existing {
		if a.Scheduled() && match(a.StartTime.In(loc), start) {
			n++
		}
	}
	return n
}

// ValidateBookingRules checks start against the user's scheduled
// appointments for the same service. Calendar rules use loc; unset rules
// are skipped. The first violated rule is returned as FailedPrecondition.
func ValidateBookingRules(rules *catalog.BookingRules, existing []*Appointment, start, now time.Time, loc *time.Location) error {
	if rules == nil {
		return nil
	}
	local := start.In(loc)

	if rules.MaxPerDay > 0 && countWhere(existing, loc, local, sameDay) >= rules.MaxPerDay {
		return apperr.Newf(apperr.FailedPrecondition,
			"you have reached the daily limit of %d appointment(s) for this service", rules.MaxPerDay)
	}
	if rules.MaxPerWeek > 0 && countWhere(existing, loc, local, sameWeek) >= rules.MaxPerWeek {
		return apperr.Newf(apperr.FailedPrecondition,
			"you have reached the weekly limit of %d appointment(s) for this service", rules.MaxPerWeek)
	}
	if rules.MinDaysBetweenAppointments > 0 {
		for _, a := range existing {
			if !a.Scheduled() {
				continue
			}
			days := math.Abs(start.Sub(a.StartTime).Hours()) / 24
			if days < float64(rules.MinDaysBetweenAppointments) {
				return apperr.Newf(apperr.FailedPrecondition,
					"appointments for this service must be at least %d day(s) apart", rules.MinDaysBetweenAppointments)
			}
		}
	}
	if rules.MaxPerMonth > 0 && countWhere(existing, loc, local, sameMonth) >= rules.MaxPerMonth {
		return apperr.Newf(apperr.FailedPrecondition,
			"you have reached the monthly limit of %d appointment(s) for this service", rules.MaxPerMonth)
	}
	if rules.MinAdvanceBookingHours > 0 && start.Sub(now).Hours() < float64(rules.MinAdvanceBookingHours) {
		return apperr.Newf(apperr.FailedPrecondition,
			"this service must be booked at least %d hour(s) in advance", rules.MinAdvanceBookingHours)
	}
	if rules.MaxActiveFutureAppointments > 0 {
		future := 0
		for _, a := range existing {
			if a.Scheduled() && a.StartTime.After(now) {
				future++
			}
		}
		if future >= rules.MaxActiveFutureAppointments {
			return apperr.Newf(apperr.FailedPrecondition,
				"you already have %d upcoming appointment(s) for this service", future)
		}
	}
	return nil
}

// CheckCompatibility fails when the user already has, on the local date of
// start, a scheduled appointment for a service that svc lists as
// incompatible. The relation is not symmetric.
func CheckCompatibility(svc *catalog.Service, existing []*Appointment, start time.Time, loc *time.Location) error {
	if len(svc.IncompatibleSameDayServices) == 0 {
		return nil
	}
	local := start.In(loc)
	for _, a := range existing {
		if !a.Scheduled() || !sameDay(a.StartTime.In(loc), local) {
			continue
		}
		if svc.Incompatible(a.ServiceID) {
			return apperr.New(apperr.FailedPrecondition,
				fmt.Sprintf("%s cannot be booked on the same day as an appointment for %s", svc.ID, a.ServiceID))
		}
	}
	return nil
}

// EvaluateCancellation applies a service's cancellation policy. A missing
// policy allows cancellation. Appointments already in the past are inside
// any minimum window.
func EvaluateCancellation(policy *catalog.CancellationPolicy, start, now time.Time) error {
	if policy == nil {
		return nil
	}
	if !policy.CancellationAllowed() {
		return apperr.New(apperr.FailedPrecondition, "this service does not allow cancellations")
	}
	if policy.MinHoursBeforeAppointment > 0 && start.Sub(now).Hours() < float64(policy.MinHoursBeforeAppointment) {
		return apperr.Newf(apperr.FailedPrecondition,
			"appointments can only be cancelled at least %d hour(s) in advance", policy.MinHoursBeforeAppointment)
	}
	return nil
}
