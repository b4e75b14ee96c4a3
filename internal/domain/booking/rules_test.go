package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/elanza/clinic/internal/domain/catalog"
	"github.com/elanza/clinic/internal/platform/apperr"
)

var mexico = mustLoad("America/Mexico_City")

func allow(b bool) *bool { return &b }

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, mexico)
}

func appt(service string, start time.Time, dur time.Duration) *Appointment {
	return &Appointment{
		ID:        uuid.New(),
		UserID:    "u1",
		DoctorID:  "doc-1",
		ServiceID: service,
		StartTime: start,
		EndTime:   start.Add(dur),
		Status:    StatusScheduled,
	}
}

// -- Overlap --

func TestHasOverlap(t *testing.T) {
	existing := []*Appointment{appt("facial", at(2025, 3, 10, 10, 0), time.Hour)}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"touching after", at(2025, 3, 10, 11, 0), at(2025, 3, 10, 12, 0), false},
		{"touching before", at(2025, 3, 10, 9, 0), at(2025, 3, 10, 10, 0), false},
		{"inside", at(2025, 3, 10, 10, 15), at(2025, 3, 10, 10, 45), true},
		{"straddles start", at(2025, 3, 10, 9, 30), at(2025, 3, 10, 10, 30), true},
		{"straddles end", at(2025, 3, 10, 10, 30), at(2025, 3, 10, 11, 30), true},
		{"contains", at(2025, 3, 10, 9, 0), at(2025, 3, 10, 12, 0), true},
		{"other day", at(2025, 3, 11, 10, 0), at(2025, 3, 11, 11, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasOverlap(existing, tt.start, tt.end, uuid.Nil); got != tt.want {
				t.Errorf("HasOverlap = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasOverlap_IgnoresCancelledAndExcluded(t *testing.T) {
	a := appt("facial", at(2025, 3, 10, 10, 0), time.Hour)
	cancelled := appt("facial", at(2025, 3, 10, 10, 0), time.Hour)
	cancelled.Status = StatusCancelled

	if HasOverlap([]*Appointment{cancelled}, at(2025, 3, 10, 10, 0), at(2025, 3, 10, 11, 0), uuid.Nil) {
		t.Error("cancelled appointments must not conflict")
	}
	if HasOverlap([]*Appointment{a}, at(2025, 3, 10, 10, 0), at(2025, 3, 10, 11, 0), a.ID) {
		t.Error("the excluded appointment must not conflict with itself")
	}
}

// -- Week numbering --

func TestWeekNumber(t *testing.T) {
	// 2025-01-01 is a Wednesday (3): Jan 1-4 form week 1, Sunday Jan 5 starts week 2.
	tests := []struct {
		day  time.Time
		want int
	}{
		{at(2025, 1, 1, 12, 0), 1},
		{at(2025, 1, 4, 12, 0), 1},
		{at(2025, 1, 5, 12, 0), 2},
		{at(2025, 1, 11, 12, 0), 2},
		{at(2025, 1, 12, 12, 0), 3},
		{at(2025, 12, 31, 12, 0), 53},
	}
	for _, tt := range tests {
		if got := WeekNumber(tt.day); got != tt.want {
			t.Errorf("WeekNumber(%s) = %d, want %d", tt.day.Format("2006-01-02"), got, tt.want)
		}
	}
}

// -- Booking rules --

func TestValidateBookingRules_NilOrZeroRules(t *testing.T) {
	existing := []*Appointment{appt("facial", at(2025, 3, 10, 10, 0), time.Hour)}
	now := at(2025, 3, 1, 0, 0)
	if err := ValidateBookingRules(nil, existing, at(2025, 3, 10, 12, 0), now, mexico); err != nil {
		t.Errorf("nil rules: %v", err)
	}
	if err := ValidateBookingRules(&catalog.BookingRules{}, existing, at(2025, 3, 10, 12, 0), now, mexico); err != nil {
		t.Errorf("zero rules: %v", err)
	}
}

func TestValidateBookingRules_MaxPerDay(t *testing.T) {
	rules := &catalog.BookingRules{MaxPerDay: 1}
	existing := []*Appointment{appt("facial", at(2025, 3, 10, 9, 0), time.Hour)}
	now := at(2025, 3, 1, 0, 0)

	err := ValidateBookingRules(rules, existing, at(2025, 3, 10, 17, 0), now, mexico)
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("same day: expected failed-precondition, got %v", err)
	}
	if err := ValidateBookingRules(rules, existing, at(2025, 3, 11, 9, 0), now, mexico); err != nil {
		t.Errorf("next day: %v", err)
	}
}

func TestValidateBookingRules_MaxPerDayUsesClinicDate(t *testing.T) {
	rules := &catalog.BookingRules{MaxPerDay: 1}
	// 23:30 local on March 10 is already March 11 in UTC.
	existing := []*Appointment{appt("facial", at(2025, 3, 10, 23, 30).UTC(), 30*time.Minute)}
	now := at(2025, 3, 1, 0, 0)

	if err := ValidateBookingRules(rules, existing, at(2025, 3, 11, 9, 0), now, mexico); err != nil {
		t.Errorf("different local dates must not count together: %v", err)
	}
	err := ValidateBookingRules(rules, existing, at(2025, 3, 10, 8, 0), now, mexico)
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("same local date: expected failed-precondition, got %v", err)
	}
}

func TestValidateBookingRules_MaxPerWeek(t *testing.T) {
	rules := &catalog.BookingRules{MaxPerWeek: 2}
	existing := []*Appointment{
		appt("facial", at(2025, 1, 5, 10, 0), time.Hour),
		appt("facial", at(2025, 1, 8, 10, 0), time.Hour),
	}
	now := at(2025, 1, 1, 0, 0)

	err := ValidateBookingRules(rules, existing, at(2025, 1, 11, 10, 0), now, mexico)
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("third in week 2: expected failed-precondition, got %v", err)
	}
	if err := ValidateBookingRules(rules, existing, at(2025, 1, 12, 10, 0), now, mexico); err != nil {
		t.Errorf("week 3 should be free: %v", err)
	}
	if err := ValidateBookingRules(rules, existing, at(2026, 1, 6, 10, 0), now, mexico); err != nil {
		t.Errorf("same week number in another year should be free: %v", err)
	}
}

func TestValidateBookingRules_MinDaysBetween(t *testing.T) {
	rules := &catalog.BookingRules{MinDaysBetweenAppointments: 3}
	existing := []*Appointment{appt("laser", at(2025, 3, 10, 10, 0), time.Hour)}
	now := at(2025, 3, 1, 0, 0)

	err := ValidateBookingRules(rules, existing, at(2025, 3, 12, 10, 0), now, mexico)
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("2 days apart: expected failed-precondition, got %v", err)
	}
	if err := ValidateBookingRules(rules, existing, at(2025, 3, 13, 10, 0), now, mexico); err != nil {
		t.Errorf("3 days apart: %v", err)
	}
	err = ValidateBookingRules(rules, existing, at(2025, 3, 8, 10, 0), now, mexico)
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("2 days before: expected failed-precondition, got %v", err)
	}
}

func TestValidateBookingRules_MaxPerMonth(t *testing.T) {
	rules := &catalog.BookingRules{MaxPerMonth: 2}
	existing := []*Appointment{
		appt("facial", at(2025, 3, 3, 10, 0), time.Hour),
		appt("facial", at(2025, 3, 17, 10, 0), time.Hour),
	}
	now := at(2025, 3, 1, 0, 0)

	err := ValidateBookingRules(rules, existing, at(2025, 3, 28, 10, 0), now, mexico)
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("expected failed-precondition, got %v", err)
	}
	if err := ValidateBookingRules(rules, existing, at(2025, 4, 1, 10, 0), now, mexico); err != nil {
		t.Errorf("next month: %v", err)
	}
}

func TestValidateBookingRules_MinAdvanceBooking(t *testing.T) {
	rules := &catalog.BookingRules{MinAdvanceBookingHours: 12}
	now := at(2025, 3, 10, 8, 0)

	err := ValidateBookingRules(rules, nil, at(2025, 3, 10, 19, 0), now, mexico)
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("11h ahead: expected failed-precondition, got %v", err)
	}
	if err := ValidateBookingRules(rules, nil, at(2025, 3, 10, 20, 0), now, mexico); err != nil {
		t.Errorf("12h ahead: %v", err)
	}
}

func TestValidateBookingRules_MaxActiveFuture(t *testing.T) {
	rules := &catalog.BookingRules{MaxActiveFutureAppointments: 2}
	now := at(2025, 3, 10, 8, 0)
	existing := []*Appointment{
		appt("facial", at(2025, 3, 1, 10, 0), time.Hour),
		appt("facial", at(2025, 3, 15, 10, 0), time.Hour),
	}

	if err := ValidateBookingRules(rules, existing, at(2025, 3, 20, 10, 0), now, mexico); err != nil {
		t.Errorf("past appointments must not count: %v", err)
	}
	existing = append(existing, appt("facial", at(2025, 3, 18, 10, 0), time.Hour))
	err := ValidateBookingRules(rules, existing, at(2025, 3, 20, 10, 0), now, mexico)
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("expected failed-precondition, got %v", err)
	}
}

func TestValidateBookingRules_FirstViolationWins(t *testing.T) {
	rules := &catalog.BookingRules{MaxPerDay: 1, MinDaysBetweenAppointments: 5}
	existing := []*Appointment{appt("facial", at(2025, 3, 10, 9, 0), time.Hour)}

	err := ValidateBookingRules(rules, existing, at(2025, 3, 10, 17, 0), at(2025, 3, 1, 0, 0), mexico)
	var e *apperr.Error
	if !errors.As(err, &e) || e.Message != "you have reached the daily limit of 1 appointment(s) for this service" {
		t.Errorf("expected the daily limit message, got %v", err)
	}
}

// -- Compatibility --

func TestCheckCompatibility_Asymmetric(t *testing.T) {
	laser := &catalog.Service{ID: "laser", IncompatibleSameDayServices: []string{"facial"}}
	facial := &catalog.Service{ID: "facial"}
	day := at(2025, 3, 10, 9, 0)

	withFacial := []*Appointment{appt("facial", day, time.Hour)}
	if err := CheckCompatibility(laser, withFacial, at(2025, 3, 10, 15, 0), mexico); apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("laser after facial: expected failed-precondition, got %v", err)
	}

	withLaser := []*Appointment{appt("laser", day, time.Hour)}
	if err := CheckCompatibility(facial, withLaser, at(2025, 3, 10, 15, 0), mexico); err != nil {
		t.Errorf("facial after laser should be allowed: %v", err)
	}
}

func TestCheckCompatibility_OtherDayAndCancelled(t *testing.T) {
	laser := &catalog.Service{ID: "laser", IncompatibleSameDayServices: []string{"facial"}}
	cancelled := appt("facial", at(2025, 3, 10, 9, 0), time.Hour)
	cancelled.Status = StatusCancelled
	existing := []*Appointment{appt("facial", at(2025, 3, 9, 9, 0), time.Hour), cancelled}

	if err := CheckCompatibility(laser, existing, at(2025, 3, 10, 15, 0), mexico); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// -- Cancellation policy --

func TestEvaluateCancellation(t *testing.T) {
	now := at(2025, 3, 10, 8, 0)
	window := &catalog.CancellationPolicy{AllowCancellation: allow(true), MinHoursBeforeAppointment: 24}

	tests := []struct {
		name    string
		policy  *catalog.CancellationPolicy
		start   time.Time
		allowed bool
	}{
		{"no policy", nil, now.Add(time.Hour), true},
		{"23h before", window, now.Add(23 * time.Hour), false},
		{"25h before", window, now.Add(25 * time.Hour), true},
		{"exactly 24h", window, now.Add(24 * time.Hour), true},
		{"in the past", window, now.Add(-2 * time.Hour), false},
		{"disallowed", &catalog.CancellationPolicy{AllowCancellation: allow(false)}, now.Add(30 * 24 * time.Hour), false},
		{"no window", &catalog.CancellationPolicy{AllowCancellation: allow(true)}, now.Add(time.Minute), true},
		{"flag omitted outside window", &catalog.CancellationPolicy{MinHoursBeforeAppointment: 24}, now.Add(72 * time.Hour), true},
		{"flag omitted inside window", &catalog.CancellationPolicy{MinHoursBeforeAppointment: 24}, now.Add(23 * time.Hour), false},
		{"flag omitted no window", &catalog.CancellationPolicy{}, now.Add(time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EvaluateCancellation(tt.policy, tt.start, now)
			if tt.allowed && err != nil {
				t.Errorf("expected allowed, got %v", err)
			}
			if !tt.allowed && apperr.KindOf(err) != apperr.FailedPrecondition {
				t.Errorf("expected failed-precondition, got %v", err)
			}
		})
	}
}
