package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elanza/clinic/internal/domain/catalog"
	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/metrics"
)

// Orchestrator admits and cancels appointments. Create runs the overlap,
// booking-rule and compatibility checks in that order before persisting.
type Orchestrator struct {
	appointments AppointmentRepository
	schedules    ScheduleRepository
	services     ServiceLookup
	rec          metrics.Recorder
	logger       zerolog.Logger
	loc          *time.Location
	now          func() time.Time
}

func NewOrchestrator(appts AppointmentRepository, schedules ScheduleRepository, services ServiceLookup,
	rec metrics.Recorder, logger zerolog.Logger, loc *time.Location) *Orchestrator {
	return &Orchestrator{
		appointments: appts,
		schedules:    schedules,
		services:     services,
		rec:          rec,
		logger:       logger.With().Str("component", "booking").Logger(),
		loc:          loc,
		now:          time.Now,
	}
}

// ParseStartTime accepts RFC 3339 timestamps, with or without fractional
// seconds.
func ParseStartTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.InvalidArgument, "startTime %q is not a valid RFC 3339 timestamp", s)
	}
	return t, nil
}

func (o *Orchestrator) Create(ctx context.Context, actor *auth.Actor, req CreateRequest) (*Appointment, error) {
	a, err := o.create(ctx, actor, req)
	if err != nil {
		fields := map[string]interface{}{"service_id": req.ServiceID, "doctor_id": req.DoctorID}
		if actor != nil {
			fields["user_id"] = actor.UserID
		}
		err = apperr.Surface(o.logger, "appointment.create", err, fields)
		o.rec.AppointmentAdmission(string(apperr.KindOf(err)))
		return nil, err
	}
	o.rec.AppointmentAdmission("admitted")
	return a, nil
}

func (o *Orchestrator) create(ctx context.Context, actor *auth.Actor, req CreateRequest) (*Appointment, error) {
	if actor == nil || actor.UserID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "you must be signed in to book an appointment")
	}
	if req.ServiceID == "" || req.DoctorID == "" || req.StartTime == "" {
		return nil, apperr.New(apperr.InvalidArgument, "serviceId, doctorId and startTime are required")
	}
	start, err := ParseStartTime(req.StartTime)
	if err != nil {
		return nil, err
	}

	svc, err := o.services.GetByID(ctx, req.ServiceID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Newf(apperr.NotFound, "service %q not found", req.ServiceID)
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	end := start.Add(svc.Duration())

	doctorAppts, err := o.appointments.ListScheduledByDoctorBetween(ctx, req.DoctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	if HasOverlap(doctorAppts, start, end, uuid.Nil) {
		return nil, apperr.New(apperr.AlreadyExists, "the doctor already has an appointment at that time")
	}

	if svc.BookingRules != nil {
		sameService, err := o.appointments.ListScheduledByUserService(ctx, actor.UserID, svc.ID)
		if err != nil {
			return nil, fmt.Errorf("list user appointments for service: %w", err)
		}
		if err := ValidateBookingRules(svc.BookingRules, sameService, start, o.now(), o.loc); err != nil {
			return nil, err
		}
	}

	if len(svc.IncompatibleSameDayServices) > 0 {
		all, err := o.appointments.ListScheduledByUser(ctx, actor.UserID)
		if err != nil {
			return nil, fmt.Errorf("list user appointments: %w", err)
		}
		if err := CheckCompatibility(svc, all, start, o.loc); err != nil {
			return nil, err
		}
	}

	a := &Appointment{
		ID:        uuid.New(),
		UserID:    actor.UserID,
		DoctorID:  req.DoctorID,
		ServiceID: svc.ID,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Status:    StatusScheduled,
	}
	if err := o.appointments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("persist appointment: %w", err)
	}
	o.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("user_id", a.UserID).
		Str("doctor_id", a.DoctorID).
		Str("service_id", a.ServiceID).
		Time("start_time", a.StartTime).
		Msg("appointment created")
	return a, nil
}

func (o *Orchestrator) Cancel(ctx context.Context, actor *auth.Actor, appointmentID string) error {
	err := o.cancel(ctx, actor, appointmentID)
	if err != nil {
		fields := map[string]interface{}{"appointment_id": appointmentID}
		if actor != nil {
			fields["user_id"] = actor.UserID
		}
		err = apperr.Surface(o.logger, "appointment.cancel", err, fields)
		o.rec.AppointmentCancellation(string(apperr.KindOf(err)))
		return err
	}
	o.rec.AppointmentCancellation("cancelled")
	return nil
}

func (o *Orchestrator) cancel(ctx context.Context, actor *auth.Actor, appointmentID string) error {
	if actor == nil || actor.UserID == "" {
		return apperr.New(apperr.Unauthenticated, "you must be signed in to cancel an appointment")
	}
	if appointmentID == "" {
		return apperr.New(apperr.InvalidArgument, "appointmentId is required")
	}
	id, err := uuid.Parse(appointmentID)
	if err != nil {
		return apperr.New(apperr.NotFound, "appointment not found")
	}

	a, err := o.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanAccess(a.UserID) {
		return apperr.New(apperr.PermissionDenied, "you can only cancel your own appointments")
	}
	if !a.Scheduled() {
		return apperr.New(apperr.FailedPrecondition, "the appointment is already cancelled")
	}

	now := o.now()
	if !actor.Privileged() {
		svc, err := o.services.GetByID(ctx, a.ServiceID)
		switch {
		case err == nil:
			if err := EvaluateCancellation(svc.CancellationPolicy, a.StartTime, now); err != nil {
				return err
			}
		case apperr.Is(err, apperr.NotFound):
			// A removed service carries no policy.
		default:
			return fmt.Errorf("load service: %w", err)
		}
	}

	changed, err := o.appointments.MarkCancelled(ctx, a.ID, actor.UserID, now.UTC())
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	if !changed {
		return apperr.New(apperr.FailedPrecondition, "the appointment is already cancelled")
	}
	o.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("cancelled_by", actor.UserID).
		Bool("privileged", actor.Privileged()).
		Msg("appointment cancelled")
	return nil
}

// ListForUser returns userID's appointments, newest first. Only the owner or
// a privileged actor may list them.
func (o *Orchestrator) ListForUser(ctx context.Context, actor *auth.Actor, userID string, limit int) ([]*Appointment, error) {
	if actor == nil {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if userID == "" {
		userID = actor.UserID
	}
	if !actor.CanAccess(userID) {
		return nil, apperr.New(apperr.PermissionDenied, "you can only list your own appointments")
	}
	items, err := o.appointments.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Surface(o.logger, "appointment.list", err, map[string]interface{}{"user_id": userID})
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, nil
}

// Availability lists the start times of the doctor's weekly schedule on the
// given local date ("2006-01-02") that neither overlap a scheduled
// appointment nor lie in the past. A doctor without a schedule has none.
func (o *Orchestrator) Availability(ctx context.Context, doctorID, date, serviceID string) ([]Slot, error) {
	if doctorID == "" || date == "" || serviceID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "doctor, date and serviceId are required")
	}
	day, err := time.ParseInLocation("2006-01-02", date, o.loc)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidArgument, "date %q must be YYYY-MM-DD", date)
	}
	fields := map[string]interface{}{"doctor_id": doctorID, "date": date, "service_id": serviceID}

	svc, err := o.services.GetByID(ctx, serviceID)
	if err != nil {
		return nil, apperr.Surface(o.logger, "availability", err, fields)
	}
	sched, err := o.schedules.Get(ctx, doctorID)
	if apperr.Is(err, apperr.NotFound) {
		return []Slot{}, nil
	}
	if err != nil {
		return nil, apperr.Surface(o.logger, "availability", err, fields)
	}

	times := sched.WeeklySchedule[weekdayKey(day.Weekday())]
	if len(times) == 0 {
		return []Slot{}, nil
	}
	dayEnd := day.AddDate(0, 0, 1)
	booked, err := o.appointments.ListScheduledByDoctorBetween(ctx, doctorID, day, dayEnd.Add(svc.Duration()))
	if err != nil {
		return nil, apperr.Surface(o.logger, "availability", err, fields)
	}

	now := o.now()
	slots := make([]Slot, 0, len(times))
	for _, hhmm := range times {
		start, ok := atClock(day, hhmm)
		if !ok {
			o.logger.Warn().Str("doctor_id", doctorID).Str("time", hhmm).Msg("skipping malformed schedule entry")
			continue
		}
		end := start.Add(svc.Duration())
		if start.Before(now) || HasOverlap(booked, start, end, uuid.Nil) {
			continue
		}
		slots = append(slots, Slot{StartTime: start, EndTime: end})
	}
	return slots, nil
}

func atClock(day time.Time, hhmm string) (time.Time, bool) {
	h, m, ok := strings.Cut(hhmm, ":")
	if !ok {
		return time.Time{}, false
	}
	hour, err1 := strconv.Atoi(h)
	min, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || min < 0 || min > 59 {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, day.Location()), true
}

func (o *Orchestrator) GetSchedule(ctx context.Context, doctorID string) (*DoctorSchedule, error) {
	s, err := o.schedules.Get(ctx, doctorID)
	if err != nil {
		return nil, apperr.Surface(o.logger, "schedule.get", err, map[string]interface{}{"doctor_id": doctorID})
	}
	return s, nil
}

func (o *Orchestrator) PutSchedule(ctx context.Context, doctorID string, req ScheduleRequest) (*DoctorSchedule, error) {
	if doctorID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "doctor id is required")
	}
	weekly := req.normalize()
	for day, times := range weekly {
		if !validWeekday(day) {
			return nil, apperr.Newf(apperr.InvalidArgument, "unknown weekday %q", day)
		}
		for _, t := range times {
			if _, ok := atClock(time.Now(), t); !ok || len(t) != 5 {
				return nil, apperr.Newf(apperr.InvalidArgument, "%s: %q must be HH:MM", day, t)
			}
		}
	}
	s := &DoctorSchedule{DoctorID: doctorID, DoctorName: req.DoctorName, WeeklySchedule: weekly}
	if err := o.schedules.Upsert(ctx, s); err != nil {
		return nil, apperr.Surface(o.logger, "schedule.put", err, map[string]interface{}{"doctor_id": doctorID})
	}
	return s, nil
}

func validWeekday(day string) bool {
	for _, d := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

var _ ServiceLookup = (catalog.Repository)(nil)
