package booking

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
)

// Appointment moves from scheduled to cancelled only. It is never deleted
// or re-activated.
type Appointment struct {
	ID          uuid.UUID  `json:"id"`
	UserID      string     `json:"userId"`
	DoctorID    string     `json:"doctorId"`
	ServiceID   string     `json:"serviceId"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CancelledBy *string    `json:"cancelledBy,omitempty"`
}

func (a *Appointment) Scheduled() bool { return a.Status == StatusScheduled }

// CreateRequest is the body of POST /appointments.
type CreateRequest struct {
	ServiceID string `json:"serviceId" validate:"required"`
	DoctorID  string `json:"doctorId" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
}

type CancelRequest struct {
	AppointmentID string `json:"appointmentId"`
}

// Weekdays are the keys of a weekly schedule.
var Weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func weekdayKey(d time.Weekday) string { return Weekdays[d] }

// DoctorSchedule lists, per weekday, the local "HH:MM" times at which an
// appointment may start.
type DoctorSchedule struct {
	DoctorID       string              `json:"doctorId"`
	DoctorName     string              `json:"doctorName"`
	WeeklySchedule map[string][]string `json:"weeklySchedule"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// ScheduleRequest is the body of PUT /doctors/:id/schedule.
type ScheduleRequest struct {
	DoctorName     string              `json:"doctorName" validate:"required,max=120"`
	WeeklySchedule map[string][]string `json:"weeklySchedule" validate:"required,dive,keys,oneof=sunday monday tuesday wednesday thursday friday saturday,endkeys,dive,hhmm"`
}

// normalize sorts and de-duplicates each day's start times and drops days
// without any.
func (r *ScheduleRequest) normalize() map[string][]string {
	out := make(map[string][]string, len(r.WeeklySchedule))
	for day, times := range r.WeeklySchedule {
		day = strings.ToLower(day)
		seen := make(map[string]bool)
		var list []string
		for _, t := range times {
			if !seen[t] {
				seen[t] = true
				list = append(list, t)
			}
		}
		if len(list) == 0 {
			continue
		}
		sort.Strings(list)
		out[day] = list
	}
	return out
}

// Slot is one bookable start time returned by the availability endpoint.
type Slot struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}
