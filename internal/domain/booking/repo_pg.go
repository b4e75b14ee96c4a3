package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/db"
)

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, user_id, doctor_id, service_id, start_time, end_time, status,
	created_at, cancelled_at, cancelled_by`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.UserID, &a.DoctorID, &a.ServiceID, &a.StartTime, &a.EndTime, &a.Status,
		&a.CreatedAt, &a.CancelledAt, &a.CancelledBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "appointment not found")
	}
	return &a, err
}

func (r *appointmentRepoPG) queryList(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, doctor_id, service_id, start_time, end_time, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		a.ID, a.UserID, a.DoctorID, a.ServiceID, a.StartTime, a.EndTime, a.Status).Scan(&a.CreatedAt)
	if db.IsConstraintViolation(err, db.CodeExclusionViolation) {
		return apperr.New(apperr.AlreadyExists, "the doctor already has an appointment at that time")
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) MarkCancelled(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = 'cancelled', cancelled_at = $2, cancelled_by = $3
		WHERE id = $1 AND status = 'scheduled'`, id, at, by)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepoPG) ListScheduledByDoctorBetween(ctx context.Context, doctorID string, from, to time.Time) ([]*Appointment, error) {
	return r.queryList(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND status = 'scheduled' AND start_time < $3 AND end_time > $2
		ORDER BY start_time`, doctorID, from, to)
}

func (r *appointmentRepoPG) ListScheduledByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	return r.queryList(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE user_id = $1 AND status = 'scheduled' ORDER BY start_time`, userID)
}

func (r *appointmentRepoPG) ListScheduledByUserService(ctx context.Context, userID, serviceID string) ([]*Appointment, error) {
	return r.queryList(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE user_id = $1 AND service_id = $2 AND status = 'scheduled' ORDER BY start_time`, userID, serviceID)
}

func (r *appointmentRepoPG) ListByUser(ctx context.Context, userID string, limit int) ([]*Appointment, error) {
	return r.queryList(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE user_id = $1 ORDER BY start_time DESC LIMIT $2`, userID, limit)
}

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *scheduleRepoPG) Get(ctx context.Context, doctorID string) (*DoctorSchedule, error) {
	var s DoctorSchedule
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT doctor_id, doctor_name, weekly_schedule, updated_at
		FROM doctor_schedules WHERE doctor_id = $1`, doctorID).
		Scan(&s.DoctorID, &s.DoctorName, &s.WeeklySchedule, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "doctor schedule not found")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduleRepoPG) Upsert(ctx context.Context, s *DoctorSchedule) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_schedules (doctor_id, doctor_name, weekly_schedule)
		VALUES ($1, $2, $3)
		ON CONFLICT (doctor_id) DO UPDATE
			SET doctor_name = EXCLUDED.doctor_name, weekly_schedule = EXCLUDED.weekly_schedule, updated_at = NOW()
		RETURNING updated_at`,
		s.DoctorID, s.DoctorName, s.WeeklySchedule).Scan(&s.UpdatedAt)
}
