package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const serviceCols = `id, name, description, duration_minutes, capacity, sort_order,
	active, is_category, parent_service_id, price, booking_rules, cancellation_policy,
	incompatible_same_day_services, images, deleted, created_at, updated_at`

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.Capacity, &s.Order,
		&s.Active, &s.IsCategory, &s.ParentServiceID, &s.Price, &s.BookingRules, &s.CancellationPolicy,
		&s.IncompatibleSameDayServices, &s.Images, &s.Deleted, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "service not found")
	}
	return &s, err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Service, error) {
	return scanService(r.conn(ctx).QueryRow(ctx,
		`SELECT `+serviceCols+` FROM services WHERE id = $1 AND NOT deleted`, id))
}

func (r *repoPG) List(ctx context.Context, activeOnly bool) ([]*Service, error) {
	q := `SELECT ` + serviceCols + ` FROM services WHERE NOT deleted`
	if activeOnly {
		q += ` AND active AND NOT is_category`
	}
	q += ` ORDER BY sort_order, name`

	rows, err := r.conn(ctx).Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, s *Service) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO services (id, name, description, duration_minutes, capacity, sort_order,
			active, is_category, parent_service_id, price, booking_rules, cancellation_policy,
			incompatible_same_day_services, images)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description, s.DurationMinutes, s.Capacity, s.Order,
		s.Active, s.IsCategory, s.ParentServiceID, s.Price, s.BookingRules, s.CancellationPolicy,
		s.IncompatibleSameDayServices, s.Images).Scan(&s.CreatedAt, &s.UpdatedAt)
	if db.IsConstraintViolation(err, db.CodeUniqueViolation) {
		return apperr.Newf(apperr.AlreadyExists, "service %q already exists", s.ID)
	}
	return err
}

func (r *repoPG) Update(ctx context.Context, s *Service) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE services SET name=$2, description=$3, duration_minutes=$4, capacity=$5, sort_order=$6,
			active=$7, is_category=$8, parent_service_id=$9, price=$10, booking_rules=$11,
			cancellation_policy=$12, incompatible_same_day_services=$13, images=$14, updated_at=NOW()
		WHERE id = $1 AND NOT deleted
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description, s.DurationMinutes, s.Capacity, s.Order,
		s.Active, s.IsCategory, s.ParentServiceID, s.Price, s.BookingRules,
		s.CancellationPolicy, s.IncompatibleSameDayServices, s.Images).Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.NotFound, "service not found")
	}
	return err
}

func (r *repoPG) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE services SET deleted = TRUE, active = FALSE, updated_at = NOW() WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "service not found")
	}
	return nil
}
