package treatment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/db"
)

// =========== Package Repository ===========

type packageRepoPG struct{ pool *pgxpool.Pool }

func NewPackageRepoPG(pool *pgxpool.Pool) PackageRepository {
	return &packageRepoPG{pool: pool}
}

func (r *packageRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const pkgCols = `p.id, p.user_id, p.service_id, p.total_appointments, p.used_appointments,
	p.payment_amount::text, p.payment_method, p.payment_card_type, p.receipt_folio,
	p.purchased_at, p.purchased_by_admin`

func scanPackage(row pgx.Row, extra ...interface{}) (*Package, error) {
	var p Package
	var amount string
	dest := append([]interface{}{&p.ID, &p.UserID, &p.ServiceID, &p.TotalAppointments, &p.UsedAppointments,
		&amount, &p.Payment.Method, &p.Payment.CardType, &p.Payment.ReceiptFolio,
		&p.PurchasedAt, &p.PurchasedByAdmin}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "package not found")
		}
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("package %s amount %q: %w", p.ID, amount, err)
	}
	p.Payment.Amount = d
	return &p, nil
}

func (r *packageRepoPG) Create(ctx context.Context, p *Package) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO packages (id, user_id, service_id, total_appointments, used_appointments,
			payment_amount, payment_method, payment_card_type, receipt_folio, purchased_by_admin)
		VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10)
		RETURNING purchased_at`,
		p.ID, p.UserID, p.ServiceID, p.TotalAppointments, p.UsedAppointments,
		p.Payment.Amount.String(), p.Payment.Method, p.Payment.CardType, p.Payment.ReceiptFolio,
		p.PurchasedByAdmin).Scan(&p.PurchasedAt)
	if db.IsConstraintViolation(err, db.CodeForeignKeyViolation) {
		return apperr.New(apperr.NotFound, "user or service not found")
	}
	return err
}

func (r *packageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Package, error) {
	return scanPackage(r.conn(ctx).QueryRow(ctx, `SELECT `+pkgCols+` FROM packages p WHERE p.id = $1`, id))
}

func (r *packageRepoPG) ListByUser(ctx context.Context, userID string) ([]*Package, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+pkgCols+` FROM packages p WHERE p.user_id = $1 ORDER BY p.purchased_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *packageRepoPG) ConsumeSession(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE packages SET used_appointments = used_appointments + 1
		WHERE id = $1 AND used_appointments < total_appointments`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *packageRepoPG) ListSales(ctx context.Context, from, to time.Time) ([]*Sale, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+pkgCols+`, COALESCE(s.name, p.service_id),
			COALESCE(TRIM(u.nombre || ' ' || u.ap_paterno || ' ' || u.ap_materno), ''), COALESCE(u.email, '')
		FROM packages p
		LEFT JOIN services s ON s.id = p.service_id
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.purchased_at >= $1 AND p.purchased_at < $2
		ORDER BY p.purchased_at, p.id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Sale
	for rows.Next() {
		var s Sale
		p, err := scanPackage(rows, &s.ServiceName, &s.ClientName, &s.ClientEmail)
		if err != nil {
			return nil, err
		}
		s.Package = p
		items = append(items, &s)
	}
	return items, rows.Err()
}

// =========== History Repository ===========

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const historyCols = `id, package_id, timestamp, doctor_name, notes, photos`

func (r *historyRepoPG) Create(ctx context.Context, e *HistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Photos == nil {
		e.Photos = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO history_entries (id, package_id, doctor_name, notes, photos)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING timestamp`,
		e.ID, e.PackageID, e.DoctorName, e.Notes, e.Photos).Scan(&e.Timestamp)
}

func (r *historyRepoPG) ListByPackage(ctx context.Context, packageID uuid.UUID) ([]*HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+historyCols+` FROM history_entries WHERE package_id = $1 ORDER BY timestamp DESC, id`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.PackageID, &e.Timestamp, &e.DoctorName, &e.Notes, &e.Photos); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}

func (r *historyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM history_entries WHERE id = $1`, id)
	return err
}

func (r *historyRepoPG) UpdatePhotos(ctx context.Context, id uuid.UUID, photos []string) error {
	if photos == nil {
		photos = []string{}
	}
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE history_entries SET photos = $2 WHERE id = $1`, id, photos)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "history entry not found")
	}
	return nil
}
