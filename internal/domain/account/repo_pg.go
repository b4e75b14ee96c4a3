package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const userCols = `id, role, email, nombre, ap_paterno, ap_materno, telefono, sexo,
	fecha_nacimiento, auth_provider, perfil_completado, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Role, &u.Email, &u.Nombre, &u.ApPaterno, &u.ApMaterno, &u.Telefono, &u.Sexo,
		&u.FechaNacimiento, &u.AuthProvider, &u.PerfilCompletado, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	return &u, err
}

func (r *userRepoPG) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) UpsertProfile(ctx context.Context, u *User) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, role, email, nombre, ap_paterno, ap_materno, telefono, sexo,
			fecha_nacimiento, auth_provider, perfil_completado)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, nombre = EXCLUDED.nombre, ap_paterno = EXCLUDED.ap_paterno,
			ap_materno = EXCLUDED.ap_materno, telefono = EXCLUDED.telefono, sexo = EXCLUDED.sexo,
			fecha_nacimiento = EXCLUDED.fecha_nacimiento, auth_provider = EXCLUDED.auth_provider,
			perfil_completado = EXCLUDED.perfil_completado, updated_at = NOW()
		RETURNING `+userCols,
		u.ID, u.Role, u.Email, u.Nombre, u.ApPaterno, u.ApMaterno, u.Telefono, u.Sexo,
		u.FechaNacimiento, u.AuthProvider, u.PerfilCompletado)
	stored, err := scanUser(row)
	if err != nil {
		return err
	}
	*u = *stored
	return nil
}

func (r *userRepoPG) UpdateRole(ctx context.Context, id string, role auth.Role) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userCols, id, role))
}

func (r *userRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "user not found")
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, f ListFilter) ([]*User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != "" {
		query += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.Search != "" {
		query += fmt.Sprintf(` AND (email ILIKE $%d OR nombre ILIKE $%d OR ap_paterno ILIKE $%d)`, idx, idx, idx)
		args = append(args, escapeLike(f.Search)+"%")
		idx++
	}
	if f.AfterID != "" {
		query += fmt.Sprintf(` AND (email, id) > ($%d, $%d)`, idx, idx+1)
		args = append(args, f.AfterEmail, f.AfterID)
		idx += 2
	}
	query += fmt.Sprintf(` ORDER BY email, id LIMIT $%d`, idx)
	args = append(args, f.Limit)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
