package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, role, is_staff, email, display_name, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &role, &u.Staff, &u.Email, &u.DisplayName, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

func (r *userRepoPG) Upsert(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (id, role, is_staff, email, display_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			is_staff = EXCLUDED.is_staff,
			email = COALESCE(NULLIF(EXCLUDED.email, ''), app_user.email),
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), app_user.display_name)
		WHERE app_user.role = EXCLUDED.role
		RETURNING created_at`,
		u.ID, string(u.Role), u.Staff, u.Email, u.DisplayName).Scan(&u.CreatedAt)
	if db.IsNoRows(err) {
		return ErrRoleChanged
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

func (r *userRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM app_user WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}
