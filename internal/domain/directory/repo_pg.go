package directory

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/db"
)

// =========== Profile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{pool: pool} }

func (r *profileRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const profileCols = `id, user_id, clinic_id, display_name, bio, specialties, languages,
	price_min, price_max, city, remote_available, created_at, updated_at`

func scanProfile(row pgx.Row) (*TherapistProfile, error) {
	var p TherapistProfile
	err := row.Scan(&p.ID, &p.UserID, &p.ClinicID, &p.DisplayName, &p.Bio, &p.Specialties, &p.Languages,
		&p.PriceMin, &p.PriceMax, &p.City, &p.RemoteAvailable, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("therapist not found")
		}
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *TherapistProfile) error {
	p.ID = uuid.New()
	if p.Specialties == nil {
		p.Specialties = []string{}
	}
	if p.Languages == nil {
		p.Languages = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO therapist_profile (id, user_id, clinic_id, display_name, bio, specialties, languages,
			price_min, price_max, city, remote_available)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.ClinicID, p.DisplayName, p.Bio, p.Specialties, p.Languages,
		p.PriceMin, p.PriceMax, p.City, p.RemoteAvailable).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("a therapist profile already exists for this user")
	}
	return err
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TherapistProfile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM therapist_profile WHERE id = $1`, id))
}

func (r *profileRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*TherapistProfile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM therapist_profile WHERE user_id = $1`, userID))
}

func (r *profileRepoPG) List(ctx context.Context, limit, offset int) ([]*TherapistProfile, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM therapist_profile`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+profileCols+` FROM therapist_profile
		ORDER BY display_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TherapistProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *slotRepoPG) Create(ctx context.Context, s *AvailabilitySlot) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_slot (id, therapist_id, weekday, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.TherapistID, s.Weekday, s.StartTime, s.EndTime)
	return err
}

func (r *slotRepoPG) ListByTherapist(ctx context.Context, therapistID uuid.UUID) ([]*AvailabilitySlot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, therapist_id, weekday, start_time, end_time FROM availability_slot
		WHERE therapist_id = $1 ORDER BY weekday, start_time`, therapistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AvailabilitySlot
	for rows.Next() {
		var s AvailabilitySlot
		if err := rows.Scan(&s.ID, &s.TherapistID, &s.Weekday, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}
