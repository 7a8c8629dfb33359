package appointment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appointmentSelect = `SELECT a.id, a.patient_id, a.therapist_id, a.starts_at, a.ends_at, a.status,
	a.created_at, a.updated_at, p.name, tp.display_name, tp.user_id
	FROM appointment a
	JOIN patient p ON p.id = a.patient_id
	JOIN therapist_profile tp ON tp.id = a.therapist_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.TherapistID, &a.StartsAt, &a.EndsAt, &status,
		&a.CreatedAt, &a.UpdatedAt, &a.PatientName, &a.TherapistName, &a.TherapistUserID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("appointment not found")
		}
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, therapist_id, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.TherapistID, a.StartsAt, a.EndsAt, string(a.Status),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
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

func (r *repoPG) List(ctx context.Context, scope Scope, limit, offset int) ([]*Appointment, int, error) {
	where := ""
	var args []interface{}
	switch {
	case scope.All:
	case scope.TherapistUserID != nil:
		where = ` WHERE tp.user_id = $1`
		args = append(args, *scope.TherapistUserID)
	default:
		return []*Appointment{}, 0, nil
	}

	var total int
	countSQL := `SELECT COUNT(*) FROM appointment a JOIN therapist_profile tp ON tp.id = a.therapist_id` + where
	if err := r.conn(ctx).QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := appointmentSelect + where + ` ORDER BY a.starts_at, a.id`
	if len(args) == 0 {
		query += ` LIMIT $1 OFFSET $2`
	} else {
		query += ` LIMIT $2 OFFSET $3`
	}
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, appointmentSelect+` WHERE a.patient_id = $1 ORDER BY a.starts_at, a.id`, patientID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repoPG) GetNote(ctx context.Context, appointmentID uuid.UUID) (*SessionNote, error) {
	var n SessionNote
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, appointment_id, author_user_id, body, created_at, updated_at
		FROM session_note WHERE appointment_id = $1`, appointmentID,
	).Scan(&n.ID, &n.AppointmentID, &n.AuthorUserID, &n.Body, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("session note not found")
		}
		return nil, err
	}
	return &n, nil
}

func (r *repoPG) CreateNote(ctx context.Context, n *SessionNote) error {
	n.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO session_note (id, appointment_id, author_user_id, body)
		VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		n.ID, n.AppointmentID, n.AuthorUserID, n.Body).Scan(&n.CreatedAt, &n.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("session note already exists, use PATCH to update")
	}
	return err
}

func (r *repoPG) UpdateNote(ctx context.Context, n *SessionNote) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE session_note SET body = $2, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`, n.ID, n.Body).Scan(&n.UpdatedAt)
}
