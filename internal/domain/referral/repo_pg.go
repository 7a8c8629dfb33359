package referral

import (
	"context"
	"fmt"
	"strings"

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

const referralSelect = `SELECT r.id, r.clinic_id, r.requester_user_id, r.patient_name, r.patient_email,
	r.reason, r.status, r.assigned_therapist_id, tp.user_id, r.created_at, r.updated_at
	FROM referral r LEFT JOIN therapist_profile tp ON tp.id = r.assigned_therapist_id`

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	var status string
	err := row.Scan(&ref.ID, &ref.ClinicID, &ref.RequesterUserID, &ref.PatientName, &ref.PatientEmail,
		&ref.Reason, &status, &ref.AssignedTherapistID, &ref.AssignedTherapistUserID,
		&ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("referral not found")
		}
		return nil, err
	}
	ref.Status = Status(status)
	return &ref, nil
}

func (r *repoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referral (id, clinic_id, requester_user_id, patient_name, patient_email, reason, status, assigned_therapist_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		ref.ID, ref.ClinicID, ref.RequesterUserID, ref.PatientName, ref.PatientEmail,
		ref.Reason, string(ref.Status), ref.AssignedTherapistID,
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx, referralSelect+` WHERE r.id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx, referralSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id))
}

func (r *repoPG) UpdateIfStatus(ctx context.Context, ref *Referral, prior Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral SET status = $3, assigned_therapist_id = $4, reason = $5, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		ref.ID, string(prior), string(ref.Status), ref.AssignedTherapistID, ref.Reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// whereClause builds the scope predicate and its positional arguments.
func whereClause(s Scope) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(expr string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	switch {
	case s.All:
	case s.AssignedTherapistUserID != nil:
		add("tp.user_id = $%d", *s.AssignedTherapistUserID)
	case s.RequesterUserID != nil:
		add("r.requester_user_id = $%d", *s.RequesterUserID)
	default:
		conds = append(conds, "FALSE")
	}
	if s.Status != "" {
		add("r.status = $%d", string(s.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) List(ctx context.Context, scope Scope, limit, offset int) ([]*Referral, int, error) {
	where, args := whereClause(scope)

	var total int
	countSQL := `SELECT COUNT(*) FROM referral r LEFT JOIN therapist_profile tp ON tp.id = r.assigned_therapist_id` + where
	if err := r.conn(ctx).QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := referralSelect + where + fmt.Sprintf(` ORDER BY r.created_at DESC, r.id LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ref)
	}
	return items, total, rows.Err()
}

func (r *repoPG) AddNote(ctx context.Context, n *Note) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referral_note (id, referral_id, author_user_id, body)
		VALUES ($1, $2, $3, $4) RETURNING created_at`,
		n.ID, n.ReferralID, n.AuthorUserID, n.Body).Scan(&n.CreatedAt)
}

func (r *repoPG) ListNotes(ctx context.Context, referralID uuid.UUID) ([]*Note, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, referral_id, author_user_id, body, created_at FROM referral_note
		WHERE referral_id = $1 ORDER BY created_at, id`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.ReferralID, &n.AuthorUserID, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &n)
	}
	return items, rows.Err()
}

func (r *repoPG) AddQuestionnaire(ctx context.Context, q *Questionnaire) error {
	q.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO questionnaire (id, referral_id, type, answers, score)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		q.ID, q.ReferralID, string(q.Type), q.Answers, q.Score).Scan(&q.CreatedAt)
}

func (r *repoPG) ListQuestionnaires(ctx context.Context, referralID uuid.UUID) ([]*Questionnaire, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, referral_id, type, answers, score, created_at FROM questionnaire
		WHERE referral_id = $1 ORDER BY created_at, id`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Questionnaire
	for rows.Next() {
		var q Questionnaire
		var qtype string
		if err := rows.Scan(&q.ID, &q.ReferralID, &qtype, &q.Answers, &q.Score, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Type = QuestionnaireType(qtype)
		items = append(items, &q)
	}
	return items, rows.Err()
}
