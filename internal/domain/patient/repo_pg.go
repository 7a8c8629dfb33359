package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/db"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientSelect = `SELECT p.id, p.clinic_id, p.owner_therapist_id, p.referral_id, p.name, p.email, p.phone,
	p.consent_flags, p.created_at, p.updated_at, c.name, tp.display_name, tp.user_id
	FROM patient p
	JOIN clinic c ON c.id = p.clinic_id
	JOIN therapist_profile tp ON tp.id = p.owner_therapist_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ClinicID, &p.OwnerTherapistID, &p.ReferralID, &p.Name, &p.Email, &p.Phone,
		&p.ConsentFlags, &p.CreatedAt, &p.UpdatedAt, &p.ClinicName, &p.OwnerTherapistName, &p.OwnerUserID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("patient not found")
		}
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) CreateFromReferral(ctx context.Context, p *Patient) (bool, error) {
	if p.ConsentFlags == nil {
		p.ConsentFlags = map[string]bool{}
	}
	id := uuid.New()
	var insertedID uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, clinic_id, owner_therapist_id, referral_id, name, email, phone, consent_flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (referral_id) DO NOTHING
		RETURNING id`,
		id, p.ClinicID, p.OwnerTherapistID, p.ReferralID, p.Name, p.Email, p.Phone, p.ConsentFlags,
	).Scan(&insertedID)
	created := true
	switch {
	case db.IsNoRows(err):
		created = false
	case err != nil:
		return false, err
	}

	var stored *Patient
	if created {
		stored, err = r.GetByID(ctx, insertedID)
	} else {
		stored, err = scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE p.referral_id = $1`, p.ReferralID))
	}
	if err != nil {
		return false, err
	}
	*p = *stored
	return created, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE p.id = $1`, id))
}

func whereClause(s Scope) (string, []interface{}) {
	if s.All {
		return "", nil
	}
	if s.UserID == nil {
		return " WHERE FALSE", nil
	}
	args := []interface{}{*s.UserID}
	grant := `EXISTS (SELECT 1 FROM patient_access pa WHERE pa.patient_id = p.id AND pa.user_id = $1`
	if s.GrantType != "" {
		args = append(args, string(s.GrantType))
		grant += fmt.Sprintf(` AND pa.access_type = $%d`, len(args))
	}
	grant += ")"
	conds := []string{grant}
	if s.IncludeOwned {
		conds = append(conds, "tp.user_id = $1")
	}
	return " WHERE (" + strings.Join(conds, " OR ") + ")", args
}

func (r *repoPG) List(ctx context.Context, scope Scope, limit, offset int) ([]*Patient, int, error) {
	where, args := whereClause(scope)

	var total int
	countSQL := `SELECT COUNT(*) FROM patient p JOIN therapist_profile tp ON tp.id = p.owner_therapist_id` + where
	if err := r.conn(ctx).QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := patientSelect + where + fmt.Sprintf(` ORDER BY p.name, p.id LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListAccess(ctx context.Context, patientID uuid.UUID) ([]*Access, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, user_id, access_type, created_at FROM patient_access
		WHERE patient_id = $1 ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Access
	for rows.Next() {
		var a Access
		var accessType string
		if err := rows.Scan(&a.ID, &a.PatientID, &a.UserID, &accessType, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.AccessType = policy.AccessType(accessType)
		items = append(items, &a)
	}
	return items, rows.Err()
}

func (r *repoPG) CreateAccess(ctx context.Context, a *Access) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_access (id, patient_id, user_id, access_type)
		VALUES ($1, $2, $3, $4) RETURNING created_at`,
		a.ID, a.PatientID, a.UserID, string(a.AccessType)).Scan(&a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("user already has access to this patient")
	}
	return err
}

func (r *repoPG) EnsureAccess(ctx context.Context, a *Access) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_access (id, patient_id, user_id, access_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, user_id) DO NOTHING`,
		a.ID, a.PatientID, a.UserID, string(a.AccessType))
	return err
}
