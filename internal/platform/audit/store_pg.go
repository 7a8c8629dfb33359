package audit

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

// StorePG writes to the audit_event table. UPDATE and DELETE on that table
// are rejected by a trigger; this type only ever inserts.
type StorePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) *StorePG {
	return &StorePG{pool: pool}
}

func (s *StorePG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

const eventCols = `id, actor_id, action, entity_type, entity_id, metadata, ip, user_agent, created_at`

func (s *StorePG) Append(ctx context.Context, e *Event) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO audit_event (`+eventCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ActorID, string(e.Action), e.EntityType, e.EntityID,
		e.Metadata, e.ClientIP, e.UserAgent, e.CreatedAt,
	)
	return err
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var action string
	if err := row.Scan(&e.ID, &e.ActorID, &action, &e.EntityType, &e.EntityID,
		&e.Metadata, &e.ClientIP, &e.UserAgent, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Action = Action(action)
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	return &e, nil
}

func (s *StorePG) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	e, err := scanEvent(s.conn(ctx).QueryRow(ctx,
		`SELECT `+eventCols+` FROM audit_event WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("audit event not found")
	}
	return e, err
}

// whereClause renders f as a SQL condition with positional args.
func whereClause(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.EntityType != "" {
		add("entity_type = $%d", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *StorePG) List(ctx context.Context, f Filter, limit, offset int) ([]*Event, int, error) {
	where, args := whereClause(f)

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM audit_event`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM audit_event%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		eventCols, where, len(args)+1, len(args)+2)
	rows, err := s.conn(ctx).Query(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var items []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
