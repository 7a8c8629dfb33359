package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrRoleChanged is returned by Upsert when the row exists with a different
// role. A user's role is fixed once stored.
var ErrRoleChanged = errors.New("user role cannot change")

type UserRepository interface {
	// Upsert inserts u, or refreshes the staff flag on an existing row with
	// the same role. Empty email and display name never overwrite stored
	// values. A role mismatch leaves the row untouched and returns
	// ErrRoleChanged.
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
