package account

import (
	"context"
	"time"
)

// Repository stores users. Implementations join the transaction carried by
// ctx. Create returns ErrUsernameTaken or ErrEmailTaken on a unique conflict;
// lookups return persistence.ErrEntityNotFound.
type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
