// Package pgrepo stores users in the users table.
package pgrepo

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/co2market/auth-service/internal/account"
	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/co2market/auth-service/pkg/persistence/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration creates the users table.
func Migration() postgres.Migration {
	return postgres.Migration{
		Name:  "users",
		FS:    migrationsFS,
		Dir:   "migrations",
		Table: "users_schema_migrations",
	}
}

const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

type row struct {
	ID                  string     `db:"id"`
	Username            string     `db:"username"`
	Email               string     `db:"email"`
	PasswordHash        string     `db:"password_hash"`
	FirstName           string     `db:"first_name"`
	LastName            string     `db:"last_name"`
	Role                string     `db:"role"`
	Enabled             bool       `db:"enabled"`
	PhoneNumber         *string    `db:"phone_number"`
	Region              *string    `db:"region"`
	VehicleMake         *string    `db:"vehicle_make"`
	VehicleModel        *string    `db:"vehicle_model"`
	VehicleLicensePlate *string    `db:"vehicle_license_plate"`
	OrganizationName    *string    `db:"organization_name"`
	TaxID               *string    `db:"tax_id"`
	CertificationAgency *string    `db:"certification_agency"`
	LicenseNumber       *string    `db:"license_number"`
	CreatedAt           time.Time  `db:"created_at"`
	LastLoginAt         *time.Time `db:"last_login_at"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r row) toUser() *account.User {
	u := &account.User{
		ID:                  r.ID,
		Username:            r.Username,
		Email:               r.Email,
		PasswordHash:        r.PasswordHash,
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		Role:                account.Role(r.Role),
		Enabled:             r.Enabled,
		PhoneNumber:         deref(r.PhoneNumber),
		Region:              deref(r.Region),
		VehicleMake:         deref(r.VehicleMake),
		VehicleModel:        deref(r.VehicleModel),
		VehicleLicensePlate: deref(r.VehicleLicensePlate),
		OrganizationName:    deref(r.OrganizationName),
		TaxID:               deref(r.TaxID),
		CertificationAgency: deref(r.CertificationAgency),
		LicenseNumber:       deref(r.LicenseNumber),
		CreatedAt:           r.CreatedAt.UTC(),
	}
	if r.LastLoginAt != nil {
		at := r.LastLoginAt.UTC()
		u.LastLoginAt = &at
	}
	return u
}

type repository struct {
	db postgres.DB
}

func New(db postgres.DB) account.Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, u *account.User) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, role, enabled,
			phone_number, region, vehicle_make, vehicle_model, vehicle_license_plate,
			organization_name, tax_id, certification_agency, license_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role), u.Enabled,
		nullable(u.PhoneNumber), nullable(u.Region), nullable(u.VehicleMake), nullable(u.VehicleModel),
		nullable(u.VehicleLicensePlate), nullable(u.OrganizationName), nullable(u.TaxID),
		nullable(u.CertificationAgency), nullable(u.LicenseNumber), u.CreatedAt,
	)
	if err != nil {
		return translateDuplicate(err)
	}
	return nil
}

func translateDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case usernameConstraint:
			return account.ErrUsernameTaken
		case emailConstraint:
			return account.ErrEmailTaken
		}
	}
	return fmt.Errorf("failed to insert user: %w", postgres.TranslateError(err))
}

func (r *repository) findOne(ctx context.Context, column, value string) (*account.User, error) {
	// column is one of the fixed lookup columns below.
	rows, err := r.db.Conn(ctx).Query(ctx, `SELECT * FROM users WHERE `+column+` = $1`, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	res, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[row])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, persistence.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return res.toUser(), nil
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*account.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*account.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

func (r *repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

func (r *repository) exists(ctx context.Context, query, value string) (bool, error) {
	var ok bool
	if err := r.db.Conn(ctx).QueryRow(ctx, query, value).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return ok, nil
}

func (r *repository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrEntityNotFound
	}
	return nil
}
