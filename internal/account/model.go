// Package account registers and authenticates marketplace users. Every state
// change records its domain event through the outbox in the same transaction.
package account

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleEVOwner Role = "EV_OWNER"
	RoleCCBuyer Role = "CC_BUYER"
	RoleCVA     Role = "CVA"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole accepts the wire name of a role. An empty name is EV_OWNER.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleEVOwner, RoleCCBuyer, RoleCVA, RoleAdmin:
		return r, nil
	case "":
		return RoleEVOwner, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
}

// User is the stored account. Role-specific attributes are only set for the
// role they belong to.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Enabled      bool
	PhoneNumber  string
	Region       string

	// EV_OWNER
	VehicleMake         string
	VehicleModel        string
	VehicleLicensePlate string
	// CC_BUYER
	OrganizationName string
	TaxID            string
	// CVA
	CertificationAgency string
	LicenseNumber       string

	CreatedAt   time.Time
	LastLoginAt *time.Time
}

type RegisterRequest struct {
	Username            string
	Email               string
	Password            string
	FirstName           string
	LastName            string
	Role                Role
	PhoneNumber         string
	Region              string
	VehicleMake         string
	VehicleModel        string
	LicensePlate        string
	OrganizationName    string
	TaxID               string
	CertificationAgency string
	LicenseNumber       string
}

type LoginRequest struct {
	// Username may also be the account email.
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// Summary is what register and login return to the caller.
type Summary struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Role        Role       `json:"role"`
	Enabled     bool       `json:"enabled"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	// EventID is the outbox event recorded by the operation.
	EventID string `json:"event_id"`
}

func (u *User) summary(eventID string) *Summary {
	return &Summary{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		Enabled:     u.Enabled,
		LastLoginAt: u.LastLoginAt,
		EventID:     eventID,
	}
}
