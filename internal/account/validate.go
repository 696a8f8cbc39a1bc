package account

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
	phonePattern    = regexp.MustCompile(`^[0-9]{10,15}$`)
)

const passwordSpecials = "@$!%*?&"

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func (r *RegisterRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.Role == "" {
		r.Role = RoleEVOwner
	}
}

func (r *RegisterRequest) validate() error {
	if !usernamePattern.MatchString(r.Username) {
		return invalid("username must be 3-50 letters, digits or underscores")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil || strings.ContainsAny(r.Email, "<> ") {
		return invalid("email must be valid")
	}
	if err := validatePassword(r.Password); err != nil {
		return err
	}
	if r.FirstName == "" || len(r.FirstName) > 50 {
		return invalid("first name is required and must not exceed 50 characters")
	}
	if r.LastName == "" || len(r.LastName) > 50 {
		return invalid("last name is required and must not exceed 50 characters")
	}
	if _, err := ParseRole(string(r.Role)); err != nil {
		return err
	}
	if r.PhoneNumber != "" && !phonePattern.MatchString(r.PhoneNumber) {
		return invalid("phone number must be 10-15 digits")
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"vehicle make", r.VehicleMake, 100},
		{"vehicle model", r.VehicleModel, 100},
		{"vehicle license plate", r.LicensePlate, 50},
		{"organization name", r.OrganizationName, 200},
		{"tax id", r.TaxID, 100},
		{"certification agency", r.CertificationAgency, 200},
		{"license number", r.LicenseNumber, 100},
	} {
		if len(f.value) > f.max {
			return invalid("%s must not exceed %d characters", f.name, f.max)
		}
	}
	return nil
}

func validatePassword(p string) error {
	if len(p) < 8 {
		return invalid("password must be at least 8 characters")
	}
	var lower, upper, digit, special bool
	for _, c := range p {
		switch {
		case unicode.IsLower(c):
			lower = true
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsDigit(c):
			digit = true
		case strings.ContainsRune(passwordSpecials, c):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return invalid("password must contain an uppercase letter, a lowercase letter, a number and one of %s", passwordSpecials)
	}
	return nil
}
