package account

import "errors"

var (
	ErrUsernameTaken      = errors.New("Username is already taken")
	ErrEmailTaken         = errors.New("Email is already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	// ErrValidation wraps every request validation failure.
	ErrValidation = errors.New("invalid request")
)
