package auth

import "errors"

// Sentinel errors for the auth package.
var (
	ErrInvalidEmail         = errors.New("invalid email format")
	ErrUsernameLength       = errors.New("username must be between 3 and 32 characters")
	ErrUsernameInvalidChars = errors.New("username may only contain letters, digits, and underscores")
	ErrDisplayNameLength    = errors.New("display name must be between 2 and 64 characters")
	ErrPasswordTooShort     = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong      = errors.New("password must be at most 128 characters")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrMFARequired          = errors.New("MFA code required")
	ErrInvalidMFACode       = errors.New("invalid MFA code")
	ErrMFANotSetup          = errors.New("MFA setup has not been started")
	ErrMFANotEnabled        = errors.New("MFA is not enabled on this account")
	ErrMFAAlreadyEnabled    = errors.New("MFA is already enabled on this account")
)
