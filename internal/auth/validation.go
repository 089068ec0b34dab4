package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

const maxEmailLength = 254

// ValidateEmail parses and normalises an email address, returning the lowercased form. Returns ErrInvalidEmail if the
// format is invalid or the address exceeds the RFC 5321 maximum of 254 characters.
func ValidateEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", ErrInvalidEmail
	}

	normalised := strings.ToLower(addr.Address)

	if len(normalised) > maxEmailLength {
		return "", ErrInvalidEmail
	}

	return normalised, nil
}

// ValidateUsername checks a username is 3-32 characters and only contains letters, digits, and underscores.
// len() is used intentionally because usernameRegex restricts to ASCII, where byte count equals rune count.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 32 {
		return ErrUsernameLength
	}
	if !usernameRegex.MatchString(username) {
		return ErrUsernameInvalidChars
	}
	return nil
}

// ValidateDisplayName checks that a display name is between 2 and 64 characters. Display names are free-form text, so
// the bound is counted in runes rather than bytes.
func ValidateDisplayName(displayName string) error {
	n := utf8.RuneCountInString(displayName)
	if n < 2 || n > 64 {
		return ErrDisplayNameLength
	}
	return nil
}

// ValidatePassword checks that a password is between 8 and 128 characters.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if len(password) > 128 {
		return ErrPasswordTooLong
	}
	return nil
}
