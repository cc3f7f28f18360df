package util

import (
	"errors"
	"html"
	"net/mail"
	"regexp"
	"strings"
)

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidOTPFormat = errors.New("otp code must be 6 digits")
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

// NormalizeEmail lowercases and trims an email address and rejects
// anything that does not parse as a bare RFC 5322 address.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", ErrInvalidEmail
	}

	return normalized, nil
}

// ValidateOTPFormat enforces the 6-digit numeric code contract.
func ValidateOTPFormat(code string) error {
	if !otpPattern.MatchString(code) {
		return ErrInvalidOTPFormat
	}
	return nil
}

// SanitizeInput escapes HTML/script-like characters in free-form input.
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
