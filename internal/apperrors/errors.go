package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrEmptyPassword = errors.New("password must not be empty")
	ErrInvalidRole   = errors.New("role is invalid")

	// Login failed: unknown email or wrong password, never tells which one
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token is malformed, not signed with the expected key or expired
	ErrInvalidToken = errors.New("token is invalid")

	// Refresh token is well formed but its version no longer matches the stored one
	ErrRevokedToken = errors.New("token is revoked")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Verification or invite code is wrong, expired or already used
	ErrCodeInvalidOrExpired = errors.New("code is invalid or expired")
)
