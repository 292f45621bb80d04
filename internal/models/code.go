package models

import (
	"time"
)

// Proves control of an email address (registration, password reset)
type AuthCode struct {
	Code      string
	Email     string
	CreatedAt time.Time
}

// Allows self-registration into an elevated role
type RoleCode struct {
	Code      string
	Role      Role
	CreatedAt time.Time
}

// What a code attempt is counted against: an email for auth codes, a role for role codes
type CodeKind string

const (
	CodeKindAuth CodeKind = "auth"
	CodeKindRole CodeKind = "role"
)
