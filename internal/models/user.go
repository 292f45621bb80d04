package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Email          string
	HashedPassword string
	Role           Role

	// Bumped to revoke every refresh token issued for the user
	RefreshTokenVersion int64
}

// Authenticated caller: taken from a validated access token only
type Principal struct {
	UserID uuid.UUID
	Role   Role
}
