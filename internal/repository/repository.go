package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/contestgate/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, hashedPassword string, role models.Role) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Current refresh token version
	// Inside a transaction the row is share-locked, so a concurrent increment waits for the tx end
	GetRefreshVersion(ctx context.Context, userID uuid.UUID) (int64, error)

	// Atomically increment refresh token version and return the new one
	IncrementRefreshVersion(ctx context.Context, userID uuid.UUID) (int64, error)

	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
}

// Verification code repository interface
type CodeRepo interface {
	// Store the code for email replacing the previous one in the same statement,
	// so concurrent issuers leave exactly one code behind
	PutAuthCode(ctx context.Context, code models.AuthCode) error

	// Delete the code if it exists for email and created not before 'notBefore'
	// Return true only to the caller that actually deleted the row
	FindAndDeleteAuthCode(ctx context.Context, email string, code string, notBefore time.Time) (bool, error)

	InsertRoleCode(ctx context.Context, code models.RoleCode) error
	FindAndDeleteRoleCode(ctx context.Context, role models.Role, code string, notBefore time.Time) (bool, error)

	// Remove codes that are dead already
	DeleteAuthCodesCreatedBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteRoleCodesCreatedBefore(ctx context.Context, before time.Time) (int64, error)

	// Count one more attempt to use a code of kind for subject and return the attempts made in the current window
	// A window started before 'windowStart' is restarted at 'now'
	CountCodeAttempt(ctx context.Context, kind models.CodeKind, subject string, now time.Time, windowStart time.Time) (int, error)

	// Give back an attempt whose code matched
	ReleaseCodeAttempt(ctx context.Context, kind models.CodeKind, subject string) error

	DeleteCodeAttemptsBefore(ctx context.Context, before time.Time) (int64, error)
}

type Storage interface {
	User() UserRepo
	Code() CodeRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
