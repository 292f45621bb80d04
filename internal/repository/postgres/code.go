package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/contestgate/internal/models"
)

type CodeRepo struct {
	DB DBTX
}

// Email is unique: a concurrent issuer waits on the index entry and then overwrites
const putAuthCode = `-- name: PutAuthCode
INSERT INTO auth_codes (email, code, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE
SET code = EXCLUDED.code, created_at = EXCLUDED.created_at
`

func (r *CodeRepo) PutAuthCode(ctx context.Context, code models.AuthCode) error {
	_, err := r.DB.Exec(ctx, putAuthCode, code.Email, code.Code, code.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Single statement: the row lock taken by DELETE makes concurrent callers wait,
// the loser re-checks the row and finds it gone
const findAndDeleteAuthCode = `-- name: FindAndDeleteAuthCode
DELETE FROM auth_codes
WHERE email = $1 AND code = $2 AND created_at >= $3
RETURNING id
`

func (r *CodeRepo) FindAndDeleteAuthCode(ctx context.Context, email string, code string, notBefore time.Time) (bool, error) {
	rows, _ := r.DB.Query(ctx, findAndDeleteAuthCode, email, code, notBefore)
	return collectDeleted(rows)
}

const insertRoleCode = `-- name: InsertRoleCode
INSERT INTO role_codes (role, code, created_at)
VALUES ($1, $2, $3)
`

func (r *CodeRepo) InsertRoleCode(ctx context.Context, code models.RoleCode) error {
	_, err := r.DB.Exec(ctx, insertRoleCode, code.Role.String(), code.Code, code.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const findAndDeleteRoleCode = `-- name: FindAndDeleteRoleCode
DELETE FROM role_codes
WHERE role = $1 AND code = $2 AND created_at >= $3
RETURNING id
`

func (r *CodeRepo) FindAndDeleteRoleCode(ctx context.Context, role models.Role, code string, notBefore time.Time) (bool, error) {
	rows, _ := r.DB.Query(ctx, findAndDeleteRoleCode, role.String(), code, notBefore)
	return collectDeleted(rows)
}

const deleteAuthCodesCreatedBefore = `-- name: DeleteAuthCodesCreatedBefore
DELETE FROM auth_codes
WHERE created_at < $1
`

func (r *CodeRepo) DeleteAuthCodesCreatedBefore(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, deleteAuthCodesCreatedBefore, before)
}

const deleteRoleCodesCreatedBefore = `-- name: DeleteRoleCodesCreatedBefore
DELETE FROM role_codes
WHERE created_at < $1
`

func (r *CodeRepo) DeleteRoleCodesCreatedBefore(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, deleteRoleCodesCreatedBefore, before)
}

const countCodeAttempt = `-- name: CountCodeAttempt
INSERT INTO code_attempts (kind, subject, attempts, window_started_at)
VALUES ($1, $2, 1, $3)
ON CONFLICT (kind, subject) DO UPDATE
SET attempts = CASE
        WHEN code_attempts.window_started_at < $4 THEN 1
        ELSE code_attempts.attempts + 1
    END,
    window_started_at = CASE
        WHEN code_attempts.window_started_at < $4 THEN EXCLUDED.window_started_at
        ELSE code_attempts.window_started_at
    END
RETURNING attempts
`

func (r *CodeRepo) CountCodeAttempt(ctx context.Context, kind models.CodeKind, subject string, now time.Time, windowStart time.Time) (int, error) {
	var attempts int
	err := r.DB.QueryRow(ctx, countCodeAttempt, string(kind), subject, now, windowStart).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

const releaseCodeAttempt = `-- name: ReleaseCodeAttempt
UPDATE code_attempts
SET attempts = attempts - 1
WHERE kind = $1 AND subject = $2 AND attempts > 0
`

func (r *CodeRepo) ReleaseCodeAttempt(ctx context.Context, kind models.CodeKind, subject string) error {
	_, err := r.exec(ctx, releaseCodeAttempt, string(kind), subject)
	return err
}

const deleteCodeAttemptsBefore = `-- name: DeleteCodeAttemptsBefore
DELETE FROM code_attempts
WHERE window_started_at < $1
`

func (r *CodeRepo) DeleteCodeAttemptsBefore(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, deleteCodeAttemptsBefore, before)
}

func (r *CodeRepo) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := r.DB.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Several role codes may match if the same value was issued twice for a role; all of them are gone now
func collectDeleted(rows pgx.Rows) (bool, error) {
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])

	switch {
	case err == nil:
		return len(ids) > 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("db error: %w", err)
	}
}
