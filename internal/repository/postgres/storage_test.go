package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/repository"
	"github.com/nkiryanov/contestgate/internal/testutil"
)

func Test_StorageInTx(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Half of a multi-step flow: user created, next step not done yet
	createUser := func(t *testing.T, s repository.Storage) {
		_, err := s.User().CreateUser(t.Context(), "coach@example.com", "hash", models.RoleCoach)
		require.NoError(t, err)
	}

	t.Run("commit on success", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			err := NewStorage(tx).InTx(t.Context(), func(s repository.Storage) error {
				createUser(t, s)
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, 1, testutil.CountRows(t, tx, "users"))
		})
	})

	t.Run("rollback on error", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			failed := errors.New("next step failed")

			err := NewStorage(tx).InTx(t.Context(), func(s repository.Storage) error {
				createUser(t, s)
				return failed
			})

			require.ErrorIs(t, err, failed)
			assert.Zero(t, testutil.CountRows(t, tx, "users"))
		})
	})

	t.Run("rollback on panic", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			require.PanicsWithValue(t, "next step panicked", func() {
				_ = NewStorage(tx).InTx(t.Context(), func(s repository.Storage) error {
					createUser(t, s)
					panic("next step panicked")
				})
			}, "panic has to reach the caller")

			assert.Zero(t, testutil.CountRows(t, tx, "users"), "nothing of the panicked tx may be committed")
		})
	})
}
