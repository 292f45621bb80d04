package guard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/contestgate/internal/apperrors"
	"github.com/nkiryanov/contestgate/internal/models"
)

func Test_Authorize(t *testing.T) {
	principal := func(role models.Role) *models.Principal {
		return &models.Principal{UserID: uuid.New(), Role: role}
	}

	tests := []struct {
		name      string
		principal *models.Principal
		required  models.RoleSet
		wantErr   error
	}{
		{
			name:      "role in set",
			principal: principal(models.RoleCoach),
			required:  models.Roles(models.RoleCoach, models.RoleAdmin),
		},
		{
			name:      "every role",
			principal: principal(models.RoleStudent),
			required:  models.Roles(models.AllRoles()...),
		},
		{
			name:      "role not in set",
			principal: principal(models.RoleStudent),
			required:  models.Roles(models.RoleAdmin),
			wantErr:   apperrors.ErrForbidden,
		},
		{
			name:      "empty set forbids everyone",
			principal: principal(models.RoleAdmin),
			required:  models.Roles(),
			wantErr:   apperrors.ErrForbidden,
		},
		{
			name:      "invalid role forbidden",
			principal: principal(models.Role(0)),
			required:  models.Roles(models.AllRoles()...),
			wantErr:   apperrors.ErrForbidden,
		},
		{
			name:      "no principal",
			principal: nil,
			required:  models.Roles(models.RoleStudent),
			wantErr:   apperrors.ErrUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.principal, tt.required)

			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("unauthenticated is not forbidden", func(t *testing.T) {
		err := Authorize(nil, models.Roles(models.RoleStudent))

		require.NotErrorIs(t, err, apperrors.ErrForbidden, "callers must tell 401 from 403")
	})
}
