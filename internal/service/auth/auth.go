// Package auth glues credentials, tokens, verification codes and the role guard
// into the operations exposed to the HTTP layer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/contestgate/internal/apperrors"
	"github.com/nkiryanov/contestgate/internal/logger"
	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/repository"
	"github.com/nkiryanov/contestgate/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/contestgate/internal/service/codes"
	"github.com/nkiryanov/contestgate/internal/service/guard"
	"github.com/nkiryanov/contestgate/internal/service/mailer"
	"github.com/nkiryanov/contestgate/internal/service/user"
)

type Service struct {
	storage repository.Storage

	users  *user.UserService
	tokens *tokenmanager.TokenManager
	codes  *codes.Registry
	mailer mailer.Mailer

	logger logger.Logger
}

func NewService(
	storage repository.Storage,
	users *user.UserService,
	tokens *tokenmanager.TokenManager,
	registry *codes.Registry,
	m mailer.Mailer,
	l logger.Logger,
) (*Service, error) {
	if storage == nil || users == nil || tokens == nil || registry == nil {
		return nil, errors.New("storage, users, tokens and codes must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	if m == nil {
		m = mailer.NewLogMailer(l, false)
	}

	return &Service{
		storage: storage,
		users:   users,
		tokens:  tokens,
		codes:   registry,
		mailer:  m,
		logger:  l.WithGroup("auth"),
	}, nil
}

// Login exchanges email and password for a fresh token pair
func (s *Service) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	u, err := s.users.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			s.logger.Warn("Login failed", "email", codes.NormalizeEmail(email))
		}
		return models.TokenPair{}, err
	}

	var pair models.TokenPair
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		version, err := tx.User().GetRefreshVersion(ctx, u.ID)
		if err != nil {
			return err
		}

		pair, err = s.tokens.Issue(u.ID, u.Role, version)
		return err
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be issued. Err: %w", err)
	}

	s.logger.Info("User logged in", "user_id", u.ID)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair
// The stored version is read share-locked, so a concurrent LogoutEverywhere either comes first
// and the token is rejected, or waits and revokes the new pair as well
func (s *Service) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	userID, _, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	var pair models.TokenPair
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		version, err := tx.User().GetRefreshVersion(ctx, userID)
		if err != nil {
			return err
		}

		if _, err := s.tokens.VerifyRefresh(refresh, version); err != nil {
			return err
		}

		u, err := tx.User().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}

		pair, err = s.tokens.Issue(u.ID, u.Role, version)
		return err
	})

	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Signed by us for a user that is gone
		return models.TokenPair{}, fmt.Errorf("refresh token subject is unknown: %w", apperrors.ErrInvalidToken)
	default:
		return models.TokenPair{}, err
	}
}

// Authenticate validates the access token. No storage round trip
func (s *Service) Authenticate(access string) (models.Principal, error) {
	access = strings.TrimSpace(access)
	if access == "" {
		return models.Principal{}, apperrors.ErrUnauthenticated
	}
	return s.tokens.VerifyAccess(access)
}

func (s *Service) Authorize(p *models.Principal, required models.RoleSet) error {
	return guard.Authorize(p, required)
}

// LogoutEverywhere revokes every refresh token of the user
// Access tokens already issued stay valid until they expire
func (s *Service) LogoutEverywhere(ctx context.Context, userID uuid.UUID) error {
	version, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.Info("Refresh tokens revoked", "user_id", userID, "version", version)
	return nil
}

func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

type RegisterParams struct {
	Email    string
	Password string
	Role     models.Role

	// Proves the email belongs to the caller
	EmailCode string

	// Invite, required for elevated roles only
	RoleCode string
}

// Register creates the identity after both codes are consumed
// Everything runs in one transaction: a failed registration burns no code
// Attempts are counted before the transaction, so misses stay counted after its rollback
func (s *Service) Register(ctx context.Context, p RegisterParams) (models.TokenPair, error) {
	switch {
	case !p.Role.IsValid():
		return models.TokenPair{}, apperrors.ErrInvalidRole
	case p.Role == models.RoleAdmin:
		return models.TokenPair{}, fmt.Errorf("admins can't self register: %w", apperrors.ErrForbidden)
	case p.Password == "":
		return models.TokenPair{}, apperrors.ErrEmptyPassword
	}

	authAttempt, err := s.codes.BeginAuthAttempt(ctx, p.Email)
	if err != nil {
		return models.TokenPair{}, err
	}
	if !authAttempt.Allowed() {
		return models.TokenPair{}, apperrors.ErrCodeInvalidOrExpired
	}

	// Only attempts whose code was tried and missed stay counted
	authMissed, roleMissed := false, false
	var roleAttempt codes.Attempt
	defer func() {
		if !authMissed {
			s.codes.Release(ctx, authAttempt)
		}
		if !roleMissed {
			s.codes.Release(ctx, roleAttempt)
		}
	}()

	if p.Role.IsElevated() {
		roleAttempt, err = s.codes.BeginRoleAttempt(ctx, p.Role)
		if err != nil {
			return models.TokenPair{}, err
		}
		if !roleAttempt.Allowed() {
			return models.TokenPair{}, apperrors.ErrCodeInvalidOrExpired
		}
	}

	var pair models.TokenPair
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		registry := s.codes.WithStorage(tx)

		ok, err := registry.TakeAuthCode(ctx, p.Email, p.EmailCode)
		if err != nil {
			return err
		}
		if !ok {
			authMissed = true
			return apperrors.ErrCodeInvalidOrExpired
		}

		if p.Role.IsElevated() {
			ok, err := registry.TakeRoleCode(ctx, p.Role, p.RoleCode)
			if err != nil {
				return err
			}
			if !ok {
				roleMissed = true
				return apperrors.ErrCodeInvalidOrExpired
			}
		}

		u, err := s.users.WithStorage(tx).CreateUser(ctx, p.Email, p.Password, p.Role)
		if err != nil {
			return err
		}

		pair, err = s.tokens.Issue(u.ID, u.Role, u.RefreshTokenVersion)
		if err != nil {
			return err
		}

		s.logger.Info("User registered", "user_id", u.ID, "role", u.Role.String())
		return nil
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// ResetPassword sets a new password for the owner of a valid auth code
// and logs the user out everywhere
func (s *Service) ResetPassword(ctx context.Context, email string, code string, newPassword string) error {
	if newPassword == "" {
		return apperrors.ErrEmptyPassword
	}

	attempt, err := s.codes.BeginAuthAttempt(ctx, email)
	if err != nil {
		return err
	}
	if !attempt.Allowed() {
		return apperrors.ErrCodeInvalidOrExpired
	}

	missed := false
	defer func() {
		if !missed {
			s.codes.Release(ctx, attempt)
		}
	}()

	return s.storage.InTx(ctx, func(tx repository.Storage) error {
		ok, err := s.codes.WithStorage(tx).TakeAuthCode(ctx, email, code)
		if err != nil {
			return err
		}
		if !ok {
			missed = true
			return apperrors.ErrCodeInvalidOrExpired
		}

		users := s.users.WithStorage(tx)
		u, err := users.GetUserByEmail(ctx, email)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			// Same answer as for a wrong code: don't reveal which emails are registered
			return apperrors.ErrCodeInvalidOrExpired
		case err != nil:
			return err
		}

		if err := users.SetPassword(ctx, u.ID, newPassword); err != nil {
			return err
		}

		if _, err := s.tokens.WithStorage(tx).RevokeAll(ctx, u.ID); err != nil {
			return err
		}

		s.logger.Info("Password reset", "user_id", u.ID)
		return nil
	})
}

// RequestAuthCode issues a code for the email and sends it there
func (s *Service) RequestAuthCode(ctx context.Context, email string) error {
	code, err := s.codes.IssueAuthCode(ctx, email)
	if err != nil {
		return err
	}

	if err := s.mailer.SendAuthCode(ctx, codes.NormalizeEmail(email), code); err != nil {
		return fmt.Errorf("error while sending auth code. Err: %w", err)
	}
	return nil
}

func (s *Service) ConfirmAuthCode(ctx context.Context, email string, code string) (bool, error) {
	return s.codes.ConsumeAuthCode(ctx, email, code)
}

// RequestRoleCode issues an invite code for an elevated role
// The code is returned to the caller (an admin) who hands it to the invitee
func (s *Service) RequestRoleCode(ctx context.Context, role models.Role) (string, error) {
	return s.codes.IssueRoleCode(ctx, role)
}

func (s *Service) ConfirmRoleCode(ctx context.Context, role models.Role, code string) (bool, error) {
	return s.codes.ConsumeRoleCode(ctx, role, code)
}
