package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/contestgate/internal/apperrors"
	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/repository"
	"github.com/nkiryanov/contestgate/internal/service/codes"
)

type UserService struct {
	hasher  PasswordHasher
	storage repository.Storage

	// Compared against when the email is unknown, so login takes the same time either way
	dummyHash string
}

func NewService(hasher PasswordHasher, storage repository.Storage) (*UserService, error) {
	if hasher == nil {
		hasher = DefaultHasher
	}

	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("hasher is not usable. Err: %w", err)
	}

	return &UserService{
		hasher:    hasher,
		storage:   storage,
		dummyHash: dummyHash,
	}, nil
}

// WithStorage returns a copy of the service bound to storage (usually a transaction)
func (s *UserService) WithStorage(storage repository.Storage) *UserService {
	c := *s
	c.storage = storage
	return &c
}

func (s *UserService) CreateUser(ctx context.Context, email string, password string, role models.Role) (models.User, error) {
	var user models.User

	if !role.IsValid() {
		return user, apperrors.ErrInvalidRole
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, codes.NormalizeEmail(email), hash, role)
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Login checks the credentials and returns the user they belong to
// Unknown email and wrong password are indistinguishable: both are ErrInvalidCredentials
func (s *UserService) Login(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, codes.NormalizeEmail(email))

	switch {
	case err == nil:
		if !s.hasher.Compare(user.HashedPassword, password) {
			return models.User{}, apperrors.ErrInvalidCredentials
		}
		return user, nil
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.hasher.Compare(s.dummyHash, password)
		return models.User{}, apperrors.ErrInvalidCredentials
	default:
		return models.User{}, err
	}
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.storage.User().GetUserByEmail(ctx, codes.NormalizeEmail(email))
}

// SetPassword replaces the password hash. Refresh tokens are not touched here
func (s *UserService) SetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("can't use this as password. Err: %w", err)
	}

	return s.storage.User().UpdatePassword(ctx, userID, hash)
}
