package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/contestgate/internal/apperrors"
	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

type RefreshTokenClaims struct {
	jwt.RegisteredClaims
	Version int64 `json:"ver"`
}

// Token manager with sensible default
type Config struct {
	// Secrets to sign access and refresh tokens
	// Both required and must differ: a leaked access key must not forge refresh tokens
	AccessSecretKey  string
	RefreshSecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock, time.Now if nil
	Now func() time.Time
}

type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time

	// Holds refresh token versions
	storage repository.Storage
}

func New(cfg Config, storage repository.Storage) (*TokenManager, error) {
	if cfg.AccessSecretKey == "" || cfg.RefreshSecretKey == "" {
		return nil, errors.New("access and refresh secret keys must not be empty")
	}
	if cfg.AccessSecretKey == cfg.RefreshSecretKey {
		return nil, errors.New("access and refresh secret keys must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported, use one of HS256, HS384, HS512", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		accessKey:  []byte(cfg.AccessSecretKey),
		refreshKey: []byte(cfg.RefreshSecretKey),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
		storage:    storage,
	}, nil
}

// WithStorage returns a copy of the manager bound to storage (usually a transaction)
func (m *TokenManager) WithStorage(storage repository.Storage) *TokenManager {
	c := *m
	c.storage = storage
	return &c
}

// Issue signs access and refresh tokens for the user
// refreshVersion has to be the currently stored version, otherwise the refresh token is born revoked
func (m *TokenManager) Issue(userID uuid.UUID, role models.Role, refreshVersion int64) (models.TokenPair, error) {
	var pair models.TokenPair

	if !role.IsValid() {
		return pair, apperrors.ErrInvalidRole
	}

	now := m.now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	access, err := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: m.registered(userID, now, accessExpiresAt),
			Role:             role,
		},
	).SignedString(m.accessKey)
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	refresh, err := jwt.NewWithClaims(
		m.alg,
		RefreshTokenClaims{
			RegisteredClaims: m.registered(userID, now, refreshExpiresAt),
			Version:          refreshVersion,
		},
	).SignedString(m.refreshKey)
	if err != nil {
		return pair, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// Parse and validate access token
// No storage access: signature and expiration only
func (m *TokenManager) VerifyAccess(access string) (models.Principal, error) {
	claims := &AccessTokenClaims{}

	if err := m.parse(access, claims, m.accessKey); err != nil {
		return models.Principal{}, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || !claims.Role.IsValid() {
		return models.Principal{}, fmt.Errorf("access token payload is malformed: %w", apperrors.ErrInvalidToken)
	}

	return models.Principal{UserID: userID, Role: claims.Role}, nil
}

// ParseRefresh validates refresh token signature and expiration and returns its subject and version
// Caller has to compare the version with the stored one (see VerifyRefresh)
func (m *TokenManager) ParseRefresh(refresh string) (userID uuid.UUID, version int64, err error) {
	claims := &RefreshTokenClaims{}

	if err := m.parse(refresh, claims, m.refreshKey); err != nil {
		return uuid.Nil, 0, err
	}

	userID, err = uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("refresh token payload is malformed: %w", apperrors.ErrInvalidToken)
	}

	return userID, claims.Version, nil
}

// VerifyRefresh validates the token and checks it against the currently stored version
func (m *TokenManager) VerifyRefresh(refresh string, currentVersion int64) (uuid.UUID, error) {
	userID, version, err := m.ParseRefresh(refresh)
	if err != nil {
		return uuid.Nil, err
	}

	if version != currentVersion {
		return uuid.Nil, apperrors.ErrRevokedToken
	}

	return userID, nil
}

// RevokeAll invalidates every refresh token issued for the user so far
func (m *TokenManager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	version, err := m.storage.User().IncrementRefreshVersion(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error while revoking refresh tokens. Err: %w", err)
	}
	return version, nil
}

func (m *TokenManager) registered(userID uuid.UUID, now time.Time, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (m *TokenManager) parse(value string, claims jwt.Claims, key []byte) error {
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	return nil
}
