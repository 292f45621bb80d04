// Package codes issues and consumes short-lived single-use numeric codes:
// auth codes prove control of an email address, role codes invite into an elevated role.
package codes

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/nkiryanov/contestgate/internal/apperrors"
	"github.com/nkiryanov/contestgate/internal/logger"
	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/repository"
)

const (
	defaultDigits          = 6
	defaultAuthCodeTTL     = 24 * time.Hour
	defaultRoleCodeTTL     = 7 * 24 * time.Hour
	defaultMaxAttempts     = 5
	defaultMaxRoleAttempts = 10
	defaultAttemptWindow   = 15 * time.Minute
)

type Config struct {
	// Code width, 6 if zero
	Digits int

	// Validity windows since code creation
	AuthCodeTTL time.Duration
	RoleCodeTTL time.Duration

	// Failed attempts allowed per email (auth codes) and per role (role codes) inside AttemptWindow
	// Once used up, even the right code is refused until the window ends
	MaxAttempts     int
	MaxRoleAttempts int
	AttemptWindow   time.Duration

	// Clock, time.Now if nil
	Now func() time.Time
}

type Registry struct {
	digits      int
	authCodeTTL time.Duration
	roleCodeTTL time.Duration

	maxAttempts     int
	maxRoleAttempts int
	attemptWindow   time.Duration

	now func() time.Time

	storage repository.Storage
	logger  logger.Logger
}

func New(cfg Config, storage repository.Storage, l logger.Logger) (*Registry, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage must not be nil")
	}
	if cfg.Digits == 0 {
		cfg.Digits = defaultDigits
	}
	if cfg.Digits < 4 || cfg.Digits > 18 {
		return nil, fmt.Errorf("code width must be in [4, 18], got %d", cfg.Digits)
	}
	if cfg.AuthCodeTTL == 0 {
		cfg.AuthCodeTTL = defaultAuthCodeTTL
	}
	if cfg.RoleCodeTTL == 0 {
		cfg.RoleCodeTTL = defaultRoleCodeTTL
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.MaxRoleAttempts == 0 {
		cfg.MaxRoleAttempts = defaultMaxRoleAttempts
	}
	if cfg.AttemptWindow == 0 {
		cfg.AttemptWindow = defaultAttemptWindow
	}
	if cfg.MaxAttempts < 0 || cfg.MaxRoleAttempts < 0 || cfg.AttemptWindow < 0 {
		return nil, fmt.Errorf("attempt limits must not be negative")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Registry{
		digits:      cfg.Digits,
		authCodeTTL: cfg.AuthCodeTTL,
		roleCodeTTL: cfg.RoleCodeTTL,

		maxAttempts:     cfg.MaxAttempts,
		maxRoleAttempts: cfg.MaxRoleAttempts,
		attemptWindow:   cfg.AttemptWindow,

		now:     cfg.Now,
		storage: storage,
		logger:  l.WithGroup("codes"),
	}, nil
}

// WithStorage returns a copy of the registry bound to storage (usually a transaction)
func (r *Registry) WithStorage(storage repository.Storage) *Registry {
	c := *r
	c.storage = storage
	return &c
}

func (r *Registry) AuthCodeTTL() time.Duration { return r.authCodeTTL }
func (r *Registry) RoleCodeTTL() time.Duration { return r.roleCodeTTL }

// IssueAuthCode stores a fresh code for email and returns it for delivery
// Previous codes for the email are deleted: only the latest one is valid
func (r *Registry) IssueAuthCode(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)

	code, err := Generate(r.digits)
	if err != nil {
		return "", err
	}

	err = r.storage.Code().PutAuthCode(ctx, models.AuthCode{Code: code, Email: email, CreatedAt: r.now()})
	if err != nil {
		return "", fmt.Errorf("error while saving auth code. Err: %w", err)
	}

	r.logger.Debug("auth code issued", "email", email)
	return code, nil
}

// IssueRoleCode stores a fresh invite code for an elevated role
// Several role codes may be alive at once: every invitee gets its own
func (r *Registry) IssueRoleCode(ctx context.Context, role models.Role) (string, error) {
	if !role.IsElevated() {
		return "", fmt.Errorf("role codes are issued for coach and site coordinator only: %w", apperrors.ErrInvalidRole)
	}

	code, err := Generate(r.digits)
	if err != nil {
		return "", err
	}

	err = r.storage.Code().InsertRoleCode(ctx, models.RoleCode{Code: code, Role: role, CreatedAt: r.now()})
	if err != nil {
		return "", fmt.Errorf("error while saving role code. Err: %w", err)
	}

	r.logger.Info("role code issued", "role", role.String())
	return code, nil
}

// Attempt is one counted try to use a code
// Attempts whose code matched are given back with Release, so only misses use up the limit
type Attempt struct {
	kind    models.CodeKind
	subject string
	allowed bool
}

// Allowed is false when the subject used up its attempts for the current window
func (a Attempt) Allowed() bool { return a.allowed }

// BeginAuthAttempt counts an attempt to use an auth code for email
// Call it outside the transaction that takes the code, a rollback must not undo the count
func (r *Registry) BeginAuthAttempt(ctx context.Context, email string) (Attempt, error) {
	return r.begin(ctx, models.CodeKindAuth, NormalizeEmail(email), r.maxAttempts)
}

func (r *Registry) BeginRoleAttempt(ctx context.Context, role models.Role) (Attempt, error) {
	return r.begin(ctx, models.CodeKindRole, role.String(), r.maxRoleAttempts)
}

func (r *Registry) begin(ctx context.Context, kind models.CodeKind, subject string, limit int) (Attempt, error) {
	now := r.now()

	attempts, err := r.storage.Code().CountCodeAttempt(ctx, kind, subject, now, now.Add(-r.attemptWindow))
	if err != nil {
		return Attempt{}, fmt.Errorf("error while counting code attempt. Err: %w", err)
	}

	if attempts > limit {
		r.logger.Warn("Code attempts used up", "kind", string(kind), "subject", subject, "attempts", attempts)
		return Attempt{kind: kind, subject: subject}, nil
	}

	return Attempt{kind: kind, subject: subject, allowed: true}, nil
}

// Release gives back an allowed attempt. Failure is only logged: the code is consumed already
func (r *Registry) Release(ctx context.Context, a Attempt) {
	if !a.allowed {
		return
	}

	if err := r.storage.Code().ReleaseCodeAttempt(ctx, a.kind, a.subject); err != nil {
		r.logger.Error("Failed to release code attempt", "kind", string(a.kind), "error", err)
	}
}

// ConsumeAuthCode returns true and deletes the code when it matches and is inside its window
// Wrong, expired, already used codes and used up attempts are all just false; error means storage failure
func (r *Registry) ConsumeAuthCode(ctx context.Context, email string, code string) (bool, error) {
	if !r.wellFormed(strings.TrimSpace(code)) {
		return false, nil
	}

	attempt, err := r.BeginAuthAttempt(ctx, email)
	if err != nil || !attempt.Allowed() {
		return false, err
	}

	ok, err := r.TakeAuthCode(ctx, email, code)
	if ok {
		r.Release(ctx, attempt)
	}
	return ok, err
}

func (r *Registry) ConsumeRoleCode(ctx context.Context, role models.Role, code string) (bool, error) {
	if !role.IsElevated() || !r.wellFormed(strings.TrimSpace(code)) {
		return false, nil
	}

	attempt, err := r.BeginRoleAttempt(ctx, role)
	if err != nil || !attempt.Allowed() {
		return false, err
	}

	ok, err := r.TakeRoleCode(ctx, role, code)
	if ok {
		r.Release(ctx, attempt)
	}
	return ok, err
}

// TakeAuthCode is ConsumeAuthCode without attempt accounting
// For flows that count the attempt themselves before their transaction
func (r *Registry) TakeAuthCode(ctx context.Context, email string, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if !r.wellFormed(code) {
		return false, nil
	}

	ok, err := r.storage.Code().FindAndDeleteAuthCode(ctx, NormalizeEmail(email), code, r.now().Add(-r.authCodeTTL))
	if err != nil {
		return false, fmt.Errorf("error while consuming auth code. Err: %w", err)
	}
	return ok, nil
}

func (r *Registry) TakeRoleCode(ctx context.Context, role models.Role, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if !role.IsElevated() || !r.wellFormed(code) {
		return false, nil
	}

	ok, err := r.storage.Code().FindAndDeleteRoleCode(ctx, role, code, r.now().Add(-r.roleCodeTTL))
	if err != nil {
		return false, fmt.Errorf("error while consuming role code. Err: %w", err)
	}
	return ok, nil
}

func (r *Registry) wellFormed(code string) bool {
	if len(code) != r.digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Generate returns zero padded decimal code of given width from crypto/rand
func Generate(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("error while generating code. Err: %w", err)
	}

	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
