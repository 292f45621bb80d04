package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/contestgate/internal/handlers/middleware"
	"github.com/nkiryanov/contestgate/internal/logger"
	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(authService authService, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)
	adminOnly := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireRoles(models.RoleAdmin))
	}

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /register", handleRegister(authService, logger))
	apiauth.Handle("POST /refresh", handleTokenRefresh(authService, logger))
	apiauth.Handle("POST /logout-everywhere", withAuth(handleLogoutEverywhere(authService, logger)))
	apiauth.Handle("POST /password/reset", handlePasswordReset(authService, logger))

	apiauth.Handle("POST /codes", handleRequestAuthCode(authService, logger))
	apiauth.Handle("POST /codes/confirm", handleConfirmAuthCode(authService, logger))
	apiauth.Handle("POST /role-codes", adminOnly(handleRequestRoleCode(authService, logger)))
	apiauth.Handle("POST /role-codes/confirm", handleConfirmRoleCode(authService, logger))

	apiuser := http.NewServeMux()
	apiuser.Handle("GET /me", withAuth(handleUserMe(authService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login user with email and password
	// Has to return apperrors.ErrInvalidCredentials if email unknown or password wrong
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Register user after consuming its email code (and role code for elevated roles)
	// Has to return apperrors.ErrCodeInvalidOrExpired on any code failure
	Register(ctx context.Context, p auth.RegisterParams) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// Has to return apperrors.ErrInvalidToken or apperrors.ErrRevokedToken when token can't be used
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Validate access token
	Authenticate(access string) (models.Principal, error)

	LogoutEverywhere(ctx context.Context, userID uuid.UUID) error
	ResetPassword(ctx context.Context, email string, code string, newPassword string) error

	RequestAuthCode(ctx context.Context, email string) error
	ConfirmAuthCode(ctx context.Context, email string, code string) (bool, error)
	RequestRoleCode(ctx context.Context, role models.Role) (string, error)
	ConfirmRoleCode(ctx context.Context, role models.Role, code string) (bool, error)

	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
}

var _ authService = (*auth.Service)(nil)
