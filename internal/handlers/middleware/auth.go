package middleware

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/contestgate/internal/apperrors"
	"github.com/nkiryanov/contestgate/internal/handlers/render"
	"github.com/nkiryanov/contestgate/internal/handlers/transport"
	"github.com/nkiryanov/contestgate/internal/handlers/userctx"
	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/service/guard"
)

type authenticator interface {
	Authenticate(access string) (models.Principal, error)
}

// AuthMiddleware validates the bearer access token and stores the principal in the request context
func AuthMiddleware(as authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := as.Authenticate(transport.AccessToken(r))
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles lets the request through only when the principal's role is in the set
// Has to be placed after AuthMiddleware
func RequireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	required := models.Roles(roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := guard.Authorize(userctx.FromContext(r.Context()), required)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, apperrors.ErrUnauthenticated):
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			default:
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
			}
		})
	}
}
