package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/contestgate/internal/handlers/render"
	"github.com/nkiryanov/contestgate/internal/handlers/userctx"
	"github.com/nkiryanov/contestgate/internal/logger"
	"github.com/nkiryanov/contestgate/internal/models"
)

func handleUserMe(as authService, l logger.Logger) http.Handler {
	type response struct {
		ID    uuid.UUID   `json:"id"`
		Email string      `json:"email"`
		Role  models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := userctx.FromContext(r.Context())
		if p == nil {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := as.GetUser(r.Context(), p.UserID)
		if err != nil {
			authError(w, err, l)
			return
		}

		// Role from the token, not from storage: that is what the request is authorized with
		render.JSON(w, response{ID: user.ID, Email: user.Email, Role: p.Role})
	})
}
