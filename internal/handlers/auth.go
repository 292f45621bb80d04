package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/contestgate/internal/apperrors"
	"github.com/nkiryanov/contestgate/internal/handlers/render"
	"github.com/nkiryanov/contestgate/internal/handlers/transport"
	"github.com/nkiryanov/contestgate/internal/handlers/userctx"
	"github.com/nkiryanov/contestgate/internal/logger"
	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/service/auth"
)

type messageResponse struct {
	Message string `json:"message"`
}

// Write error response for any error returned by the auth service
// Unknown errors are infrastructure failures: logged and hidden behind 500
func authError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrRevokedToken), errors.Is(err, apperrors.ErrInvalidToken), errors.Is(err, apperrors.ErrUnauthenticated):
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrForbidden):
		render.ServiceError(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrCodeInvalidOrExpired):
		render.ServiceError(w, "Code is invalid or expired", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrInvalidRole), errors.Is(err, apperrors.ErrEmptyPassword):
		render.ServiceError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		render.ServiceError(w, "User already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	default:
		l.Error("Auth request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func handleLogin(as authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := as.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			authError(w, err, l)
			return
		}

		transport.SetTokens(w, pair, time.Now())
		render.JSON(w, messageResponse{Message: "User logged in successfully"})
	})
}

func handleRegister(as authService, l logger.Logger) http.Handler {
	type request struct {
		Email     string `json:"email" validate:"required,email,max=254"`
		Password  string `json:"password" validate:"required,min=8,max=256"`
		Role      string `json:"role" validate:"required,role"`
		EmailCode string `json:"email_code" validate:"required,vcode"`
		RoleCode  string `json:"role_code" validate:"omitempty,vcode"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		role, _ := models.ParseRole(data.Role) // validated already
		pair, err := as.Register(r.Context(), auth.RegisterParams{
			Email:     data.Email,
			Password:  data.Password,
			Role:      role,
			EmailCode: data.EmailCode,
			RoleCode:  data.RoleCode,
		})
		if err != nil {
			authError(w, err, l)
			return
		}

		transport.SetTokens(w, pair, time.Now())
		render.JSON(w, messageResponse{Message: "User registered successfully"})
	})
}

func handleTokenRefresh(as authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh := transport.RefreshToken(r)
		if refresh == "" {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		pair, err := as.Refresh(r.Context(), refresh)
		if err != nil {
			if errors.Is(err, apperrors.ErrRevokedToken) || errors.Is(err, apperrors.ErrInvalidToken) {
				transport.ClearRefresh(w)
			}
			authError(w, err, l)
			return
		}

		transport.SetTokens(w, pair, time.Now())
		render.JSON(w, messageResponse{Message: "Tokens refreshed successfully"})
	})
}

func handleLogoutEverywhere(as authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := userctx.FromContext(r.Context())
		if p == nil {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if err := as.LogoutEverywhere(r.Context(), p.UserID); err != nil {
			authError(w, err, l)
			return
		}

		transport.ClearRefresh(w)
		render.JSON(w, messageResponse{Message: "Logged out everywhere"})
	})
}

func handlePasswordReset(as authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Code     string `json:"code" validate:"required,vcode"`
		Password string `json:"password" validate:"required,min=8,max=256"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := as.ResetPassword(r.Context(), data.Email, data.Code, data.Password); err != nil {
			authError(w, err, l)
			return
		}

		transport.ClearRefresh(w)
		render.JSON(w, messageResponse{Message: "Password changed"})
	})
}
