package handlers

import (
	"net/http"

	"github.com/nkiryanov/contestgate/internal/handlers/render"
	"github.com/nkiryanov/contestgate/internal/logger"
	"github.com/nkiryanov/contestgate/internal/models"
)

// Always the same answer: the response must not reveal whether the email is registered
func handleRequestAuthCode(as authService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email,max=254"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := as.RequestAuthCode(r.Context(), data.Email); err != nil {
			authError(w, err, l)
			return
		}

		render.JSONWithStatus(w, messageResponse{Message: "Code sent"}, http.StatusAccepted)
	})
}

func handleConfirmAuthCode(as authService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"code" validate:"required,vcode"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		ok, err := as.ConfirmAuthCode(r.Context(), data.Email, data.Code)
		switch {
		case err != nil:
			authError(w, err, l)
		case !ok:
			render.ServiceError(w, "Code is invalid or expired", http.StatusBadRequest)
		default:
			render.JSON(w, messageResponse{Message: "Email confirmed"})
		}
	})
}

func handleRequestRoleCode(as authService, l logger.Logger) http.Handler {
	type request struct {
		Role string `json:"role" validate:"required,role"`
	}
	type response struct {
		Role models.Role `json:"role"`
		Code string      `json:"code"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		role, _ := models.ParseRole(data.Role) // validated already
		code, err := as.RequestRoleCode(r.Context(), role)
		if err != nil {
			authError(w, err, l)
			return
		}

		render.JSONWithStatus(w, response{Role: role, Code: code}, http.StatusCreated)
	})
}

func handleConfirmRoleCode(as authService, l logger.Logger) http.Handler {
	type request struct {
		Role string `json:"role" validate:"required,role"`
		Code string `json:"code" validate:"required,vcode"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		role, _ := models.ParseRole(data.Role) // validated already
		ok, err := as.ConfirmRoleCode(r.Context(), role, data.Code)
		switch {
		case err != nil:
			authError(w, err, l)
		case !ok:
			render.ServiceError(w, "Code is invalid or expired", http.StatusBadRequest)
		default:
			render.JSON(w, messageResponse{Message: "Role code confirmed"})
		}
	})
}
