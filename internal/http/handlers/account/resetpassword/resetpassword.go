// Package resetpassword реализует HTTP-обработчик запроса сброса пароля.
package resetpassword

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/account-service/internal/http/response"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/services/account"
)

// Service описывает бизнес-логику запроса сброса пароля.
type Service interface {
	InitiatePasswordReset(ctx context.Context, email string) (account.ResetResult, error)
}

// Request содержит email учётной записи.
type Request struct {
	Email string `json:"email" validate:"required" example:"a@x.com"`
}

const (
	msgSuccess  = "Password reset token generated. Check your email for instructions."
	msgMissing  = "Please provide your email."
	msgInvalid  = "Please provide a valid email."
	msgNotFound = "Email not registered."
	msgTimeout  = "Password reset timed out, please try again."
	msgInternal = "Something went wrong during password reset."
)

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Запрос сброса пароля
// @Description Выпускает токен сброса пароля и отправляет его на email.
// @Tags Accounts
// @Accept  json
// @Produce  json
// @Param request body Request true "Email учётной записи"
// @Success 200 {object} response.Response "Токен выпущен"
// @Failure 400 {object} response.ErrorResponse "Не указан email"
// @Failure 404 {object} response.ErrorResponse "Email не зарегистрирован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /api/reset-password [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.resetpassword"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.WriteError(w, r, http.StatusBadRequest, msgMissing)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.WriteError(w, r, http.StatusBadRequest, msgMissing)
		return
	}

	res, err := h.service.InitiatePasswordReset(r.Context(), req.Email)
	if err != nil {
		status := response.StatusFromError(err)
		switch status {
		case http.StatusBadRequest:
			response.WriteError(w, r, status, msgInvalid)
		case http.StatusNotFound:
			log.Info("password reset for unknown email", sl.Email(req.Email))
			response.WriteError(w, r, status, msgNotFound)
		case http.StatusGatewayTimeout:
			log.Error("password reset timed out", sl.Err(err))
			response.WriteError(w, r, status, msgTimeout)
		default:
			log.Error("password reset failed", sl.Err(err))
			response.WriteError(w, r, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	if !res.EmailSent {
		log.Warn("password reset email was not sent", sl.Email(req.Email))
	}
	render.JSON(w, r, response.OK(msgSuccess))
}
