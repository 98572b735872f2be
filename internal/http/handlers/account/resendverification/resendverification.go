// Package resendverification реализует HTTP-обработчик повторной отправки письма подтверждения.
package resendverification

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

// Service описывает бизнес-логику повторной отправки письма.
type Service interface {
	ResendVerification(ctx context.Context, email string) (account.ResendResult, error)
}

// Request содержит email учётной записи.
type Request struct {
	Email string `json:"email" validate:"required" example:"a@x.com"`
}

const (
	msgSent            = "Verification email sent successfully!"
	msgAlreadyVerified = "Email already verified."
	msgMissing         = "Please provide your email."
	msgInvalid         = "Please provide a valid email."
	msgNotFound        = "Email not registered."
	msgTimeout         = "Sending the verification email timed out, please try again."
	msgInternal        = "Something went wrong while sending the verification email."
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
// @Summary Повторная отправка письма подтверждения
// @Description Выпускает новый токен подтверждения взамен старого и отправляет письмо.
// @Tags Accounts
// @Accept  json
// @Produce  json
// @Param request body Request true "Email учётной записи"
// @Success 200 {object} response.Response "Письмо отправлено или email уже подтвержден"
// @Failure 400 {object} response.ErrorResponse "Не указан email"
// @Failure 404 {object} response.ErrorResponse "Email не зарегистрирован"
// @Failure 500 {object} response.ErrorResponse "Письмо не отправлено"
// @Router /api/send-verification-email [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.resendverification"
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

	res, err := h.service.ResendVerification(r.Context(), req.Email)
	if err != nil {
		status := response.StatusFromError(err)
		switch status {
		case http.StatusBadRequest:
			response.WriteError(w, r, status, msgInvalid)
		case http.StatusNotFound:
			response.WriteError(w, r, status, msgNotFound)
		case http.StatusGatewayTimeout:
			log.Error("resend timed out", sl.Err(err))
			response.WriteError(w, r, status, msgTimeout)
		default:
			log.Error("failed to resend verification email", sl.Err(err))
			response.WriteError(w, r, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	if res.AlreadyVerified {
		render.JSON(w, r, response.OK(msgAlreadyVerified))
		return
	}
	render.JSON(w, r, response.OK(msgSent))
}
