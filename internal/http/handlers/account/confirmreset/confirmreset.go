// Package confirmreset реализует HTTP-обработчик установки нового пароля по токену сброса.
package confirmreset

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
)

// Service описывает бизнес-логику завершения сброса пароля.
type Service interface {
	CompletePasswordReset(ctx context.Context, token, password string) error
}

// Request содержит токен из письма и новый пароль.
type Request struct {
	Token    string `json:"token" validate:"required" example:"3f1c..."`
	Password string `json:"password" validate:"required" example:"new-secret"`
}

const (
	msgSuccess      = "Password has been reset successfully!"
	msgMissing      = "Please provide the reset token and a new password."
	msgInvalidToken = "Invalid or expired reset token."
	msgTimeout      = "Password reset timed out, please try again."
	msgInternal     = "Something went wrong during password reset."
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
// @Summary Установка нового пароля
// @Description Погашает токен сброса пароля и сохраняет новый пароль.
// @Tags Accounts
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен сброса и новый пароль"
// @Success 200 {object} response.Response "Пароль изменен"
// @Failure 400 {object} response.ErrorResponse "Не заполнены обязательные поля"
// @Failure 404 {object} response.ErrorResponse "Токен не найден или истек"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /api/reset-password/confirm [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.confirmreset"
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

	if err := h.service.CompletePasswordReset(r.Context(), req.Token, req.Password); err != nil {
		status := response.StatusFromError(err)
		switch status {
		case http.StatusBadRequest:
			response.WriteError(w, r, status, msgMissing)
		case http.StatusNotFound:
			log.Info("invalid reset token")
			response.WriteError(w, r, status, msgInvalidToken)
		case http.StatusGatewayTimeout:
			log.Error("password reset timed out", sl.Err(err))
			response.WriteError(w, r, status, msgTimeout)
		default:
			log.Error("password reset failed", sl.Err(err))
			response.WriteError(w, r, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	log.Info("password reset completed")
	render.JSON(w, r, response.OK(msgSuccess))
}
