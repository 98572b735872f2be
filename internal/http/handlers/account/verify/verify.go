// Package verify реализует HTTP-обработчик подтверждения email по токену из ссылки.
package verify

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-service/internal/http/response"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
)

// Service описывает бизнес-логику подтверждения email.
type Service interface {
	RedeemVerificationToken(ctx context.Context, token string) error
}

const (
	msgSuccess      = "Email verified successfully!"
	msgInvalidToken = "Invalid verification token."
	msgTimeout      = "Email verification timed out, please try again."
	msgInternal     = "Something went wrong during email verification."
)

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Подтверждение email
// @Description Погашает одноразовый токен подтверждения из письма.
// @Tags Accounts
// @Produce  json
// @Param verificationToken path string true "Токен подтверждения"
// @Success 200 {object} response.Response "Email подтвержден"
// @Failure 404 {object} response.ErrorResponse "Токен не найден или уже использован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /api/verify/{verificationToken} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.verify"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token := chi.URLParam(r, "verificationToken")
	err := h.service.RedeemVerificationToken(r.Context(), token)
	if err != nil {
		status := response.StatusFromError(err)
		switch status {
		case http.StatusNotFound:
			log.Info("invalid verification token")
			response.WriteError(w, r, status, msgInvalidToken)
		case http.StatusGatewayTimeout:
			log.Error("verification timed out", sl.Err(err))
			response.WriteError(w, r, status, msgTimeout)
		default:
			log.Error("verification failed", sl.Err(err))
			response.WriteError(w, r, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	log.Info("email verified")
	render.JSON(w, r, response.OK(msgSuccess))
}
