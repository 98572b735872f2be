// Package health реализует проверку готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-service/internal/http/response"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
)

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log     *slog.Logger
	store   Pinger
	timeout time.Duration
}

func New(log *slog.Logger, store Pinger, timeout time.Duration) *Handler {
	return &Handler{
		log:     log,
		store:   store,
		timeout: timeout,
	}
}

// ServeHTTP godoc
// @Summary Проверка готовности
// @Tags Service
// @Produce  json
// @Success 200 {object} response.Response "Хранилище доступно"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	if err := h.store.Ping(ctx); err != nil {
		h.log.Error("storage is unavailable", slog.String("op", op), sl.Err(err))
		response.WriteError(w, r, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	render.JSON(w, r, response.OKWithData("ok", map[string]any{
		"status": "OK",
	}))
}
