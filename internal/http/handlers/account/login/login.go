// Package login реализует HTTP-обработчик входа по имени пользователя или email.
package login

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

// Service описывает бизнес-логику входа.
type Service interface {
	Login(ctx context.Context, identifier, password string) (account.LoginResult, error)
}

// Request данные для входа. Достаточно одного из полей username и email.
type Request struct {
	Username string `json:"username,omitempty" validate:"required_without=Email" example:"alice"`
	Email    string `json:"email,omitempty" validate:"required_without=Username" example:"a@x.com"`
	Password string `json:"password" validate:"required" example:"secret1"`
}

// Identifier возвращает email, если он указан, иначе имя пользователя.
func (r Request) Identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

// Data данные успешного ответа.
type Data struct {
	Username      string `json:"username" example:"alice"`
	EmailVerified bool   `json:"emailVerified" example:"true"`
}

const (
	msgSuccess          = "User logged in successfully!"
	msgMissingFields    = "Please provide your username or email and password."
	msgNotFound         = "Account not registered."
	msgInvalidPassword  = "Invalid password."
	msgEmailNotVerified = "Please verify your email before logging in."
	msgTimeout          = "Login timed out, please try again."
	msgInternal         = "Something went wrong during login."
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
// @Summary Вход пользователя
// @Description Проверяет пароль. Сессионный токен не выдается.
// @Tags Accounts
// @Accept  json
// @Produce  json
// @Param request body Request true "Имя пользователя или email и пароль"
// @Success 200 {object} response.Response{data=Data} "Пароль верный"
// @Failure 400 {object} response.ErrorResponse "Не заполнены обязательные поля"
// @Failure 401 {object} response.ErrorResponse "Неверный пароль"
// @Failure 403 {object} response.ErrorResponse "Email не подтвержден"
// @Failure 404 {object} response.ErrorResponse "Учётная запись не найдена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /api/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.login"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.WriteError(w, r, http.StatusBadRequest, msgMissingFields)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		response.WriteError(w, r, http.StatusBadRequest, msgMissingFields)
		return
	}

	res, err := h.service.Login(r.Context(), req.Identifier(), req.Password)
	if err != nil {
		status := response.StatusFromError(err)
		switch status {
		case http.StatusBadRequest:
			response.WriteError(w, r, status, msgMissingFields)
		case http.StatusNotFound:
			log.Info("login for unknown account")
			response.WriteError(w, r, status, msgNotFound)
		case http.StatusUnauthorized:
			log.Info("invalid password", slog.String("username", req.Username))
			response.WriteError(w, r, status, msgInvalidPassword)
		case http.StatusForbidden:
			response.WriteError(w, r, status, msgEmailNotVerified)
		case http.StatusGatewayTimeout:
			log.Error("login timed out", sl.Err(err))
			response.WriteError(w, r, status, msgTimeout)
		default:
			log.Error("login failed", sl.Err(err))
			response.WriteError(w, r, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	log.Info("user logged in", slog.String("username", res.Username))
	render.JSON(w, r, response.OKWithData(msgSuccess, Data{
		Username:      res.Username,
		EmailVerified: res.EmailVerified,
	}))
}
