// Package register реализует HTTP-обработчик регистрации пользователя.
package register

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/account-service/internal/http/response"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
)

// Request — входные данные для регистрации
type Request struct {
	Username string `json:"username" validate:"required,max=50,excludes=@" example:"alice"`
	Email    string `json:"email" validate:"required,email" example:"a@x.com"`
	Password string `json:"password" validate:"required" example:"secret1"`
}

// Data — данные успешного ответа.
type Data struct {
	Username  string `json:"username" example:"alice"`
	EmailSent bool   `json:"emailSent" example:"true"`
	Warning   string `json:"warning,omitempty"`
}

const (
	msgSuccess       = "User successfully registered!"
	msgMissingFields = "Please provide all required fields."
	msgConflict      = "Username or email already in use."
	msgEmailWarning  = "Verification email could not be sent. Request a new one later."
	msgTimeout       = "Registration timed out, please try again."
	msgInternal      = "Something failed during registration."
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
// @Summary Регистрация пользователя
// @Description Создает неподтвержденную учётную запись и отправляет письмо со ссылкой подтверждения.
// @Tags Accounts
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные пользователя"
// @Success 200 {object} response.Response{data=Data} "Пользователь зарегистрирован"
// @Failure 400 {object} response.ErrorResponse "Не заполнены обязательные поля"
// @Failure 409 {object} response.ErrorResponse "Имя пользователя или email заняты"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /api/register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.register"

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
	log.Info("request body decoded", slog.String("username", req.Username), sl.Email(req.Email))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && !response.HasMissing(errs) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(errs))
			return
		}
		response.WriteError(w, r, http.StatusBadRequest, msgMissingFields)
		return
	}

	res, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		status := response.StatusFromError(err)
		switch status {
		case http.StatusBadRequest:
			log.Info("registration rejected", sl.Err(err))
			response.WriteError(w, r, status, msgMissingFields)
		case http.StatusConflict:
			log.Info("registration conflict", sl.Err(err))
			response.WriteError(w, r, status, msgConflict)
		case http.StatusGatewayTimeout:
			log.Error("registration timed out", sl.Err(err))
			response.WriteError(w, r, status, msgTimeout)
		default:
			log.Error("registration failed", sl.Err(err))
			response.WriteError(w, r, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	data := Data{Username: res.Username, EmailSent: res.EmailSent}
	if !res.EmailSent {
		data.Warning = msgEmailWarning
	}
	render.JSON(w, r, response.OKWithData(msgSuccess, data))
}
