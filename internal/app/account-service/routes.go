// Package accountservice собирает HTTP-приложение сервиса учётных записей.
package accountservice

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/account-service/internal/http/handlers/account/confirmreset"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/account/login"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/account/register"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/account/resendverification"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/account/resetpassword"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/account/verify"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/account-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-service/internal/lib/metrics"
	accountsvc "github.com/magabrotheeeer/account-service/internal/services/account"

	// Регистрация swagger-спецификации для /docs.
	_ "github.com/magabrotheeeer/account-service/docs"
)

// Deps зависимости маршрутов.
type Deps struct {
	Log      *slog.Logger
	Accounts *accountsvc.Service
	Store    health.Pinger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// HealthTimeout ограничивает проверку хранилища в /health.
	HealthTimeout time.Duration
	// AccessLog включает middleware.Logger.
	AccessLog bool
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, d Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middlewarectx.Metrics(d.Metrics),
		middleware.Recoverer,
	)
	if d.AccessLog {
		r.Use(middleware.Logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", register.New(d.Log, d.Accounts).ServeHTTP)
		r.Get("/verify/{verificationToken}", verify.New(d.Log, d.Accounts).ServeHTTP)
		r.Post("/login", login.New(d.Log, d.Accounts).ServeHTTP)
		r.Post("/reset-password", resetpassword.New(d.Log, d.Accounts).ServeHTTP)
		r.Post("/reset-password/confirm", confirmreset.New(d.Log, d.Accounts).ServeHTTP)
		r.Post("/send-verification-email", resendverification.New(d.Log, d.Accounts).ServeHTTP)
	})

	r.Get("/health", health.New(d.Log, d.Store, d.HealthTimeout).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
