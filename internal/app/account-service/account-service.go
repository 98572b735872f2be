package accountservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/lib/awsconf"
	"github.com/magabrotheeeer/account-service/internal/lib/metrics"
	"github.com/magabrotheeeer/account-service/internal/lib/password"
	"github.com/magabrotheeeer/account-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/account-service/internal/lib/secrets"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/lib/smtp"
	"github.com/magabrotheeeer/account-service/internal/lib/token"
	"github.com/magabrotheeeer/account-service/internal/notification"
	accountsvc "github.com/magabrotheeeer/account-service/internal/services/account"
	"github.com/magabrotheeeer/account-service/internal/storage/dynamo"
	"github.com/magabrotheeeer/account-service/internal/storage/postgres"
	"github.com/magabrotheeeer/account-service/internal/storage/redisstore"
)

// UserStore хранилище, которым владеет приложение.
type UserStore interface {
	accountsvc.UserStore
	Ping(ctx context.Context) error
	Close() error
}

type App struct {
	server  *http.Server
	logger  *slog.Logger
	cfg     *config.Config
	store   UserStore
	closers []io.Closer
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.accountservice.New"

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sender, closers, err := NewSender(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := accountsvc.New(
		logger,
		store,
		password.New(password.ParamsFromConfig(cfg.Hasher)),
		token.NewIssuer(token.DefaultSize),
		notification.NewGateway(sender, cfg.BaseURL),
		cfg.Accounts,
		m,
	)

	router := chi.NewRouter()
	RegisterRoutes(router, Deps{
		Log:           logger,
		Accounts:      svc,
		Store:         store,
		Metrics:       m,
		Gatherer:      reg,
		HealthTimeout: cfg.Accounts.StoreTimeout,
		AccessLog:     cfg.Env == "local",
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:  srv,
		logger:  logger,
		cfg:     cfg,
		store:   store,
		closers: closers,
	}, nil
}

// OpenStore подключает хранилище, выбранное в cfg.Storage.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (UserStore, error) {
	const op = "app.accountservice.OpenStore"
	logger.Info("opening user store", slog.String("driver", cfg.Storage.Driver))

	switch cfg.Storage.Driver {
	case config.DriverRedis:
		s, err := redisstore.New(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	case config.DriverDynamoDB:
		awsCfg, err := awsconf.Load(ctx, cfg.AWS)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s := dynamo.New(dynamo.NewClient(awsCfg, cfg.DynamoDB.Endpoint), cfg.Table)
		if cfg.CreateTable {
			if err := s.EnsureTable(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}
}

// NewSender выбирает способ доставки писем по cfg.Notification.Mode.
// Возвращенные closers нужно закрыть при остановке приложения.
func NewSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notification.Sender, []io.Closer, error) {
	const op = "app.accountservice.NewSender"
	logger.Info("configuring notifications", slog.String("mode", cfg.Notification.Mode))

	switch cfg.Notification.Mode {
	case config.NotificationSMTP:
		mailer, creds, err := NewMailer(ctx, cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return mailer, []io.Closer{creds}, nil
	case config.NotificationQueue:
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.EmailQueues())
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		publisher := rabbitmq.NewPublisher(ch, rabbitmq.Exchange)
		return notification.NewQueueSender(publisher), []io.Closer{ch, conn}, nil
	case config.NotificationLog:
		return notification.NewLogSender(logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown notification mode %q", op, cfg.Notification.Mode)
	}
}

// NewMailer собирает SMTP-отправщик. Учётные данные читаются при первой
// отправке и затираются при закрытии creds.
func NewMailer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*smtp.Mailer, *secrets.Lazy, error) {
	provider, err := secrets.NewProvider(ctx, cfg.Secrets, cfg.AWS)
	if err != nil {
		return nil, nil, err
	}
	creds := secrets.NewLazy(provider, cfg.SMTP.SecretName)
	transport := smtp.NewTransport(cfg.SMTP, creds, logger)
	return smtp.NewMailer(transport, cfg.MailFrom(), logger), creds, nil
}

// Handler возвращает корневой обработчик, используется в тестах.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}
	a.close()
	return err
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("failed to close resource", sl.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", sl.Err(err))
	}
}
