// Package account содержит бизнес-логику учётных записей: регистрацию,
// подтверждение email, вход и сброс пароля.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/lib/metrics"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/models"
)

// UserStore описывает хранилище учётных записей.
type UserStore interface {
	// Create сохраняет новую запись или возвращает models.ErrConflict.
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	FindByResetToken(ctx context.Context, token string) (*models.User, error)
	// Update перезаписывает запись при совпадении версии, иначе models.ErrVersionConflict.
	Update(ctx context.Context, user *models.User) error
}

// PasswordHasher вычисляет и проверяет хэши паролей.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, encoded, plaintext string) (bool, error)
}

// TokenIssuer выпускает случайные токены.
type TokenIssuer interface {
	Issue() (string, error)
}

// Notifier отправляет служебные письма.
type Notifier interface {
	SendVerification(ctx context.Context, user *models.User, token string) error
	SendPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error
}

// RegisterResult результат регистрации.
type RegisterResult struct {
	Username  string
	EmailSent bool
}

// LoginResult результат входа.
type LoginResult struct {
	Username      string
	EmailVerified bool
}

// ResetResult результат запроса сброса пароля.
type ResetResult struct {
	EmailSent bool
}

// ResendResult результат повторной отправки письма подтверждения.
type ResendResult struct {
	AlreadyVerified bool
	EmailSent       bool
}

type registerInput struct {
	Username string `validate:"required,max=50,excludes=@"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type loginInput struct {
	Identifier string `validate:"required"`
	Password   string `validate:"required"`
}

type emailInput struct {
	Email string `validate:"required,email"`
}

type resetInput struct {
	Token    string `validate:"required"`
	Password string `validate:"required"`
}

// Service реализует операции над учётными записями. Собственного
// изменяемого состояния не хранит и безопасен для конкурентного вызова.
type Service struct {
	log      *slog.Logger
	users    UserStore
	hasher   PasswordHasher
	tokens   TokenIssuer
	notifier Notifier
	cfg      config.Accounts
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time

	// dummyHash проверяется вместо пароля несуществующего пользователя,
	// когда включен MaskUnknownAccounts.
	dummyMu   sync.Mutex
	dummyHash string
}

// New создает Service. m может быть nil.
func New(log *slog.Logger, users UserStore, hasher PasswordHasher, tokens TokenIssuer, notifier Notifier, cfg config.Accounts, m *metrics.Metrics) *Service {
	return &Service{
		log:      log,
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		validate: validator.New(),
		now:      time.Now,
	}
}

// NormalizeEmail приводит адрес к виду, в котором он хранится.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создает неподтвержденную учётную запись и отправляет письмо со ссылкой подтверждения.
//
// Имя пользователя и email уникальны, занятое значение дает models.ErrConflict.
// Ошибка отправки письма не отменяет регистрацию, а отражается в EmailSent.
func (s *Service) Register(ctx context.Context, username, email, password string) (res RegisterResult, err error) {
	const op = "account.Register"
	defer func() { s.metrics.Operation("register", err) }()

	in := registerInput{Username: strings.TrimSpace(username), Email: NormalizeEmail(email), Password: password}
	if err := s.validate.Struct(in); err != nil {
		return res, fmt.Errorf("%s: %w: %w", op, models.ErrValidation, err)
	}
	log := s.log.With(slog.String("op", op), slog.String("username", in.Username))

	if err := s.ensureAvailable(ctx, in.Username, in.Email); err != nil {
		return res, wrap(op, err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return res, wrap(op, err)
	}
	token, err := s.tokens.Issue()
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:                uuid.NewString(),
		Username:          in.Username,
		Email:             in.Email,
		PasswordHash:      hash,
		VerificationToken: &token,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.withStore(ctx, func(ctx context.Context) error { return s.users.Create(ctx, user) }); err != nil {
		return res, wrap(op, err)
	}
	log.Info("user registered", slog.String("user_id", user.ID))

	res.Username = user.Username
	res.EmailSent = s.notify(ctx, log, models.EmailVerification, func(ctx context.Context) error {
		return s.notifier.SendVerification(ctx, user, token)
	}) == nil
	return res, nil
}

// RedeemVerificationToken подтверждает email владельца токена.
//
// Токен одноразовый: после успешного подтверждения он больше не находится
// и повторный вызов возвращает models.ErrInvalidToken.
func (s *Service) RedeemVerificationToken(ctx context.Context, token string) (err error) {
	const op = "account.RedeemVerificationToken"
	defer func() { s.metrics.Operation("verify", err) }()

	if token == "" {
		return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
	}

	var user *models.User
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.FindByVerificationToken(ctx, token)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
	}
	if err != nil {
		return wrap(op, err)
	}

	for attempt := 0; ; attempt++ {
		if !user.HasVerificationToken(token) {
			return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
		}
		user.IsEmailVerified = true
		user.VerificationToken = nil
		user.UpdatedAt = s.now().UTC()

		err = s.withStore(ctx, func(ctx context.Context) error { return s.users.Update(ctx, user) })
		switch {
		case err == nil:
			s.log.Info("email verified", slog.String("op", op), slog.String("username", user.Username))
			return nil
		case errors.Is(err, models.ErrNotFound):
			return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
		case errors.Is(err, models.ErrVersionConflict) && attempt == 0:
			user, err = s.reread(ctx, user.Username)
			if errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
			}
			if err != nil {
				return wrap(op, err)
			}
		case errors.Is(err, models.ErrVersionConflict):
			return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
		default:
			return wrap(op, err)
		}
	}
}

// Login проверяет пароль. identifier, содержащий "@", считается email, иначе именем пользователя.
func (s *Service) Login(ctx context.Context, identifier, password string) (res LoginResult, err error) {
	const op = "account.Login"
	defer func() { s.metrics.Operation("login", err) }()

	in := loginInput{Identifier: strings.TrimSpace(identifier), Password: password}
	if err := s.validate.Struct(in); err != nil {
		return res, fmt.Errorf("%s: %w: %w", op, models.ErrValidation, err)
	}

	var user *models.User
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		if strings.Contains(in.Identifier, "@") {
			user, err = s.users.GetByEmail(ctx, NormalizeEmail(in.Identifier))
		} else {
			user, err = s.users.GetByUsername(ctx, in.Identifier)
		}
		return err
	})
	if errors.Is(err, models.ErrNotFound) && s.cfg.MaskUnknownAccounts {
		s.burnVerify(ctx, in.Password)
		return res, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	}
	if err != nil {
		return res, wrap(op, err)
	}

	ok, err := s.hasher.Verify(ctx, user.PasswordHash, in.Password)
	if err != nil {
		return res, wrap(op, err)
	}
	if !ok {
		return res, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	}
	if s.cfg.RequireVerifiedEmail && !user.IsEmailVerified {
		return res, fmt.Errorf("%s: %w", op, models.ErrEmailNotVerified)
	}

	return LoginResult{Username: user.Username, EmailVerified: user.IsEmailVerified}, nil
}

// InitiatePasswordReset выпускает токен сброса пароля со сроком действия
// accounts.reset_token_ttl и отправляет его на email. Ошибка отправки
// только логируется.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) (res ResetResult, err error) {
	const op = "account.InitiatePasswordReset"
	defer func() { s.metrics.Operation("reset_initiate", err) }()

	in := emailInput{Email: NormalizeEmail(email)}
	if err := s.validate.Struct(in); err != nil {
		return res, fmt.Errorf("%s: %w: %w", op, models.ErrValidation, err)
	}

	user, err := s.byEmail(ctx, in.Email)
	if err != nil {
		return res, wrap(op, err)
	}

	token, err := s.tokens.Issue()
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.ResetTokenTTL)
	user.ResetToken = &token
	user.ResetTokenExpiresAt = &expiresAt
	user.UpdatedAt = now

	if err := s.withStore(ctx, func(ctx context.Context) error { return s.users.Update(ctx, user) }); err != nil {
		return res, wrap(op, err)
	}
	log := s.log.With(slog.String("op", op), slog.String("username", user.Username))
	log.Info("password reset token issued", slog.Time("expires_at", expiresAt))

	res.EmailSent = s.notify(ctx, log, models.EmailPasswordReset, func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, user, token, expiresAt)
	}) == nil
	return res, nil
}

// CompletePasswordReset устанавливает новый пароль по действующему токену сброса.
// Неизвестный, истекший или уже использованный токен дает models.ErrInvalidToken.
func (s *Service) CompletePasswordReset(ctx context.Context, token, password string) (err error) {
	const op = "account.CompletePasswordReset"
	defer func() { s.metrics.Operation("reset_complete", err) }()

	in := resetInput{Token: token, Password: password}
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrValidation, err)
	}

	var user *models.User
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.FindByResetToken(ctx, in.Token)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
	}
	if err != nil {
		return wrap(op, err)
	}
	if !user.ResetTokenValid(in.Token, s.now()) {
		return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return wrap(op, err)
	}
	user.PasswordHash = hash
	user.ResetToken = nil
	user.ResetTokenExpiresAt = nil
	user.UpdatedAt = s.now().UTC()

	err = s.withStore(ctx, func(ctx context.Context) error { return s.users.Update(ctx, user) })
	switch {
	case err == nil:
		s.log.Info("password reset completed", slog.String("op", op), slog.String("username", user.Username))
		return nil
	case errors.Is(err, models.ErrVersionConflict), errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
	default:
		return wrap(op, err)
	}
}

// ResendVerification выпускает новый токен подтверждения взамен старого и отправляет письмо.
// Здесь ошибка отправки возвращается как models.ErrNotification.
func (s *Service) ResendVerification(ctx context.Context, email string) (res ResendResult, err error) {
	const op = "account.ResendVerification"
	defer func() { s.metrics.Operation("resend_verification", err) }()

	in := emailInput{Email: NormalizeEmail(email)}
	if err := s.validate.Struct(in); err != nil {
		return res, fmt.Errorf("%s: %w: %w", op, models.ErrValidation, err)
	}

	user, err := s.byEmail(ctx, in.Email)
	if err != nil {
		return res, wrap(op, err)
	}
	if user.IsEmailVerified {
		res.AlreadyVerified = true
		return res, nil
	}

	token, err := s.tokens.Issue()
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	user.VerificationToken = &token
	user.UpdatedAt = s.now().UTC()
	if err := s.withStore(ctx, func(ctx context.Context) error { return s.users.Update(ctx, user) }); err != nil {
		return res, wrap(op, err)
	}

	log := s.log.With(slog.String("op", op), slog.String("username", user.Username))
	if err := s.notify(ctx, log, models.EmailVerification, func(ctx context.Context) error {
		return s.notifier.SendVerification(ctx, user, token)
	}); err != nil {
		return res, wrap(op, err)
	}
	res.EmailSent = true
	return res, nil
}

func (s *Service) ensureAvailable(ctx context.Context, username, email string) error {
	for _, lookup := range []func(ctx context.Context) (*models.User, error){
		func(ctx context.Context) (*models.User, error) { return s.users.GetByUsername(ctx, username) },
		func(ctx context.Context) (*models.User, error) { return s.users.GetByEmail(ctx, email) },
	} {
		err := s.withStore(ctx, func(ctx context.Context) error {
			_, err := lookup(ctx)
			return err
		})
		switch {
		case err == nil:
			return models.ErrConflict
		case errors.Is(err, models.ErrNotFound):
		default:
			return err
		}
	}
	return nil
}

func (s *Service) byEmail(ctx context.Context, email string) (*models.User, error) {
	var user *models.User
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByEmail(ctx, email)
		return err
	})
	return user, err
}

func (s *Service) reread(ctx context.Context, username string) (*models.User, error) {
	var user *models.User
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByUsername(ctx, username)
		return err
	})
	return user, err
}

// withStore ограничивает вызов хранилища accounts.store_timeout.
func (s *Service) withStore(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
	}
	return fn(ctx)
}

// notify отправляет письмо с таймаутом accounts.notification_timeout, логирует
// и учитывает результат в метриках.
func (s *Service) notify(ctx context.Context, log *slog.Logger, kind models.EmailKind, send func(ctx context.Context) error) error {
	if s.cfg.NotificationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NotificationTimeout)
		defer cancel()
	}
	err := send(ctx)
	s.metrics.Notification(kind, err)
	if err != nil {
		log.Warn("failed to send email", slog.String("kind", string(kind)), sl.Err(err))
		if !errors.Is(err, models.ErrNotification) {
			err = fmt.Errorf("%w: %w", models.ErrNotification, err)
		}
		return err
	}
	return nil
}

func (s *Service) burnVerify(ctx context.Context, password string) {
	dummy := s.dummy(ctx)
	if dummy == "" {
		return
	}
	_, _ = s.hasher.Verify(ctx, dummy, password)
}

// dummy возвращает хэш-заглушку, вычисляя его при первом успешном вызове.
// Отмена ctx запроса на вычисление не влияет.
func (s *Service) dummy(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash == "" {
		hash, err := s.hasher.Hash(context.WithoutCancel(ctx), "account-service-dummy")
		if err != nil {
			s.log.Warn("failed to compute dummy password hash", sl.Err(err))
			return ""
		}
		s.dummyHash = hash
	}
	return s.dummyHash
}

// wrap добавляет op и переводит истечение таймаута в models.ErrTimeout.
func wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, models.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
