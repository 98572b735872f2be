// Package redisstore реализует хранилище пользователей на Redis.
//
// Запись пользователя хранится в JSON по ключу <prefix>:user:<username>,
// вторичные ключи <prefix>:email:<email>, <prefix>:verify:<token> и
// <prefix>:reset:<token> ссылаются на username. Создание и обновление
// выполняются транзакциями WATCH/MULTI/EXEC.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/models"
)

var errEmailImmutable = errors.New("email change is not supported")

// Store хранилище пользователей на Redis.
type Store struct {
	db     *redis.Client
	prefix string
}

// New подключается к Redis и проверяет соединение.
func New(ctx context.Context, cfg config.RedisConnection) (*Store, error) {
	const op = "storage.redis.New"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	return NewWithClient(db, cfg.KeyPrefix), nil
}

// NewWithClient оборачивает готовый клиент.
func NewWithClient(db *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "accounts"
	}
	return &Store{db: db, prefix: prefix}
}

func (s *Store) userKey(username string) string { return s.prefix + ":user:" + username }
func (s *Store) emailKey(email string) string { return s.prefix + ":email:" + email }
func (s *Store) verifyKey(token string) string { return s.prefix + ":verify:" + token }
func (s *Store) resetKey(token string) string { return s.prefix + ":reset:" + token }

// Create сохраняет нового пользователя. Если username или email заняты,
// возвращает models.ErrConflict.
func (s *Store) Create(ctx context.Context, user *models.User) error {
	const op = "storage.redis.Create"
	userKey, emailKey := s.userKey(user.Username), s.emailKey(user.Email)

	rec := *user
	rec.Version = 1
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, userKey, emailKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return models.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey, data, 0)
			pipe.Set(ctx, emailKey, rec.Username, 0)
			s.setTokenIndexes(ctx, pipe, &rec)
			return nil
		})
		return err
	}

	err = s.db.Watch(ctx, txf, userKey, emailKey)
	switch {
	case err == nil:
		user.Version = rec.Version
		return nil
	case errors.Is(err, models.ErrConflict), errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%s: %w", op, models.ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
}

// GetByUsername возвращает пользователя по имени.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.redis.GetByUsername"
	user, err := s.get(ctx, s.userKey(username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// GetByEmail возвращает пользователя по почте.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.redis.GetByEmail"
	user, err := s.resolve(ctx, s.emailKey(email), func(u *models.User) bool {
		return u.Email == email
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// FindByVerificationToken ищет пользователя по токену подтверждения почты.
func (s *Store) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	const op = "storage.redis.FindByVerificationToken"
	user, err := s.resolve(ctx, s.verifyKey(token), func(u *models.User) bool {
		return u.VerificationToken != nil && *u.VerificationToken == token
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// FindByResetToken ищет пользователя по токену сброса пароля.
func (s *Store) FindByResetToken(ctx context.Context, token string) (*models.User, error) {
	const op = "storage.redis.FindByResetToken"
	user, err := s.resolve(ctx, s.resetKey(token), func(u *models.User) bool {
		return u.ResetToken != nil && *u.ResetToken == token
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Update перезаписывает пользователя, если версия в хранилище совпадает с user.Version.
// При успехе user.Version увеличивается.
func (s *Store) Update(ctx context.Context, user *models.User) error {
	const op = "storage.redis.Update"
	userKey := s.userKey(user.Username)

	next := *user
	next.Version = user.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, userKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur models.User
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		if cur.Version != user.Version {
			return models.ErrVersionConflict
		}
		if cur.Email != next.Email {
			return errEmailImmutable
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey, data, 0)
			s.dropStaleTokenIndexes(ctx, pipe, &cur, &next)
			s.setTokenIndexes(ctx, pipe, &next)
			return nil
		})
		return err
	}

	err = s.db.Watch(ctx, txf, userKey)
	switch {
	case err == nil:
		user.Version = next.Version
		return nil
	case errors.Is(err, models.ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%s: %w", op, models.ErrVersionConflict)
	case errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
}

// Ping проверяет доступность Redis.
func (s *Store) Ping(ctx context.Context) error {
	const op = "storage.redis.Ping"
	if err := s.db.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	return nil
}

// Close закрывает соединение.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) setTokenIndexes(ctx context.Context, pipe redis.Pipeliner, u *models.User) {
	if u.VerificationToken != nil {
		pipe.Set(ctx, s.verifyKey(*u.VerificationToken), u.Username, 0)
	}
	if u.ResetToken != nil && u.ResetTokenExpiresAt != nil {
		if ttl := time.Until(*u.ResetTokenExpiresAt); ttl > 0 {
			pipe.Set(ctx, s.resetKey(*u.ResetToken), u.Username, ttl)
		}
	}
}

func (s *Store) dropStaleTokenIndexes(ctx context.Context, pipe redis.Pipeliner, cur, next *models.User) {
	if cur.VerificationToken != nil && !sameToken(cur.VerificationToken, next.VerificationToken) {
		pipe.Del(ctx, s.verifyKey(*cur.VerificationToken))
	}
	if cur.ResetToken != nil && !sameToken(cur.ResetToken, next.ResetToken) {
		pipe.Del(ctx, s.resetKey(*cur.ResetToken))
	}
}

func sameToken(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (s *Store) get(ctx context.Context, key string) (*models.User, error) {
	raw, err := s.db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	return &user, nil
}

// resolve читает вторичный ключ и загружает запись. Ключ, указывающий на
// запись, которая ему больше не соответствует, считается отсутствующим.
func (s *Store) resolve(ctx context.Context, indexKey string, match func(*models.User) bool) (*models.User, error) {
	username, err := s.db.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	user, err := s.get(ctx, s.userKey(username))
	if err != nil {
		return nil, err
	}
	if !match(user) {
		return nil, models.ErrNotFound
	}
	return user, nil
}
