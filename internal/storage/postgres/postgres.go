// Package postgres реализует хранилище пользователей на PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/migrations"
	"github.com/magabrotheeeer/account-service/internal/models"
)

const userColumns = `id, username, email, password_hash, is_email_verified,
	verification_token, reset_token, reset_token_expires_at, version, created_at, updated_at`

// Storage инкапсулирует соединение с PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New открывает подключение, проверяет его и при необходимости применяет миграции.
func New(ctx context.Context, cfg config.Postgres) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("pgx", cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	if !cfg.SkipMigrations {
		if err = migrations.Run(db, cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return &Storage{DB: db}, nil
}

// Create сохраняет нового пользователя. Нарушение уникальности username или
// email возвращает models.ErrConflict.
func (s *Storage) Create(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.Create"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (id, username, email, password_hash, is_email_verified,
			      verification_token, reset_token, reset_token_expires_at, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)`
	_, err := s.DB.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.IsEmailVerified,
		user.VerificationToken, user.ResetToken, user.ResetTokenExpiresAt,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, models.ErrConflict)
		}
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	user.Version = 1
	return nil
}

// GetByUsername возвращает пользователя по имени.
func (s *Storage) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.postgres.GetByUsername"
	return s.getOne(ctx, op, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByEmail возвращает пользователя по почте.
func (s *Storage) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.GetByEmail"
	return s.getOne(ctx, op, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByVerificationToken ищет пользователя по токену подтверждения почты.
func (s *Storage) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	const op = "storage.postgres.FindByVerificationToken"
	return s.getOne(ctx, op, `SELECT `+userColumns+` FROM users WHERE verification_token = $1`, token)
}

// FindByResetToken ищет пользователя по токену сброса пароля.
func (s *Storage) FindByResetToken(ctx context.Context, token string) (*models.User, error) {
	const op = "storage.postgres.FindByResetToken"
	return s.getOne(ctx, op, `SELECT `+userColumns+` FROM users WHERE reset_token = $1`, token)
}

// Update перезаписывает изменяемые поля и updated_at из user, если версия в базе совпадает с user.Version.
func (s *Storage) Update(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.Update"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET password_hash = $1, is_email_verified = $2, verification_token = $3,
			      reset_token = $4, reset_token_expires_at = $5, updated_at = $6, version = version + 1
			  WHERE username = $7 AND version = $8`
	res, err := s.DB.ExecContext(ctx, query,
		user.PasswordHash, user.IsEmailVerified, user.VerificationToken,
		user.ResetToken, user.ResetTokenExpiresAt, user.UpdatedAt,
		user.Username, user.Version)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	if affected == 1 {
		user.Version++
		return nil
	}

	var exists bool
	err = s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, user.Username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, models.ErrVersionConflict)
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.postgres.Ping"
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}

func (s *Storage) getOne(ctx context.Context, op, query string, arg any) (*models.User, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u := &models.User{}
	var verificationToken, resetToken sql.NullString
	var resetExpires sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsEmailVerified,
		&verificationToken, &resetToken, &resetExpires, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}

	if verificationToken.Valid {
		u.VerificationToken = &verificationToken.String
	}
	if resetToken.Valid {
		u.ResetToken = &resetToken.String
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		u.ResetTokenExpiresAt = &t
	}
	return u, nil
}
