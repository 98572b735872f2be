// Package password реализует хеширование и проверку паролей.
//
// Новые хэши строятся на argon2id и кодируются в формате
// $argon2id$v=19$m=<KiB>,t=<итерации>,p=<потоки>$<соль>$<ключ>.
// Хэши bcrypt ($2a$, $2b$, $2y$) продолжают проверяться.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/models"
)

// Params параметры argon2id.
type Params struct {
	MemoryKiB     uint32
	Iterations    uint32
	Parallelism   uint8
	KeyLength     uint32
	SaltLength    uint32
	MaxConcurrent int
}

// DefaultParams рекомендованные параметры argon2id.
var DefaultParams = Params{
	MemoryKiB:   64 * 1024,
	Iterations:  1,
	Parallelism: 4,
	KeyLength:   32,
	SaltLength:  16,
}

// ParamsFromConfig переводит секцию конфига в Params, пустые значения берутся из DefaultParams.
func ParamsFromConfig(cfg config.Hasher) Params {
	p := Params{
		MemoryKiB:     cfg.MemoryKiB,
		Iterations:    cfg.Iterations,
		Parallelism:   cfg.Parallelism,
		KeyLength:     cfg.KeyLength,
		SaltLength:    cfg.SaltLength,
		MaxConcurrent: cfg.MaxConcurrent,
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = DefaultParams.MemoryKiB
	}
	if p.Iterations == 0 {
		p.Iterations = DefaultParams.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = DefaultParams.Parallelism
	}
	if p.KeyLength == 0 {
		p.KeyLength = DefaultParams.KeyLength
	}
	if p.SaltLength == 0 {
		p.SaltLength = DefaultParams.SaltLength
	}
	return p
}

var errMalformedHash = errors.New("malformed password hash")

// Hasher вычисляет и проверяет хэши паролей. Безопасен для конкурентного
// использования, число одновременных вычислений ограничено MaxConcurrent.
type Hasher struct {
	params Params
	sem    chan struct{}
}

// New создает Hasher. MaxConcurrent <= 0 означает runtime.NumCPU().
func New(params Params) *Hasher {
	limit := params.MaxConcurrent
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &Hasher{
		params: params,
		sem:    make(chan struct{}, limit),
	}
}

func (h *Hasher) acquire(ctx context.Context) error {
	select {
	case h.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hasher) release() {
	<-h.sem
}

// Hash возвращает закодированный argon2id-хэш пароля.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	const op = "password.Hash"
	if err := h.acquire(ctx); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer h.release()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, models.ErrHashing, err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify сравнивает пароль с хэшем за постоянное время.
//
// Несовпадение возвращает false без ошибки, испорченный хэш — ошибку models.ErrHashing.
func (h *Hasher) Verify(ctx context.Context, encoded, plaintext string) (bool, error) {
	const op = "password.Verify"
	if err := h.acquire(ctx); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer h.release()

	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%s: %w: %w", op, models.ErrHashing, err)
		}
	}

	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, models.ErrHashing, err)
	}
	other := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// maxMemoryKiB верхняя граница памяти для хэша из хранилища, 1 GiB.
const maxMemoryKiB = 1 << 20

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, errMalformedHash
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, errMalformedHash
	}
	// argon2.IDKey паникует на нулевых t и p.
	if p.Iterations < 1 || p.Parallelism < 1 || p.MemoryKiB < 1 || p.MemoryKiB > maxMemoryKiB {
		return p, nil, nil, errMalformedHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, errMalformedHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errMalformedHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
