// Package token выпускает одноразовые токены подтверждения почты и сброса пароля.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// DefaultSize число случайных байт в токене (256 бит).
const DefaultSize = 32

// Issuer выпускает случайные hex-токены. Состояния не хранит.
type Issuer struct {
	size int
}

// NewIssuer создает Issuer, size < 16 заменяется на DefaultSize.
func NewIssuer(size int) *Issuer {
	if size < 16 {
		size = DefaultSize
	}
	return &Issuer{size: size}
}

// Issue возвращает новый токен.
func (i *Issuer) Issue() (string, error) {
	const op = "token.Issue"
	b := make([]byte, i.size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(b), nil
}
