// Package models содержит доменную модель учётной записи пользователя,
// письма для отправки и набор ошибок, общих для всех слоёв сервиса.
package models

import "time"

// User представляет учётную запись пользователя.
// Атрибуты verification_token и reset_token в snake_case служат ключами GSI в DynamoDB.
type User struct {
	ID                  string     `json:"id" dynamodbav:"id"`                                                 // Уникальный идентификатор (uuid v4)
	Username            string     `json:"username" dynamodbav:"username"`                                     // Имя пользователя, уникальное и неизменяемое
	Email               string     `json:"email" dynamodbav:"email"`                                           // Нормализованная электронная почта, уникальная
	PasswordHash        string     `json:"password" dynamodbav:"password"`                                     // Закодированный хэш пароля
	IsEmailVerified     bool       `json:"isEmailVerified" dynamodbav:"isEmailVerified"`                       // Почта подтверждена
	VerificationToken   *string    `json:"verificationToken,omitempty" dynamodbav:"verification_token,omitempty"` // Токен подтверждения почты
	ResetToken          *string    `json:"resetToken,omitempty" dynamodbav:"reset_token,omitempty"`               // Токен сброса пароля
	ResetTokenExpiresAt *time.Time `json:"resetTokenExpiresAt,omitempty" dynamodbav:"resetTokenExpiresAt,omitempty"`
	Version             int64      `json:"version" dynamodbav:"version"` // Версия записи для условного обновления
	CreatedAt           time.Time  `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt" dynamodbav:"updatedAt"`
}

// ResetTokenValid сообщает, действует ли токен сброса пароля на момент now.
func (u *User) ResetTokenValid(token string, now time.Time) bool {
	if u.ResetToken == nil || *u.ResetToken != token {
		return false
	}
	return u.ResetTokenExpiresAt != nil && now.Before(*u.ResetTokenExpiresAt)
}

// HasVerificationToken сообщает, ожидает ли запись подтверждения именно этим токеном.
func (u *User) HasVerificationToken(token string) bool {
	return !u.IsEmailVerified && u.VerificationToken != nil && *u.VerificationToken == token
}
