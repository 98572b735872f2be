package models

import "errors"

// Ошибки доменного уровня. Слои ниже оборачивают их через %w,
// обработчики HTTP сопоставляют их с кодами ответа через errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("account already exists")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrEmailNotVerified   = errors.New("email is not verified")
	ErrHashing            = errors.New("password hashing failed")
	ErrStore              = errors.New("user store failure")
	ErrVersionConflict    = errors.New("record was modified concurrently")
	ErrNotification       = errors.New("notification delivery failed")
	ErrTimeout            = errors.New("operation timed out")
)
