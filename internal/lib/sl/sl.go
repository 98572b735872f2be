// Package sl содержит вспомогательные функции для работы с логгером slog:
// сборку логгера под окружение и единообразные поля для ошибок и
// персональных данных.
package sl

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger создает логгер для окружения env: текстовый для local и dev,
// JSON для остальных.
func NewLogger(env string, w io.Writer) *slog.Logger {
	switch env {
	case "local", "dev", "test":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{Key: "error", Value: slog.StringValue("<nil>")}
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Email возвращает адрес с замаскированной локальной частью: a***@example.com.
func Email(email string) slog.Attr {
	return slog.String("email", maskEmail(email))
}

func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
