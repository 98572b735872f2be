// Package sender доставляет письма из очереди через SMTP.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/models"
)

// Mailer отправляет готовое письмо.
type Mailer interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

// SenderService обрабатывает сообщения очереди писем.
type SenderService struct {
	mailer Mailer
	log    *slog.Logger
	maxAge time.Duration
	now    func() time.Time
}

// NewSenderService создает новый экземпляр SenderService. Письма старше maxAge
// отбрасываются, maxAge <= 0 отключает проверку.
func NewSenderService(mailer Mailer, log *slog.Logger, maxAge time.Duration) *SenderService {
	return &SenderService{
		mailer: mailer,
		log:    log,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// HandleEmail разбирает тело сообщения и отправляет письмо.
//
// Нечитаемое или устаревшее сообщение подтверждается без отправки, иначе оно
// бесконечно возвращалось бы в очередь. Ошибка SMTP возвращается вызывающему.
func (s *SenderService) HandleEmail(ctx context.Context, body []byte) error {
	const op = "sender.HandleEmail"
	log := s.log.With(slog.String("op", op))

	var msg models.EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Error("dropping malformed message", sl.Err(err))
		return nil
	}
	if msg.To == "" {
		log.Error("dropping message without recipient", slog.String("message_id", msg.ID))
		return nil
	}
	log = log.With(slog.String("message_id", msg.ID), slog.String("kind", string(msg.Kind)), sl.Email(msg.To))

	if s.maxAge > 0 && !msg.CreatedAt.IsZero() && s.now().Sub(msg.CreatedAt) > s.maxAge {
		log.Warn("dropping expired message", slog.Time("created_at", msg.CreatedAt))
		return nil
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		log.Error("failed to send email", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("email delivered")
	return nil
}
