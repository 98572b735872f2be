package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/account-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/models"
)

// Sender доставляет готовое письмо. *smtp.Mailer реализует Sender напрямую.
type Sender interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

// Publisher публикует сообщение в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// QueueSender ставит письмо в очередь RabbitMQ, его отправит почтовый воркер.
type QueueSender struct {
	publisher Publisher
}

// NewQueueSender создает QueueSender.
func NewQueueSender(publisher Publisher) *QueueSender {
	return &QueueSender{publisher: publisher}
}

// Send публикует письмо с ключом rabbitmq.EmailRoutingKey.
func (s *QueueSender) Send(ctx context.Context, msg models.EmailMessage) error {
	const op = "notification.QueueSender.Send"
	if err := s.publisher.Publish(ctx, rabbitmq.EmailRoutingKey, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LogSender пишет письмо в лог вместо отправки. Для локальной разработки.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender создает LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg models.EmailMessage) error {
	s.log.Info("email not sent, log mode",
		slog.String("message_id", msg.ID),
		slog.String("kind", string(msg.Kind)),
		sl.Email(msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.TextBody),
	)
	return nil
}
