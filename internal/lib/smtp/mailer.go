package smtp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/models"
)

// Mailer отправляет письма через TransportInterface.
type Mailer struct {
	transport TransportInterface
	from      string
	log       *slog.Logger
}

// NewMailer создает Mailer с адресом отправителя from.
func NewMailer(transport TransportInterface, from string, log *slog.Logger) *Mailer {
	return &Mailer{transport: transport, from: from, log: log}
}

// Send отправляет письмо msg.
func (m *Mailer) Send(ctx context.Context, msg models.EmailMessage) error {
	const op = "smtp.Mailer.Send"
	log := m.log.With(slog.String("op", op), slog.String("message_id", msg.ID), slog.String("kind", string(msg.Kind)))

	body, err := BuildMessage(m.from, msg, time.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	client, err := m.transport.Connect(ctx)
	if err != nil {
		log.Error("failed to connect to SMTP server", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer client.Close()

	if err := client.Mail(m.from); err != nil {
		log.Error("failed to set MAIL FROM", slog.String("from", m.from), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		log.Error("failed to set RCPT TO", sl.Email(msg.To), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	wc, err := client.Data()
	if err != nil {
		log.Error("failed to get Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err = wc.Write(body); err != nil {
		log.Error("failed to write email body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = wc.Close(); err != nil {
		log.Error("failed to close Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = client.Quit(); err != nil {
		log.Error("failed to quit SMTP client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email sent successfully", sl.Email(msg.To))
	return nil
}

// BuildMessage собирает письмо в формате RFC 5322. При наличии HTMLBody
// письмо становится multipart/alternative.
func BuildMessage(from string, msg models.EmailMessage, now time.Time) ([]byte, error) {
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(from, "\r\n") {
		return nil, fmt.Errorf("invalid address")
	}

	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
	}
	if msg.ID != "" {
		headers = append(headers, "Message-ID: <"+msg.ID+"@account-service>")
	}

	var buf bytes.Buffer
	if msg.HTMLBody == "" {
		headers = append(headers,
			"Content-Type: text/plain; charset=\"UTF-8\"",
			"Content-Transfer-Encoding: quoted-printable",
		)
		buf.WriteString(strings.Join(headers, "\r\n"))
		buf.WriteString("\r\n\r\n")
		if err := writeQP(&buf, msg.TextBody); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
	headers = append(headers, "Content-Type: multipart/alternative; boundary=\""+boundary+"\"")
	buf.WriteString(strings.Join(headers, "\r\n"))
	buf.WriteString("\r\n\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=\"UTF-8\"", msg.TextBody},
		{"text/html; charset=\"UTF-8\"", msg.HTMLBody},
	}
	for _, p := range parts {
		buf.WriteString("--" + boundary + "\r\n")
		buf.WriteString("Content-Type: " + p.contentType + "\r\n")
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		if err := writeQP(&buf, p.body); err != nil {
			return nil, err
		}
		buf.WriteString("\r\n")
	}
	buf.WriteString("--" + boundary + "--\r\n")
	return buf.Bytes(), nil
}

func writeQP(buf *bytes.Buffer, s string) error {
	w := quotedprintable.NewWriter(buf)
	if _, err := w.Write([]byte(s)); err != nil {
		return err
	}
	return w.Close()
}
