package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/lib/secrets"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
)

// CredentialSource отдаёт учётные данные SMTP.
type CredentialSource interface {
	Get(ctx context.Context) (secrets.Credentials, error)
}

// Transport реализует SMTP транспорт для отправки писем.
type Transport struct {
	cfg   config.SMTP
	creds CredentialSource
	log   *slog.Logger
}

// smtpClientWrapper обертка для *smtp.Client, реализующая интерфейс Client.
type smtpClientWrapper struct {
	client *smtp.Client
}

func (w *smtpClientWrapper) Mail(from string) error {
	return w.client.Mail(from)
}

func (w *smtpClientWrapper) Rcpt(to string) error {
	return w.client.Rcpt(to)
}

func (w *smtpClientWrapper) Data() (io.WriteCloser, error) {
	return w.client.Data()
}

func (w *smtpClientWrapper) Quit() error {
	return w.client.Quit()
}

func (w *smtpClientWrapper) Close() error {
	return w.client.Close()
}

// NewTransport создает новый экземпляр Transport. creds может быть nil,
// тогда аутентификация не выполняется.
func NewTransport(cfg config.SMTP, creds CredentialSource, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, creds: creds, log: log}
}

// Connect устанавливает соединение с SMTP сервером.
func (t *Transport) Connect(ctx context.Context) (Client, error) {
	const op = "smtp.Transport.Connect"
	if t.cfg.SMTPHost == "" {
		return nil, fmt.Errorf("%s: smtp host is not configured", op)
	}

	dialer := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(t.cfg.SMTPHost, t.cfg.SMTPPort))
	if err != nil {
		t.log.Error("failed to dial SMTP server", sl.Err(err))
		return nil, fmt.Errorf("%s: failed to dial SMTP server: %w", op, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	client, err := smtp.NewClient(conn, t.cfg.SMTPHost)
	if err != nil {
		t.log.Error("failed to create SMTP client", sl.Err(err))
		if closeErr := conn.Close(); closeErr != nil {
			t.log.Error("failed to close connection", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("%s: failed to create SMTP client: %w", op, err)
	}

	if err := t.secure(client); err != nil {
		t.closeClient(client)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := t.authenticate(ctx, client); err != nil {
		t.closeClient(client)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &smtpClientWrapper{client: client}, nil
}

func (t *Transport) secure(client *smtp.Client) error {
	if t.cfg.Insecure {
		return nil
	}
	if ok, _ := client.Extension("STARTTLS"); !ok {
		t.log.Error("SMTP server does not support STARTTLS")
		return errors.New("smtp server does not support STARTTLS")
	}
	tlsConfig := &tls.Config{
		ServerName: t.cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		t.log.Error("failed to start TLS", sl.Err(err))
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	return nil
}

func (t *Transport) authenticate(ctx context.Context, client *smtp.Client) error {
	if t.creds == nil {
		return nil
	}
	creds, err := t.creds.Get(ctx)
	if errors.Is(err, secrets.ErrNotFound) {
		t.log.Warn("smtp credentials are not configured, sending without auth")
		return nil
	}
	if err != nil {
		t.log.Error("failed to load SMTP credentials", sl.Err(err))
		return fmt.Errorf("failed to load smtp credentials: %w", err)
	}
	defer creds.Wipe()
	if creds.Username == "" {
		return nil
	}

	auth := smtp.PlainAuth("", creds.Username, string(creds.Password), t.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		t.log.Error("smtp auth failed", sl.Err(err))
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	return nil
}

func (t *Transport) closeClient(client *smtp.Client) {
	if err := client.Close(); err != nil {
		t.log.Error("failed to close client", sl.Err(err))
	}
}
