// Package notification формирует письма о подтверждении email и сбросе пароля
// и передает их выбранному Sender.
package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/account-service/internal/models"
)

// Gateway отправляет пользователю служебные письма.
type Gateway struct {
	sender  Sender
	baseURL string
	now     func() time.Time
}

// NewGateway создает Gateway. Ссылки в письмах строятся от публичного адреса baseURL.
func NewGateway(sender Sender, baseURL string) *Gateway {
	return &Gateway{
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// VerificationLink ссылка для подтверждения email.
func (g *Gateway) VerificationLink(token string) string {
	return g.baseURL + "/api/verify/" + url.PathEscape(token)
}

// ResetLink ссылка на страницу сброса пароля.
func (g *Gateway) ResetLink(token string) string {
	return g.baseURL + "/reset-password?token=" + url.QueryEscape(token)
}

// SendVerification отправляет письмо со ссылкой подтверждения.
func (g *Gateway) SendVerification(ctx context.Context, user *models.User, token string) error {
	const op = "notification.SendVerification"
	data := emailData{Username: user.Username, Link: g.VerificationLink(token)}
	if err := g.send(ctx, models.EmailVerification, user.Email, verificationTemplate, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SendPasswordReset отправляет письмо со ссылкой сброса пароля.
func (g *Gateway) SendPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	const op = "notification.SendPasswordReset"
	data := emailData{
		Username:  user.Username,
		Link:      g.ResetLink(token),
		ExpiresAt: formatExpiry(expiresAt),
	}
	if err := g.send(ctx, models.EmailPasswordReset, user.Email, resetTemplate, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, kind models.EmailKind, to string, tmpl emailTemplate, data emailData) error {
	subject, text, html, err := tmpl.render(data)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrNotification, err)
	}
	msg := models.EmailMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		To:        to,
		Subject:   subject,
		TextBody:  text,
		HTMLBody:  html,
		CreatedAt: g.now().UTC(),
	}
	if err := g.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", models.ErrNotification, err)
	}
	return nil
}
