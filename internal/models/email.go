package models

import "time"

// EmailKind различает назначение письма.
type EmailKind string

const (
	EmailVerification  EmailKind = "verification"
	EmailPasswordReset EmailKind = "password_reset"
)

// EmailMessage — готовое к отправке письмо. В режиме очереди
// сериализуется в JSON и публикуется в RabbitMQ.
type EmailMessage struct {
	ID        string    `json:"id"`
	Kind      EmailKind `json:"kind"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	TextBody  string    `json:"text_body"`
	HTMLBody  string    `json:"html_body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
