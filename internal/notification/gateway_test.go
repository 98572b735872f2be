package notification

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/account-service/internal/models"
)

type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) Send(ctx context.Context, msg models.EmailMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, message any) error {
	args := m.Called(ctx, routingKey, message)
	return args.Error(0)
}

func testUser() *models.User {
	return &models.User{Username: "alice", Email: "alice@example.com"}
}

func TestGateway_SendVerification(t *testing.T) {
	sender := new(SenderMock)
	var sent models.EmailMessage
	sender.On("Send", mock.Anything, mock.AnythingOfType("models.EmailMessage")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(models.EmailMessage) }).
		Return(nil).Once()

	g := NewGateway(sender, "http://localhost:8080/")
	require.NoError(t, g.SendVerification(context.Background(), testUser(), "tok-123"))

	assert.Equal(t, models.EmailVerification, sent.Kind)
	assert.Equal(t, "alice@example.com", sent.To)
	assert.Equal(t, "Email Verification", sent.Subject)
	assert.Contains(t, sent.TextBody, "http://localhost:8080/api/verify/tok-123")
	assert.Contains(t, sent.HTMLBody, `href="http://localhost:8080/api/verify/tok-123"`)
	assert.NotEmpty(t, sent.ID)
	assert.False(t, sent.CreatedAt.IsZero())
	sender.AssertExpectations(t)
}

func TestGateway_SendPasswordReset(t *testing.T) {
	sender := new(SenderMock)
	var sent models.EmailMessage
	sender.On("Send", mock.Anything, mock.AnythingOfType("models.EmailMessage")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(models.EmailMessage) }).
		Return(nil).Once()

	expires := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	g := NewGateway(sender, "https://accounts.example.com")
	require.NoError(t, g.SendPasswordReset(context.Background(), testUser(), "r/1", expires))

	assert.Equal(t, models.EmailPasswordReset, sent.Kind)
	assert.Equal(t, "Password Reset", sent.Subject)
	assert.Contains(t, sent.TextBody, "https://accounts.example.com/reset-password?token=r%2F1")
	assert.Contains(t, sent.TextBody, "2025-03-01 12:30 UTC")
}

func TestGateway_EscapesHTML(t *testing.T) {
	sender := new(SenderMock)
	var sent models.EmailMessage
	sender.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(models.EmailMessage) }).
		Return(nil)

	user := &models.User{Username: "<script>x</script>", Email: "x@example.com"}
	require.NoError(t, NewGateway(sender, "http://h").SendVerification(context.Background(), user, "t"))

	assert.NotContains(t, sent.HTMLBody, "<script>")
	assert.Contains(t, sent.HTMLBody, "&lt;script&gt;")
}

func TestGateway_SenderError(t *testing.T) {
	sender := new(SenderMock)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := NewGateway(sender, "http://h").SendVerification(context.Background(), testUser(), "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotification)
	assert.Contains(t, err.Error(), "smtp down")
}

func TestQueueSender_Send(t *testing.T) {
	msg := models.EmailMessage{ID: "1", To: "alice@example.com"}

	t.Run("publishes with email routing key", func(t *testing.T) {
		pub := new(PublisherMock)
		pub.On("Publish", mock.Anything, rabbitmq.EmailRoutingKey, msg).Return(nil).Once()

		require.NoError(t, NewQueueSender(pub).Send(context.Background(), msg))
		pub.AssertExpectations(t)
	})

	t.Run("publish error", func(t *testing.T) {
		pub := new(PublisherMock)
		pub.On("Publish", mock.Anything, rabbitmq.EmailRoutingKey, msg).Return(errors.New("channel closed")).Once()

		err := NewQueueSender(pub).Send(context.Background(), msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notification.QueueSender.Send")
	})
}

func TestLogSender_Send(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	err := NewLogSender(log).Send(context.Background(), models.EmailMessage{
		ID:       "m1",
		Kind:     models.EmailVerification,
		To:       "alice@example.com",
		Subject:  "Email Verification",
		TextBody: "link",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "a***@example.com")
	assert.NotContains(t, out, "alice@example.com")
	assert.Contains(t, out, "message_id=m1")
}

