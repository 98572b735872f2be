package smtp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-service/internal/models"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect(ctx context.Context) (Client, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Client), args.Error(1)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSMTPClient) Quit() error {
	args := m.Called()
	return args.Error(0)
}

type MockSMTPWriter struct {
	mock.Mock
	written []byte
}

func (m *MockSMTPWriter) Write(p []byte) (n int, err error) {
	m.written = append(m.written, p...)
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockSMTPWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func testMessage() models.EmailMessage {
	return models.EmailMessage{
		ID:       "msg-1",
		Kind:     models.EmailVerification,
		To:       "alice@example.com",
		Subject:  "Подтвердите email",
		TextBody: "Visit http://localhost:8080/api/verify/abc",
		HTMLBody: `<a href="http://localhost:8080/api/verify/abc">Verify</a>`,
	}
}

func TestMailer_Send(t *testing.T) {
	tests := []struct {
		name          string
		setupMocks    func(*MockTransport, *MockSMTPClient, *MockSMTPWriter)
		expectedError bool
		errorMessage  string
	}{
		{
			name: "success",
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, w *MockSMTPWriter) {
				tr.On("Connect", mock.Anything).Return(c, nil).Once()
				c.On("Mail", "no-reply@example.com").Return(nil).Once()
				c.On("Rcpt", "alice@example.com").Return(nil).Once()
				c.On("Data").Return(w, nil).Once()
				w.On("Write", mock.AnythingOfType("[]uint8")).Return(100, nil).Once()
				w.On("Close").Return(nil).Once()
				c.On("Quit").Return(nil).Once()
				c.On("Close").Return(nil).Once()
			},
		},
		{
			name: "connection error",
			setupMocks: func(tr *MockTransport, _ *MockSMTPClient, _ *MockSMTPWriter) {
				tr.On("Connect", mock.Anything).Return(nil, errors.New("connection error")).Once()
			},
			expectedError: true,
			errorMessage:  "connection error",
		},
		{
			name: "recipient rejected",
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, _ *MockSMTPWriter) {
				tr.On("Connect", mock.Anything).Return(c, nil).Once()
				c.On("Mail", "no-reply@example.com").Return(nil).Once()
				c.On("Rcpt", "alice@example.com").Return(errors.New("550 no such user")).Once()
				c.On("Close").Return(nil).Once()
			},
			expectedError: true,
			errorMessage:  "550 no such user",
		},
		{
			name: "write error",
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, w *MockSMTPWriter) {
				tr.On("Connect", mock.Anything).Return(c, nil).Once()
				c.On("Mail", "no-reply@example.com").Return(nil).Once()
				c.On("Rcpt", "alice@example.com").Return(nil).Once()
				c.On("Data").Return(w, nil).Once()
				w.On("Write", mock.AnythingOfType("[]uint8")).Return(0, errors.New("broken pipe")).Once()
				c.On("Close").Return(nil).Once()
			},
			expectedError: true,
			errorMessage:  "broken pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			client := new(MockSMTPClient)
			writer := new(MockSMTPWriter)
			tt.setupMocks(transport, client, writer)

			mailer := NewMailer(transport, "no-reply@example.com", newNoopLogger())
			err := mailer.Send(context.Background(), testMessage())

			if tt.expectedError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
			} else {
				assert.NoError(t, err)
				assert.Contains(t, string(writer.written), "To: alice@example.com")
			}

			transport.AssertExpectations(t)
			client.AssertExpectations(t)
			writer.AssertExpectations(t)
		})
	}
}

func TestBuildMessage(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("multipart when html present", func(t *testing.T) {
		raw, err := BuildMessage("no-reply@example.com", testMessage(), now)
		require.NoError(t, err)
		msg := string(raw)

		assert.Contains(t, msg, "From: no-reply@example.com\r\n")
		assert.Contains(t, msg, "Subject: =?utf-8?q?")
		assert.Contains(t, msg, "Date: Thu, 02 Jan 2025 03:04:05 +0000\r\n")
		assert.Contains(t, msg, "Message-ID: <msg-1@account-service>\r\n")
		assert.Contains(t, msg, "Content-Type: multipart/alternative; boundary=")
		assert.Contains(t, msg, "Content-Type: text/plain; charset=\"UTF-8\"")
		assert.Contains(t, msg, "Content-Type: text/html; charset=\"UTF-8\"")
		assert.Contains(t, msg, "http://localhost:8080/api/verify/abc")
		assert.True(t, strings.HasSuffix(msg, "--\r\n"))
	})

	t.Run("plain text only", func(t *testing.T) {
		m := testMessage()
		m.HTMLBody = ""
		raw, err := BuildMessage("no-reply@example.com", m, now)
		require.NoError(t, err)
		msg := string(raw)

		assert.NotContains(t, msg, "multipart")
		assert.Contains(t, msg, "Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		assert.Contains(t, msg, "\r\n\r\nVisit http://localhost:8080/api/verify/abc")
	})

	t.Run("header injection rejected", func(t *testing.T) {
		m := testMessage()
		m.To = "alice@example.com\r\nBcc: eve@example.com"
		_, err := BuildMessage("no-reply@example.com", m, now)
		assert.Error(t, err)
	})
}
