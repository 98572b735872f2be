package register

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/services/account"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Register(ctx context.Context, username, email, password string) (account.RegisterResult, error) {
	args := m.Called(ctx, username, email, password)
	return args.Get(0).(account.RegisterResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestRegisterHandler_ServeHTTP(t *testing.T) {
	valid := Request{Username: "alice", Email: "a@x.com", Password: "secret1"}

	tests := []struct {
		name           string
		requestBody    any
		callService    bool
		mockResult     account.RegisterResult
		mockErr        error
		wantStatusCode int
		wantMessage    string
		wantData       map[string]any
		wantError      string
		wantStatus     string
	}{
		{
			name:           "valid registration",
			requestBody:    valid,
			callService:    true,
			mockResult:     account.RegisterResult{Username: "alice", EmailSent: true},
			wantStatusCode: http.StatusOK,
			wantMessage:    "User successfully registered!",
			wantData:       map[string]any{"username": "alice", "emailSent": true},
			wantStatus:     "OK",
		},
		{
			name:           "email not sent",
			requestBody:    valid,
			callService:    true,
			mockResult:     account.RegisterResult{Username: "alice"},
			wantStatusCode: http.StatusOK,
			wantMessage:    "User successfully registered!",
			wantData: map[string]any{
				"username":  "alice",
				"emailSent": false,
				"warning":   "Verification email could not be sent. Request a new one later.",
			},
			wantStatus: "OK",
		},
		{
			name:           "invalid json body",
			requestBody:    "not a json",
			wantStatusCode: http.StatusBadRequest,
			wantError:      "Please provide all required fields.",
			wantStatus:     "Error",
		},
		{
			name:           "missing password",
			requestBody:    Request{Username: "alice", Email: "a@x.com"},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "Please provide all required fields.",
			wantStatus:     "Error",
		},
		{
			name:           "malformed email",
			requestBody:    Request{Username: "alice", Email: "nope", Password: "secret1"},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "field Email must be a valid email address",
			wantStatus:     "Error",
		},
		{
			name:           "username with at sign",
			requestBody:    Request{Username: "bob@home", Email: "b@x.com", Password: "pw"},
			wantStatusCode: http.StatusBadRequest,
			wantError:      `field Username must not contain "@"`,
			wantStatus:     "Error",
		},
		{
			name:           "conflict",
			requestBody:    valid,
			callService:    true,
			mockErr:        fmt.Errorf("account.Register: %w", models.ErrConflict),
			wantStatusCode: http.StatusConflict,
			wantError:      "Username or email already in use.",
			wantStatus:     "Error",
		},
		{
			name:           "timeout",
			requestBody:    valid,
			callService:    true,
			mockErr:        models.ErrTimeout,
			wantStatusCode: http.StatusGatewayTimeout,
			wantError:      "Registration timed out, please try again.",
			wantStatus:     "Error",
		},
		{
			name:           "store failure",
			requestBody:    valid,
			callService:    true,
			mockErr:        errors.Join(models.ErrStore, errors.New("connection refused")),
			wantStatusCode: http.StatusInternalServerError,
			wantError:      "Something failed during registration.",
			wantStatus:     "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			handler := New(newNoopLogger(), svc)

			if tt.callService {
				svc.On("Register", mock.Anything, "alice", "a@x.com", "secret1").
					Return(tt.mockResult, tt.mockErr).Once()
			}

			var bodyBytes []byte
			var err error
			switch v := tt.requestBody.(type) {
			case string:
				bodyBytes = []byte(v)
			default:
				bodyBytes, err = json.Marshal(tt.requestBody)
				if err != nil {
					t.Fatal(err)
				}
			}

			req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader(bodyBytes))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))

			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			raw := rec.Body.String()
			assert.NotContains(t, raw, "secret1")

			var got map[string]any
			err = json.Unmarshal([]byte(raw), &got)
			assert.NoError(t, err)

			assert.Equal(t, tt.wantStatus, got["status"])

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got["error"])
			} else {
				assert.Nil(t, got["error"])
				assert.Equal(t, tt.wantMessage, got["message"])
			}

			if tt.wantData != nil {
				data, ok := got["data"].(map[string]any)
				assert.True(t, ok)
				assert.Equal(t, tt.wantData, data)
			} else {
				assert.Nil(t, got["data"])
			}

			svc.AssertExpectations(t)
		})
	}
}
