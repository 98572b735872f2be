package resetpassword

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/services/account"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) InitiatePasswordReset(ctx context.Context, email string) (account.ResetResult, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(account.ResetResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestResetPasswordHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		callService    bool
		mockResult     account.ResetResult
		mockErr        error
		wantStatusCode int
		wantBody       map[string]any
	}{
		{
			name:           "success",
			body:           `{"email":"a@x.com"}`,
			callService:    true,
			mockResult:     account.ResetResult{EmailSent: true},
			wantStatusCode: http.StatusOK,
			wantBody:       map[string]any{"status": "OK", "message": "Password reset token generated. Check your email for instructions."},
		},
		{
			name:           "success even when email not sent",
			body:           `{"email":"a@x.com"}`,
			callService:    true,
			wantStatusCode: http.StatusOK,
			wantBody:       map[string]any{"status": "OK", "message": "Password reset token generated. Check your email for instructions."},
		},
		{
			name:           "missing email",
			body:           `{}`,
			wantStatusCode: http.StatusBadRequest,
			wantBody:       map[string]any{"status": "Error", "error": "Please provide your email."},
		},
		{
			name:           "not registered",
			body:           `{"email":"a@x.com"}`,
			callService:    true,
			mockErr:        models.ErrNotFound,
			wantStatusCode: http.StatusNotFound,
			wantBody:       map[string]any{"status": "Error", "error": "Email not registered."},
		},
		{
			name:           "malformed email",
			body:           `{"email":"a@x.com"}`,
			callService:    true,
			mockErr:        models.ErrValidation,
			wantStatusCode: http.StatusBadRequest,
			wantBody:       map[string]any{"status": "Error", "error": "Please provide a valid email."},
		},
		{
			name:           "store failure",
			body:           `{"email":"a@x.com"}`,
			callService:    true,
			mockErr:        errors.Join(models.ErrStore, errors.New("boom")),
			wantStatusCode: http.StatusInternalServerError,
			wantBody:       map[string]any{"status": "Error", "error": "Something went wrong during password reset."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.callService {
				svc.On("InitiatePasswordReset", mock.Anything, "a@x.com").Return(tt.mockResult, tt.mockErr).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/api/reset-password", bytes.NewBufferString(tt.body))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))
			rec := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			var got map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantBody, got)
			svc.AssertExpectations(t)
		})
	}
}
