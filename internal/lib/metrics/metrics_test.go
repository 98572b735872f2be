package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/account-service/internal/models"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("op: %w", models.ErrValidation), "invalid"},
		{models.ErrConflict, "conflict"},
		{models.ErrVersionConflict, "conflict"},
		{models.ErrNotFound, "not_found"},
		{models.ErrInvalidToken, "not_found"},
		{models.ErrInvalidCredentials, "denied"},
		{models.ErrEmailNotVerified, "denied"},
		{models.ErrTimeout, "timeout"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err), fmt.Sprint(tt.err))
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Operation("register", nil)
	m.Operation("register", nil)
	m.Operation("register", models.ErrConflict)
	m.Notification(models.EmailVerification, nil)
	m.Notification(models.EmailVerification, errors.New("down"))
	m.HTTPRequest("POST", "/api/register", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("register", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("register", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("verification", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/register", "200")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Operation("login", nil)
		m.Notification(models.EmailPasswordReset, nil)
		m.HTTPRequest("GET", "/", 200, time.Second)
	})
}
