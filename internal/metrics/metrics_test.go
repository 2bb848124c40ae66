package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Upload(UploadSuccess, 10, 3)
	m.Upload(UploadParseError, 0, 0)
	m.Notification(NotificationDelivered, 20*time.Millisecond)
	m.Notification(NotificationDelivered, 30*time.Millisecond)
	m.Notification(NotificationFailed, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues(UploadSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues(UploadParseError)))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.recordsParsed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordsFlagged))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues(NotificationDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues(NotificationFailed)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Upload(UploadSuccess, 1, 1)
		m.Notification(NotificationFailed, time.Second)
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Notification(NotificationDelivered, time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), `attendwatch_notifications_total{outcome="delivered"} 1`)
}
