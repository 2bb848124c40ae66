package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendwatch/internal/attendance"
	"github.com/attendwatch/internal/attendance/attendancetest"
	"github.com/attendwatch/internal/mailer"
	"github.com/attendwatch/internal/metrics"
	"github.com/attendwatch/internal/notify"
	"github.com/attendwatch/internal/workflow"
)

type recordingTransport struct {
	mu     sync.Mutex
	to     []string
	failOn map[string]bool
}

func (r *recordingTransport) Send(_ context.Context, msg mailer.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, msg.To...)
	if r.failOn[msg.To[0]] {
		return errors.New("transport down")
	}
	return nil
}

func newService(t *testing.T, tr mailer.Transport) (*workflow.Service, *metrics.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	svc := workflow.NewService(
		attendance.NewExtractor(logger),
		notify.New(tr, logger, notify.WithRecorder(m)),
		m,
		logger,
	)
	return svc, m
}

func TestProcessNotifiesOnlyLowAttendance(t *testing.T) {
	tr := &recordingTransport{}
	svc, _ := newService(t, tr)
	path := attendancetest.WriteStudents(t,
		attendancetest.Student{Name: "A", Enrollment: 1, Percentage: 55, Email: "a@x.com"},
		attendancetest.Student{Name: "B", Enrollment: 2, Percentage: 80, Email: "b@x.com"},
	)

	out, err := svc.Process(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Parsed)
	assert.Equal(t, 1, out.Flagged)
	assert.Equal(t, notify.Summary{Attempted: 1, Delivered: 1}, out.Summary)
	assert.Equal(t, []string{"a@x.com"}, tr.to)
}

func TestProcessAllAboveThreshold(t *testing.T) {
	tr := &recordingTransport{}
	svc, _ := newService(t, tr)
	path := attendancetest.WriteStudents(t,
		attendancetest.Student{Name: "A", Enrollment: 1, Percentage: 60, Email: "a@x.com"},
		attendancetest.Student{Name: "B", Enrollment: 2, Percentage: 95, Email: "b@x.com"},
	)

	out, err := svc.Process(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, out.Flagged)
	assert.Empty(t, tr.to)
}

func TestProcessCorruptFile(t *testing.T) {
	tr := &recordingTransport{}
	svc, m := newService(t, tr)
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04garbage"), 0o600))

	_, err := svc.Process(context.Background(), path)
	require.Error(t, err)

	var perr *attendance.ParseError
	assert.ErrorAs(t, err, &perr)
	assert.Empty(t, tr.to)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `attendwatch_uploads_total{outcome="parse_error"} 1`)
}

func TestProcessSendFailureDoesNotFailUpload(t *testing.T) {
	tr := &recordingTransport{failOn: map[string]bool{"b@x.com": true}}
	svc, _ := newService(t, tr)
	path := attendancetest.WriteStudents(t,
		attendancetest.Student{Name: "A", Enrollment: 1, Percentage: 10, Email: "a@x.com"},
		attendancetest.Student{Name: "B", Enrollment: 2, Percentage: 20, Email: "b@x.com"},
		attendancetest.Student{Name: "C", Enrollment: 3, Percentage: 30, Email: "c@x.com"},
	)

	out, err := svc.Process(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, tr.to)
	assert.Equal(t, notify.Summary{Attempted: 3, Delivered: 2, Failed: 1}, out.Summary)
}

func TestProcessCancelledContext(t *testing.T) {
	tr := &recordingTransport{}
	svc, _ := newService(t, tr)
	path := attendancetest.WriteStudents(t,
		attendancetest.Student{Name: "A", Enrollment: 1, Percentage: 10, Email: "a@x.com"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := svc.Process(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, out.Summary.Skipped)
	assert.Empty(t, tr.to)
}
