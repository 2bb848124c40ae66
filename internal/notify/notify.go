// Package notify emails the parent of every flagged student.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/attendwatch/internal/attendance"
	"github.com/attendwatch/internal/mailer"
	"github.com/attendwatch/internal/metrics"
)

// Subject of every low attendance notice.
const Subject = "Low Attendance Warning"

//go:embed templates/notice.tmpl
var templateFS embed.FS

var noticeTmpl = template.Must(template.ParseFS(templateFS, "templates/notice.tmpl"))

// Recorder receives one observation per send attempt.
type Recorder interface {
	Notification(outcome string, took time.Duration)
}

// Summary counts the send attempts of one Notify call.
type Summary struct {
	Attempted int
	Delivered int
	Failed    int
	// Skipped records were never attempted because the context ended.
	Skipped int
}

type noopRecorder struct{}

func (noopRecorder) Notification(string, time.Duration) {}

type Notifier struct {
	transport   mailer.Transport
	signature   string
	sendTimeout time.Duration
	recorder    Recorder
	logger      *slog.Logger
}

type Option func(*Notifier)

// WithSendTimeout bounds each individual send. Zero disables the bound.
func WithSendTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.sendTimeout = d }
}

// WithSignature sets the closing line of the notice.
func WithSignature(s string) Option {
	return func(n *Notifier) { n.signature = s }
}

func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

func New(transport mailer.Transport, logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		transport:   transport,
		signature:   "School Administration",
		sendTimeout: 30 * time.Second,
		logger:      logger.With("component", "notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.recorder == nil {
		n.recorder = noopRecorder{}
	}
	return n
}

// Notify sends one notice per record, in order. A failed send is logged and
// counted; the remaining records are still attempted. Notify stops early only
// when ctx is done.
func (n *Notifier) Notify(ctx context.Context, records []attendance.Record) Summary {
	var sum Summary
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			sum.Skipped = len(records) - i
			n.logger.Warn("notifications interrupted", "remaining", sum.Skipped, "err", err)
			break
		}

		sum.Attempted++
		if err := n.send(ctx, r); err != nil {
			sum.Failed++
			n.logger.Error("notification failed", "to", r.ParentEmail(), "row", r.Row(), "err", err)
			continue
		}
		sum.Delivered++
		n.logger.Info("notification sent", "to", r.ParentEmail(), "row", r.Row())
	}
	return sum
}

func (n *Notifier) send(ctx context.Context, r attendance.Record) (err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.NotificationDelivered
		if err != nil {
			outcome = metrics.NotificationFailed
		}
		n.recorder.Notification(outcome, time.Since(start))
	}()

	msg, err := n.Compose(r)
	if err != nil {
		return err
	}

	if n.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.sendTimeout)
		defer cancel()
	}
	return n.transport.Send(ctx, msg)
}

// Compose builds the notice for r without sending it. The student values are
// copied into the body exactly as read from the sheet.
func (n *Notifier) Compose(r attendance.Record) (mailer.Message, error) {
	to := r.ParentEmail()
	if to == "" {
		return mailer.Message{}, fmt.Errorf("row %d: no parent email", r.Row())
	}

	var body bytes.Buffer
	err := noticeTmpl.Execute(&body, struct {
		StudentName      string
		EnrollmentNumber string
		TotalPercentage  string
		Signature        string
	}{
		StudentName:      r.StudentName(),
		EnrollmentNumber: r.EnrollmentNumber(),
		TotalPercentage:  r.TotalPercentage(),
		Signature:        n.signature,
	})
	if err != nil {
		return mailer.Message{}, fmt.Errorf("render notice: %w", err)
	}

	return mailer.Message{
		To:      []string{to},
		Subject: Subject,
		Body:    strings.TrimRight(body.String(), "\n"),
	}, nil
}
