// Package workflow runs one attendance upload end to end: parse the sheet,
// select the students below the threshold and notify their parents.
package workflow

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/attendwatch/internal/attendance"
	"github.com/attendwatch/internal/metrics"
	"github.com/attendwatch/internal/notify"
)

type extractor interface {
	ExtractLowAttendance(path string) (all, flagged []attendance.Record, err error)
}

type notifier interface {
	Notify(ctx context.Context, records []attendance.Record) notify.Summary
}

type uploadRecorder interface {
	Upload(outcome string, parsed, flagged int)
}

// Outcome describes a processed file. Individual send failures are reported
// only through Summary.
type Outcome struct {
	Parsed  int
	Flagged int
	Summary notify.Summary
}

type Service struct {
	extractor extractor
	notifier  notifier
	metrics   uploadRecorder
	logger    *slog.Logger
}

func NewService(ex extractor, n notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		extractor: ex,
		notifier:  n,
		metrics:   m,
		logger:    logger.With("component", "workflow"),
	}
}

// Process handles the file at path. A file that cannot be read as a
// spreadsheet returns an *attendance.ParseError and nothing is sent. Failed
// sends do not make Process fail; a context that ends before every notice was
// attempted does, with the partial Outcome.
func (s *Service) Process(ctx context.Context, path string) (Outcome, error) {
	file := filepath.Base(path)

	all, flagged, err := s.extractor.ExtractLowAttendance(path)
	if err != nil {
		s.metrics.Upload(metrics.UploadParseError, 0, 0)
		s.logger.Error("spreadsheet rejected", "file", file, "err", err)
		return Outcome{}, err
	}

	out := Outcome{Parsed: len(all), Flagged: len(flagged)}
	if len(flagged) == 0 {
		s.logger.Info("no students with low attendance", "file", file, "records", out.Parsed)
		s.metrics.Upload(metrics.UploadSuccess, out.Parsed, 0)
		return out, nil
	}

	out.Summary = s.notifier.Notify(ctx, flagged)
	if out.Summary.Skipped > 0 {
		s.logger.Warn("upload interrupted",
			"file", file,
			"delivered", out.Summary.Delivered,
			"skipped", out.Summary.Skipped,
		)
		s.metrics.Upload(metrics.UploadInterrupted, out.Parsed, out.Flagged)
		return out, ctx.Err()
	}

	s.logger.Info("upload processed",
		"file", file,
		"records", out.Parsed,
		"flagged", out.Flagged,
		"delivered", out.Summary.Delivered,
		"failed", out.Summary.Failed,
		"skipped", out.Summary.Skipped,
	)
	s.metrics.Upload(metrics.UploadSuccess, out.Parsed, out.Flagged)
	return out, nil
}
