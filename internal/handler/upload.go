package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/attendwatch/internal/attendance"
	appmw "github.com/attendwatch/internal/middleware"
	"github.com/attendwatch/internal/model"
	"github.com/attendwatch/internal/workflow"
)

// UploadField is the multipart field carrying the attendance sheet.
const UploadField = "attendanceFile"

const (
	msgNoFile  = "No file uploaded."
	msgSuccess = "Emails sent successfully!"
)

// multipart headers and boundaries on top of the file itself
const multipartOverhead = 64 << 10

type processor interface {
	Process(ctx context.Context, path string) (workflow.Outcome, error)
}

type dashboardData struct {
	Username  string
	Threshold float64
	MaxUpload string
	CanUpload bool
}

// UploadHandler serves the dashboard and accepts attendance sheets.
type UploadHandler struct {
	BaseHandler
	workflow  processor
	uploadDir string
	maxBytes  int64
}

func NewUploadHandler(base BaseHandler, wf processor, uploadDir string, maxBytes int64) *UploadHandler {
	return &UploadHandler{BaseHandler: base, workflow: wf, uploadDir: uploadDir, maxBytes: maxBytes}
}

// Dashboard renders the upload form.
func (h *UploadHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "dashboard.html", http.StatusOK, dashboardData{
		Username:  appmw.UsernameFromContext(r.Context()),
		Threshold: attendance.Threshold,
		MaxUpload: humanize.IBytes(uint64(h.maxBytes)),
		CanUpload: appmw.RoleFromContext(r.Context()) == model.RoleAdmin,
	})
}

// Upload stores the sheet in a temporary file, runs the notification workflow
// on it and removes the file. Per-recipient send failures do not fail the
// request.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Reading the sheet and sending a large batch can outlast the server
	// write timeout. Lift the deadline for this response only.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.Logger.Debug("could not clear write deadline", "err", err)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.errorResponse(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. The limit is %s.", humanize.IBytes(uint64(h.maxBytes))))
			return
		}
		h.errorResponse(w, r, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if header.Size > h.maxBytes {
		h.errorResponse(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. The limit is %s.", humanize.IBytes(uint64(h.maxBytes))))
		return
	}

	path, err := h.saveTemp(file, header.Filename)
	if err != nil {
		h.logError(r, err)
		h.errorResponse(w, r, http.StatusInternalServerError, "Error: could not store the uploaded file")
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.Logger.Warn("failed to remove upload", "path", path, "err", err)
		}
	}()

	h.Logger.Info("upload received",
		"file", sanitizeFilename(header.Filename),
		"size", humanize.IBytes(uint64(header.Size)),
		"user", appmw.UsernameFromContext(r.Context()),
	)

	// Sends already under way finish even if the client goes away, so a
	// retried upload does not find a half-notified class.
	out, err := h.workflow.Process(context.WithoutCancel(r.Context()), path)
	if err != nil {
		h.errorResponse(w, r, http.StatusInternalServerError, "Error: "+err.Error())
		return
	}

	if wantsJSON(r) {
		h.writeJSON(w, r, http.StatusOK, envelope{
			"message":   msgSuccess,
			"parsed":    out.Parsed,
			"flagged":   out.Flagged,
			"delivered": out.Summary.Delivered,
			"failed":    out.Summary.Failed,
		})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, msgSuccess)
}

func (h *UploadHandler) saveTemp(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.CreateTemp(h.uploadDir, "attendance-*"+uploadExt(filename))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return dst.Name(), nil
}

// uploadExt keeps a known spreadsheet extension so the reader can tell CSV
// from other input. Anything else is dropped.
func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx", ".xlsm", ".xls", ".csv":
		return ext
	}
	return ""
}

// sanitizeFilename removes path components and control characters for logging.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}
