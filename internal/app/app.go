package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/attendwatch/internal/attendance"
	"github.com/attendwatch/internal/auth"
	"github.com/attendwatch/internal/config"
	"github.com/attendwatch/internal/mailer"
	"github.com/attendwatch/internal/metrics"
	"github.com/attendwatch/internal/notify"
	"github.com/attendwatch/internal/workflow"
)

const sessionSweepInterval = 15 * time.Minute

type App struct {
	config      *config.Config
	logger      *slog.Logger
	stores      *Stores
	metrics     *metrics.Metrics
	workflow    *workflow.Service
	maintenance atomic.Bool
}

func (app *App) Close() {
	app.stores.Close()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newApp(context.Background(), cfg, NewLogger(cfg, os.Stdout), os.Stdout)
}

// newApp builds the application. Console mail goes to mailOut.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, mailOut io.Writer) (*App, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := auth.SeedFirstAdmin(ctx, stores.Users, cfg.SeedAdminUsername, cfg.SeedAdminPassword, logger); err != nil {
		logger.Warn("admin seed failed", "err", err)
	}

	transport, err := NewTransport(cfg, mailOut)
	if err != nil {
		stores.Close()
		return nil, err
	}

	m := metrics.New()
	app := &App{
		config:   cfg,
		logger:   logger,
		stores:   stores,
		metrics:  m,
		workflow: NewWorkflow(cfg, logger, transport, m),
	}
	app.maintenance.Store(cfg.MaintenanceMode)
	return app, nil
}

// NewTransport builds the mail transport selected by MAIL_TRANSPORT. The
// console transport writes to w.
func NewTransport(cfg *config.Config, w io.Writer) (mailer.Transport, error) {
	mcfg := mailer.Config{
		FromName:       cfg.FromName,
		FromAddress:    cfg.FromAddress,
		Host:           cfg.SMTPHost,
		Port:           cfg.SMTPPort,
		Username:       cfg.FromAddress,
		Password:       cfg.Password,
		SendgridAPIKey: cfg.SendgridAPIKey,
	}
	if cfg.MailTransport == mailer.KindConsole {
		return mailer.NewConsole(w, mcfg), nil
	}
	return mailer.New(cfg.MailTransport, mcfg)
}

// NewWorkflow wires the extractor and notifier around transport. m may be nil.
func NewWorkflow(cfg *config.Config, logger *slog.Logger, transport mailer.Transport, m *metrics.Metrics) *workflow.Service {
	opts := []notify.Option{
		notify.WithSendTimeout(cfg.MailSendTimeout),
		notify.WithSignature(cfg.FromName),
	}
	if m != nil {
		opts = append(opts, notify.WithRecorder(m))
	}
	return workflow.NewService(
		attendance.NewExtractor(logger),
		notify.New(transport, logger, opts...),
		m,
		logger,
	)
}

func (app *App) Start(ctx context.Context) error {
	// Create an errgroup derived from the parent context
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", app.config.Port),
		Handler:           app.routes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      30 * time.Second,
		ErrorLog:          slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env, "mail", app.config.MailTransport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.sweepSessions(gctx, sessionSweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done() // Wait for OS signal or parent context to fail

		app.logger.Info("shutting down server")
		app.maintenance.Store(true)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

// sweepSessions deletes expired sessions until ctx is done.
func (app *App) sweepSessions(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := app.stores.Sessions.DeleteExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					app.logger.Warn("session sweep failed", "err", err)
				}
				continue
			}
			if n > 0 {
				app.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

// NewLogger returns the process logger and installs it as the slog default.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo

	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))

	slog.SetDefault(logger)
	return logger
}
