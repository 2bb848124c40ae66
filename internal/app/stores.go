package app

import (
	"context"
	"time"

	"github.com/attendwatch/internal/config"
	"github.com/attendwatch/internal/model"
	"github.com/attendwatch/internal/store"
	"github.com/attendwatch/internal/store/pgstore"
)

// UserStore is implemented by store.UserStore and pgstore.UserStore.
type UserStore interface {
	CountAll(ctx context.Context) (int, error)
	Create(ctx context.Context, username, passwordHash string, role model.Role) (string, error)
	GetByUsername(ctx context.Context, username string) (*model.AdminUser, string, error)
	GetByID(ctx context.Context, id string) (*model.AdminUser, error)
	ListAll(ctx context.Context) ([]model.AdminUser, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateRoleAndStatus(ctx context.Context, id string, role model.Role, status model.Status) error
	UpdateLastLogin(ctx context.Context, id string) error
}

// SessionStore is implemented by store.SessionStore and pgstore.SessionStore.
type SessionStore interface {
	Create(ctx context.Context, userID string) (string, time.Time, error)
	GetUserID(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
	DeleteAllByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Stores bundles the persistence layer chosen by DATABASE_URL.
type Stores struct {
	Users    UserStore
	Sessions SessionStore
	Ping     func(ctx context.Context) error
	Close    func()
}

// OpenStores connects to SQLite or PostgreSQL and applies migrations.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.IsPostgres() {
		pool, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Users:    pgstore.NewUserStore(pool),
			Sessions: pgstore.NewSessionStore(pool, cfg.SessionTTL),
			Ping:     pool.Ping,
			Close:    pool.Close,
		}, nil
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Users:    store.NewUserStore(db),
		Sessions: store.NewSessionStore(db, cfg.SessionTTL),
		Ping:     db.PingContext,
		Close:    func() { db.Close() },
	}, nil
}
