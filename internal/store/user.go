package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/attendwatch/internal/model"
)

type UserStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db, now: time.Now}
}

func (s *UserStore) CountAll(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n)
	return n, err
}

// Create inserts an active user and returns its generated ID.
func (s *UserStore) Create(ctx context.Context, username, passwordHash string, role model.Role) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_users (id, username, password_hash, role, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, username, passwordHash, string(role), string(model.StatusActive), unix(s.now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", err
	}
	return id, nil
}

const userColumns = `id, username, role, status, created_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }, extra ...any) (*model.AdminUser, error) {
	var (
		u         model.AdminUser
		role      string
		status    string
		createdAt int64
		lastLogin sql.NullInt64
	)
	dest := append([]any{&u.ID, &u.Username, &role, &status, &createdAt, &lastLogin}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = model.Role(role)
	u.Status = model.Status(status)
	u.CreatedAt = fromUnix(createdAt)
	if lastLogin.Valid {
		t := fromUnix(lastLogin.Int64)
		u.LastLoginAt = &t
	}
	return &u, nil
}

// GetByUsername returns the user and its password hash.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.AdminUser, string, error) {
	var hash string
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM admin_users WHERE username = ?`, username)
	u, err := scanUser(row, &hash)
	if err != nil {
		return nil, "", err
	}
	return u, hash, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.AdminUser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM admin_users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *UserStore) ListAll(ctx context.Context) ([]model.AdminUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM admin_users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.AdminUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `UPDATE admin_users SET password_hash = ? WHERE id = ?`, hash, id)
}

func (s *UserStore) UpdateRoleAndStatus(ctx context.Context, id string, role model.Role, status model.Status) error {
	return s.exec(ctx, `UPDATE admin_users SET role = ?, status = ? WHERE id = ?`, string(role), string(status), id)
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE admin_users SET last_login_at = ? WHERE id = ?`, unix(s.now()), id)
}

func (s *UserStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
