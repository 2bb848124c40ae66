package pgstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/attendwatch/internal/model"
	"github.com/attendwatch/internal/store"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) CountAll(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n)
	return n, err
}

func (s *UserStore) Create(ctx context.Context, username, passwordHash string, role model.Role) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_users (id, username, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5)`,
		id, username, passwordHash, string(role), string(model.StatusActive),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrDuplicate
		}
		return "", err
	}
	return id, nil
}

const userColumns = `id::text, username, role, status, created_at, last_login_at`

func scanUser(row pgx.Row, extra ...any) (*model.AdminUser, error) {
	var (
		u         model.AdminUser
		role      string
		status    string
		createdAt pgtype.Timestamptz
		lastLogin pgtype.Timestamptz
	)
	dest := append([]any{&u.ID, &u.Username, &role, &status, &createdAt, &lastLogin}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, notFound(err)
	}
	u.Role = model.Role(role)
	u.Status = model.Status(status)
	u.CreatedAt = createdAt.Time.UTC()
	u.LastLoginAt = timePtr(lastLogin)
	return &u, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.AdminUser, string, error) {
	var hash string
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM admin_users WHERE username = $1`, username)
	u, err := scanUser(row, &hash)
	if err != nil {
		return nil, "", err
	}
	return u, hash, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.AdminUser, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM admin_users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *UserStore) ListAll(ctx context.Context) ([]model.AdminUser, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM admin_users ORDER BY username`)
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
	return s.exec(ctx, `UPDATE admin_users SET password_hash = $1 WHERE id = $2`, hash, id)
}

func (s *UserStore) UpdateRoleAndStatus(ctx context.Context, id string, role model.Role, status model.Status) error {
	return s.exec(ctx, `UPDATE admin_users SET role = $1, status = $2 WHERE id = $3`, string(role), string(status), id)
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE admin_users SET last_login_at = NOW() WHERE id = $1`, id)
}

func (s *UserStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
