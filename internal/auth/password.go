package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/attendwatch/internal/model"
)

const bcryptCost = 12

// MinPasswordLength applies to passwords set through the admin tools.
const MinPasswordLength = 8

var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// Hash returns a bcrypt hash of the password.
func Hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(b), err
}

// Verify reports whether password matches the stored bcrypt hash.
func Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// dummyHash is compared against when a username is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("attendwatch-dummy-password"), bcryptCost)

// VerifyMissing burns the same time as a failed Verify.
func VerifyMissing(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// UserCreator is the minimal interface needed for seeding the first admin.
type UserCreator interface {
	CountAll(ctx context.Context) (int, error)
	Create(ctx context.Context, username, passwordHash string, role model.Role) (string, error)
}

// SeedFirstAdmin creates an admin account when the users table is empty.
// Nothing happens when username is blank.
func SeedFirstAdmin(ctx context.Context, users UserCreator, username, password string, logger *slog.Logger) error {
	if username == "" {
		return nil
	}

	count, err := users.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("seed: count admin users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := Hash(password)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	if _, err := users.Create(ctx, username, hash, model.RoleAdmin); err != nil {
		return fmt.Errorf("seed: create admin user: %w", err)
	}
	logger.Info("seed: created first admin", "username", username)
	return nil
}

// IsWeakPassword reports whether err came from the password length check.
func IsWeakPassword(err error) bool {
	return errors.Is(err, ErrWeakPassword)
}
