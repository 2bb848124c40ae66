package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EMAIL", "office@school.example")
	t.Setenv("PASSWORD", "app-password")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "smtp", cfg.MailTransport)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTPHost)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 30*time.Second, cfg.MailSendTimeout)
	assert.Equal(t, 4*time.Hour, cfg.SessionTTL)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsPostgres())
}

func TestLoadTrustedOrigins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CORS_TRUSTED_ORIGINS", "https://a.example, ,https://b.example ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Cors.TrustedOrigins)
}

func TestLoadRequiresSender(t *testing.T) {
	t.Setenv("EMAIL", "")
	t.Setenv("PASSWORD", "x")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL")
}

func TestLoadSMTPNeedsPassword(t *testing.T) {
	t.Setenv("EMAIL", "office@school.example")
	t.Setenv("PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PASSWORD")
}

func TestLoadConsoleTransportWithoutPassword(t *testing.T) {
	t.Setenv("EMAIL", "office@school.example")
	t.Setenv("PASSWORD", "")
	t.Setenv("MAIL_TRANSPORT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.MailTransport)
}

func TestLoadConsoleTransportRejectedInProduction(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("MAIL_TRANSPORT", "console")

	_, err := Load()
	require.ErrorIs(t, err, ErrConsoleInProduction)

	t.Setenv("MAIL_TRANSPORT", "smtp")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadSendgridNeedsKey(t *testing.T) {
	t.Setenv("EMAIL", "office@school.example")
	t.Setenv("MAIL_TRANSPORT", "sendgrid")
	t.Setenv("SENDGRID_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENDGRID_API_KEY")
}

func TestIsPostgres(t *testing.T) {
	for url, want := range map[string]bool{
		"postgres://u:p@localhost/db":   true,
		"postgresql://u:p@localhost/db": true,
		"file:attendwatch.db":           false,
		":memory:":                      false,
	} {
		c := &Config{DatabaseURL: url}
		assert.Equal(t, want, c.IsPostgres(), url)
	}
}
