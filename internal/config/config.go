package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port string `envconfig:"PORT" default:"3000" validate:"required,numeric"`
	Env  string `envconfig:"ENV" default:"development" validate:"oneof=development production test"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" default:"file:attendwatch.db" validate:"required"`

	// Mail
	MailTransport   string        `envconfig:"MAIL_TRANSPORT" default:"smtp" validate:"oneof=smtp sendgrid console"`
	FromAddress     string        `envconfig:"EMAIL" validate:"required,email"`
	FromName        string        `envconfig:"MAIL_FROM_NAME" default:"School Administration"`
	Password        string        `envconfig:"PASSWORD" validate:"required_if=MailTransport smtp"`
	SMTPHost        string        `envconfig:"SMTP_HOST" default:"smtp.gmail.com" validate:"required_if=MailTransport smtp"`
	SMTPPort        int           `envconfig:"SMTP_PORT" default:"587" validate:"min=1,max=65535"`
	SendgridAPIKey  string        `envconfig:"SENDGRID_API_KEY" validate:"required_if=MailTransport sendgrid"`
	MailSendTimeout time.Duration `envconfig:"MAIL_SEND_TIMEOUT" default:"30s" validate:"gt=0"`

	// Uploads
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads" validate:"required"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"10485760" validate:"gt=0"`

	// Security
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"4h" validate:"gte=1m"`
	SecureCookies      bool          `envconfig:"SECURE_COOKIES" default:"false"`
	LoginRatePerMinute int           `envconfig:"LOGIN_RATE_PER_MINUTE" default:"10" validate:"gt=0"`
	SeedAdminUsername  string        `envconfig:"SEED_ADMIN_USERNAME"`
	SeedAdminPassword  string        `envconfig:"SEED_ADMIN_PASSWORD" validate:"required_with=SeedAdminUsername"`
	MaintenanceMode    bool          `envconfig:"MAINTENANCE_MODE" default:"false"`

	Cors struct {
		TrustedOrigins []string
	} `ignored:"true"`
	RawTrustedOrigins string `envconfig:"CORS_TRUSTED_ORIGINS"`
}

// Load reads the process environment, after merging a .env file when one
// exists, and validates the result.
func Load() (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	// Parse CORS trusted origins from comma-separated env var
	if cfg.RawTrustedOrigins != "" {
		for _, origin := range strings.Split(cfg.RawTrustedOrigins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.Cors.TrustedOrigins = append(cfg.Cors.TrustedOrigins, trimmed)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ErrConsoleInProduction is returned when production is configured to print
// mail instead of sending it.
var ErrConsoleInProduction = errors.New("invalid configuration: MAIL_TRANSPORT=console is not allowed in production")

func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		if c.IsProduction() && c.MailTransport == "console" {
			return ErrConsoleInProduction
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", envName(fe.StructField()), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// IsPostgres reports whether DatabaseURL points at a PostgreSQL server rather
// than a SQLite file.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// envName maps a struct field back to the variable it is read from so
// validation errors name something the operator can set.
func envName(field string) string {
	f, ok := reflect.TypeOf(Config{}).FieldByName(field)
	if !ok {
		return field
	}
	if tag := f.Tag.Get("envconfig"); tag != "" {
		return tag
	}
	return field
}
