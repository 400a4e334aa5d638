package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	MailDriverSMTP   = "smtp"
	MailDriverResend = "resend"
	MailDriverLog    = "log"
)

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	AppBaseURL    string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`

	JWTSecret            string        `env:"JWT_SECRET"`
	JWTIssuer            string        `env:"JWT_ISSUER" envDefault:"accounts"`
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	VerificationTokenTTL time.Duration `env:"VERIFICATION_TOKEN_TTL" envDefault:"1h"`
	ResetCodeTTL         time.Duration `env:"RESET_CODE_TTL" envDefault:"1h"`
	ResetCodeLength      int           `env:"RESET_CODE_LENGTH" envDefault:"6"`
	UpstreamTimeout      time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	BcryptCost           int           `env:"BCRYPT_COST" envDefault:"10"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	RateLimitBurst     int `env:"RATE_LIMIT_BURST" envDefault:"5"`

	Mail MailConfig `envPrefix:"MAIL_"`
	S3   S3Config   `envPrefix:"S3_"`
}

type MailConfig struct {
	Driver       string `env:"DRIVER" envDefault:"log"`
	From         string `env:"FROM"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
}

// S3Config is optional; without a bucket avatar uploads are rejected as an
// upstream failure.
type S3Config struct {
	Bucket        string `env:"BUCKET"`
	Region        string `env:"REGION" envDefault:"us-east-1"`
	Endpoint      string `env:"ENDPOINT"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	UsePathStyle  bool   `env:"USE_PATH_STYLE" envDefault:"true"`
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Load reads .env when present and parses the environment into Config.
func Load(logger logrus.FieldLogger) (Config, error) {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.WithError(err).Debug("no .env file loaded")
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres storage driver"))
		}
	case StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	switch c.Mail.Driver {
	case MailDriverSMTP:
		if c.Mail.SMTPHost == "" || c.Mail.From == "" {
			errs = append(errs, errors.New("MAIL_SMTP_HOST and MAIL_FROM are required for the smtp mail driver"))
		}
	case MailDriverResend:
		if c.Mail.ResendAPIKey == "" || c.Mail.From == "" {
			errs = append(errs, errors.New("MAIL_RESEND_API_KEY and MAIL_FROM are required for the resend mail driver"))
		}
	case MailDriverLog:
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_DRIVER %q", c.Mail.Driver))
	}
	if c.ResetCodeLength <= 0 {
		errs = append(errs, errors.New("RESET_CODE_LENGTH must be positive"))
	}
	if c.SessionTTL <= 0 || c.VerificationTokenTTL <= 0 || c.ResetCodeTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	return errors.Join(errs...)
}
