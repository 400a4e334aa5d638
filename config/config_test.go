package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.ResetCodeTTL)
	assert.Equal(t, 6, cfg.ResetCodeLength)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, MailDriverLog, cfg.Mail.Driver)
	assert.False(t, cfg.S3.Enabled())
}

func TestLoadNestedPrefixes(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("MAIL_DRIVER", "smtp")
	t.Setenv("MAIL_FROM", "noreply@example.com")
	t.Setenv("MAIL_SMTP_HOST", "smtp.example.com")
	t.Setenv("MAIL_SMTP_PORT", "2525")
	t.Setenv("S3_BUCKET", "avatars")
	t.Setenv("S3_ENDPOINT", "http://127.0.0.1:9000")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", cfg.Mail.SMTPHost)
	assert.Equal(t, 2525, cfg.Mail.SMTPPort)
	assert.True(t, cfg.S3.Enabled())
	assert.Equal(t, "http://127.0.0.1:9000", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.UsePathStyle)
}

func TestValidate(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("MAIL_DRIVER", "resend")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "MAIL_RESEND_API_KEY")

	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err = Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown STORAGE_DRIVER "sqlite"`)
}
