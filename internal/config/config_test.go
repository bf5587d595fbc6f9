package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// missingEnvFile points Load at a path that does not exist so a developer's
// real .env never leaks into the test.
func missingEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.CodeTTL)
	assert.Equal(t, "@mbstu.ac.bd", cfg.EmailDomain)
	assert.Equal(t, NotifierLog, cfg.Notifier)
	assert.Equal(t, "verification_emails", cfg.AMQP.Queue)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.False(t, cfg.SMTP.OAuth.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("PORT", "8081")
	t.Setenv("STORE_DRIVER", "MONGO")
	t.Setenv("CODE_TTL", "5m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.CodeTTL)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "JWT_SECRET=from-env-file-secret-value\nSMTP_USERNAME=gate@mbstu.ac.bd\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("SMTP_USERNAME")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env-file-secret-value", cfg.JWTSecret)
	// SMTP_FROM falls back to the username
	assert.Equal(t, "gate@mbstu.ac.bd", cfg.SMTP.From)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load(missingEnvFile(t))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:        5000,
			StoreDriver: DriverSQLite,
			JWTSecret:   "test-secret-at-least-16-chars!!",
			TokenTTL:    time.Hour,
			CodeTTL:     time.Minute,
			EmailDomain: "@mbstu.ac.bd",
			Notifier:    NotifierLog,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "postgres" }, wantErr: true},
		{name: "unknown notifier", mutate: func(c *Config) { c.Notifier = "sms" }, wantErr: true},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, wantErr: true},
		{name: "zero code ttl", mutate: func(c *Config) { c.CodeTTL = 0 }, wantErr: true},
		{name: "smtp without username", mutate: func(c *Config) { c.Notifier = NotifierSMTP }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
