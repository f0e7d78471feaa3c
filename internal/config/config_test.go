package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/config"
)

func setRequired(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ENCRYPTION_KEY", "k")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "file:chatcore.db?_time_format=sqlite", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, 200, cfg.BackfillPageSize)
	assert.Equal(t, 60*time.Second, cfg.WSPongWait)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, "social.notifications", cfg.NotificationsSubject)
}

func TestLoadPostgresURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "chat")
	t.Setenv("POSTGRES_PASSWORD", "pw")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://chat:pw@db:5432/chat?sslmode=disable", cfg.DatabaseURL)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"missing jwt":   {"JWT_SECRET": ""},
		"missing key":   {"ENCRYPTION_KEY": ""},
		"bad driver":    {"DB_DRIVER": "mysql"},
		"bad presence":  {"PRESENCE_BACKEND": "memcached"},
		"bad duration":  {"WS_PONG_WAIT": "soon"},
		"zero backfill": {"BACKFILL_PAGE_SIZE": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
