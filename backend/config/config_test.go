package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("CACHE_TTL", "30")
	t.Setenv("SNAPSHOT_INTERVAL", "15m")
	t.Setenv("LUMINATE_REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("QUIET_STARTUP", "true")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 15*time.Minute, cfg.SnapshotInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.NotEmpty(t, cfg.SessionFile)
	assert.True(t, cfg.QuietStartup)
}
