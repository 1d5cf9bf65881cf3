package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "")
	t.Setenv("EVENT_BUS", "")
	t.Setenv("WS_MAX_CLIENTS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "Drinks", cfg.SpecialtyCategory)
	assert.Equal(t, 200, cfg.WSMaxClients)
	assert.Equal(t, "none", cfg.EventBus)
	assert.Equal(t, "orders.lifecycle", cfg.KafkaTopic)
}

func TestValidate(t *testing.T) {
	cfg := &Config{DBDriver: "mysql", DBDSN: "dsn", EventBus: "none"}
	assert.Error(t, cfg.Validate(), "missing secret")

	cfg.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.DBDriver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg.DBDriver = "postgres"
	cfg.DBDSN = ""
	assert.Error(t, cfg.Validate())

	cfg.DBDSN = "dsn"
	cfg.EventBus = "nats"
	assert.Error(t, cfg.Validate())
}

func TestInitDBSqlite(t *testing.T) {
	db, err := InitDB(&Config{DBDriver: "sqlite", DBDSN: "file::memory:", GinMode: "release"})
	require.NoError(t, err)
	assert.True(t, db.Config.TranslateError)
}
