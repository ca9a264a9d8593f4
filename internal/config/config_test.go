package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("GEN_API_URL", "https://api.example.com/v1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageFile, cfg.StorageBackend)
	assert.True(t, cfg.Streaming)
	assert.Equal(t, 128, cfg.CacheEntries)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, int32(2), cfg.DBMinConns)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("GEN_API_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := &Config{StorageBackend: StoragePostgres, CacheEntries: 10}
	require.Error(t, cfg.Validate())

	cfg.DatabaseURL = "postgres://localhost/pixchat"
	require.NoError(t, cfg.Validate())
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := &Config{StorageBackend: "s3", CacheEntries: 10}
	assert.Error(t, cfg.Validate())
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{AdminIDs: []int64{1, 42}}
	assert.True(t, cfg.IsAdmin(42))
	assert.False(t, cfg.IsAdmin(7))
	assert.Equal(t, "1,42", cfg.AdminIDsString())
}
