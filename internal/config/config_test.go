package config

import (
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func secret(b byte) string {
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = b
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func setEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/taskchat?sslmode=disable")
	t.Setenv("ACCESS_TOKEN_SECRET", secret('a'))
	t.Setenv("REFRESH_TOKEN_SECRET", secret('r'))
}

func TestLoad(t *testing.T) {
	setEnv(t)

	cfg, err := Load()
	assert.Nil(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTTL)
	assert.Len(t, cfg.AccessKey, 32)
	assert.Len(t, cfg.RefreshKey, 32)
}

func TestLoadMissingDatabaseUrl(t *testing.T) {
	setEnv(t)
	// t.Setenv registers the restore; unsetting afterwards leaves the
	// variable absent for this test only
	os.Unsetenv("DATABASE_URL")

	_, err := Load()
	assert.NotNil(t, err)
}

func TestLoadShortSecret(t *testing.T) {
	setEnv(t)
	t.Setenv("ACCESS_TOKEN_SECRET", base64.StdEncoding.EncodeToString([]byte("short")))

	_, err := Load()
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET")
}

func TestLoadIdenticalSecrets(t *testing.T) {
	setEnv(t)
	t.Setenv("REFRESH_TOKEN_SECRET", secret('a'))

	_, err := Load()
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoadBadBase64(t *testing.T) {
	setEnv(t)
	t.Setenv("ACCESS_TOKEN_SECRET", "not base64!!!")

	_, err := Load()
	assert.NotNil(t, err)
}

func TestLoadRefreshShorterThanAccess(t *testing.T) {
	setEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "1h")
	t.Setenv("REFRESH_TOKEN_TTL", "30m")

	_, err := Load()
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "must exceed")
}
