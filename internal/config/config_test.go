package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("OUTBREAK_AUTH_JWT_SECRET", "from-env")
	t.Setenv("OUTBREAK_DATABASE_DRIVER", "sqlite")
	t.Setenv("OUTBREAK_SECURITY_ENCRYPTION_KEY", "00ff")
	t.Setenv("OUTBREAK_SERVER_PORT", "9100")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9100", cfg.Server.Addr())
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenExpiry)
	assert.Equal(t, "memory", cfg.Audit.Backend)
	assert.Equal(t, "00ff", cfg.Security.EncryptionKey)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
server:
  port: 8080
  request_timeout: 5s
  cors_origins: [https://outbreak.example.org]
database:
  driver: memory
auth:
  jwt_secret: from-file
  principal_cache_ttl: 1m
audit:
  backend: mongo
`), 0o600))
	t.Setenv("ENCRYPTION_KEY", "abcd")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"https://outbreak.example.org"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, time.Minute, cfg.Auth.PrincipalCacheTTL)
	assert.Equal(t, "mongo", cfg.Audit.Backend)
	assert.Equal(t, "abcd", cfg.Security.EncryptionKey)
}

func TestValidate(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("OUTBREAK_AUTH_JWT_SECRET", "x")
	t.Setenv("OUTBREAK_DATABASE_DRIVER", "oracle")
	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "oracle")
}

func TestValidateRequiresEncryptionKeyForPersistentDrivers(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite"} {
		cfg := &Config{
			Database: DatabaseConfig{Driver: driver},
			Audit:    AuditConfig{Backend: "memory"},
			Auth:     AuthConfig{JWTSecret: "x"},
		}
		assert.ErrorContains(t, cfg.Validate(), "security.encryption_key", driver)

		cfg.Security.EncryptionKey = "00ff"
		assert.NoError(t, cfg.Validate(), driver)
	}

	cfg := &Config{
		Database: DatabaseConfig{Driver: "memory"},
		Audit:    AuditConfig{Backend: "memory"},
		Auth:     AuthConfig{JWTSecret: "x"},
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsDefaultsWithoutEncryptionKey(t *testing.T) {
	t.Setenv("OUTBREAK_AUTH_JWT_SECRET", "x")

	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "security.encryption_key is required for the postgres driver")

	t.Setenv("ENCRYPTION_KEY", "00ff")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "00ff", cfg.Security.EncryptionKey)
}
