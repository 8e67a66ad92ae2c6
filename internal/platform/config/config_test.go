package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrcrugby/subgate/internal/platform/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "ARS", cfg.App.Currency)
	assert.Equal(t, "https://api.mercadopago.com", cfg.MercadoPago.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.MercadoPago.Timeout())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SUBGATE_SERVER_PORT", "9090")
	t.Setenv("SUBGATE_APP_BASE_URL", "https://vrc.example.com/")
	t.Setenv("SUBGATE_MERCADOPAGO_ACCESSTOKEN", "APP_USR-123")
	t.Setenv("SUBGATE_MERCADOPAGO_WEBHOOKSECRET", "whsec")
	t.Setenv("SUBGATE_MERCADOPAGO_TIMEOUT_SECS", "20")
	t.Setenv("SUBGATE_CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://vrc.example.com/", cfg.App.BaseURL)
	assert.Equal(t, "APP_USR-123", cfg.MercadoPago.AccessToken)
	assert.Equal(t, "whsec", cfg.MercadoPago.WebhookSecret)
	assert.Equal(t, 20*time.Second, cfg.MercadoPago.Timeout())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.Origins())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
mercadopago:
  accesstoken: from-file
`), 0o600))

	cfg, err := config.Load(path, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.MercadoPago.AccessToken)
}

func TestLoad_CORSOriginsAsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cors:
  allowed_origins:
    - https://a.example.com
    - https://b.example.com
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.Origins())
}

func TestLoad_CORSOriginsEnvOverridesList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cors:
  allowed_origins: [https://a.example.com]
`), 0o600))
	t.Setenv("SUBGATE_CORS_ALLOWED_ORIGINS", "https://c.example.com,https://d.example.com")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://c.example.com", "https://d.example.com"}, cfg.CORS.Origins())
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.ErrorIs(t, cfg.Validate(), config.ErrAccessTokenRequired)

	cfg.MercadoPago.AccessToken = "APP_USR-123"
	assert.NoError(t, cfg.Validate())
}

func TestCORSOrigins_Empty(t *testing.T) {
	assert.Empty(t, config.CORSConfig{}.Origins())
}
