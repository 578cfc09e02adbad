package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	client := cfg.GetClient()
	assert.Equal(t, "http://localhost:8000", client.GetBaseURL())
	assert.Equal(t, "/api/me/", client.GetUserPath())
	assert.Equal(t, "csrftoken", client.GetCSRFCookieName())
	assert.Equal(t, "X-CSRFToken", client.GetCSRFHeaderName())
	assert.Equal(t, 10*time.Second, client.GetRequestTimeout())
	assert.Equal(t, "authState", client.GetStateKey())
	assert.Equal(t, []string{"Gestores", "Maquinistas"}, client.GetAllowedGroups())
	assert.Equal(t, "127.0.0.1:8572", cfg.Server.Addr)
	assert.Contains(t, cfg.Storage.CookieFile, ".fleet")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.yaml")
	content := `
client:
  base_url: https://fleet.example.com/
  user_path: /api/user
  request_timeout: 3s
  allowed_groups:
    - Managers
server:
  addr: ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("FLEET_SERVER_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	client := cfg.GetClient()
	assert.Equal(t, "https://fleet.example.com", client.GetBaseURL())
	assert.Equal(t, "/api/user", client.GetUserPath())
	assert.Equal(t, 3*time.Second, client.GetRequestTimeout())
	assert.Equal(t, []string{"Managers"}, client.GetAllowedGroups())
	assert.Equal(t, "/api/login/", client.GetLoginPath())
	assert.Equal(t, ":9100", cfg.Server.Addr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
