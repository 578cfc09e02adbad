package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-fleet-auth/fleetapitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	content := fmt.Sprintf(`
client:
  base_url: %s
  request_timeout: 2s
storage:
  state_dsn: file:%s
  cookie_file: %s
`, baseURL, filepath.Join(dir, "state.db"), filepath.Join(dir, "cookies"))

	path := filepath.Join(dir, "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newCLIAPI(t *testing.T) *fleetapitest.Server {
	t.Helper()
	api := fleetapitest.NewServer()
	t.Cleanup(api.Close)
	api.RequireCSRF(true)
	api.AddAccount("ana@fleet.test", "secret", map[string]any{
		"id":         5,
		"email":      "ana@fleet.test",
		"first_name": "Ana",
		"groups":     []any{"Gestores"},
	})
	return api
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func TestCLI_SessionLifecycle(t *testing.T) {
	api := newCLIAPI(t)
	cfg := writeConfig(t, api.URL)

	out, _, err := executeCommand("login", "--config", cfg, "--email", "ana@fleet.test", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Ana [Gestores]")

	out, _, err = executeCommand("whoami", "--config", cfg, "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, `"ana@fleet.test"`)

	out, _, err = executeCommand("whoami", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"allowed": true`)

	out, _, err = executeCommand("check", "--config", cfg, "/insertorder")
	require.NoError(t, err)
	assert.Contains(t, out, "allowed: /insertorder")

	out, _, err = executeCommand("logout", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
	assert.Equal(t, 0, api.ActiveSessions())

	out, _, err = executeCommand("check", "--config", cfg, "/insertorder")
	require.Error(t, err)
	assert.Equal(t, 4, exitCode(err))
	assert.Contains(t, out, "denied: redirect to /login?redirect=/insertorder")

	out, _, err = executeCommand("activity", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "auth.login.success")
	assert.Contains(t, out, "auth.logout")
}

func TestCLI_LoginFailures(t *testing.T) {
	api := newCLIAPI(t)
	cfg := writeConfig(t, api.URL)

	_, _, err := executeCommand("login", "--config", cfg, "--email", "ana@fleet.test", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	_, _, err = executeCommand("login", "--config", cfg, "--email", "not-an-email", "--password", "secret")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, _, err = executeCommand("whoami", "--config", cfg, "--offline")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestCLI_LoginUnreachableAPI(t *testing.T) {
	api := newCLIAPI(t)
	cfg := writeConfig(t, api.URL)
	api.Close()

	_, _, err := executeCommand("login", "--config", cfg, "--email", "ana@fleet.test", "--password", "secret")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))
}

func TestCLI_Reset(t *testing.T) {
	api := newCLIAPI(t)
	cfg := writeConfig(t, api.URL)

	_, _, err := executeCommand("login", "--config", cfg, "--email", "ana@fleet.test", "--password", "secret")
	require.NoError(t, err)

	out, _, err := executeCommand("reset", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Session state cleared")

	_, _, err = executeCommand("whoami", "--config", cfg, "--offline")
	require.Error(t, err)

	_, _, err = executeCommand("whoami", "--config", cfg)
	require.Error(t, err)
}

func TestSQLitePath(t *testing.T) {
	assert.Equal(t, "/tmp/state.db", sqlitePath("file:/tmp/state.db?cache=shared"))
	assert.Equal(t, "", sqlitePath(":memory:"))
	assert.Equal(t, "state.db", sqlitePath("state.db"))
}
