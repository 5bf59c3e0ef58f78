// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
environment: staging
db:
  type: postgres
  host: db.internal
  name: kbs
server:
  port: 5000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "postgres", cfg.DB.Type)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	// Defaults still apply to fields the file didn't set.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.DB.MaxConns)
}

func TestLoadFromFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"environment":"production","db":{"type":"sqlite","path":"/var/lib/kbs.db"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "sqlite", cfg.DB.Type)
	assert.Equal(t, "/var/lib/kbs.db", cfg.DB.Path)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/kbs-config.yaml")
	assert.Error(t, err)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.DB.Type)
	assert.Equal(t, "0.0.0.0", cfg.Server.ListenAddr)
	assert.Equal(t, 44444, cfg.Server.Port)
	assert.Equal(t, []string{"db", "root_keys"}, cfg.Health.Checks)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.yaml")

	cfg := &Config{}
	setDefaults(cfg)
	cfg.DB.Type = "mysql"
	cfg.DB.Host = "localhost"

	require.NoError(t, SaveToFile(cfg, path))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", reloaded.DB.Type)
	assert.Equal(t, "localhost", reloaded.DB.Host)
}
