package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesDatabaseSection(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
database:
  host: db.local
  port: "5433"
  user: leadbot
  password: secret
  name: leads
  sslmode: disable
  max_connections: 5
survey:
  store: postgres
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DatabaseConfig{
		Host:           "db.local",
		Port:           "5433",
		User:           "leadbot",
		Password:       "secret",
		Name:           "leads",
		SSLMode:        "disable",
		MaxConnections: 5,
	}, cfg.Database)
	assert.Equal(t, SessionStorePostgres, cfg.Survey.Store)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, "ru", cfg.Survey.FallbackLanguage)
	assert.Equal(t, 30, cfg.Survey.SessionTTLMinutes)
	assert.Equal(t, SessionStoreMemory, cfg.Survey.Store)
	assert.False(t, cfg.LeadWebhook.Enabled())
}

func TestLoadRejectsMissingToken(t *testing.T) {
	path := writeConfig(t, `
telegram:
  run_mode: longpoll
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestNormalizeValidatesBranchRules(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.Survey.Branches = []BranchRule{{Step: "goal", Next: "start_date"}}

	err := Normalize(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "when")
}
