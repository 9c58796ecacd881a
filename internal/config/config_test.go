package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Finance.MaxTeamLayer)
	assert.Equal(t, "0.02", cfg.Finance.MaxPointsValue)
	assert.Equal(t, 5*time.Second, cfg.Guard.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.Guard.IdempotencyTTL)
	assert.Equal(t, "0 0 * * 6", cfg.Cron.WeeklySubsidy)
	assert.Equal(t, 30*time.Minute, cfg.Cron.LockTTL)
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9090
finance:
  unilevel_cap: "20000"
guard:
  lock_ttl: 3s
cron:
  lock_ttl: 45m
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("LEDGER_MYSQL_DATABASE", "ledger_test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "20000", cfg.Finance.UnilevelCap)
	assert.Equal(t, 3*time.Second, cfg.Guard.LockTTL)
	assert.Equal(t, 45*time.Minute, cfg.Cron.LockTTL)
	assert.Equal(t, "ledger_test", cfg.MySQL.Database)
	assert.Equal(t, 60*time.Second, cfg.Guard.RecentWindow)
}
