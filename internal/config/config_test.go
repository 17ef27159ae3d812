package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webitel/actor-node/internal/config"
)

func TestLoadAppliesDefaultsWithNoFileOrFlags(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	require.Equal(t, "actor-node", cfg.Node.Name)
	require.Equal(t, 8, cfg.Scheduler.Workers)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "./log", cfg.Logging.Dir)
	require.True(t, cfg.Admin.Enabled)
	require.Equal(t, ":7000", cfg.Admin.Addr)
	require.Equal(t, ":7001", cfg.HTTP.Addr)
	require.Equal(t, "actor.cmd", cfg.CmdBus.Exchange)
	require.Equal(t, 5*time.Second, cfg.CmdBus.Timeout)
}

func TestLoadBindsFlagOverridesAboveDefaults(t *testing.T) {
	fs := config.Flags()
	require.NoError(t, fs.Set("scheduler.workers", "16"))
	require.NoError(t, fs.Set("admin.addr", ":9000"))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)

	require.Equal(t, 16, cfg.Scheduler.Workers)
	require.Equal(t, ":9000", cfg.Admin.Addr)
}

func TestLoadRejectsUnreadableConfigFile(t *testing.T) {
	_, err := config.Load("/nonexistent/path/actor-node.yaml", nil)
	require.Error(t, err)
}
