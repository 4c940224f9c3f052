package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	settings := Default()

	require.Equal(t, core.DefaultMaxLevel, settings.Reentry.MaxLevel)
	require.InDelta(t, 0.7, settings.Reentry.RecoveryFraction, 1e-9)
	require.Equal(t, 30*time.Minute, settings.Reentry.RecoveryWindow)
	require.Equal(t, 5*time.Second, settings.Reentry.PollInterval)
	require.Equal(t, 3, settings.Broker.RetryAttempts)
	require.Equal(t, "paper", settings.Broker.Type)
	require.Equal(t, "buntdb", settings.Storage.Driver)
	require.NoError(t, settings.Validate())
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "zepix.yaml")

	settings, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, Default().Reentry, settings.Reentry)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.Reentry, again.Reentry)
	require.Equal(t, settings.Safety, again.Safety)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zepix.yaml")
	content := `
reentry:
  max_level: 3
  recovery_window: 1d
  sl_reduction_percent: 25
safety:
  max_daily_recovery_attempts: 4
  reset_hour: 22
  timezone: UTC
symbols:
  xauusd:
    pip_size: 0.1
    digits: 2
    pip_value: 1
telegram:
  enabled: true
  users: [10, 20]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, settings.Reentry.MaxLevel)
	require.Equal(t, 24*time.Hour, settings.Reentry.RecoveryWindow)
	require.InDelta(t, 25, settings.Reentry.SLReductionPercent, 1e-9)
	require.Equal(t, 4, settings.Safety.MaxDailyRecoveryAttempts)
	require.Equal(t, 22, settings.Safety.ResetHour)
	require.Equal(t, []int{10, 20}, settings.Telegram.Users)

	gold := settings.Symbol("XAUUSD")
	require.InDelta(t, 0.1, gold.PipSize, 1e-9)
	require.Equal(t, 2, gold.Digits)
	require.InDelta(t, 0.01, gold.LotStep, 1e-9)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zepix.yaml")
	t.Setenv("ZEPIX_BROKER_TOKEN", "secret")
	t.Setenv("ZEPIX_REENTRY_POLL_INTERVAL", "2s")

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "secret", settings.Broker.Token)
	require.Equal(t, 2*time.Second, settings.Reentry.PollInterval)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	badDuration := filepath.Join(dir, "duration.yaml")
	require.NoError(t, os.WriteFile(badDuration, []byte("reentry:\n  recovery_window: soon\n"), 0o600))
	_, err := Load(badDuration)
	require.ErrorIs(t, err, core.ErrInvalidSettings)

	badFraction := filepath.Join(dir, "fraction.yaml")
	require.NoError(t, os.WriteFile(badFraction, []byte("reentry:\n  recovery_fraction: 1.5\n"), 0o600))
	_, err = Load(badFraction)
	require.ErrorIs(t, err, core.ErrInvalidSettings)

	mt5 := filepath.Join(dir, "mt5.yaml")
	require.NoError(t, os.WriteFile(mt5, []byte("broker:\n  type: mt5\n"), 0o600))
	_, err = Load(mt5)
	require.ErrorIs(t, err, core.ErrInvalidSettings)
}
