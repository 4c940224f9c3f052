// Package config handles application configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"
)

// Constants for configuration
const (
	DefaultConfigPath = "./zepix.yaml"
	EnvPrefix         = "ZEPIX"
)

// symbolConfig is the file layout of a symbol entry
type symbolConfig struct {
	PipSize  float64 `mapstructure:"pip_size"`
	Digits   int     `mapstructure:"digits"`
	PipValue float64 `mapstructure:"pip_value"`
	MinLot   float64 `mapstructure:"min_lot"`
	MaxLot   float64 `mapstructure:"max_lot"`
	LotStep  float64 `mapstructure:"lot_step"`
}

// defaults lists every key with its default value. Durations are strings so files can use
// units like "1d" or "90m".
var defaults = map[string]any{
	"reentry.max_level":                core.DefaultMaxLevel,
	"reentry.recovery_fraction":        0.7,
	"reentry.sl_reduction_percent":     30.0,
	"reentry.min_sl_pips":              10.0,
	"reentry.recovery_window":          "30m",
	"reentry.continuation_enabled":     true,
	"reentry.continuation_offset_pips": 5.0,
	"reentry.continuation_window":      "30m",
	"reentry.lot_multiplier":           1.0,
	"reentry.max_giveback_percent":     0.0,
	"reentry.poll_interval":            "5s",

	"safety.max_daily_recovery_attempts": 10,
	"safety.max_daily_recovery_loss":     0.0,
	"safety.max_chain_recovery_attempts": 0,
	"safety.reset_hour":                  0,
	"safety.timezone":                   "",

	"broker.type":           "paper",
	"broker.endpoint":       "",
	"broker.token":          "",
	"broker.timeout":        "10s",
	"broker.retry_attempts": 3,
	"broker.retry_min":      "200ms",
	"broker.retry_max":      "2s",

	"storage.driver": "buntdb",
	"storage.path":   "./zepix.db",

	"telegram.enabled": false,
	"telegram.token":   "",
	"telegram.users":   []int{},

	"mail.enabled":             false,
	"mail.smtp_server_address": "",
	"mail.smtp_server_port":    587,
	"mail.from":                "",
	"mail.to":                  "",
	"mail.password":            "",

	"http.enabled": true,
	"http.listen":  "127.0.0.1:8080",

	"log.level":        "info",
	"log.time_format":  "2006-01-02 15:04:05",
	"log.colored":      true,
	"log.json":         false,
	"log.file":         "",
	"log.max_size_mb":  50,
	"log.max_backups":  3,
	"log.max_age_days": 28,

	"symbols": map[string]any{},
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Default returns the settings used when no file or environment override exists
func Default() core.Settings {
	settings, _ := decode(newViper())
	return settings
}

// Load reads settings from path, creating the file with defaults when it does not exist.
// Environment variables prefixed with ZEPIX_ override file values, e.g. ZEPIX_BROKER_TOKEN.
func Load(path string) (core.Settings, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	v := newViper()
	v.SetConfigFile(path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeDefault(v, path); err != nil {
			return core.Settings{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return core.Settings{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	settings, err := decode(v)
	if err != nil {
		return core.Settings{}, err
	}

	if err := settings.Validate(); err != nil {
		return core.Settings{}, err
	}
	return settings, nil
}

// writeDefault saves the default configuration to path
func writeDefault(v *viper.Viper, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create configuration directory: %w", err)
		}
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not save default configuration: %w", err)
	}
	return nil
}

func decode(v *viper.Viper) (core.Settings, error) {
	var (
		settings core.Settings
		err      error
	)

	duration := func(key string) time.Duration {
		if err != nil {
			return 0
		}
		var d time.Duration
		d, err = parseDuration(v.GetString(key))
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", core.ErrInvalidSettings, key, err)
		}
		return d
	}

	settings.Reentry = core.ReentrySettings{
		MaxLevel:               v.GetInt("reentry.max_level"),
		RecoveryFraction:       v.GetFloat64("reentry.recovery_fraction"),
		SLReductionPercent:     v.GetFloat64("reentry.sl_reduction_percent"),
		MinSLPips:              v.GetFloat64("reentry.min_sl_pips"),
		RecoveryWindow:         duration("reentry.recovery_window"),
		ContinuationEnabled:    v.GetBool("reentry.continuation_enabled"),
		ContinuationOffsetPips: v.GetFloat64("reentry.continuation_offset_pips"),
		ContinuationWindow:     duration("reentry.continuation_window"),
		LotMultiplier:          v.GetFloat64("reentry.lot_multiplier"),
		MaxGivebackPercent:     v.GetFloat64("reentry.max_giveback_percent"),
		PollInterval:           duration("reentry.poll_interval"),
	}

	settings.Safety = core.SafetySettings{
		MaxDailyRecoveryAttempts: v.GetInt("safety.max_daily_recovery_attempts"),
		MaxDailyRecoveryLoss:     v.GetFloat64("safety.max_daily_recovery_loss"),
		MaxChainRecoveryAttempts: v.GetInt("safety.max_chain_recovery_attempts"),
		ResetHour:                v.GetInt("safety.reset_hour"),
		Timezone:                 v.GetString("safety.timezone"),
	}

	settings.Broker = core.BrokerSettings{
		Type:          v.GetString("broker.type"),
		Endpoint:      v.GetString("broker.endpoint"),
		Token:         v.GetString("broker.token"),
		Timeout:       duration("broker.timeout"),
		RetryAttempts: v.GetInt("broker.retry_attempts"),
		RetryMin:      duration("broker.retry_min"),
		RetryMax:      duration("broker.retry_max"),
	}

	settings.Storage = core.StorageSettings{
		Driver: v.GetString("storage.driver"),
		Path:   v.GetString("storage.path"),
	}

	settings.Telegram = core.TelegramSettings{
		Enabled: v.GetBool("telegram.enabled"),
		Token:   v.GetString("telegram.token"),
		Users:   v.GetIntSlice("telegram.users"),
	}

	settings.Mail = core.MailSettings{
		Enabled:           v.GetBool("mail.enabled"),
		SMTPServerAddress: v.GetString("mail.smtp_server_address"),
		SMTPServerPort:    v.GetInt("mail.smtp_server_port"),
		From:              v.GetString("mail.from"),
		To:                v.GetString("mail.to"),
		Password:          v.GetString("mail.password"),
	}

	settings.HTTP = core.HTTPSettings{
		Enabled: v.GetBool("http.enabled"),
		Listen:  v.GetString("http.listen"),
	}

	settings.Log = core.LogSettings{
		Level:      v.GetString("log.level"),
		TimeFormat: v.GetString("log.time_format"),
		Colored:    v.GetBool("log.colored"),
		JSON:       v.GetBool("log.json"),
		File:       v.GetString("log.file"),
		MaxSizeMB:  v.GetInt("log.max_size_mb"),
		MaxBackups: v.GetInt("log.max_backups"),
		MaxAgeDays: v.GetInt("log.max_age_days"),
	}

	if err != nil {
		return core.Settings{}, err
	}

	symbols := map[string]symbolConfig{}
	if err := v.UnmarshalKey("symbols", &symbols); err != nil {
		return core.Settings{}, fmt.Errorf("%w: symbols: %v", core.ErrInvalidSettings, err)
	}

	settings.Symbols = make(map[string]core.SymbolInfo, len(symbols))
	for name, symbol := range symbols {
		name = strings.ToUpper(name)
		settings.Symbols[name] = core.SymbolInfo{
			Symbol:   name,
			PipSize:  symbol.PipSize,
			Digits:   symbol.Digits,
			PipValue: symbol.PipValue,
			MinLot:   symbol.MinLot,
			MaxLot:   symbol.MaxLot,
			LotStep:  symbol.LotStep,
		}
	}

	return settings, nil
}

// parseDuration accepts Go durations plus day and week units
func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return str2duration.ParseDuration(value)
}
