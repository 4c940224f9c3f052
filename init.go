package zepix

import (
	"os"
	"strconv"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger/zerolog"
)

const (
	// Default configuration values
	defaultLogLevel      = "info"
	defaultLogTimeFormat = "2006-01-02 15:04:05"
	defaultLogColored    = "true"
	defaultLogJSON       = "false"
)

// Environment variable names
const (
	envLogLevel      = "ZEPIX_LOG_LEVEL"
	envLogTimeFormat = "ZEPIX_LOG_TIME_FORMAT"
	envLogColor      = "ZEPIX_LOG_COLOR"
	envLogJSON       = "ZEPIX_LOG_JSON"
)

func init() {
	// Initialize the logger with configuration from environment variables
	log, err := initLogger()
	if err != nil {
		panic(err)
	}

	DefaultLog = zerolog.NewAdapter(log.Logger)
}

// initLogger creates a new logger instance configured from environment variables
func initLogger() (*zerolog.Logger, error) {
	logColored, err := parseBoolEnv(envLogColor, defaultLogColored)
	if err != nil {
		return nil, err
	}

	logJSON, err := parseBoolEnv(envLogJSON, defaultLogJSON)
	if err != nil {
		return nil, err
	}

	return zerolog.New(zerolog.Config{
		Level:      getEnvWithDefault(envLogLevel, defaultLogLevel),
		TimeFormat: getEnvWithDefault(envLogTimeFormat, defaultLogTimeFormat),
		Colored:    logColored,
		JSON:       logJSON,
	})
}

// NewLogger builds a logger from the log section of the settings
func NewLogger(settings core.LogSettings) (*zerolog.Adapter, error) {
	log, err := zerolog.New(zerolog.Config{
		Level:      settings.Level,
		TimeFormat: settings.TimeFormat,
		Colored:    settings.Colored,
		JSON:       settings.JSON,
		File:       settings.File,
		MaxSizeMB:  settings.MaxSizeMB,
		MaxBackups: settings.MaxBackups,
		MaxAgeDays: settings.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	return zerolog.NewAdapter(log.Logger), nil
}

// getEnvWithDefault returns the value of the environment variable or the default if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseBoolEnv gets a boolean environment variable with a default value
func parseBoolEnv(key, defaultValue string) (bool, error) {
	value := getEnvWithDefault(key, defaultValue)
	return strconv.ParseBool(value)
}
