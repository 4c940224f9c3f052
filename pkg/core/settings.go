package core

import (
	"fmt"
	"strings"
	"time"
)

// Settings represents the main configuration for the application
type Settings struct {
	Symbols  map[string]SymbolInfo // Per symbol pip/lot metadata, keyed by symbol
	Reentry  ReentrySettings       // Chain and decision rules
	Safety   SafetySettings        // Recovery caps
	Broker   BrokerSettings        // Execution client
	Storage  StorageSettings       // Chain persistence
	Telegram TelegramSettings      // Telegram notification settings
	Mail     MailSettings          // Mail notification settings
	HTTP     HTTPSettings          // Operator API
	Log      LogSettings           // Logging output
}

// ReentrySettings holds the chain rules used by the re-entry engine
type ReentrySettings struct {
	MaxLevel               int           // Highest level a chain may reach
	RecoveryFraction       float64       // Retrace needed after SL, as a fraction of the base SL distance
	SLReductionPercent     float64       // SL distance reduction applied per level
	MinSLPips              float64       // Floor of the SL distance
	RecoveryWindow         time.Duration // Time allowed for the retrace after SL
	ContinuationEnabled    bool          // Open continuation orders after TP
	ContinuationOffsetPips float64       // Distance beyond TP that confirms continuation
	ContinuationWindow     time.Duration // Time allowed for the continuation after TP
	LotMultiplier          float64       // Lot scale per level
	MaxGivebackPercent     float64       // Profit protection, share of realized profit a recovery may risk
	PollInterval           time.Duration // Price monitoring interval
}

// SafetySettings holds daily and lifetime recovery caps. A cap <= 0 disables it.
type SafetySettings struct {
	MaxDailyRecoveryAttempts int
	MaxDailyRecoveryLoss     float64
	MaxChainRecoveryAttempts int
	ResetHour                int    // Hour of day the daily counters roll over
	Timezone                 string // IANA zone of the reset boundary, empty means local
}

// BrokerSettings configures the execution client
type BrokerSettings struct {
	Type          string        // "paper" or "mt5"
	Endpoint      string        // MT5 bridge base URL
	Token         string        // MT5 bridge token
	Timeout       time.Duration // HTTP timeout
	RetryAttempts int           // Bounded retry for transient failures
	RetryMin      time.Duration
	RetryMax      time.Duration
}

// StorageSettings configures chain persistence
type StorageSettings struct {
	Driver string // "buntdb" or "sqlite"
	Path   string
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled bool   // Whether Telegram notifications are enabled
	Token   string // Telegram bot token
	Users   []int  // List of authorized user IDs
}

// MailSettings holds configuration for mail notifications
type MailSettings struct {
	Enabled           bool
	SMTPServerAddress string
	SMTPServerPort    int
	From              string
	To                string
	Password          string
}

// HTTPSettings configures the operator API
type HTTPSettings struct {
	Enabled bool
	Listen  string
}

// LogSettings configures log output
type LogSettings struct {
	Level      string
	TimeFormat string
	Colored    bool
	JSON       bool
	File       string // Rotated log file, empty disables it
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Symbol returns the metadata of a symbol, falling back to forex defaults
func (s Settings) Symbol(symbol string) SymbolInfo {
	if info, ok := s.Symbols[strings.ToUpper(symbol)]; ok {
		info.Symbol = symbol
		return info.withDefaults()
	}
	return DefaultSymbolInfo(symbol)
}

// Location returns the time zone of the safety reset boundary
func (s SafetySettings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Validate checks the settings once at startup
func (s Settings) Validate() error {
	r := s.Reentry
	switch {
	case r.MaxLevel < 0:
		return fmt.Errorf("%w: reentry.max_level must be >= 0", ErrInvalidSettings)
	case r.RecoveryFraction <= 0 || r.RecoveryFraction > 1:
		return fmt.Errorf("%w: reentry.recovery_fraction must be in (0, 1]", ErrInvalidSettings)
	case r.SLReductionPercent < 0 || r.SLReductionPercent >= 100:
		return fmt.Errorf("%w: reentry.sl_reduction_percent must be in [0, 100)", ErrInvalidSettings)
	case r.MinSLPips < 0:
		return fmt.Errorf("%w: reentry.min_sl_pips must be >= 0", ErrInvalidSettings)
	case r.RecoveryWindow <= 0:
		return fmt.Errorf("%w: reentry.recovery_window must be positive", ErrInvalidSettings)
	case r.ContinuationEnabled && r.ContinuationWindow <= 0:
		return fmt.Errorf("%w: reentry.continuation_window must be positive", ErrInvalidSettings)
	case r.LotMultiplier <= 0:
		return fmt.Errorf("%w: reentry.lot_multiplier must be positive", ErrInvalidSettings)
	case r.PollInterval <= 0:
		return fmt.Errorf("%w: reentry.poll_interval must be positive", ErrInvalidSettings)
	}

	if s.Safety.ResetHour < 0 || s.Safety.ResetHour > 23 {
		return fmt.Errorf("%w: safety.reset_hour must be in [0, 23]", ErrInvalidSettings)
	}

	if _, err := s.Safety.Location(); err != nil {
		return fmt.Errorf("%w: safety.timezone: %v", ErrInvalidSettings, err)
	}

	if s.Broker.RetryAttempts < 1 {
		return fmt.Errorf("%w: broker.retry_attempts must be >= 1", ErrInvalidSettings)
	}

	switch s.Broker.Type {
	case "paper":
	case "mt5":
		if s.Broker.Endpoint == "" {
			return fmt.Errorf("%w: broker.endpoint is required for mt5", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown broker type %q", ErrInvalidSettings, s.Broker.Type)
	}

	switch s.Storage.Driver {
	case "buntdb", "sqlite":
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidSettings, s.Storage.Driver)
	}

	if s.Telegram.Enabled && s.Telegram.Token == "" {
		return fmt.Errorf("%w: telegram.token is required", ErrInvalidSettings)
	}

	for symbol, info := range s.Symbols {
		if info.PipSize < 0 || info.LotStep < 0 || info.PipValue < 0 {
			return fmt.Errorf("%w: symbol %s has negative metadata", ErrInvalidSettings, symbol)
		}
	}

	return nil
}
