// Package safety enforces daily and lifetime caps on chain recovery.
package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
)

const dayKeyLayout = "2006-01-02"

// Governor tracks recovery attempts and losses per accounting day.
// Counters are loaded from and written to the counter store so they survive restarts.
type Governor struct {
	mu       sync.Mutex
	settings core.SafetySettings
	store    core.CounterStore
	log      logger.Logger
	clock    core.Clock
	location *time.Location
	counters core.Counters
}

// Option configures a Governor
type Option func(*Governor)

// WithClock replaces the wall clock
func WithClock(clock core.Clock) Option {
	return func(g *Governor) {
		g.clock = clock
	}
}

// NewGovernor creates a governor and loads the counters of the current day
func NewGovernor(settings core.SafetySettings, store core.CounterStore, log logger.Logger,
	options ...Option) (*Governor, error) {

	location, err := settings.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load safety timezone: %w", err)
	}

	g := &Governor{
		settings: settings,
		store:    store,
		log:      log,
		clock:    time.Now,
		location: location,
	}

	for _, option := range options {
		option(g)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.rollDayIfNeeded(); err != nil {
		return nil, err
	}

	return g, nil
}

// DayKey returns the accounting day a moment belongs to.
// Days start at ResetHour in the configured zone.
func (g *Governor) DayKey(t time.Time) string {
	local := t.In(g.location)
	return local.Add(-time.Duration(g.settings.ResetHour) * time.Hour).Format(dayKeyLayout)
}

// Check reports whether the chain may open another recovery order
func (g *Governor) Check(chain core.Chain) bool {
	return g.Verify(chain) == nil
}

// Verify returns ErrSafetyCapExceeded with the violated cap, or nil
func (g *Governor) Verify(chain core.Chain) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.rollDayIfNeeded(); err != nil {
		g.log.WithError(err).Warn("safety: failed to roll counters")
	}

	s := g.settings
	c := g.counters

	if s.MaxDailyRecoveryAttempts > 0 && c.RecoveryAttempts >= s.MaxDailyRecoveryAttempts {
		return fmt.Errorf("%w: daily recovery attempts %d/%d",
			core.ErrSafetyCapExceeded, c.RecoveryAttempts, s.MaxDailyRecoveryAttempts)
	}

	if s.MaxDailyRecoveryLoss > 0 && c.RecoveryLosses >= s.MaxDailyRecoveryLoss {
		return fmt.Errorf("%w: daily recovery loss %.2f/%.2f",
			core.ErrSafetyCapExceeded, c.RecoveryLosses, s.MaxDailyRecoveryLoss)
	}

	if s.MaxChainRecoveryAttempts > 0 && chain.RecoveryAttempts >= s.MaxChainRecoveryAttempts {
		return fmt.Errorf("%w: chain %s recovery attempts %d/%d",
			core.ErrSafetyCapExceeded, chain.ID, chain.RecoveryAttempts, s.MaxChainRecoveryAttempts)
	}

	return nil
}

// RecordAttempt counts a recovery order opened for the chain
func (g *Governor) RecordAttempt(chain core.Chain) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.rollDayIfNeeded(); err != nil {
		return err
	}

	g.counters.RecoveryAttempts++
	g.log.WithFields(map[string]any{
		"chain":    chain.ID,
		"attempts": g.counters.RecoveryAttempts,
	}).Debug("safety: recovery attempt recorded")

	return g.persist()
}

// RecordLoss adds the absolute value of a realized recovery loss
func (g *Governor) RecordLoss(amount float64) error {
	if amount == 0 {
		return nil
	}
	if amount < 0 {
		amount = -amount
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.rollDayIfNeeded(); err != nil {
		return err
	}

	g.counters.RecoveryLosses += amount
	return g.persist()
}

// Snapshot returns a copy of the current day counters
func (g *Governor) Snapshot() core.Counters {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.rollDayIfNeeded(); err != nil {
		g.log.WithError(err).Warn("safety: failed to roll counters")
	}
	return g.counters
}

// Settings returns the configured caps
func (g *Governor) Settings() core.SafetySettings {
	return g.settings
}

// rollDayIfNeeded switches to the counters of the current day. Callers hold g.mu.
func (g *Governor) rollDayIfNeeded() error {
	key := g.DayKey(g.clock())
	if g.counters.Day == key {
		return nil
	}

	counters, err := g.store.LoadCounters(key)
	if err != nil {
		return fmt.Errorf("failed to load counters for %s: %w", key, err)
	}

	counters.Day = key
	g.counters = counters
	g.log.WithField("day", key).Info("safety: counters loaded")
	return nil
}

func (g *Governor) persist() error {
	g.counters.UpdatedAt = g.clock()
	if err := g.store.SaveCounters(g.counters); err != nil {
		return fmt.Errorf("failed to save counters: %w", err)
	}
	return nil
}
