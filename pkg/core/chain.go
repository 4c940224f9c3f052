package core

import (
	"fmt"
	"time"
)

// DirectionType represents the side of a chain (BUY or SELL)
type DirectionType string

// ChainStatusType represents the lifecycle status of a chain
type ChainStatusType string

// Direction constants
const (
	DirectionBuy  DirectionType = "BUY"
	DirectionSell DirectionType = "SELL"
)

// Chain status constants
const (
	ChainStatusActive    ChainStatusType = "ACTIVE"
	ChainStatusStopped   ChainStatusType = "STOPPED"
	ChainStatusCompleted ChainStatusType = "COMPLETED"
)

// DefaultMaxLevel is the configured max level when none is set
const DefaultMaxLevel = 5

// Valid reports whether the direction is BUY or SELL
func (d DirectionType) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Sign returns +1 for BUY and -1 for SELL, used to orient price distances
func (d DirectionType) Sign() float64 {
	if d == DirectionSell {
		return -1
	}
	return 1
}

// Chain is a sequence of related re-entry orders stemming from one original order
type Chain struct {
	ID                  string          `json:"id"`
	Symbol              string          `json:"symbol"`
	Direction           DirectionType   `json:"direction"`
	BaseLot             float64         `json:"base_lot"`
	CurrentLevel        int             `json:"current_level"`
	MaxLevel            int             `json:"max_level"`
	TotalRealizedProfit float64         `json:"total_realized_profit"`
	Status              ChainStatusType `json:"status"`

	// Prices of the level 0 order, base distances are derived from them
	BaseEntry float64 `json:"base_entry"`
	BaseSL    float64 `json:"base_sl"`
	BaseTP    float64 `json:"base_tp"`

	RecoveryAttempts int    `json:"recovery_attempts"`
	StopReason       string `json:"stop_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the chain may still open orders
func (c Chain) Active() bool {
	return c.Status == ChainStatusActive
}

// BaseSLDistance returns the absolute distance between the original entry and stop loss
func (c Chain) BaseSLDistance() float64 {
	d := c.BaseEntry - c.BaseSL
	if d < 0 {
		return -d
	}
	return d
}

// Close moves an active chain to a terminal status. Terminal chains never move again.
func (c *Chain) Close(status ChainStatusType, reason string, now time.Time) error {
	if !c.Active() {
		return fmt.Errorf("%w: chain %s is %s", ErrChainClosed, c.ID, c.Status)
	}

	if status != ChainStatusStopped && status != ChainStatusCompleted {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	c.Status = status
	c.StopReason = reason
	c.UpdatedAt = now
	return nil
}

// Advance moves the chain to the given level, keeping it within MaxLevel
func (c *Chain) Advance(level int, now time.Time) error {
	if !c.Active() {
		return fmt.Errorf("%w: chain %s is %s", ErrChainClosed, c.ID, c.Status)
	}

	if level > c.MaxLevel {
		return fmt.Errorf("level %d exceeds max level %d", level, c.MaxLevel)
	}

	c.CurrentLevel = level
	c.UpdatedAt = now
	return nil
}

func (c Chain) String() string {
	return fmt.Sprintf("[%s] %s %s | level: %d/%d | profit: %.2f | base lot: %.2f",
		c.Status, c.Direction, c.Symbol, c.CurrentLevel, c.MaxLevel, c.TotalRealizedProfit, c.BaseLot)
}
