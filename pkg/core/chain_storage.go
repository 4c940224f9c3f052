package core

import (
	"slices"
	"time"
)

// ChainFilter defines a function type for filtering chains
type ChainFilter func(chain Chain) bool

// Counters holds the safety counters of one accounting day
type Counters struct {
	Day              string    `json:"day"`
	RecoveryAttempts int       `json:"recovery_attempts"`
	RecoveryLosses   float64   `json:"recovery_losses"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Repository is the persistence layer behind the chain store
type Repository interface {
	// SaveChain inserts or replaces a chain
	SaveChain(chain *Chain) error

	// Chains retrieves chains based on provided filters
	Chains(filters ...ChainFilter) ([]*Chain, error)

	// SaveOrder inserts or replaces a chain order
	SaveOrder(order *ChainOrder) error

	// Orders retrieves every order of a chain ordered by level
	Orders(chainID string) ([]*ChainOrder, error)

	// LoadCounters returns the counters of a day, zero valued when missing
	LoadCounters(day string) (Counters, error)

	// SaveCounters persists the counters of a day
	SaveCounters(counters Counters) error

	Close() error
}

// ChainStore is the state the engine reads and mutates
type ChainStore interface {
	Get(chainID string) (Chain, error)
	Upsert(chain Chain) error
	ListActive() []Chain
	All() []Chain
	SaveOrder(order ChainOrder) error
	Order(orderID string) (ChainOrder, error)
	Orders(chainID string) []ChainOrder
	LastOrder(chainID string) (ChainOrder, bool)
}

// CounterStore persists safety counters
type CounterStore interface {
	LoadCounters(day string) (Counters, error)
	SaveCounters(counters Counters) error
}

// WithStatusIn keeps chains in one of the given statuses
func WithStatusIn(status ...ChainStatusType) ChainFilter {
	return func(chain Chain) bool {
		return slices.Contains(status, chain.Status)
	}
}

// WithSymbol keeps chains of one symbol
func WithSymbol(symbol string) ChainFilter {
	return func(chain Chain) bool {
		return chain.Symbol == symbol
	}
}
