package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/tidwall/buntdb"
)

const (
	chainPrefix   = "chain:"
	orderPrefix   = "order:"
	counterPrefix = "counters:"

	chainIndex = "chain_update_index"
	orderIndex = "order_chain_index"
)

// BuntRepository implements core.Repository using BuntDB
type BuntRepository struct {
	db *buntdb.DB
}

// FromMemory creates an in-memory repository
func FromMemory() (*BuntRepository, error) {
	return NewBuntRepository(":memory:")
}

// FromFile creates a file-based repository
func FromFile(file string) (*BuntRepository, error) {
	return NewBuntRepository(file)
}

// NewBuntRepository creates a new BuntDB repository instance
func NewBuntRepository(sourceFile string) (*BuntRepository, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex(chainIndex, chainPrefix+"*", buntdb.IndexJSON("updated_at"))
	if err != nil {
		return nil, fmt.Errorf("failed to create chain index: %w", err)
	}

	err = db.CreateIndex(orderIndex, orderPrefix+"*", buntdb.IndexJSON("chain_id"), buntdb.IndexJSON("level"))
	if err != nil {
		return nil, fmt.Errorf("failed to create order index: %w", err)
	}

	return &BuntRepository{db: db}, nil
}

// SaveChain stores a chain, replacing any previous version
func (b *BuntRepository) SaveChain(chain *core.Chain) error {
	return b.set(chainPrefix+chain.ID, chain)
}

// Chains retrieves chains from the database based on provided filters
func (b *BuntRepository) Chains(filters ...core.ChainFilter) ([]*core.Chain, error) {
	chains := make([]*core.Chain, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(chainIndex, func(_, value string) bool {
			var chain core.Chain
			if err := json.Unmarshal([]byte(value), &chain); err != nil {
				return true
			}

			for _, filter := range filters {
				if !filter(chain) {
					return true
				}
			}

			chains = append(chains, &chain)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over chains: %w", err)
	}

	return chains, nil
}

// SaveOrder stores a chain order, replacing any previous version
func (b *BuntRepository) SaveOrder(order *core.ChainOrder) error {
	return b.set(orderPrefix+order.OrderID, order)
}

// Orders retrieves the orders of a chain sorted by level
func (b *BuntRepository) Orders(chainID string) ([]*core.ChainOrder, error) {
	orders := make([]*core.ChainOrder, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		pivot := fmt.Sprintf(`{"chain_id":%q}`, chainID)
		return tx.AscendGreaterOrEqual(orderIndex, pivot, func(_, value string) bool {
			var order core.ChainOrder
			if err := json.Unmarshal([]byte(value), &order); err != nil {
				return true
			}

			if order.ChainID != chainID {
				return false
			}

			orders = append(orders, &order)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over orders: %w", err)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Level < orders[j].Level
	})

	return orders, nil
}

// LoadCounters returns the safety counters of a day
func (b *BuntRepository) LoadCounters(day string) (core.Counters, error) {
	counters := core.Counters{Day: day}

	err := b.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(counterPrefix + day)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(value), &counters)
	})
	if err != nil {
		return counters, fmt.Errorf("failed to load counters: %w", err)
	}

	return counters, nil
}

// SaveCounters stores the safety counters of a day
func (b *BuntRepository) SaveCounters(counters core.Counters) error {
	if strings.TrimSpace(counters.Day) == "" {
		return fmt.Errorf("counters without day")
	}
	return b.set(counterPrefix+counters.Day, counters)
}

func (b *BuntRepository) set(key string, value any) error {
	content, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(key, string(content), nil); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
		return nil
	})
}

// Close closes the database connection
func (b *BuntRepository) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
