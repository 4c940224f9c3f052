// Package storage keeps chain state in memory and persists it through a repository.
package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/samber/lo"
)

// ChainStore is an in-memory map of chains and their orders backed by a repository.
// Every write goes through to the repository before the cache is updated.
// Mutations are expected from the single monitor loop, the lock only guards concurrent readers.
type ChainStore struct {
	mu     sync.RWMutex
	repo   core.Repository
	chains map[string]core.Chain
	orders map[string][]core.ChainOrder // chain id -> orders sorted by level
	index  map[string]string            // order id -> chain id
}

// NewChainStore loads every chain and order from the repository
func NewChainStore(repo core.Repository) (*ChainStore, error) {
	s := &ChainStore{
		repo:   repo,
		chains: make(map[string]core.Chain),
		orders: make(map[string][]core.ChainOrder),
		index:  make(map[string]string),
	}

	chains, err := repo.Chains()
	if err != nil {
		return nil, fmt.Errorf("failed to load chains: %w", err)
	}

	for _, chain := range chains {
		s.chains[chain.ID] = *chain

		orders, err := repo.Orders(chain.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load orders of chain %s: %w", chain.ID, err)
		}

		for _, order := range orders {
			s.orders[chain.ID] = append(s.orders[chain.ID], *order)
			s.index[order.OrderID] = chain.ID
		}
	}

	return s, nil
}

// Get returns a chain by id
func (s *ChainStore) Get(chainID string) (core.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain, ok := s.chains[chainID]
	if !ok {
		return core.Chain{}, fmt.Errorf("%w: %s", core.ErrChainNotFound, chainID)
	}
	return chain, nil
}

// Upsert persists and caches a chain
func (s *ChainStore) Upsert(chain core.Chain) error {
	if chain.ID == "" {
		return fmt.Errorf("chain without id")
	}

	if err := s.repo.SaveChain(&chain); err != nil {
		return err
	}

	s.mu.Lock()
	s.chains[chain.ID] = chain
	s.mu.Unlock()
	return nil
}

// ListActive returns the active chains, oldest first
func (s *ChainStore) ListActive() []core.Chain {
	return lo.Filter(s.All(), func(chain core.Chain, _ int) bool {
		return chain.Active()
	})
}

// All returns every chain, oldest first
func (s *ChainStore) All() []core.Chain {
	s.mu.RLock()
	chains := lo.Values(s.chains)
	s.mu.RUnlock()

	sortChains(chains)
	return chains
}

// Find queries the repository for the chains matching every filter, oldest first
func (s *ChainStore) Find(filters ...core.ChainFilter) ([]core.Chain, error) {
	found, err := s.repo.Chains(filters...)
	if err != nil {
		return nil, fmt.Errorf("failed to find chains: %w", err)
	}

	chains := lo.Map(found, func(chain *core.Chain, _ int) core.Chain { return *chain })
	sortChains(chains)
	return chains, nil
}

func sortChains(chains []core.Chain) {
	sort.Slice(chains, func(i, j int) bool {
		if chains[i].CreatedAt.Equal(chains[j].CreatedAt) {
			return chains[i].ID < chains[j].ID
		}
		return chains[i].CreatedAt.Before(chains[j].CreatedAt)
	})
}

// SaveOrder persists and caches a chain order. The owning chain must exist.
func (s *ChainStore) SaveOrder(order core.ChainOrder) error {
	s.mu.RLock()
	_, ok := s.chains[order.ChainID]
	owner, known := s.index[order.OrderID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", core.ErrChainNotFound, order.ChainID)
	}
	if known && owner != order.ChainID {
		return fmt.Errorf("order %s already belongs to chain %s", order.OrderID, owner)
	}

	if err := s.repo.SaveOrder(&order); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orders := s.orders[order.ChainID]
	_, position, found := lo.FindIndexOf(orders, func(o core.ChainOrder) bool {
		return o.OrderID == order.OrderID
	})
	if found {
		orders[position] = order
	} else {
		orders = append(orders, order)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Level < orders[j].Level
	})

	s.orders[order.ChainID] = orders
	s.index[order.OrderID] = order.ChainID
	return nil
}

// Order returns an order by broker id
func (s *ChainStore) Order(orderID string) (core.ChainOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chainID, ok := s.index[orderID]
	if !ok {
		return core.ChainOrder{}, fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
	}

	order, found := lo.Find(s.orders[chainID], func(o core.ChainOrder) bool {
		return o.OrderID == orderID
	})
	if !found {
		return core.ChainOrder{}, fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
	}
	return order, nil
}

// Orders returns a copy of the orders of a chain sorted by level
func (s *ChainStore) Orders(chainID string) []core.ChainOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]core.ChainOrder(nil), s.orders[chainID]...)
}

// LastOrder returns the highest level order of a chain
func (s *ChainStore) LastOrder(chainID string) (core.ChainOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := s.orders[chainID]
	if len(orders) == 0 {
		return core.ChainOrder{}, false
	}
	return orders[len(orders)-1], true
}

// LoadCounters implements core.CounterStore
func (s *ChainStore) LoadCounters(day string) (core.Counters, error) {
	return s.repo.LoadCounters(day)
}

// SaveCounters implements core.CounterStore
func (s *ChainStore) SaveCounters(counters core.Counters) error {
	return s.repo.SaveCounters(counters)
}

// Close closes the repository
func (s *ChainStore) Close() error {
	return s.repo.Close()
}
