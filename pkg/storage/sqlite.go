package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chains (
	id                    TEXT PRIMARY KEY,
	symbol                TEXT NOT NULL,
	direction             TEXT NOT NULL,
	base_lot              REAL NOT NULL,
	current_level         INTEGER NOT NULL,
	max_level             INTEGER NOT NULL,
	total_realized_profit REAL NOT NULL,
	status                TEXT NOT NULL,
	base_entry            REAL NOT NULL,
	base_sl               REAL NOT NULL,
	base_tp               REAL NOT NULL,
	recovery_attempts     INTEGER NOT NULL,
	stop_reason           TEXT NOT NULL,
	created_at            TIMESTAMP NOT NULL,
	updated_at            TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS chains_updated_at ON chains(updated_at);

CREATE TABLE IF NOT EXISTS chain_orders (
	order_id    TEXT PRIMARY KEY,
	chain_id    TEXT NOT NULL REFERENCES chains(id),
	level       INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	direction   TEXT NOT NULL,
	entry_price REAL NOT NULL,
	sl_price    REAL NOT NULL,
	tp_price    REAL NOT NULL,
	lot_size    REAL NOT NULL,
	outcome     TEXT NOT NULL,
	profit      REAL NOT NULL,
	opened_at   TIMESTAMP NOT NULL,
	closed_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS chain_orders_chain ON chain_orders(chain_id, level);

CREATE TABLE IF NOT EXISTS safety_counters (
	day               TEXT PRIMARY KEY,
	recovery_attempts INTEGER NOT NULL,
	recovery_losses   REAL NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);`

// SQLiteRepository implements core.Repository on a SQLite database
type SQLiteRepository struct {
	db *sql.DB
}

// FromSQLite opens (or creates) a SQLite database and applies the schema
func FromSQLite(dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers, and ":memory:" databases live in a single connection
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// SaveChain inserts or replaces a chain
func (s *SQLiteRepository) SaveChain(c *core.Chain) error {
	_, err := s.db.Exec(`INSERT INTO chains (id, symbol, direction, base_lot, current_level, max_level,
		total_realized_profit, status, base_entry, base_sl, base_tp, recovery_attempts, stop_reason,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_level = excluded.current_level,
			max_level = excluded.max_level,
			base_lot = excluded.base_lot,
			total_realized_profit = excluded.total_realized_profit,
			status = excluded.status,
			recovery_attempts = excluded.recovery_attempts,
			stop_reason = excluded.stop_reason,
			updated_at = excluded.updated_at`,
		c.ID, c.Symbol, string(c.Direction), c.BaseLot, c.CurrentLevel, c.MaxLevel,
		c.TotalRealizedProfit, string(c.Status), c.BaseEntry, c.BaseSL, c.BaseTP, c.RecoveryAttempts,
		c.StopReason, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save chain %s: %w", c.ID, err)
	}
	return nil
}

// Chains retrieves chains ordered by update time, then applies the filters
func (s *SQLiteRepository) Chains(filters ...core.ChainFilter) ([]*core.Chain, error) {
	rows, err := s.db.Query(`SELECT id, symbol, direction, base_lot, current_level, max_level,
		total_realized_profit, status, base_entry, base_sl, base_tp, recovery_attempts, stop_reason,
		created_at, updated_at FROM chains ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer rows.Close()

	chains := make([]*core.Chain, 0)
	for rows.Next() {
		var (
			c                    core.Chain
			direction, status    string
			createdAt, updatedAt time.Time
		)

		err := rows.Scan(&c.ID, &c.Symbol, &direction, &c.BaseLot, &c.CurrentLevel, &c.MaxLevel,
			&c.TotalRealizedProfit, &status, &c.BaseEntry, &c.BaseSL, &c.BaseTP, &c.RecoveryAttempts,
			&c.StopReason, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}

		c.Direction = core.DirectionType(direction)
		c.Status = core.ChainStatusType(status)
		c.CreatedAt, c.UpdatedAt = createdAt.Local(), updatedAt.Local()

		if matches(c, filters) {
			chains = append(chains, &c)
		}
	}

	return chains, rows.Err()
}

// SaveOrder inserts or replaces a chain order
func (s *SQLiteRepository) SaveOrder(o *core.ChainOrder) error {
	_, err := s.db.Exec(`INSERT INTO chain_orders (order_id, chain_id, level, kind, symbol, direction,
		entry_price, sl_price, tp_price, lot_size, outcome, profit, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			outcome = excluded.outcome,
			profit = excluded.profit,
			sl_price = excluded.sl_price,
			tp_price = excluded.tp_price,
			closed_at = excluded.closed_at`,
		o.OrderID, o.ChainID, o.Level, string(o.Kind), o.Symbol, string(o.Direction), o.EntryPrice,
		o.SLPrice, o.TPPrice, o.LotSize, string(o.Outcome), o.Profit, o.OpenedAt.UTC(), o.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", o.OrderID, err)
	}
	return nil
}

// Orders retrieves the orders of a chain sorted by level
func (s *SQLiteRepository) Orders(chainID string) ([]*core.ChainOrder, error) {
	rows, err := s.db.Query(`SELECT order_id, chain_id, level, kind, symbol, direction, entry_price,
		sl_price, tp_price, lot_size, outcome, profit, opened_at, closed_at
		FROM chain_orders WHERE chain_id = ? ORDER BY level`, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*core.ChainOrder, 0)
	for rows.Next() {
		var (
			o                        core.ChainOrder
			kind, direction, outcome string
			openedAt, closedAt       time.Time
		)

		err := rows.Scan(&o.OrderID, &o.ChainID, &o.Level, &kind, &o.Symbol, &direction, &o.EntryPrice,
			&o.SLPrice, &o.TPPrice, &o.LotSize, &outcome, &o.Profit, &openedAt, &closedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		o.Kind = core.OrderKindType(kind)
		o.Direction = core.DirectionType(direction)
		o.Outcome = core.OutcomeType(outcome)
		o.OpenedAt, o.ClosedAt = localOrZero(openedAt), localOrZero(closedAt)
		orders = append(orders, &o)
	}

	return orders, rows.Err()
}

// LoadCounters returns the safety counters of a day
func (s *SQLiteRepository) LoadCounters(day string) (core.Counters, error) {
	counters := core.Counters{Day: day}

	err := s.db.QueryRow(`SELECT recovery_attempts, recovery_losses, updated_at
		FROM safety_counters WHERE day = ?`, day).
		Scan(&counters.RecoveryAttempts, &counters.RecoveryLosses, &counters.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return counters, nil
	}
	if err != nil {
		return counters, fmt.Errorf("failed to load counters: %w", err)
	}

	return counters, nil
}

// SaveCounters stores the safety counters of a day
func (s *SQLiteRepository) SaveCounters(c core.Counters) error {
	_, err := s.db.Exec(`INSERT INTO safety_counters (day, recovery_attempts, recovery_losses, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			recovery_attempts = excluded.recovery_attempts,
			recovery_losses = excluded.recovery_losses,
			updated_at = excluded.updated_at`,
		c.Day, c.RecoveryAttempts, c.RecoveryLosses, c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save counters: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

func matches(chain core.Chain, filters []core.ChainFilter) bool {
	for _, filter := range filters {
		if !filter(chain) {
			return false
		}
	}
	return true
}

func localOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.Local()
}
