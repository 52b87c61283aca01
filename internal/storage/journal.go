package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"swing_go/internal/domain"

	_ "github.com/glebarez/go-sqlite"
)

// TradeJournal persists the order and position history in SQLite. It is an
// audit trail only: the exchange remains the source of truth and the journal
// is never read back to make trading decisions.
type TradeJournal struct {
	db *sql.DB
}

// NewTradeJournal opens (and if needed creates) the journal database with
// WAL mode enabled.
func NewTradeJournal(dbPath string) (*TradeJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id     TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			side         TEXT NOT NULL,
			kind         TEXT NOT NULL,
			qty          TEXT NOT NULL,
			price        TEXT NOT NULL,
			stop_price   TEXT NOT NULL DEFAULT '',
			client_id    TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'OPEN',
			submitted_at INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL,
			PRIMARY KEY (order_id, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			id          INTEGER PRIMARY KEY,
			symbol      TEXT NOT NULL,
			entry_order TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			qty         TEXT NOT NULL,
			outcome     TEXT NOT NULL DEFAULT '',
			opened_at   INTEGER NOT NULL,
			closed_at   INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id      INTEGER PRIMARY KEY,
			kind    TEXT NOT NULL,
			symbol  TEXT NOT NULL,
			message TEXT NOT NULL,
			at      INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &TradeJournal{db: db}, nil
}

// RecordOrder stores a freshly accepted order.
func (j *TradeJournal) RecordOrder(ctx context.Context, intent domain.OrderIntent, h domain.OrderHandle) error {
	now := time.Now().UnixMicro()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, symbol, side, kind, qty, price, stop_price, client_id, submitted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_id, symbol) DO NOTHING`,
		h.OrderID, h.Symbol, string(intent.Side), string(intent.Kind),
		intent.Qty.String(), intent.Price.String(), intent.StopPrice.String(),
		intent.ClientID, h.SubmittedAt.UnixMicro(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// RecordOrderStatus updates an order's terminal status.
func (j *TradeJournal) RecordOrderStatus(ctx context.Context, h domain.OrderHandle, status domain.OrderStatus) error {
	_, err := j.db.ExecContext(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ? AND symbol = ?",
		status.String(), time.Now().UnixMicro(), h.OrderID, h.Symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// RecordPositionOpened stores a newly opened position.
func (j *TradeJournal) RecordPositionOpened(ctx context.Context, p *domain.Position) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO positions (symbol, entry_order, entry_price, qty, opened_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.Symbol, p.Entry.OrderID, p.EntryPrice.String(), p.Qty.String(),
		p.OpenedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

// RecordPositionClosed marks the most recent open position for the symbol
// as closed with its outcome.
func (j *TradeJournal) RecordPositionClosed(ctx context.Context, p *domain.Position, outcome string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE positions SET outcome = ?, closed_at = ?
		 WHERE id = (SELECT id FROM positions WHERE symbol = ? AND closed_at IS NULL ORDER BY id DESC LIMIT 1)`,
		outcome, time.Now().UnixMicro(), p.Symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	return nil
}

// RecordAlert stores an operator alert.
func (j *TradeJournal) RecordAlert(ctx context.Context, a domain.Alert) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO alerts (kind, symbol, message, at) VALUES (?, ?, ?, ?)",
		string(a.Kind), a.Symbol, a.Message, a.At.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// OrderRow is one journaled order.
type OrderRow struct {
	OrderID string
	Symbol  string
	Side    string
	Kind    string
	Qty     string
	Price   string
	Status  string
}

// Orders lists journaled orders for a symbol, newest first.
func (j *TradeJournal) Orders(ctx context.Context, symbol string, limit int) ([]OrderRow, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT order_id, symbol, side, kind, qty, price, status
		 FROM orders WHERE symbol = ? ORDER BY submitted_at DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRow
	for rows.Next() {
		var r OrderRow
		if err := rows.Scan(&r.OrderID, &r.Symbol, &r.Side, &r.Kind, &r.Qty, &r.Price, &r.Status); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (j *TradeJournal) Close() error {
	return j.db.Close()
}
