// Package ledger records every transaction the authority confirms in an
// embedded sqlite database.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one confirmed transaction.
type Entry struct {
	Seq       int64
	At        time.Time
	Player    string
	Op        string
	RequestID string
	ItemID    string
	Quantity  int
	Price     int    // currency moved; 0 for non-trade ops
	Ref       string // shop id or floor item id
}

// Ledger is an append-only transaction log.
type Ledger struct {
	db     *sql.DB
	insert *sql.Stmt
}

// Open opens or creates the ledger at path. ":memory:" is accepted.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty ledger path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	insert, err := db.Prepare(`INSERT INTO transactions(at_ms,player,op,request_id,item_id,quantity,price,ref) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &Ledger{db: db, insert: insert}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS transactions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ms INTEGER NOT NULL,
			player TEXT NOT NULL,
			op TEXT NOT NULL,
			request_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price INTEGER NOT NULL,
			ref TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_player ON transactions(player, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("ledger schema: %w", err)
		}
	}
	return nil
}

// Record appends an entry and returns its sequence number.
func (l *Ledger) Record(ctx context.Context, e Entry) (int64, error) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	res, err := l.insert.ExecContext(ctx, e.At.UnixMilli(), e.Player, e.Op, e.RequestID, e.ItemID, e.Quantity, e.Price, e.Ref)
	if err != nil {
		return 0, fmt.Errorf("record %s: %w", e.Op, err)
	}
	return res.LastInsertId()
}

// ForPlayer returns a player's most recent entries, newest first.
func (l *Ledger) ForPlayer(ctx context.Context, player string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq,at_ms,player,op,request_id,item_id,quantity,price,ref FROM transactions WHERE player = ? ORDER BY seq DESC LIMIT ?`,
		player, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.Seq, &at, &e.Player, &e.Op, &e.RequestID, &e.ItemID, &e.Quantity, &e.Price, &e.Ref); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Totals sums currency paid (buy) and received (sell) per item for a shop.
func (l *Ledger) Totals(ctx context.Context, shopID string) (bought, sold int, err error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN op='buy' THEN price END),0), COALESCE(SUM(CASE WHEN op='sell' THEN price END),0) FROM transactions WHERE ref = ?`,
		shopID)
	if err := row.Scan(&bought, &sold); err != nil {
		return 0, 0, fmt.Errorf("ledger totals: %w", err)
	}
	return bought, sold, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l.insert != nil {
		_ = l.insert.Close()
	}
	return l.db.Close()
}
