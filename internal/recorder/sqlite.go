package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"PerpPilot/internal/model"
	"PerpPilot/pkg/logger"
)

// SQLiteRecorder persists trade and session history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol        TEXT NOT NULL,
			side          TEXT NOT NULL,
			entry_time    INTEGER NOT NULL,
			entry_price   REAL,
			position_size REAL,
			status        TEXT NOT NULL,
			exit_time     INTEGER,
			exit_price    REAL,
			pnl           REAL,
			close_reason  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_entry ON trades(entry_time)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL,
			reason      TEXT NOT NULL,
			cycles_run  INTEGER,
			final_pnl   REAL,
			started_at  INTEGER NOT NULL,
			ended_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,

		`CREATE TABLE IF NOT EXISTS rejections (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			symbol    TEXT NOT NULL,
			scenario  TEXT,
			reasons   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_ts ON rejections(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordTrade(trade model.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var exitTime int64
	if !trade.ExitTime.IsZero() {
		exitTime = trade.ExitTime.Unix()
	}
	_, err := r.db.Exec(`INSERT INTO trades
		(symbol, side, entry_time, entry_price, position_size, status,
		 exit_time, exit_price, pnl, close_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		trade.Symbol, string(trade.Side), trade.EntryTime.Unix(),
		trade.EntryPrice, trade.PositionSize, string(trade.Status),
		exitTime, trade.ExitPrice, trade.PnL, string(trade.Reason),
	)
	return err
}

func (r *SQLiteRecorder) RecordSession(result model.SessionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO sessions
		(session_id, reason, cycles_run, final_pnl, started_at, ended_at)
		VALUES (?,?,?,?,?,?)`,
		result.ID, string(result.Reason), result.CyclesRun, result.FinalPnL,
		result.StartedAt.Unix(), result.EndedAt.Unix(),
	)
	return err
}

func (r *SQLiteRecorder) RecordRejection(symbol, scenario string, reasons []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO rejections (timestamp, symbol, scenario, reasons)
		VALUES (?,?,?,?)`,
		time.Now().Unix(), symbol, scenario, strings.Join(reasons, "; "),
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	logger.Info("closing sqlite recorder")
	return r.db.Close()
}
