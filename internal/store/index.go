package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
)

// Index is an optional, rebuildable SQLite projection over a stream's JSONL
// files, used to push simple predicates (agent, session, action type, time
// range) down into SQL instead of scanning every file on every Read.
//
// The JSONL files remain the sole source of truth. Index never answers a
// Verify call — it has no concept of hashes or chain linkage, so it cannot
// attest to anything; it only accelerates filtered reads. This mirrors
// a JSONL-truth-plus-SQLite-cache design but
// generalizes it to any of the three stream kinds via a generic row shape.
type Index struct {
	db *sql.DB
}

// Row is the flattened, queryable projection of one log entry.
type Row struct {
	ID         string
	Ts         string
	Agent      string
	Session    string
	ActionType string
	Risk       int
	Source     string // witness only: filesystem/process/network
	Raw        string // the entry's stored JSON line, returned verbatim to the caller
}

// OpenIndex opens (or creates) the SQLite index at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: opening index %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			ts          TEXT NOT NULL,
			agent       TEXT NOT NULL DEFAULT '',
			session     TEXT NOT NULL DEFAULT '',
			action_type TEXT NOT NULL DEFAULT '',
			risk        INTEGER NOT NULL DEFAULT 0,
			source      TEXT NOT NULL DEFAULT '',
			raw         TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_agent ON entries(agent);
		CREATE INDEX IF NOT EXISTS idx_ts ON entries(ts);
		CREATE INDEX IF NOT EXISTS idx_action_type ON entries(action_type);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating index schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the underlying SQLite connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert inserts or replaces a row. Errors are returned to the caller, who
// (per the Stream.Append contract) only logs-and-continues, because the
// index is an accelerator, not the source of truth — a failed index write
// must never fail the append itself.
func (idx *Index) Upsert(r Row) error {
	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO entries (id, ts, agent, session, action_type, risk, source, raw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Ts, r.Agent, r.Session, r.ActionType, r.Risk, r.Source, r.Raw,
	)
	return err
}

// IndexQuery describes a filtered lookup pushed down to SQL.
type IndexQuery struct {
	Agent      string
	Session    string
	ActionType string
	Source     string
	Since      string // RFC-3339, inclusive
	Until      string // RFC-3339, inclusive
	Limit      int
}

// Query returns matching rows' raw JSON, most recent last (ascending by id,
// which is chronological for ULIDs).
func (idx *Index) Query(q IndexQuery) ([]string, error) {
	sqlText := "SELECT raw FROM entries WHERE 1=1"
	var args []any

	if q.Agent != "" {
		sqlText += " AND agent = ?"
		args = append(args, q.Agent)
	}
	if q.Session != "" {
		sqlText += " AND session = ?"
		args = append(args, q.Session)
	}
	if q.ActionType != "" {
		sqlText += " AND action_type = ?"
		args = append(args, q.ActionType)
	}
	if q.Source != "" {
		sqlText += " AND source = ?"
		args = append(args, q.Source)
	}
	if q.Since != "" {
		sqlText += " AND ts >= ?"
		args = append(args, q.Since)
	}
	if q.Until != "" {
		sqlText += " AND ts <= ?"
		args = append(args, q.Until)
	}
	sqlText += " ORDER BY id ASC"
	if q.Limit > 0 {
		sqlText += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := idx.db.Query(sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying index: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scanning index row: %w", err)
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// Rebuild truncates the index and re-populates it from rows, which the
// caller derives by reading every JSONL file fresh. Nothing in the stream
// layer calls it or detects a stale index: an index that missed an Upsert
// (e.g. a crash before it) stays as it is until a caller runs Rebuild.
func (idx *Index) Rebuild(rows []Row) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("store: beginning rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("store: clearing index: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO entries (id, ts, agent, session, action_type, risk, source, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: preparing rebuild insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.ID, r.Ts, r.Agent, r.Session, r.ActionType, r.Risk, r.Source, r.Raw); err != nil {
			return fmt.Errorf("store: inserting row %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing rebuild: %w", err)
	}
	slog.Info("store: index rebuilt", "rows", len(rows))
	return nil
}
