package history

import (
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/athena-playground/internal/model"

	_ "modernc.org/sqlite"
)

// maxBodyLen bounds stored request and response bodies.
const maxBodyLen = 64 << 10

// Log records gateway calls and partition imports in SQLite.
type Log struct {
	db *sql.DB
}

// New opens (and migrates) the history database at dbPath.
func New(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS gateway_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		module_config TEXT NOT NULL DEFAULT '',
		request_body TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS partition_imports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		files INTEGER NOT NULL DEFAULT 0,
		imported_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_partition_imports_mode ON partition_imports(mode);
	`
	_, err := l.db.Exec(schema)
	return err
}

// truncate cuts s to at most maxBodyLen bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxBodyLen {
		return s
	}
	cut := maxBodyLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Record stores one gateway call.
func (l *Log) Record(rec model.RequestRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := l.db.Exec(
		`INSERT INTO gateway_requests (method, url, status_code, duration_ms, module_config, request_body, response_body, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Method, rec.URL, rec.StatusCode, rec.DurationMS, rec.ModuleConfig,
		truncate(rec.RequestBody), truncate(rec.ResponseBody), rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRequests returns the most recent gateway calls, newest first.
func (l *Log) ListRequests(limit int) ([]model.RequestRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(
		`SELECT id, method, url, status_code, duration_ms, module_config, request_body, response_body, error, created_at
		 FROM gateway_requests ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []model.RequestRecord{}
	for rows.Next() {
		var r model.RequestRecord
		if err := rows.Scan(&r.ID, &r.Method, &r.URL, &r.StatusCode, &r.DurationMS, &r.ModuleConfig,
			&r.RequestBody, &r.ResponseBody, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
