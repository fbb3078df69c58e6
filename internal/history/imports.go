package history

import (
	"database/sql"
	"time"

	"github.com/pavelanni/athena-playground/internal/model"
)

// RecordImport stores a partition import.
func (l *Log) RecordImport(rec model.ImportRecord) error {
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now()
	}
	_, err := l.db.Exec(
		`INSERT INTO partition_imports (mode, sha256, files, imported_at) VALUES (?, ?, ?, ?)`,
		rec.Mode, rec.SHA256, rec.Files, rec.ImportedAt,
	)
	return err
}

// LastImportHash returns the archive hash of the latest import of mode.
// Returns empty string and nil error if the mode was never imported.
func (l *Log) LastImportHash(mode model.DataMode) (string, error) {
	var hash string
	err := l.db.QueryRow(
		`SELECT sha256 FROM partition_imports WHERE mode = ? ORDER BY id DESC LIMIT 1`, mode,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// ListImports returns the imports of mode, newest first.
func (l *Log) ListImports(mode model.DataMode) ([]model.ImportRecord, error) {
	rows, err := l.db.Query(
		`SELECT id, mode, sha256, files, imported_at FROM partition_imports WHERE mode = ? ORDER BY id DESC`, mode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []model.ImportRecord{}
	for rows.Next() {
		var r model.ImportRecord
		if err := rows.Scan(&r.ID, &r.Mode, &r.SHA256, &r.Files, &r.ImportedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
