package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteMirror implements Mirror on a SQLite file through database/sql.
// The duplicate-key tuple is enforced by a unique index, so concurrent
// writers and other processes cannot slip a second copy past the in-memory
// check.
type SQLiteMirror struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteMirror(path string) (*SQLiteMirror, error) {

	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports a single writer, limit the pool to avoid SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	m := &SQLiteMirror{
		db:     db,
		logger: slog.Default().With("component", "mirror"),
	}

	err = m.createSchema()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	m.logger.Info("mirror initialized", "path", path)

	return m, nil
}

func (m *SQLiteMirror) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL,
			unit INTEGER NOT NULL,
			age INTEGER NOT NULL,
			cost_cents INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_items_key
			ON items(code, unit, age, cost_cents);
	`
	_, err := m.db.Exec(schema)
	return err
}

func (m *SQLiteMirror) InsertOrDetectDuplicate(ctx context.Context, code string, unit, age int, costCents int64) (InsertResult, error) {

	result, err := m.db.ExecContext(ctx, `
		INSERT INTO items (code, unit, age, cost_cents, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (code, unit, age, cost_cents) DO NOTHING`,
		code, unit, age, costCents, time.Now().UTC())
	if err != nil {
		return InsertResult{}, fmt.Errorf("insert item: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return InsertResult{}, fmt.Errorf("rows affected: %w", err)
	}

	if inserted == 0 {
		var existing int64
		err := m.db.QueryRowContext(ctx, `
			SELECT id FROM items
			WHERE code = ? AND unit = ? AND age = ? AND cost_cents = ?`,
			code, unit, age, costCents).Scan(&existing)
		if err != nil {
			return InsertResult{}, fmt.Errorf("lookup existing item: %w", err)
		}
		return InsertResult{Status: DuplicateDetected, MirrorID: existing}, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return InsertResult{}, fmt.Errorf("last insert id: %w", err)
	}

	return InsertResult{Status: Inserted, MirrorID: id}, nil
}

func (m *SQLiteMirror) DeleteByKey(ctx context.Context, code string, unit, age int, costCents int64) (DeleteStatus, error) {

	result, err := m.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE code = ? AND unit = ? AND age = ? AND cost_cents = ?`,
		code, unit, age, costCents)
	if err != nil {
		return NotFound, fmt.Errorf("delete item: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return NotFound, fmt.Errorf("rows affected: %w", err)
	}

	if deleted == 0 {
		return NotFound, nil
	}

	return Deleted, nil
}

func (m *SQLiteMirror) DeleteAll(ctx context.Context) (int64, error) {

	result, err := m.db.ExecContext(ctx, `DELETE FROM items`)
	if err != nil {
		return 0, fmt.Errorf("delete all items: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	// Restart the identity column, the table is starting over
	_, err = m.db.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'items'`)
	if err != nil {
		m.logger.Warn("reset identity sequence", "error", err)
	}

	return deleted, nil
}

func (m *SQLiteMirror) FetchAll(ctx context.Context) ([]Row, error) {

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, code, unit, age, cost_cents, created_at
		FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	defer rows.Close()

	result := []Row{}
	for rows.Next() {
		row := Row{}
		err := rows.Scan(&row.MirrorID, &row.Code, &row.Unit, &row.Age, &row.CostCents, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		result = append(result, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}

	return result, nil
}

func (m *SQLiteMirror) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}
