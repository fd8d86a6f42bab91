package records

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"invoicechat/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteCache is a Cache persisted in SQLite, so the listing survives
// restarts of the chat process.
type SQLiteCache struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteCache(dbPath string, logger *slog.Logger) (*SQLiteCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open cache database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache migration failed: %w", err)
	}
	return &SQLiteCache{db: db, logger: logger}, nil
}

func (s *SQLiteCache) Replace(ctx context.Context, recs []domain.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	n, err := upsertTx(ctx, tx, recs)
	if err != nil {
		return err
	}
	if err := logRefresh(ctx, tx, "replace", n); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteCache) Upsert(ctx context.Context, recs []domain.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	n, err := upsertTx(ctx, tx, recs)
	if err != nil {
		return err
	}
	if err := logRefresh(ctx, tx, "upsert", n); err != nil {
		return err
	}
	return tx.Commit()
}

// upsertTx stores recs after the current last position. Existing rows keep
// their position.
func upsertTx(ctx context.Context, tx *sql.Tx, recs []domain.Record) (int, error) {
	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM records`).Scan(&next); err != nil {
		return 0, fmt.Errorf("query position: %w", err)
	}

	n := 0
	for _, r := range recs {
		id := r.ID()
		if id == "" {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return n, fmt.Errorf("encode record %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (id, position, data) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
			id, next, string(data),
		); err != nil {
			return n, fmt.Errorf("store record %s: %w", id, err)
		}
		next++
		n++
	}
	return n, nil
}

func logRefresh(ctx context.Context, tx *sql.Tx, action string, n int) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO refreshes (action, record_count) VALUES (?, ?)`, action, n,
	); err != nil {
		return fmt.Errorf("log refresh: %w", err)
	}
	return nil
}

func (s *SQLiteCache) Get(ctx context.Context, id string) (domain.Record, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load record %s: %w", id, err)
	}
	r, err := decodeRecord(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode record %s: %w", id, err)
	}
	return r, true, nil
}

func (s *SQLiteCache) All(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		r, err := decodeRecord(data)
		if err != nil {
			s.logger.Warn("skipping undecodable cached record", "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteCache) Invalidate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invalidate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if err := logRefresh(ctx, tx, "invalidate", 0); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

// decodeRecord keeps numbers as literals, matching records decoded from the
// agent.
func decodeRecord(data string) (domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var r domain.Record
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}
	return r, nil
}
