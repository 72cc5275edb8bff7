package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"winery/internal/log"

	_ "modernc.org/sqlite"
)

const (
	upsertValue = `INSERT INTO session_values (session_id, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	selectValues = `SELECT key, value FROM session_values WHERE session_id = ?`
	purgeIdle    = `DELETE FROM session_values WHERE session_id IN (
	SELECT session_id FROM session_values GROUP BY session_id HAVING MAX(updated_at) < ?
)`
	countIdle = `SELECT COUNT(*) FROM (
	SELECT session_id FROM session_values GROUP BY session_id HAVING MAX(updated_at) < ?
)`
)

// SQLiteSessionStore persists browser sessions as key-value rows.
type SQLiteSessionStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *log.Logger
}

func NewSQLiteSessionStore(dbPath string, logger *log.Logger) (*SQLiteSessionStore, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	if _, err := MigrateSessionSchema(dbPath, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteSessionStore{
		db:     db,
		now:    time.Now,
		logger: logger,
	}, nil
}

func (s *SQLiteSessionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteSessionStore) Load(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, selectValues, id)
	if err != nil {
		return nil, fmt.Errorf("query session values: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan session value: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session values: %w", err)
	}
	return out, nil
}

func (s *SQLiteSessionStore) Set(ctx context.Context, id string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertValue)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UnixMilli()
	for k, v := range values {
		if _, err := stmt.ExecContext(ctx, id, k, v, now); err != nil {
			return fmt.Errorf("upsert session value %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session values: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) Delete(ctx context.Context, id string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, id)
	for _, k := range keys {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	query := `DELETE FROM session_values WHERE session_id = ? AND key IN (` + placeholders + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete session values: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()
	var sessions int64
	if err := s.db.QueryRowContext(ctx, countIdle, cutoff).Scan(&sessions); err != nil {
		return 0, fmt.Errorf("count idle sessions: %w", err)
	}
	if sessions == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, purgeIdle, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge idle sessions: %w", err)
	}
	rows, _ := res.RowsAffected()
	s.logger.DebugContext(ctx, "Idle sessions purged", "sessions", sessions, "rows", rows)
	return sessions, nil
}
