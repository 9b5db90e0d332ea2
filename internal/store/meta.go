package store

import (
	"context"
	"fmt"
	"time"

	"github.com/engram-memory/engram/internal/model"
)

// SetImportance updates a record's importance score. The access count is
// never touched by an adjustment; only reads increment it.
func (s *SQLiteStore) SetImportance(ctx context.Context, key string, importance float64) error {
	if err := s.requireReady(); err != nil {
		return err
	}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE key = ?`, key).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	v := model.ClampImportance(importance)
	now := time.Now().UTC().Format(time.RFC3339)
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO memory_meta (key, importance, access_count, last_accessed, status)
			 VALUES (?, ?, 0, ?, 'active')
			 ON CONFLICT(key) DO UPDATE SET
			   importance = excluded.importance,
			   last_accessed = excluded.last_accessed`,
			key, v, now)
		return err
	})
}

// SetStatus updates the consolidation status of a record's metadata row.
func (s *SQLiteStore) SetStatus(ctx context.Context, key, status string) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_meta (key, status) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET status = excluded.status`,
		key, status)
	return err
}
