package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/engram-memory/engram/internal/model"
)

// TouchSession upserts a session row, updating last_active.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, started_at, last_active) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active`,
			id, now, now)
		return err
	})
}

// SaveSnapshot stores a serialized bootstrap snapshot for a session.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, id, snapshot string) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, started_at, last_active, snapshot) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active, snapshot = excluded.snapshot`,
			id, now, now, snapshot)
		return err
	})
}

// GetSession returns a session row, or ErrNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	var sess model.Session
	var started, active string
	var snapshot sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, last_active, snapshot FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &started, &active, &snapshot)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.StartedAt, _ = time.Parse(time.RFC3339, started)
	sess.LastActive, _ = time.Parse(time.RFC3339, active)
	sess.Snapshot = snapshot.String
	return &sess, nil
}

// UpsertPattern increments a pattern's activation count, replacing its
// trigger list. A new pattern starts at count 1.
func (s *SQLiteStore) UpsertPattern(ctx context.Context, name string, triggers []string) (*model.Pattern, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var triggersJSON *string
	if len(triggers) > 0 {
		b, _ := json.Marshal(triggers)
		v := string(b)
		triggersJSON = &v
	}

	err := withRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO cognitive_patterns (name, activation_count, last_activated, triggers)
			 VALUES (?, 1, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
			   activation_count = activation_count + 1,
			   last_activated = excluded.last_activated,
			   triggers = excluded.triggers`,
			name, now.Format(time.RFC3339), triggersJSON)
		return err
	})
	if err != nil {
		return nil, err
	}

	p := &model.Pattern{Name: name}
	var activated string
	var tj sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT activation_count, last_activated, triggers FROM cognitive_patterns WHERE name = ?`, name).
		Scan(&p.ActivationCount, &activated, &tj)
	if err != nil {
		return nil, err
	}
	p.LastActivated, _ = time.Parse(time.RFC3339, activated)
	if tj.Valid {
		json.Unmarshal([]byte(tj.String), &p.Triggers)
	}
	return p, nil
}
