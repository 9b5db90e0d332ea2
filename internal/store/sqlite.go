package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/engram-memory/engram/internal/model"
)

// collaboratorTables are owned by the external RAG collaborator. The engine
// only initializes its own schema once these exist in the shared file.
var collaboratorTables = []string{"entities", "relations", "documents", "chunks"}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
	ready   atomic.Bool
}

// NewSQLiteStore opens or creates a SQLite database at the given path. The
// constructor never blocks on the collaborator schema: if the collaborator
// tables already exist the engine schema is initialized immediately,
// otherwise call WaitForReady before first use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	ok, err := s.collaboratorReady(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("probe collaborator schema: %w", err)
	}
	if ok {
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		s.ready.Store(true)
	}

	return s, nil
}

// WaitForReady polls for the collaborator tables until they exist or the
// timeout elapses, then initializes the engine schema.
func (s *SQLiteStore) WaitForReady(ctx context.Context, timeout, pollInterval time.Duration) error {
	if s.ready.Load() {
		return nil
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, err := s.collaboratorReady(ctx)
		if err != nil {
			return fmt.Errorf("probe collaborator schema: %w", err)
		}
		if ok {
			if err := s.migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			s.ready.Store(true)
			return nil
		}
		if time.Now().After(deadline) {
			return ErrStorageUnavailable
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (s *SQLiteStore) collaboratorReady(ctx context.Context) (bool, error) {
	placeholders := strings.TrimRight(strings.Repeat("?,", len(collaboratorTables)), ",")
	args := make([]interface{}, len(collaboratorTables))
	for i, t := range collaboratorTables {
		args[i] = t
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (`+placeholders+`)`,
		args...).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == len(collaboratorTables), nil
}

func (s *SQLiteStore) requireReady() error {
	if !s.ready.Load() {
		return ErrStorageUnavailable
	}
	return nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		key        TEXT PRIMARY KEY,
		family     TEXT NOT NULL,
		session_id TEXT,
		created_at TEXT NOT NULL,

		event            TEXT,
		participants     TEXT,
		context          TEXT,
		outcome          TEXT,
		emotional_impact TEXT,

		concept    TEXT,
		domain     TEXT,
		definition TEXT,

		skill              TEXT,
		steps              TEXT,
		applicable_context TEXT,
		effectiveness      REAL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_family ON memories(family);
	CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);

	CREATE TABLE IF NOT EXISTS observations (
		id         TEXT PRIMARY KEY,
		memory_key TEXT NOT NULL REFERENCES memories(key),
		seq        INTEGER NOT NULL,
		text       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		source     TEXT,
		confidence REAL,
		mode       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_observations_memory ON observations(memory_key, seq);

	CREATE TABLE IF NOT EXISTS memory_meta (
		key           TEXT PRIMARY KEY REFERENCES memories(key),
		importance    REAL NOT NULL DEFAULT 0.5,
		access_count  INTEGER NOT NULL DEFAULT 0,
		last_accessed TEXT,
		status        TEXT NOT NULL DEFAULT 'active',
		session_id    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_meta_importance ON memory_meta(importance DESC);

	CREATE TABLE IF NOT EXISTS emotional_states (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		at         TEXT NOT NULL,
		valence    REAL NOT NULL,
		arousal    REAL NOT NULL,
		dominant   TEXT,
		context    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_emotional_at ON emotional_states(at DESC);

	CREATE TABLE IF NOT EXISTS cognitive_patterns (
		name             TEXT PRIMARY KEY,
		activation_count INTEGER NOT NULL DEFAULT 1,
		last_activated   TEXT NOT NULL,
		triggers         TEXT
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		last_active TEXT NOT NULL,
		snapshot    TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// withRetry retries fn on transient lock contention with exponential backoff.
func withRetry(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(10<<i) * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// derivedKey computes the stable key for a semantic record. Semantic puts
// sharing a derived key merge into one record.
func derivedKey(p PutParams) string {
	base := p.Concept
	if base == "" {
		base = p.Content
		// Slice by runes so the prefix never splits a multi-byte character.
		if r := []rune(base); len(r) > 50 {
			base = string(r[:50])
		}
	}
	base = strings.ToLower(strings.TrimSpace(base))
	base = strings.Join(strings.Fields(base), "-")
	return "sem:" + base
}

func (s *SQLiteStore) Put(ctx context.Context, p PutParams) (*model.Record, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	if !p.Family.Valid() {
		return nil, fmt.Errorf("invalid family %q", p.Family)
	}

	now := time.Now().UTC()

	// Procedural effectiveness falls back to the submitted importance.
	effectiveness := p.Effectiveness
	if p.Family == model.FamilyProcedural && effectiveness == 0 && p.Importance != nil {
		effectiveness = model.ClampImportance(*p.Importance)
	}

	key := s.newID()
	appendOnly := false
	if p.Family == model.FamilySemantic {
		key = derivedKey(p)
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memories WHERE key = ?`, key).Scan(&exists)
		if err != nil {
			return nil, err
		}
		appendOnly = exists > 0
	}

	var rec *model.Record
	err := withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if !appendOnly {
			var participants, steps *string
			if len(p.Participants) > 0 {
				b, _ := json.Marshal(p.Participants)
				v := string(b)
				participants = &v
			}
			if len(p.Steps) > 0 {
				b, _ := json.Marshal(p.Steps)
				v := string(b)
				steps = &v
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO memories (key, family, session_id, created_at,
				   event, participants, context, outcome, emotional_impact,
				   concept, domain, definition,
				   skill, steps, applicable_context, effectiveness)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				key, string(p.Family), nullable(p.SessionID), now.Format(time.RFC3339),
				nullable(p.Event), participants, nullable(p.Context), nullable(p.Outcome), nullable(p.EmotionalImpact),
				nullable(p.Concept), nullable(p.Domain), nullable(p.Definition),
				nullable(p.Skill), steps, nullable(p.ApplicableContext), effectiveness)
			if err != nil {
				return fmt.Errorf("insert memory: %w", err)
			}
		}

		var seq int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM observations WHERE memory_key = ?`, key).Scan(&seq); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO observations (id, memory_key, seq, text, created_at, source, confidence, mode)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.newID(), key, seq, p.Content, now.Format(time.RFC3339),
			nullable(p.Source), p.Confidence, nullable(p.Mode))
		if err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}

		importance := model.DefaultImportance
		if p.Importance != nil {
			importance = model.ClampImportance(*p.Importance)
		}
		if p.Importance != nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO memory_meta (key, importance, status, session_id) VALUES (?, ?, 'active', ?)
				 ON CONFLICT(key) DO UPDATE SET importance = excluded.importance`,
				key, importance, nullable(p.SessionID))
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO memory_meta (key, importance, status, session_id) VALUES (?, ?, 'active', ?)
				 ON CONFLICT(key) DO NOTHING`,
				key, importance, nullable(p.SessionID))
		}
		if err != nil {
			return fmt.Errorf("upsert metadata: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	rec, err = s.load(ctx, key, false)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*model.Record, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	return s.load(ctx, key, true)
}

// load fetches a record with observations and metadata. touch controls the
// access-count side effect.
func (s *SQLiteStore) load(ctx context.Context, key string, touch bool) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT m.key, m.family, m.session_id, m.created_at,
		        m.event, m.participants, m.context, m.outcome, m.emotional_impact,
		        m.concept, m.domain, m.definition,
		        m.skill, m.steps, m.applicable_context, m.effectiveness,
		        COALESCE(mm.importance, 0.5), COALESCE(mm.access_count, 0),
		        mm.last_accessed, COALESCE(mm.status, 'active'), mm.session_id
		 FROM memories m
		 LEFT JOIN memory_meta mm ON mm.key = m.key
		 WHERE m.key = ?`, key)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	obs, err := s.loadObservations(ctx, key)
	if err != nil {
		return nil, err
	}
	rec.Observations = obs

	// Returned metadata reflects the state before this read.
	if touch {
		s.touchKeys(ctx, []string{key})
	}

	return rec, nil
}

func (s *SQLiteStore) loadObservations(ctx context.Context, key string) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, created_at, source, confidence, mode
		 FROM observations WHERE memory_key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []model.Observation
	for rows.Next() {
		var o model.Observation
		var createdAt string
		var source, mode sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&o.Text, &createdAt, &source, &confidence, &mode); err != nil {
			return nil, err
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		o.Source = source.String
		o.Confidence = confidence.Float64
		o.Mode = mode.String
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func (s *SQLiteStore) ListByFamily(ctx context.Context, p ListParams) ([]model.Record, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	order := "m.created_at DESC"
	switch p.OrderBy {
	case OrderImportance:
		order = "COALESCE(mm.importance, 0.5) DESC, m.created_at DESC"
	case OrderAccess:
		order = "COALESCE(mm.access_count, 0) DESC, m.created_at DESC"
	case OrderRecency, "":
		order = "m.created_at DESC"
	}

	where := []string{"m.family = ?"}
	args := []interface{}{string(p.Family)}
	if p.MinImportance > 0 {
		where = append(where, "COALESCE(mm.importance, 0.5) >= ?")
		args = append(args, p.MinImportance)
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT m.key, m.family, m.session_id, m.created_at,
		        m.event, m.participants, m.context, m.outcome, m.emotional_impact,
		        m.concept, m.domain, m.definition,
		        m.skill, m.steps, m.applicable_context, m.effectiveness,
		        COALESCE(mm.importance, 0.5), COALESCE(mm.access_count, 0),
		        mm.last_accessed, COALESCE(mm.status, 'active'), mm.session_id
		 FROM memories m
		 LEFT JOIN memory_meta mm ON mm.key = m.key
		 WHERE %s
		 ORDER BY %s
		 LIMIT ?`, strings.Join(where, " AND "), order)

	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if !p.SkipTouch && len(records) > 0 {
		keys := make([]string, len(records))
		for i, r := range records {
			keys[i] = r.Key
		}
		s.touchKeys(ctx, keys)
	}

	return records, nil
}

func (s *SQLiteStore) Query(ctx context.Context, p QueryParams) ([]model.Record, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1=1"}
	args := []interface{}{}
	if p.Family != "" {
		where = append(where, "m.family = ?")
		args = append(args, string(p.Family))
	}
	if p.SessionID != "" {
		where = append(where, "m.session_id = ?")
		args = append(args, p.SessionID)
	}
	if p.Text != "" {
		where = append(where, "EXISTS (SELECT 1 FROM observations o WHERE o.memory_key = m.key AND o.text LIKE ?)")
		args = append(args, "%"+p.Text+"%")
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT m.key, m.family, m.session_id, m.created_at,
		        m.event, m.participants, m.context, m.outcome, m.emotional_impact,
		        m.concept, m.domain, m.definition,
		        m.skill, m.steps, m.applicable_context, m.effectiveness,
		        COALESCE(mm.importance, 0.5), COALESCE(mm.access_count, 0),
		        mm.last_accessed, COALESCE(mm.status, 'active'), mm.session_id
		 FROM memories m
		 LEFT JOIN memory_meta mm ON mm.key = m.key
		 WHERE %s
		 ORDER BY COALESCE(mm.importance, 0.5) DESC, m.created_at DESC
		 LIMIT ?`, strings.Join(where, " AND "))

	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if len(records) > 0 {
		keys := make([]string, len(records))
		for i, r := range records {
			keys[i] = r.Key
		}
		s.touchKeys(ctx, keys)
	}

	return records, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...interface{}) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		obs, err := s.loadObservations(ctx, records[i].Key)
		if err != nil {
			return nil, err
		}
		records[i].Observations = obs
	}
	return records, nil
}

// touchKeys bumps access counts and last_accessed for a read. Missing
// metadata rows are created so the counter survives.
func (s *SQLiteStore) touchKeys(ctx context.Context, keys []string) {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, key := range keys {
		s.db.ExecContext(ctx,
			`INSERT INTO memory_meta (key, importance, access_count, last_accessed, status)
			 VALUES (?, 0.5, 1, ?, 'active')
			 ON CONFLICT(key) DO UPDATE SET
			   access_count = access_count + 1,
			   last_accessed = excluded.last_accessed`,
			key, now)
	}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*model.Record, error) {
	var r model.Record
	var family, createdAt, status string
	var sessionID, event, participants, context_, outcome, impact sql.NullString
	var concept, domain, definition, skill, steps, applicable sql.NullString
	var effectiveness sql.NullFloat64
	var importance float64
	var accessCount int
	var lastAccessed, metaSession sql.NullString

	err := row.Scan(
		&r.Key, &family, &sessionID, &createdAt,
		&event, &participants, &context_, &outcome, &impact,
		&concept, &domain, &definition,
		&skill, &steps, &applicable, &effectiveness,
		&importance, &accessCount, &lastAccessed, &status, &metaSession,
	)
	if err != nil {
		return nil, err
	}

	r.Family = model.Family(family)
	r.SessionID = sessionID.String
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.Event = event.String
	r.Context = context_.String
	r.Outcome = outcome.String
	r.EmotionalImpact = impact.String
	r.Concept = concept.String
	r.Domain = domain.String
	r.Definition = definition.String
	r.Skill = skill.String
	r.ApplicableContext = applicable.String
	r.Effectiveness = effectiveness.Float64
	if participants.Valid {
		json.Unmarshal([]byte(participants.String), &r.Participants)
	}
	if steps.Valid {
		json.Unmarshal([]byte(steps.String), &r.Steps)
	}

	meta := &model.Metadata{
		Key:         r.Key,
		Importance:  importance,
		AccessCount: accessCount,
		Status:      status,
		SessionID:   metaSession.String,
	}
	if lastAccessed.Valid {
		t, _ := time.Parse(time.RFC3339, lastAccessed.String)
		meta.LastAccessed = &t
	}
	r.Meta = meta

	return &r, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Store = (*SQLiteStore)(nil)
