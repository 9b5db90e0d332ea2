// Package store provides the memory record storage interface and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/engram-memory/engram/internal/model"
)

// Sentinel errors for the failure taxonomy.
var (
	// ErrNotFound indicates no record exists for the given key.
	ErrNotFound = errors.New("record not found")

	// ErrStorageUnavailable indicates the collaborator-owned tables have not
	// been created yet, so the engine schema is not initialized.
	ErrStorageUnavailable = errors.New("storage not ready: collaborator tables missing")
)

// OrderBy selects the sort key for family listings.
type OrderBy string

const (
	OrderImportance OrderBy = "importance"
	OrderRecency    OrderBy = "recency"
	OrderAccess     OrderBy = "access"
)

// PutParams holds parameters for storing a memory record.
type PutParams struct {
	Family     model.Family
	SessionID  string
	Content    string
	Source     string
	Mode       string
	Confidence float64

	// Importance, when set, seeds the metadata row. Nil defaults to 0.5.
	Importance *float64

	// Episodic fields.
	Event           string
	Participants    []string
	Context         string
	Outcome         string
	EmotionalImpact string

	// Semantic fields. Concept drives the derived key.
	Concept    string
	Domain     string
	Definition string

	// Procedural fields.
	Skill             string
	Steps             []string
	ApplicableContext string
	Effectiveness     float64
}

// ListParams holds parameters for listing records of one family.
type ListParams struct {
	Family  model.Family
	Limit   int
	OrderBy OrderBy

	// MinImportance filters out records below the threshold.
	MinImportance float64

	// SkipTouch suppresses the access-count side effect. Used when a caller
	// has already counted the read in an earlier pass.
	SkipTouch bool
}

// QueryParams holds parameters for filtered ranked queries.
type QueryParams struct {
	Family    model.Family // empty means all families
	SessionID string
	Text      string // substring match against content and observations
	Limit     int
}

// Store defines the record storage contract. The retrieval and narrative
// layers depend on this interface, never on SQLite directly.
type Store interface {
	// WaitForReady polls for the collaborator-owned tables and, once present,
	// initializes the engine schema. Returns ErrStorageUnavailable on timeout.
	WaitForReady(ctx context.Context, timeout, pollInterval time.Duration) error

	// Put stores a record. Episodic and procedural records always insert;
	// semantic records append an observation to an existing record sharing
	// the same derived key.
	Put(ctx context.Context, p PutParams) (*model.Record, error)

	// Get retrieves a record by key, incrementing its access count.
	Get(ctx context.Context, key string) (*model.Record, error)

	// ListByFamily lists records of one family with metadata attached.
	ListByFamily(ctx context.Context, p ListParams) ([]model.Record, error)

	// Query returns records matching the filters, ranked by importance.
	// Matches count as reads and bump access metadata.
	Query(ctx context.Context, p QueryParams) ([]model.Record, error)

	// SetImportance updates a record's importance. ErrNotFound if the record
	// does not exist; a missing metadata row is created. Never touches the
	// access count.
	SetImportance(ctx context.Context, key string, importance float64) error

	// LogEmotionalState appends an affect log entry.
	LogEmotionalState(ctx context.Context, st model.EmotionalState) error

	// EmotionalProfile aggregates valence/arousal over the trailing window.
	EmotionalProfile(ctx context.Context, window time.Duration) (*model.EmotionalProfile, error)

	// UpsertPattern increments an activation counter, replacing triggers.
	UpsertPattern(ctx context.Context, name string, triggers []string) (*model.Pattern, error)

	// TouchSession upserts a session row, updating last_active.
	TouchSession(ctx context.Context, id string) error

	// SaveSnapshot stores a serialized bootstrap snapshot for a session.
	SaveSnapshot(ctx context.Context, id, snapshot string) error

	// Close closes the store.
	Close() error
}
