// Package model defines the core memory data types.
package model

import "time"

// Family identifies one of the three stored record families.
type Family string

const (
	FamilyEpisodic   Family = "episodic"
	FamilySemantic   Family = "semantic"
	FamilyProcedural Family = "procedural"
)

// Valid reports whether f is a known record family.
func (f Family) Valid() bool {
	switch f {
	case FamilyEpisodic, FamilySemantic, FamilyProcedural:
		return true
	}
	return false
}

// ConsolidationStatus values for metadata rows.
const (
	StatusActive    = "active"
	StatusDuplicate = "duplicate"
	StatusTruncated = "truncated"
)

// Observation is a single timestamped note attached to a record. The first
// observation's text is the record's authoritative content; later ones
// append rather than overwrite.
type Observation struct {
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Mode       string    `json:"mode,omitempty"`
}

// Record is a stored memory entry in one of the three families.
type Record struct {
	Key          string        `json:"key"`
	Family       Family        `json:"family"`
	Observations []Observation `json:"observations"`
	SessionID    string        `json:"session_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`

	// Episodic fields.
	Event           string   `json:"event,omitempty"`
	Participants    []string `json:"participants,omitempty"`
	Context         string   `json:"context,omitempty"`
	Outcome         string   `json:"outcome,omitempty"`
	EmotionalImpact string   `json:"emotional_impact,omitempty"`

	// Semantic fields.
	Concept    string `json:"concept,omitempty"`
	Domain     string `json:"domain,omitempty"`
	Definition string `json:"definition,omitempty"`

	// Procedural fields.
	Skill             string   `json:"skill,omitempty"`
	Steps             []string `json:"steps,omitempty"`
	ApplicableContext string   `json:"applicable_context,omitempty"`
	Effectiveness     float64  `json:"effectiveness,omitempty"`

	// Metadata is attached on reads when available.
	Meta *Metadata `json:"meta,omitempty"`
}

// Content returns the record's authoritative text: the first observation.
func (r *Record) Content() string {
	if len(r.Observations) == 0 {
		return ""
	}
	return r.Observations[0].Text
}

// Importance returns the record's importance, defaulting to 0.5 when no
// metadata row exists.
func (r *Record) Importance() float64 {
	if r.Meta == nil {
		return DefaultImportance
	}
	return r.Meta.Importance
}

// DefaultImportance is assumed when a record has no metadata row.
const DefaultImportance = 0.5

// Metadata tracks retrieval bookkeeping for a record, one-to-one by key.
type Metadata struct {
	Key          string     `json:"key"`
	Importance   float64    `json:"importance"`
	AccessCount  int        `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	Status       string     `json:"status"`
	SessionID    string     `json:"session_id,omitempty"`
}

// EmotionalState is an append-only affect log entry.
type EmotionalState struct {
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Valence   float64   `json:"valence"` // -1..1
	Arousal   float64   `json:"arousal"` // 0..1
	Dominant  string    `json:"dominant,omitempty"`
	Context   string    `json:"context,omitempty"`
}

// EmotionalProfile is a rolling aggregate over a trailing window.
type EmotionalProfile struct {
	AvgValence float64  `json:"avg_valence"`
	AvgArousal float64  `json:"avg_arousal"`
	Dominant   []string `json:"dominant,omitempty"` // top labels by frequency
	Samples    int      `json:"samples"`
}

// Pattern is a cognitive pattern activation counter keyed by normalized name.
type Pattern struct {
	Name            string    `json:"name"`
	ActivationCount int       `json:"activation_count"`
	LastActivated   time.Time `json:"last_activated"`
	Triggers        []string  `json:"triggers,omitempty"`
}

// Session tracks one conversational session.
type Session struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	LastActive time.Time `json:"last_active"`
	Snapshot   string    `json:"snapshot,omitempty"`
}

// ClampImportance bounds v to [0,1].
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
