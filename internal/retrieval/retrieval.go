// Package retrieval assembles ranked memory bundles for narrative synthesis.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/store"
)

const (
	// CriticalThreshold marks a record as must-include.
	CriticalThreshold = 0.9

	defaultEpisodicLimit   = 10
	defaultSemanticLimit   = 10
	defaultProceduralLimit = 5
	defaultOverfetch       = 30
	defaultWindow          = 30 * 24 * time.Hour
)

// Params configures one retrieval pass. Retrieval is deliberately
// session-agnostic: the bundle spans all sessions so memory carries across
// them; session ids scope only caching and snapshots at the service layer.
type Params struct {
	EpisodicLimit   int
	SemanticLimit   int
	ProceduralLimit int

	// Overfetch is the episodic pull size before capping. Kept larger than
	// EpisodicLimit so critical records survive the merge.
	Overfetch int

	// Window bounds the emotional profile aggregation.
	Window time.Duration
}

func (p *Params) defaults() {
	if p.EpisodicLimit <= 0 {
		p.EpisodicLimit = defaultEpisodicLimit
	}
	if p.SemanticLimit <= 0 {
		p.SemanticLimit = defaultSemanticLimit
	}
	if p.ProceduralLimit <= 0 {
		p.ProceduralLimit = defaultProceduralLimit
	}
	if p.Overfetch < p.EpisodicLimit {
		p.Overfetch = defaultOverfetch
	}
	if p.Window <= 0 {
		p.Window = defaultWindow
	}
}

// Bundle is the ranked result of one retrieval pass.
type Bundle struct {
	Episodic   []model.Record          `json:"episodic"`
	Critical   []model.Record          `json:"critical"`
	Semantic   []model.Record          `json:"semantic"`
	Procedural []model.Record          `json:"procedural"`
	Emotional  *model.EmotionalProfile `json:"emotional,omitempty"`
}

// Engine runs the retrieval pipeline against a record store.
type Engine struct {
	store store.Store
	log   *slog.Logger
}

// New creates a retrieval engine.
func New(s store.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, log: log}
}

// Retrieve runs the full pipeline: overfetch episodic by importance, carve
// out the critical subset, pull a recency set, merge with stable precedence
// (critical, importance-ranked, recent), then cap semantic and procedural
// sets and aggregate the emotional profile.
func (e *Engine) Retrieve(ctx context.Context, p Params) (*Bundle, error) {
	p.defaults()

	byImportance, err := e.store.ListByFamily(ctx, store.ListParams{
		Family:  model.FamilyEpisodic,
		Limit:   p.Overfetch,
		OrderBy: store.OrderImportance,
	})
	if err != nil {
		return nil, err
	}

	var critical []model.Record
	for _, r := range byImportance {
		if r.Importance() >= CriticalThreshold {
			critical = append(critical, r)
		}
	}

	// Second pass already counted most of these reads; skip the touch.
	byRecency, err := e.store.ListByFamily(ctx, store.ListParams{
		Family:    model.FamilyEpisodic,
		Limit:     p.Overfetch,
		OrderBy:   store.OrderRecency,
		SkipTouch: true,
	})
	if err != nil {
		return nil, err
	}

	episodic := mergeByKey(p.EpisodicLimit, critical, byImportance, byRecency)

	semantic, err := e.store.ListByFamily(ctx, store.ListParams{
		Family:  model.FamilySemantic,
		Limit:   p.SemanticLimit,
		OrderBy: store.OrderImportance,
	})
	if err != nil {
		return nil, err
	}

	procedural, err := e.store.ListByFamily(ctx, store.ListParams{
		Family:  model.FamilyProcedural,
		Limit:   p.ProceduralLimit,
		OrderBy: store.OrderImportance,
	})
	if err != nil {
		return nil, err
	}

	profile, err := e.store.EmotionalProfile(ctx, p.Window)
	if err != nil {
		return nil, err
	}

	e.log.Debug("retrieval pass",
		"episodic", len(episodic), "critical", len(critical),
		"semantic", len(semantic), "procedural", len(procedural),
		"emotional_samples", profile.Samples)

	return &Bundle{
		Episodic:   episodic,
		Critical:   critical,
		Semantic:   semantic,
		Procedural: procedural,
		Emotional:  profile,
	}, nil
}

// mergeByKey concatenates result sets preserving first-seen order,
// deduplicating by key and capping at limit.
func mergeByKey(limit int, sets ...[]model.Record) []model.Record {
	seen := map[string]bool{}
	var merged []model.Record
	for _, set := range sets {
		for _, r := range set {
			if seen[r.Key] {
				continue
			}
			seen[r.Key] = true
			merged = append(merged, r)
			if len(merged) >= limit {
				return merged
			}
		}
	}
	return merged
}
