package service

import (
	"context"
	"encoding/json"

	"github.com/engram-memory/engram/internal/consolidate"
	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/narrative"
	"github.com/engram-memory/engram/internal/retrieval"
	"github.com/engram-memory/engram/internal/store"
)

// RetrieveParams configures a retrieve call.
type RetrieveParams struct {
	SessionID       string `json:"session_id,omitempty"`
	Structured      bool   `json:"structured,omitempty"`
	IncludeGuidance bool   `json:"include_guidance,omitempty"`
	AgentName       string `json:"agent_name,omitempty"`
}

// RetrieveResult is either a narrative or the structured bundle.
type RetrieveResult struct {
	Narrative string            `json:"narrative,omitempty"`
	Bundle    *retrieval.Bundle `json:"bundle,omitempty"`
	Guidance  string            `json:"guidance,omitempty"`
}

// Retrieve runs the retrieval pipeline and, unless a structured payload was
// requested, synthesizes the bootstrap narrative. Narratives are served
// from a short-TTL cache per session; a snapshot of the narrative is saved
// to the session row.
func (s *Service) Retrieve(ctx context.Context, p RetrieveParams) (*RetrieveResult, error) {
	if p.SessionID != "" {
		if err := s.store.TouchSession(ctx, p.SessionID); err != nil {
			return nil, err
		}
	}

	res := &RetrieveResult{}
	if p.IncludeGuidance {
		res.Guidance = "Read the narrative top to bottom before acting; the self-verification checklist is mandatory."
	}

	if p.Structured {
		bundle, err := s.retr.Retrieve(ctx, retrieval.Params{})
		if err != nil {
			return nil, err
		}
		res.Bundle = bundle
		return res, nil
	}

	cacheKey := "narrative:" + p.SessionID
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			if text, ok := v.(string); ok {
				res.Narrative = text
				return res, nil
			}
		}
	}

	bundle, err := s.retr.Retrieve(ctx, retrieval.Params{})
	if err != nil {
		return nil, err
	}
	text := narrative.Synthesize(bundle, narrative.Options{
		SessionID: p.SessionID,
		AgentName: p.AgentName,
	})
	res.Narrative = text

	if s.cache != nil {
		s.cache.SetWithTTL(cacheKey, text, int64(len(text)), narrativeTTL)
	}
	if p.SessionID != "" {
		if snap, err := json.Marshal(bundle); err == nil {
			s.store.SaveSnapshot(ctx, p.SessionID, string(snap))
		}
	}

	return res, nil
}

// StoreSingleParams configures a single-record store call.
type StoreSingleParams struct {
	Content    string       `json:"content"`
	Family     model.Family `json:"family"`
	SessionID  string       `json:"session_id,omitempty"`
	Importance *float64     `json:"importance,omitempty"`

	Event           string   `json:"event,omitempty"`
	Participants    []string `json:"participants,omitempty"`
	Context         string   `json:"context,omitempty"`
	Outcome         string   `json:"outcome,omitempty"`
	EmotionalImpact string   `json:"emotional_impact,omitempty"`

	Concept    string `json:"concept,omitempty"`
	Domain     string `json:"domain,omitempty"`
	Definition string `json:"definition,omitempty"`

	Skill             string   `json:"skill,omitempty"`
	Steps             []string `json:"steps,omitempty"`
	ApplicableContext string   `json:"applicable_context,omitempty"`
	Effectiveness     float64  `json:"effectiveness,omitempty"`
}

// StoreSingle persists one record and returns it with its key. An episodic
// record carrying an emotional impact and no explicit importance is seeded
// with the impact's emotion-derived importance.
func (s *Service) StoreSingle(ctx context.Context, p StoreSingleParams) (*model.Record, error) {
	if p.Importance == nil && p.EmotionalImpact != "" {
		p.Importance = emotionImportance(s.engine.Mapper(), p.EmotionalImpact)
	}
	rec, err := s.store.Put(ctx, store.PutParams{
		Family:            p.Family,
		SessionID:         p.SessionID,
		Content:           p.Content,
		Source:            "store-single",
		Importance:        p.Importance,
		Event:             p.Event,
		Participants:      p.Participants,
		Context:           p.Context,
		Outcome:           p.Outcome,
		EmotionalImpact:   p.EmotionalImpact,
		Concept:           p.Concept,
		Domain:            p.Domain,
		Definition:        p.Definition,
		Skill:             p.Skill,
		Steps:             p.Steps,
		ApplicableContext: p.ApplicableContext,
		Effectiveness:     p.Effectiveness,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateNarrative(p.SessionID)
	return rec, nil
}

// Query returns ranked records matching the filters.
func (s *Service) Query(ctx context.Context, p store.QueryParams) ([]model.Record, error) {
	return s.store.Query(ctx, p)
}

// AdjustImportance sets one record's importance. store.ErrNotFound when the
// key is unknown.
func (s *Service) AdjustImportance(ctx context.Context, key string, importance float64) error {
	return s.engine.Adjust(ctx, key, importance)
}

// BatchAdjust applies adjustments independently with per-item results.
func (s *Service) BatchAdjust(ctx context.Context, items []consolidate.AdjustItem) []consolidate.AdjustResult {
	return s.engine.AdjustBatch(ctx, items)
}

// Cleanup identifies consolidation candidates without deleting anything.
func (s *Service) Cleanup(ctx context.Context, p consolidate.CleanupParams) ([]consolidate.Flag, error) {
	return s.engine.Cleanup(ctx, p)
}
