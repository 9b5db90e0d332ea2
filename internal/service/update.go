package service

import (
	"context"

	"github.com/engram-memory/engram/internal/consolidate"
	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/store"
)

// SessionDeltas carries incremental updates submitted mid-session.
type SessionDeltas struct {
	Experiences []ExperienceDelta        `json:"experiences,omitempty"`
	Knowledge   []KnowledgeDelta         `json:"knowledge,omitempty"`
	Emotions    []EmotionDelta           `json:"emotions,omitempty"`
	Patterns    []PatternDelta           `json:"patterns,omitempty"`
	Adjustments []consolidate.AdjustItem `json:"adjustments,omitempty"`
}

// ExperienceDelta is one new episodic entry.
type ExperienceDelta struct {
	Content         string   `json:"content"`
	Event           string   `json:"event,omitempty"`
	Outcome         string   `json:"outcome,omitempty"`
	EmotionalImpact string   `json:"emotional_impact,omitempty"`
	Importance      *float64 `json:"importance,omitempty"`
}

// KnowledgeDelta is one new or amended semantic entry.
type KnowledgeDelta struct {
	Concept    string `json:"concept"`
	Content    string `json:"content"`
	Domain     string `json:"domain,omitempty"`
	Definition string `json:"definition,omitempty"`
}

// EmotionDelta is one affect reading.
type EmotionDelta struct {
	Label   string `json:"label"`
	Context string `json:"context,omitempty"`
}

// PatternDelta is one pattern activation.
type PatternDelta struct {
	Name     string   `json:"name"`
	Triggers []string `json:"triggers,omitempty"`
}

// UpdateResult reports applied counts plus guidance text.
type UpdateResult struct {
	SessionID   string                     `json:"session_id"`
	Experiences int                        `json:"experiences"`
	Knowledge   int                        `json:"knowledge"`
	Emotions    int                        `json:"emotions"`
	Patterns    int                        `json:"patterns"`
	Adjusted    []consolidate.AdjustResult `json:"adjusted,omitempty"`
	Guidance    string                     `json:"guidance"`
}

// UpdateSession applies structured deltas to the session's memory. Each
// delta is applied independently; the first storage error aborts the rest
// but already-applied counts are reported.
func (s *Service) UpdateSession(ctx context.Context, sessionID string, d SessionDeltas) (*UpdateResult, error) {
	if err := s.store.TouchSession(ctx, sessionID); err != nil {
		return nil, err
	}

	res := &UpdateResult{SessionID: sessionID}
	mapper := s.engine.Mapper()

	for _, e := range d.Experiences {
		imp := e.Importance
		if imp == nil && e.EmotionalImpact != "" {
			imp = emotionImportance(mapper, e.EmotionalImpact)
		}
		_, err := s.store.Put(ctx, store.PutParams{
			Family:          model.FamilyEpisodic,
			SessionID:       sessionID,
			Content:         e.Content,
			Source:          "session-update",
			Event:           e.Event,
			Outcome:         e.Outcome,
			EmotionalImpact: e.EmotionalImpact,
			Importance:      imp,
		})
		if err != nil {
			return res, err
		}
		res.Experiences++
	}

	for _, k := range d.Knowledge {
		_, err := s.store.Put(ctx, store.PutParams{
			Family:     model.FamilySemantic,
			SessionID:  sessionID,
			Content:    k.Content,
			Source:     "session-update",
			Concept:    k.Concept,
			Domain:     k.Domain,
			Definition: k.Definition,
		})
		if err != nil {
			return res, err
		}
		res.Knowledge++
	}

	for _, e := range d.Emotions {
		valence, arousal := mapper.Map(e.Label)
		err := s.store.LogEmotionalState(ctx, model.EmotionalState{
			SessionID: sessionID,
			Valence:   valence,
			Arousal:   arousal,
			Dominant:  e.Label,
			Context:   e.Context,
		})
		if err != nil {
			return res, err
		}
		res.Emotions++
	}

	for _, p := range d.Patterns {
		if _, err := s.store.UpsertPattern(ctx, normalizePatternName(p.Name), p.Triggers); err != nil {
			return res, err
		}
		res.Patterns++
	}

	if len(d.Adjustments) > 0 {
		res.Adjusted = s.engine.AdjustBatch(ctx, d.Adjustments)
	}

	s.invalidateNarrative(sessionID)
	res.Guidance = "Deltas applied. Retrieve a fresh narrative before the next session handoff."
	return res, nil
}
