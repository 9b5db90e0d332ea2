package store

import (
	"context"

	"github.com/engram-memory/engram/internal/model"
)

// ExportAll returns all records, optionally filtered by family, ordered by
// creation time. Reads here do not bump access counts.
func (s *SQLiteStore) ExportAll(ctx context.Context, family model.Family) ([]model.Record, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	where := "1=1"
	args := []interface{}{}
	if family != "" {
		where = "m.family = ?"
		args = append(args, string(family))
	}

	query := `SELECT m.key, m.family, m.session_id, m.created_at,
	                 m.event, m.participants, m.context, m.outcome, m.emotional_impact,
	                 m.concept, m.domain, m.definition,
	                 m.skill, m.steps, m.applicable_context, m.effectiveness,
	                 COALESCE(mm.importance, 0.5), COALESCE(mm.access_count, 0),
	                 mm.last_accessed, COALESCE(mm.status, 'active'), mm.session_id
	          FROM memories m
	          LEFT JOIN memory_meta mm ON mm.key = m.key
	          WHERE ` + where + ` ORDER BY m.created_at`

	return s.queryRecords(ctx, query, args...)
}

// Import stores records from an export, preserving family fields and the
// exported importance.
func (s *SQLiteStore) Import(ctx context.Context, records []model.Record) (int, error) {
	imported := 0
	for _, r := range records {
		imp := r.Importance()
		_, err := s.Put(ctx, PutParams{
			Family:            r.Family,
			SessionID:         r.SessionID,
			Content:           r.Content(),
			Importance:        &imp,
			Event:             r.Event,
			Participants:      r.Participants,
			Context:           r.Context,
			Outcome:           r.Outcome,
			EmotionalImpact:   r.EmotionalImpact,
			Concept:           r.Concept,
			Domain:            r.Domain,
			Definition:        r.Definition,
			Skill:             r.Skill,
			Steps:             r.Steps,
			ApplicableContext: r.ApplicableContext,
			Effectiveness:     r.Effectiveness,
		})
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
