// Package service exposes the tool-style request/response operations
// consumed by an agent host.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/engram-memory/engram/internal/consolidate"
	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/parser"
	"github.com/engram-memory/engram/internal/retrieval"
	"github.com/engram-memory/engram/internal/store"
)

// narrativeTTL bounds how long a synthesized narrative is served from cache.
const narrativeTTL = 30 * time.Second

// Service orchestrates the parser, consolidation engine, retrieval engine,
// and narrative synthesizer over one record store.
type Service struct {
	store  store.Store
	retr   *retrieval.Engine
	engine *consolidate.Engine
	cache  *ristretto.Cache
	log    *slog.Logger
}

// New creates a service. The narrative cache is best-effort; a cache
// construction failure disables caching rather than failing the service.
func New(s store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 12,
		MaxCost:     1 << 22,
		BufferItems: 64,
	})
	if err != nil {
		log.Warn("narrative cache disabled", "err", err)
		cache = nil
	}
	return &Service{
		store:  s,
		retr:   retrieval.New(s, log),
		engine: consolidate.New(s, consolidate.NewMapper(), log),
		cache:  cache,
		log:    log,
	}
}

// Remediation translates the error taxonomy into caller-facing guidance.
func Remediation(err error) string {
	switch {
	case errors.Is(err, store.ErrStorageUnavailable):
		return strings.TrimSpace(`
The shared storage file is not ready yet. The semantic-search collaborator
creates its tables lazily on first use. To recover:
1. Start the collaborator against the same storage file.
2. Trigger any collaborator operation (a single entity write is enough).
3. Retry this request; the engine initializes itself once the tables exist.`)
	case errors.Is(err, parser.ErrValidation):
		return "The submission was rejected before storage. Fill in every template placeholder and resubmit the completed document."
	case errors.Is(err, store.ErrNotFound):
		return "No memory record exists for that key. Check the key against a query result before adjusting."
	}
	return ""
}

// TransferSummary reports what a full transfer submission produced.
type TransferSummary struct {
	Mode            parser.Mode `json:"mode"`
	SessionID       string      `json:"session_id"`
	StoredEpisodic  int         `json:"stored_episodic"`
	StoredSemantic  int         `json:"stored_semantic"`
	StoredEmotional int         `json:"stored_emotional"`
	StoredPatterns  int         `json:"stored_patterns"`
	Keys            []string    `json:"keys,omitempty"`
}

// SubmitTransfer parses a full transfer document and persists the typed
// drafts it yields.
func (s *Service) SubmitTransfer(ctx context.Context, text, sessionID string) (*TransferSummary, error) {
	result, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		if err := s.store.TouchSession(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	summary := &TransferSummary{Mode: result.Mode, SessionID: sessionID}
	mapper := s.engine.Mapper()

	for _, d := range result.Drafts {
		switch d.Kind {
		case parser.KindIdentity:
			imp := 0.95
			rec, err := s.store.Put(ctx, store.PutParams{
				Family:     model.FamilyEpisodic,
				SessionID:  sessionID,
				Content:    d.Text,
				Source:     "transfer",
				Importance: &imp,
				Event:      "identity transfer",
			})
			if err != nil {
				return summary, err
			}
			summary.StoredEpisodic++
			summary.Keys = append(summary.Keys, rec.Key)

		case parser.KindExperience:
			rec, err := s.store.Put(ctx, store.PutParams{
				Family:    model.FamilyEpisodic,
				SessionID: sessionID,
				Content:   d.Text,
				Source:    "transfer",
				Event:     d.Title,
			})
			if err != nil {
				return summary, err
			}
			summary.StoredEpisodic++
			summary.Keys = append(summary.Keys, rec.Key)

		case parser.KindKnowledge:
			rec, err := s.store.Put(ctx, store.PutParams{
				Family:    model.FamilySemantic,
				SessionID: sessionID,
				Content:   d.Text,
				Source:    "transfer",
				Concept:   d.Title,
			})
			if err != nil {
				return summary, err
			}
			summary.StoredSemantic++
			summary.Keys = append(summary.Keys, rec.Key)

		case parser.KindEmotional:
			label := firstKnownLabel(mapper, d.Text)
			valence, arousal := mapper.Map(label)
			err := s.store.LogEmotionalState(ctx, model.EmotionalState{
				SessionID: sessionID,
				Valence:   valence,
				Arousal:   arousal,
				Dominant:  label,
				Context:   d.Text,
			})
			if err != nil {
				return summary, err
			}
			summary.StoredEmotional++

		case parser.KindPattern:
			name := d.Title
			if name == "" {
				name = firstWords(d.Text, 4)
			}
			name = normalizePatternName(name)
			if _, err := s.store.UpsertPattern(ctx, name, extractTriggers(d.Text)); err != nil {
				return summary, err
			}
			summary.StoredPatterns++
		}
	}

	s.invalidateNarrative(sessionID)
	s.log.Info("transfer processed", "mode", string(result.Mode), "drafts", len(result.Drafts))
	return summary, nil
}

// emotionImportance derives a seed importance from an emotional impact
// description: max(|valence|, arousal) of the first known label. Nil when
// no known label appears.
func emotionImportance(m *consolidate.Mapper, impact string) *float64 {
	label := firstKnownLabel(m, impact)
	if label == "" {
		return nil
	}
	v := m.Importance(label)
	return &v
}

// firstKnownLabel scans words for a label in the closed emotion set.
func firstKnownLabel(m *consolidate.Mapper, text string) string {
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		if m.Known(w) {
			return w
		}
	}
	return ""
}

func firstWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

func normalizePatternName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), "-")
}

// extractTriggers pulls trailing "triggers: a, b" lists out of a pattern block.
func extractTriggers(text string) []string {
	for _, line := range strings.Split(text, "\n") {
		l := strings.ToLower(strings.TrimSpace(line))
		if rest, ok := strings.CutPrefix(l, "triggers:"); ok {
			var triggers []string
			for _, t := range strings.Split(rest, ",") {
				if t = strings.TrimSpace(t); t != "" {
					triggers = append(triggers, t)
				}
			}
			return triggers
		}
	}
	return nil
}

func (s *Service) invalidateNarrative(sessionID string) {
	if s.cache != nil {
		s.cache.Del("narrative:" + sessionID)
	}
}
