package consolidate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/store"
)

// prefixLen is the number of characters used to group near-duplicate
// records. Known approximation: distinct memories sharing a long common
// preamble group together.
const prefixLen = 50

// truncationMarker flags suspiciously short content that ends mid-sentence.
const truncationMarker = "..."

// Engine adjusts importance scores and identifies consolidation candidates.
// It never deletes records; cleanup returns candidates for the caller.
type Engine struct {
	store  store.Store
	mapper *Mapper
	log    *slog.Logger
}

// New creates a consolidation engine.
func New(s store.Store, mapper *Mapper, log *slog.Logger) *Engine {
	if mapper == nil {
		mapper = NewMapper()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, mapper: mapper, log: log}
}

// Mapper returns the engine's emotion mapper.
func (e *Engine) Mapper() *Mapper { return e.mapper }

// Adjust updates the importance of a single record. Returns
// store.ErrNotFound when the key does not exist.
func (e *Engine) Adjust(ctx context.Context, key string, importance float64) error {
	return e.store.SetImportance(ctx, key, importance)
}

// AdjustItem is one entry of a batch adjustment.
type AdjustItem struct {
	Key        string  `json:"key"`
	Importance float64 `json:"importance"`
}

// AdjustResult reports the outcome of one batch entry.
type AdjustResult struct {
	Key     string `json:"key"`
	Updated bool   `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// AdjustBatch applies adjustments independently. Failures are reported
// per item; the batch is not atomic.
func (e *Engine) AdjustBatch(ctx context.Context, items []AdjustItem) []AdjustResult {
	results := make([]AdjustResult, 0, len(items))
	for _, it := range items {
		r := AdjustResult{Key: it.Key}
		if err := e.store.SetImportance(ctx, it.Key, it.Importance); err != nil {
			r.Error = err.Error()
		} else {
			r.Updated = true
		}
		results = append(results, r)
	}
	return results
}

// Flag marks a record as a consolidation candidate.
type Flag struct {
	Key     string `json:"key"`
	Reason  string `json:"reason"` // duplicate | truncated
	KeptKey string `json:"kept_key,omitempty"`
}

// dedupPrefix returns the normalized grouping prefix for content, sliced by
// runes so multi-byte characters survive the boundary.
func dedupPrefix(content string) string {
	c := strings.ToLower(strings.TrimSpace(content))
	if r := []rune(c); len(r) > prefixLen {
		c = string(r[:prefixLen])
	}
	return c
}

// Dedup groups records by normalized content prefix and flags all but the
// longest record in each group. Grouping is heuristic, not semantic: two
// differently-worded duplicates will not merge.
func Dedup(records []model.Record) []Flag {
	groups := map[string][]*model.Record{}
	order := []string{}
	for i := range records {
		p := dedupPrefix(records[i].Content())
		if p == "" {
			continue
		}
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], &records[i])
	}

	var flags []Flag
	for _, p := range order {
		group := groups[p]
		if len(group) < 2 {
			continue
		}
		keep := group[0]
		for _, r := range group[1:] {
			if len(r.Content()) > len(keep.Content()) {
				keep = r
			}
		}
		for _, r := range group {
			if r.Key == keep.Key {
				continue
			}
			flags = append(flags, Flag{Key: r.Key, Reason: "duplicate", KeptKey: keep.Key})
		}
	}
	return flags
}

// Truncated flags records whose primary text is short and ends with an
// ellipsis. A narrow check against a historical content-loss bug.
func Truncated(records []model.Record) []Flag {
	var flags []Flag
	for _, r := range records {
		c := strings.TrimSpace(r.Content())
		if len(c) <= prefixLen && strings.HasSuffix(c, truncationMarker) {
			flags = append(flags, Flag{Key: r.Key, Reason: "truncated"})
		}
	}
	return flags
}

// CleanupParams selects which passes to run.
type CleanupParams struct {
	Dedup      bool
	Truncation bool
	Limit      int
}

// Cleanup identifies duplicate and truncated candidates across all
// families. It marks their metadata status but deletes nothing.
func (e *Engine) Cleanup(ctx context.Context, p CleanupParams) ([]Flag, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 500
	}

	var all []model.Record
	for _, f := range []model.Family{model.FamilyEpisodic, model.FamilySemantic, model.FamilyProcedural} {
		records, err := e.store.ListByFamily(ctx, store.ListParams{
			Family: f, Limit: limit, OrderBy: store.OrderRecency, SkipTouch: true,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}

	var flags []Flag
	if p.Dedup {
		flags = append(flags, Dedup(all)...)
	}
	if p.Truncation {
		flags = append(flags, Truncated(all)...)
	}

	if marker, ok := e.store.(statusSetter); ok {
		for _, f := range flags {
			status := model.StatusDuplicate
			if f.Reason == "truncated" {
				status = model.StatusTruncated
			}
			if err := marker.SetStatus(ctx, f.Key, status); err != nil {
				e.log.Warn("mark consolidation status", "key", f.Key, "err", err)
			}
		}
	}

	e.log.Info("cleanup scan", "records", len(all), "candidates", len(flags))
	return flags, nil
}

type statusSetter interface {
	SetStatus(ctx context.Context, key, status string) error
}
