package consolidate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/store"
)

func TestMapperKnownLabels(t *testing.T) {
	m := NewMapper()

	v, a := m.Map("frustration")
	if v != -0.5 || a != 0.7 {
		t.Errorf("frustration: expected (-0.5, 0.7), got (%v, %v)", v, a)
	}
	v, a = m.Map("Joy")
	if v != 0.8 || a != 0.7 {
		t.Errorf("joy: expected (0.8, 0.7), got (%v, %v)", v, a)
	}
	if !m.Known("  Anger ") {
		t.Error("expected anger known after trimming")
	}
}

func TestMapperUnknownLabel(t *testing.T) {
	m := NewMapper()
	v, a := m.Map("ennui")
	if v != 0.0 || a != 0.5 {
		t.Errorf("unknown label: expected neutral (0, 0.5), got (%v, %v)", v, a)
	}
	if m.Known("ennui") {
		t.Error("expected ennui unknown")
	}
}

func TestMapperImportance(t *testing.T) {
	m := NewMapper()

	// max(|valence|, arousal): strongly negative scores as high as positive.
	if got := m.Importance("frustration"); got != 0.7 {
		t.Errorf("frustration: expected 0.7, got %v", got)
	}
	if got := m.Importance("grief"); got != 0.9 {
		t.Errorf("grief: expected 0.9, got %v", got)
	}
	if got := m.Importance("love"); got != 0.9 {
		t.Errorf("love: expected 0.9, got %v", got)
	}
	if got := m.Importance("unknown"); got != 0.5 {
		t.Errorf("unknown: expected 0.5, got %v", got)
	}
}

func rec(key, content string) model.Record {
	return model.Record{
		Key:          key,
		Family:       model.FamilyEpisodic,
		Observations: []model.Observation{{Text: content}},
	}
}

func TestDedupKeepsLongest(t *testing.T) {
	shared := "I am the memory keeper for this project, and I remember"
	records := []model.Record{
		rec("a", shared),
		rec("b", shared+" everything across sessions"),
		rec("c", "something else entirely"),
	}
	flags := Dedup(records)
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}
	if flags[0].Key != "a" || flags[0].KeptKey != "b" {
		t.Errorf("expected a flagged keeping b, got %+v", flags[0])
	}
	if flags[0].Reason != "duplicate" {
		t.Errorf("unexpected reason %q", flags[0].Reason)
	}
}

func TestDedupPrefixMultiByte(t *testing.T) {
	// Prefixes are sliced by runes, never mid-character.
	shared := strings.Repeat("記", 55)
	if !utf8.ValidString(dedupPrefix(shared)) {
		t.Fatal("prefix split a multi-byte character")
	}

	records := []model.Record{
		rec("a", shared),
		rec("b", shared+"憶"),
	}
	flags := Dedup(records)
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}
	if flags[0].Key != "a" || flags[0].KeptKey != "b" {
		t.Errorf("expected a flagged keeping b, got %+v", flags[0])
	}
}

func TestDedupGroupsByNormalizedPrefix(t *testing.T) {
	// Same 50-char prefix, different tails: grouped by the heuristic.
	prefix := strings.Repeat("x", 50)
	records := []model.Record{
		rec("a", prefix+" tail one"),
		rec("b", prefix+" a different, longer continuation entirely"),
	}
	flags := Dedup(records)
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}

	// Distinct prefixes never group, however similar the tails.
	records = []model.Record{
		rec("a", "alpha "+prefix),
		rec("b", "betaa "+prefix),
	}
	if flags := Dedup(records); len(flags) != 0 {
		t.Errorf("expected no flags for distinct prefixes, got %d", len(flags))
	}
}

func TestDedupIgnoresEmptyContent(t *testing.T) {
	records := []model.Record{rec("a", ""), rec("b", "")}
	if flags := Dedup(records); len(flags) != 0 {
		t.Errorf("expected no flags for empty content, got %d", len(flags))
	}
}

func TestTruncated(t *testing.T) {
	records := []model.Record{
		rec("a", "I was working on the..."),
		rec("b", "A complete short memory."),
		rec("c", strings.Repeat("long content ", 20)+"trailing thought..."),
	}
	flags := Truncated(records)
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}
	if flags[0].Key != "a" || flags[0].Reason != "truncated" {
		t.Errorf("unexpected flag %+v", flags[0])
	}
}

// fakeStore implements just enough of store.Store for batch tests.
type fakeStore struct {
	store.Store
	importances map[string]float64
}

func (f *fakeStore) SetImportance(ctx context.Context, key string, importance float64) error {
	if _, ok := f.importances[key]; !ok {
		return store.ErrNotFound
	}
	f.importances[key] = importance
	return nil
}

func TestAdjustBatchPartialFailure(t *testing.T) {
	fs := &fakeStore{importances: map[string]float64{"a": 0.5, "c": 0.5}}
	e := New(fs, nil, nil)

	results := e.AdjustBatch(context.Background(), []AdjustItem{
		{Key: "a", Importance: 0.9},
		{Key: "b", Importance: 0.9},
		{Key: "c", Importance: 0.1},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Updated || results[0].Error != "" {
		t.Errorf("expected a updated, got %+v", results[0])
	}
	if results[1].Updated || results[1].Error == "" {
		t.Errorf("expected b failed, got %+v", results[1])
	}
	// One failure never blocks the rest.
	if !results[2].Updated {
		t.Errorf("expected c updated after b failed, got %+v", results[2])
	}
	if fs.importances["a"] != 0.9 || fs.importances["c"] != 0.1 {
		t.Errorf("unexpected stored importances: %v", fs.importances)
	}
}

func TestAdjustNotFound(t *testing.T) {
	fs := &fakeStore{importances: map[string]float64{}}
	e := New(fs, nil, nil)
	if err := e.Adjust(context.Background(), "missing", 0.5); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
