package narrative

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/retrieval"
)

func record(key, content string, importance float64) model.Record {
	return model.Record{
		Key:          key,
		Observations: []model.Observation{{Text: content}},
		Meta:         &model.Metadata{Key: key, Importance: importance},
	}
}

func TestSynthesizeSectionOrder(t *testing.T) {
	b := &retrieval.Bundle{
		Episodic:  []model.Record{record("a", "I shipped the memory engine", 0.95)},
		Critical:  []model.Record{record("a", "I shipped the memory engine", 0.95)},
		Emotional: &model.EmotionalProfile{Samples: 2, AvgValence: 0.4, AvgArousal: 0.5, Dominant: []string{"joy"}},
	}
	out := Synthesize(b, Options{AgentName: "engram", SessionID: "s1"})

	sections := []string{
		"# Memory Bootstrap",
		"## Who You Are",
		"## Critical Memories",
		"## How You Work",
		"## What You Know",
		"## Emotional Grounding",
		"## Self-Verification",
		"You are caught up.",
	}
	last := -1
	for _, sec := range sections {
		i := strings.Index(out, sec)
		if i < 0 {
			t.Fatalf("missing section %q", sec)
		}
		if i < last {
			t.Errorf("section %q out of order", sec)
		}
		last = i
	}
	if !strings.Contains(out, "Welcome back, engram.") {
		t.Error("missing personalized greeting")
	}
	if !strings.Contains(out, "session s1") {
		t.Error("missing session reference")
	}
}

func TestIdentityFallsBackToSemantic(t *testing.T) {
	b := &retrieval.Bundle{
		Episodic: []model.Record{record("a", "routine note", 0.5)},
		Semantic: []model.Record{record("sem:core", "An assistant that persists its own memory across sessions", 0.7)},
	}
	out := Synthesize(b, Options{})

	idx := strings.Index(out, "## Who You Are")
	end := strings.Index(out, "## Critical Memories")
	section := out[idx:end]
	if !strings.Contains(section, "An assistant that persists") {
		t.Errorf("expected semantic fallback in identity section, got %q", section)
	}
	if strings.Contains(section, "routine note") {
		t.Error("sub-critical episodic record leaked into identity section")
	}
}

func TestIdentityCap(t *testing.T) {
	var eps []model.Record
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		eps = append(eps, record(k, "identity fact "+k, 0.95))
	}
	b := &retrieval.Bundle{Episodic: eps}
	out := Synthesize(b, Options{})

	idx := strings.Index(out, "## Who You Are")
	end := strings.Index(out, "## Critical Memories")
	if got := strings.Count(out[idx:end], "- "); got != 3 {
		t.Errorf("expected 3 identity items, got %d", got)
	}
}

func TestCriticalSectionDedupsByPrefix(t *testing.T) {
	shared := "The relay must never drop a queued message, whatever happens"
	b := &retrieval.Bundle{
		Critical: []model.Record{
			record("a", shared, 0.95),
			record("b", shared+" to the socket", 0.92),
			record("c", "A different critical fact entirely, standing alone here", 0.91),
		},
	}
	out := Synthesize(b, Options{})

	idx := strings.Index(out, "## Critical Memories")
	end := strings.Index(out, "## How You Work")
	if got := strings.Count(out[idx:end], "- ["); got != 2 {
		t.Errorf("expected 2 deduped critical items, got %d", got)
	}
}

func TestCriticalSectionMultiByteContent(t *testing.T) {
	shared := strings.Repeat("記", 55)
	b := &retrieval.Bundle{
		Critical: []model.Record{
			record("a", shared, 0.95),
			record("b", shared+"憶", 0.92),
		},
	}
	out := Synthesize(b, Options{})
	if !utf8.ValidString(out) {
		t.Fatal("narrative split a multi-byte character")
	}
	// Same 50-rune prefix: deduped to one item.
	if got := strings.Count(out, "- ["); got != 1 {
		t.Errorf("expected 1 deduped critical item, got %d", got)
	}
}

func TestSemanticSectionSkipsShortEntries(t *testing.T) {
	b := &retrieval.Bundle{
		Semantic: []model.Record{
			record("sem:short", "too short", 0.6),
			record("sem:long", "A substantial knowledge entry that clears the length floor comfortably", 0.6),
		},
	}
	out := Synthesize(b, Options{})

	idx := strings.Index(out, "## What You Know")
	end := strings.Index(out, "## Emotional Grounding")
	section := out[idx:end]
	if strings.Contains(section, "too short") {
		t.Error("short entry leaked into knowledge section")
	}
	if !strings.Contains(section, "substantial knowledge entry") {
		t.Error("substantial entry missing from knowledge section")
	}
}

func TestProceduralSectionJoinsSteps(t *testing.T) {
	b := &retrieval.Bundle{
		Procedural: []model.Record{{
			Key:   "p1",
			Skill: "code review",
			Steps: []string{"read diff", "run tests"},
		}},
	}
	out := Synthesize(b, Options{})
	if !strings.Contains(out, "code review: read diff -> run tests") {
		t.Error("missing joined procedural steps")
	}
}

func TestEmptyBundle(t *testing.T) {
	out := Synthesize(&retrieval.Bundle{}, Options{})
	for _, want := range []string{
		"No identity-defining memories recorded yet",
		"None above the critical threshold",
		"No procedural patterns recorded",
		"No substantial knowledge entries yet",
		"No emotional readings in the recent window",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing empty-state line %q", want)
		}
	}
}
