package parser

import (
	"errors"
	"strings"
	"testing"
)

const segmentedDoc = `# Core Identity

I am a persistent assistant working with one developer.

## Key Experiences

We debugged the relay handshake together last week.

## Technical Knowledge

SQLite WAL mode allows one writer and many readers.

## Emotional State

I feel settled about the current architecture.

## Cognitive Patterns

Verify before asserting.
`

func TestParseSegmented(t *testing.T) {
	result, err := Parse(segmentedDoc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Mode != Segmented {
		t.Fatalf("expected segmented mode, got %s", result.Mode)
	}
	if len(result.Drafts) != 5 {
		t.Fatalf("expected 5 drafts, got %d", len(result.Drafts))
	}

	wantKinds := []Kind{KindIdentity, KindExperience, KindKnowledge, KindEmotional, KindPattern}
	for i, want := range wantKinds {
		if result.Drafts[i].Kind != want {
			t.Errorf("draft %d: expected kind %s, got %s", i, want, result.Drafts[i].Kind)
		}
	}
	if result.Drafts[0].Title != "Core Identity" {
		t.Errorf("unexpected title %q", result.Drafts[0].Title)
	}
	if !strings.Contains(result.Drafts[2].Text, "WAL mode") {
		t.Errorf("body misattributed: %q", result.Drafts[2].Text)
	}
}

func TestParseUnsegmented(t *testing.T) {
	doc := "We spent the afternoon on the retrieval engine.\nI feel good about the merge order.\nI learned that overfetching protects critical records."
	result, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Mode != Unsegmented {
		t.Fatalf("expected unsegmented mode, got %s", result.Mode)
	}

	// Whole text becomes one experience draft, plus per-line extractions.
	if result.Drafts[0].Kind != KindExperience || result.Drafts[0].Text != doc {
		t.Fatalf("expected full-text experience draft first, got %+v", result.Drafts[0])
	}
	var kinds []Kind
	for _, d := range result.Drafts[1:] {
		kinds = append(kinds, d.Kind)
	}
	if len(kinds) != 2 || kinds[0] != KindEmotional || kinds[1] != KindKnowledge {
		t.Errorf("expected [emotional knowledge] extractions, got %v", kinds)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	for _, input := range []string{"", "   \n\t  "} {
		if _, err := Parse(input); !errors.Is(err, ErrValidation) {
			t.Errorf("input %q: expected ErrValidation, got %v", input, err)
		}
	}
}

func TestParseRejectsPlaceholders(t *testing.T) {
	docs := []string{
		"# Identity\n\n[FILL IN YOUR IDENTITY]",
		"# Identity\n\nMy name is {{name}}.",
		"# Experiences\n\n[INSERT KEY EVENTS]",
		"# Notes\n\n[TODO: write this]",
	}
	for _, doc := range docs {
		if _, err := Parse(doc); !errors.Is(err, ErrValidation) {
			t.Errorf("doc %q: expected ErrValidation, got %v", doc, err)
		}
	}
}

func TestParseSkipsEmptySections(t *testing.T) {
	doc := "# Identity\n\n## Experiences\n\nSomething happened.\n"
	result, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(result.Drafts))
	}
	if result.Drafts[0].Kind != KindExperience {
		t.Errorf("expected experience, got %s", result.Drafts[0].Kind)
	}
}

func TestClassifyDefaultsToExperience(t *testing.T) {
	if got := classify("Miscellaneous Ramblings"); got != KindExperience {
		t.Errorf("expected experience default, got %s", got)
	}
	if got := classify("Who I Am"); got != KindIdentity {
		t.Errorf("expected identity, got %s", got)
	}
	if got := classify("Feelings About The Work"); got != KindEmotional {
		t.Errorf("expected emotional, got %s", got)
	}
}
