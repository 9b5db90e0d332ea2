package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/engram-memory/engram/internal/consolidate"
	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/parser"
	"github.com/engram-memory/engram/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := s.SeedCollaboratorSchema(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.WaitForReady(ctx, time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("wait: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, nil), s
}

const transferDoc = `# Core Identity

I am a persistent assistant and I remember my collaborators.

## Key Experiences

We rebuilt the retrieval pipeline around importance scoring.

## Technical Knowledge

Overfetching the episodic set protects critical records from recency displacement.

## Emotional State

Mostly contentment, with some frustration about flaky sockets.

## Cognitive Patterns

Verify before asserting.
Triggers: uncertainty, conflicting evidence
`

func TestSubmitTransfer(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	summary, err := svc.SubmitTransfer(ctx, transferDoc, "s1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if summary.Mode != parser.Segmented {
		t.Errorf("expected segmented mode, got %s", summary.Mode)
	}
	if summary.StoredEpisodic != 2 {
		t.Errorf("expected 2 episodic (identity + experience), got %d", summary.StoredEpisodic)
	}
	if summary.StoredSemantic != 1 || summary.StoredEmotional != 1 || summary.StoredPatterns != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}

	// Identity lands as critical-importance episodic.
	records, _ := st.ExportAll(ctx, model.FamilyEpisodic)
	var foundIdentity bool
	for _, r := range records {
		if strings.Contains(r.Content(), "persistent assistant") && r.Importance() == 0.95 {
			foundIdentity = true
		}
	}
	if !foundIdentity {
		t.Error("identity draft not stored at importance 0.95")
	}

	// The first known emotion label drives the affect log.
	p, _ := st.EmotionalProfile(ctx, time.Hour)
	if p.Samples != 1 {
		t.Fatalf("expected 1 emotional sample, got %d", p.Samples)
	}
	if len(p.Dominant) != 1 || p.Dominant[0] != "contentment" {
		t.Errorf("expected contentment dominant, got %v", p.Dominant)
	}

	// Pattern triggers come from the triggers: line.
	pat, err := st.UpsertPattern(ctx, "cognitive-patterns", nil)
	if err != nil {
		t.Fatalf("pattern lookup: %v", err)
	}
	if pat.ActivationCount != 2 {
		t.Errorf("expected activation 2 after transfer + repeat upsert, got %d", pat.ActivationCount)
	}
}

func TestSubmitTransferRejectsPlaceholders(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SubmitTransfer(context.Background(), "# Identity\n\n[FILL IN]", "s1")
	if !errors.Is(err, parser.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if r := Remediation(err); !strings.Contains(r, "placeholder") {
		t.Errorf("unexpected remediation %q", r)
	}
}

func TestRetrieveNarrative(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.SubmitTransfer(ctx, transferDoc, "s1"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	res, err := svc.Retrieve(ctx, RetrieveParams{SessionID: "s1", AgentName: "engram"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Narrative == "" {
		t.Fatal("expected narrative")
	}
	if !strings.Contains(res.Narrative, "persistent assistant") {
		t.Error("identity memory missing from narrative")
	}
	if !strings.Contains(res.Narrative, "## Self-Verification") {
		t.Error("checklist missing from narrative")
	}
}

func TestRetrieveStructured(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.SubmitTransfer(ctx, transferDoc, "s1"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	res, err := svc.Retrieve(ctx, RetrieveParams{SessionID: "s1", Structured: true})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Bundle == nil || res.Narrative != "" {
		t.Fatalf("expected structured bundle only, got %+v", res)
	}
	if len(res.Bundle.Episodic) == 0 {
		t.Error("expected episodic records in bundle")
	}
}

func TestUpdateSession(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	rec, _ := svc.StoreSingle(ctx, StoreSingleParams{
		Family: model.FamilyEpisodic, Content: "baseline memory", SessionID: "s1",
	})

	res, err := svc.UpdateSession(ctx, "s1", SessionDeltas{
		Experiences: []ExperienceDelta{{Content: "fixed the socket flake", Event: "debugging"}},
		Knowledge:   []KnowledgeDelta{{Concept: "pings", Content: "control pings detect dead peers"}},
		Emotions:    []EmotionDelta{{Label: "pride", Context: "after the fix"}},
		Patterns:    []PatternDelta{{Name: "Reproduce First"}},
		Adjustments: []consolidate.AdjustItem{
			{Key: rec.Key, Importance: 0.9},
			{Key: "missing", Importance: 0.1},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Experiences != 1 || res.Knowledge != 1 || res.Emotions != 1 || res.Patterns != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	if len(res.Adjusted) != 2 || !res.Adjusted[0].Updated || res.Adjusted[1].Updated {
		t.Errorf("unexpected adjust results %+v", res.Adjusted)
	}

	all, _ := st.ExportAll(ctx, model.FamilyEpisodic)
	for _, r := range all {
		if r.Key == rec.Key && r.Importance() != 0.9 {
			t.Errorf("adjustment not applied, importance %v", r.Importance())
		}
	}
}

func TestStoreSingleSeedsImportanceFromEmotion(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	rec, err := svc.StoreSingle(ctx, StoreSingleParams{
		Family:          model.FamilyEpisodic,
		Content:         "the relay test failed three runs in a row",
		EmotionalImpact: "deep frustration with the flake",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if rec.Importance() != 0.7 {
		t.Errorf("expected emotion-derived importance 0.7, got %v", rec.Importance())
	}

	// Explicit importance wins over the derived seed.
	explicit := 0.3
	rec2, err := svc.StoreSingle(ctx, StoreSingleParams{
		Family:          model.FamilyEpisodic,
		Content:         "another rough run",
		Importance:      &explicit,
		EmotionalImpact: "deep frustration again",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if rec2.Importance() != 0.3 {
		t.Errorf("expected explicit importance 0.3, got %v", rec2.Importance())
	}

	// Unrecognized impact text falls back to the default.
	rec3, err := svc.StoreSingle(ctx, StoreSingleParams{
		Family:          model.FamilyEpisodic,
		Content:         "a quiet afternoon",
		EmotionalImpact: "a vague restlessness",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if rec3.Importance() != model.DefaultImportance {
		t.Errorf("expected default importance, got %v", rec3.Importance())
	}
}

func TestUpdateSessionSeedsImportanceFromEmotion(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	_, err := svc.UpdateSession(ctx, "s1", SessionDeltas{
		Experiences: []ExperienceDelta{{
			Content:         "shipped the session snapshot endpoint",
			Event:           "release",
			EmotionalImpact: "real pride in the fix",
		}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	all, _ := st.ExportAll(ctx, model.FamilyEpisodic)
	var found bool
	for _, r := range all {
		if strings.Contains(r.Content(), "snapshot endpoint") {
			found = true
			if r.Importance() != 0.6 {
				t.Errorf("expected pride importance 0.6, got %v", r.Importance())
			}
		}
	}
	if !found {
		t.Fatal("experience record not stored")
	}
}

func TestRetrieveSpansSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.SubmitTransfer(ctx, transferDoc, "s1"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// Memory carries across sessions: a retrieve under a different session
	// still surfaces records stored under the first one.
	res, err := svc.Retrieve(ctx, RetrieveParams{SessionID: "s2"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !strings.Contains(res.Narrative, "persistent assistant") {
		t.Error("record from another session missing from narrative")
	}
}

func TestRemediationStorageUnavailable(t *testing.T) {
	r := Remediation(store.ErrStorageUnavailable)
	if !strings.Contains(r, "collaborator") {
		t.Errorf("unexpected remediation %q", r)
	}
	if Remediation(errors.New("unrelated")) != "" {
		t.Error("expected empty remediation for unknown errors")
	}
}
