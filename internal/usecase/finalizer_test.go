package usecase

import (
	"context"
	"errors"
	"testing"

	"hearme/internal/domain"
)

func TestTranscriptFinalizerRulesFailure(t *testing.T) {
	t.Parallel()

	events := &fakeCaptionSink{}
	store := &fakeTranscriptStore{}
	f := newTranscriptFinalizer(&fakeRules{err: errors.New("rules")}, store, events)

	_, reason, err := f.Finalize(context.Background(), domain.Transcript{Text: "raw"})
	if err == nil {
		t.Fatalf("expected rules error")
	}
	if reason != domain.CaptionReasonRulesFailed {
		t.Fatalf("unexpected reason: %s", reason)
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected nothing saved")
	}
}

func TestTranscriptFinalizerSaveFailure(t *testing.T) {
	t.Parallel()

	events := &fakeCaptionSink{}
	store := &fakeTranscriptStore{err: errors.New("store down")}
	f := newTranscriptFinalizer(&fakeRules{transform: "final"}, store, events)

	result, reason, err := f.Finalize(context.Background(), domain.Transcript{Text: "raw"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Saved {
		t.Fatalf("expected saved=false")
	}
	if result.Text != "final" || result.Raw != "raw" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if reason != domain.CaptionReasonTranscriptSaveFailed {
		t.Fatalf("unexpected reason: %s", reason)
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeStore {
		t.Fatalf("expected one store error, got %+v", errs)
	}
}

func TestTranscriptFinalizerSavesTransformedText(t *testing.T) {
	t.Parallel()

	store := &fakeTranscriptStore{}
	f := newTranscriptFinalizer(&fakeRules{transform: "Hello world."}, store, &fakeCaptionSink{})

	result, reason, err := f.Finalize(context.Background(), domain.Transcript{
		OwnerID:     "u1",
		Text:        "hello world",
		Translation: "Kumusta mundo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != domain.CaptionReasonTranscriptSaved || !result.Saved || result.TranscriptID == "" {
		t.Fatalf("unexpected result: %+v reason=%s", result, reason)
	}
	saved := store.saved[0]
	if saved.Text != "Hello world." || saved.Origin != domain.TranscriptOriginCaption || saved.CreatedAt.IsZero() {
		t.Fatalf("unexpected stored transcript: %+v", saved)
	}
	if saved.Translation != "Kumusta mundo" {
		t.Fatalf("expected translation to be kept, got %q", saved.Translation)
	}
}
