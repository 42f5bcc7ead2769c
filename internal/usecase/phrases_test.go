package usecase

import (
	"context"
	"testing"
	"time"

	"hearme/internal/domain"
)

func TestPhrasesReturnsCopy(t *testing.T) {
	t.Parallel()

	phrases := Phrases()
	if len(phrases) != 5 || phrases[0].Text != "Hello" || phrases[4].Text != "Good morning" {
		t.Fatalf("unexpected phrase bank: %+v", phrases)
	}
	phrases[0].Text = "changed"
	if Phrases()[0].Text != "Hello" {
		t.Fatalf("phrase bank was mutated")
	}
}

func TestListTranscriptsNewestFirst(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &fakeTranscriptStore{saved: []domain.Transcript{
		{ID: "a", OwnerID: "u1", CreatedAt: now.Add(-time.Hour)},
		{ID: "b", OwnerID: "u2", CreatedAt: now},
		{ID: "c", OwnerID: "u1", CreatedAt: now},
	}}

	got, err := ListTranscripts(context.Background(), store, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Fatalf("unexpected transcripts: %+v", got)
	}
}
