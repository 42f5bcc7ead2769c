package usecase

import (
	"context"
	"sort"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

var signPhrases = []domain.SignPhrase{
	{Text: "Hello", Sign: "🤟"},
	{Text: "Thank you", Sign: "🙏"},
	{Text: "Please repeat", Sign: "↩️"},
	{Text: "I don't understand", Sign: "❓"},
	{Text: "Good morning", Sign: "🌅"},
}

// Phrases returns the static sign phrase bank.
func Phrases() []domain.SignPhrase {
	return append([]domain.SignPhrase(nil), signPhrases...)
}

// ListTranscripts returns the owner's saved transcripts, newest first.
func ListTranscripts(ctx context.Context, store ports.TranscriptStore, ownerID string) ([]domain.Transcript, error) {
	transcripts, err := store.ListTranscripts(ctx, ownerID)
	if err != nil {
		return nil, domain.NewBackendError("list transcripts", err)
	}
	sort.SliceStable(transcripts, func(i, j int) bool {
		return transcripts[i].CreatedAt.After(transcripts[j].CreatedAt)
	})
	return transcripts, nil
}
