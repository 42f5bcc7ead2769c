package usecase

import (
	"context"
	"time"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

type transcriptFinalizer struct {
	rules       ports.RulesEngine
	transcripts ports.TranscriptStore
	events      ports.CaptionSink
}

func newTranscriptFinalizer(rules ports.RulesEngine, transcripts ports.TranscriptStore, events ports.CaptionSink) transcriptFinalizer {
	return transcriptFinalizer{rules: rules, transcripts: transcripts, events: events}
}

// Finalize cleans up the raw caption text and persists it. A failed save is
// reported to the client but still returns the result.
func (f transcriptFinalizer) Finalize(ctx context.Context, draft domain.Transcript) (domain.CaptionResult, domain.CaptionStateReason, error) {
	raw := draft.Text
	transformed, err := f.rules.Apply(raw)
	if err != nil {
		f.events.CaptionError(domain.ErrorCodeRules, err.Error())
		return domain.CaptionResult{}, domain.CaptionReasonRulesFailed, err
	}

	result := domain.CaptionResult{
		Raw:         raw,
		Text:        transformed,
		Translation: draft.Translation,
	}

	draft.Text = transformed
	draft.Origin = domain.TranscriptOriginCaption
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}

	saved, err := f.transcripts.SaveTranscript(ctx, draft)
	if err != nil {
		f.events.CaptionError(domain.ErrorCodeStore, "transcript ready but could not be saved")
		return result, domain.CaptionReasonTranscriptSaveFailed, nil
	}

	result.Saved = true
	result.TranscriptID = saved.ID
	return result, domain.CaptionReasonTranscriptSaved, nil
}
