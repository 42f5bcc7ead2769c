package domain

import "time"

// CaptionState models the live captioning lifecycle.
type CaptionState string

const (
	CaptionStateIdle      CaptionState = "idle"
	CaptionStateListening CaptionState = "listening"
)

// CaptionStateReason provides a structured reason for state transitions.
type CaptionStateReason string

const (
	CaptionReasonReady                CaptionStateReason = "ready"
	CaptionReasonListeningStarted     CaptionStateReason = "listening_started"
	CaptionReasonListeningRestarted   CaptionStateReason = "listening_restarted"
	CaptionReasonTranscriptSaved      CaptionStateReason = "transcript_saved"
	CaptionReasonTranscriptSaveFailed CaptionStateReason = "transcript_save_failed"
	CaptionReasonNoTranscript         CaptionStateReason = "no_transcript"
	CaptionReasonLanguageChanged      CaptionStateReason = "language_changed"
	CaptionReasonRulesFailed          CaptionStateReason = "rules_failed"
)

// ErrorCode identifies non-fatal errors pushed to connected clients.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeAudioStop   ErrorCode = "audio_stop"
	ErrorCodeAudioStream ErrorCode = "audio_stream"
	ErrorCodeRecognition ErrorCode = "recognition"
	ErrorCodeRules       ErrorCode = "rules"
	ErrorCodeStore       ErrorCode = "store"
	ErrorCodeFeedLoad    ErrorCode = "feed_load"
	ErrorCodePost        ErrorCode = "post"
	ErrorCodeLike        ErrorCode = "like"
	ErrorCodeValidation  ErrorCode = "validation"
)

// RecognitionKind identifies whether a recognition result is interim or final text.
type RecognitionKind string

const (
	RecognitionInterim RecognitionKind = "interim"
	RecognitionFinal   RecognitionKind = "final"
)

// RecognitionEvent is one result delivered by a streaming recognizer.
type RecognitionEvent struct {
	Kind RecognitionKind `json:"kind"`
	Text string          `json:"text"`
}

// CaptionStatus summarizes a caption session.
type CaptionStatus struct {
	State          CaptionState `json:"state"`
	Active         bool         `json:"active"`
	SourceLanguage string       `json:"sourceLanguage"`
	TargetLanguage string       `json:"targetLanguage"`
	Text           string       `json:"text"`
	Interim        string       `json:"interim,omitempty"`
	Translation    string       `json:"translation"`
}

// CaptionResult is returned once listening stops.
type CaptionResult struct {
	Raw          string        `json:"raw"`
	Text         string        `json:"text"`
	Translation  string        `json:"translation"`
	TranscriptID string        `json:"transcriptId,omitempty"`
	Saved        bool          `json:"saved"`
	Heard        time.Duration `json:"heard"`
}

// TranscriptOrigin records what produced a stored transcript.
type TranscriptOrigin string

const (
	TranscriptOriginCaption   TranscriptOrigin = "caption"
	TranscriptOriginRecording TranscriptOrigin = "recording"
)

// Transcript is a document in the transcripts collection.
type Transcript struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"ownerId"`
	SourceLanguage string           `json:"sourceLanguage"`
	TargetLanguage string           `json:"targetLanguage,omitempty"`
	Text           string           `json:"text"`
	Translation    string           `json:"translation,omitempty"`
	Origin         TranscriptOrigin `json:"origin"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Recording describes an exported audio clip.
type Recording struct {
	Name         string        `json:"name"`
	Size         int64         `json:"size"`
	Duration     time.Duration `json:"duration"`
	Truncated    bool          `json:"truncated,omitempty"`
	TranscriptID string        `json:"transcriptId,omitempty"`
}

// SignPhrase is one entry of the static phrase bank.
type SignPhrase struct {
	Text string `json:"text"`
	Sign string `json:"sign"`
}
