package usecase

import (
	"strings"
)

// transcriptAggregator accumulates finalized segments of a caption session.
// CaptionController serializes access.
type transcriptAggregator struct {
	segments []string
	text     string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add appends a final segment and returns the accumulated text.
func (a *transcriptAggregator) Add(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return a.text
	}
	a.segments = append(a.segments, segment)
	if a.text == "" {
		a.text = segment
	} else {
		a.text += " " + segment
	}
	return a.text
}

func (a *transcriptAggregator) Text() string {
	return a.text
}

func (a *transcriptAggregator) Segments() []string {
	out := make([]string, len(a.segments))
	copy(out, a.segments)
	return out
}

func (a *transcriptAggregator) Reset() {
	a.segments = nil
	a.text = ""
}
