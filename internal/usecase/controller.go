package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

var ErrNotListening = errors.New("no active caption session")

const (
	DefaultSourceLanguage = "en-US"
	DefaultTargetLanguage = "tl"
	DefaultDebounce       = 700 * time.Millisecond
)

// CaptionConfig controls live captioning behavior.
type CaptionConfig struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	Debounce       time.Duration
	SourceLanguage string
	TargetLanguage string
	OwnerID        string
}

// CaptionController drives one caption session: recognition stream, transcript
// accumulation and debounced translation.
type CaptionController struct {
	audio        ports.AudioCapture
	recognizer   ports.SpeechRecognizer
	translator   ports.Translator
	events       ports.CaptionSink
	finalizer    transcriptFinalizer
	translations *translationScheduler
	log          zerolog.Logger
	cfg          CaptionConfig

	mu                sync.Mutex
	current           *activeSession
	source            string
	target            string
	transcript        *transcriptAggregator
	interim           string
	translated        string
	version           uint64
	translatedVersion uint64
}

func NewCaptionController(
	audio ports.AudioCapture,
	recognizer ports.SpeechRecognizer,
	translator ports.Translator,
	rules ports.RulesEngine,
	transcripts ports.TranscriptStore,
	events ports.CaptionSink,
	logger zerolog.Logger,
	cfg CaptionConfig,
) *CaptionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SourceLanguage == "" {
		cfg.SourceLanguage = DefaultSourceLanguage
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = DefaultTargetLanguage
	}
	return &CaptionController{
		audio:        audio,
		recognizer:   recognizer,
		translator:   translator,
		events:       events,
		finalizer:    newTranscriptFinalizer(rules, transcripts, events),
		translations: newTranslationScheduler(cfg.Debounce),
		log:          logger.With().Str("component", "captions").Str("owner", cfg.OwnerID).Logger(),
		cfg:          cfg,
		source:       cfg.SourceLanguage,
		target:       cfg.TargetLanguage,
		transcript:   newTranscriptAggregator(),
	}
}

// Start clears the session and opens a continuous recognition stream tagged
// with sourceLanguage. An empty sourceLanguage keeps the current one.
func (c *CaptionController) Start(ctx context.Context, sourceLanguage string) error {
	if c.recognizer == nil {
		return fmt.Errorf("start captions: %w", domain.ErrUnsupportedEnvironment)
	}

	c.mu.Lock()
	if sourceLanguage == "" {
		sourceLanguage = c.source
	}
	c.mu.Unlock()
	lang, err := normalizeLanguageTag(sourceLanguage)
	if err != nil {
		return err
	}

	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()

	if previous != nil {
		previous.release()
	}
	c.reset()

	sessionCtx, cancel := context.WithCancel(ctx)
	streamCfg := c.cfg.Streaming
	streamCfg.Language = lang
	streamCfg.InterimResults = true

	stream, err := c.recognizer.StartStreaming(sessionCtx, streamCfg)
	if err != nil {
		cancel()
		return domain.NewBackendError("open recognition stream", err)
	}

	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return fmt.Errorf("start audio capture: %w", err)
	}

	active := newActiveSession(cancel, audioSession, stream)

	c.mu.Lock()
	c.current = active
	c.source = lang
	c.mu.Unlock()

	go c.consume(active)
	go active.forwardAudio(c.cfg.ChunkSize, c.events)

	reason := domain.CaptionReasonListeningStarted
	if previous != nil {
		reason = domain.CaptionReasonListeningRestarted
	}
	c.log.Info().Str("language", lang).Str("reason", string(reason)).Msg("captioning started")
	c.events.CaptionStateChanged(domain.CaptionStateListening, reason)
	return nil
}

// Stop ends the recognition stream, persists the transcript and resets the session.
func (c *CaptionController) Stop(ctx context.Context) (domain.CaptionResult, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.CaptionResult{}, err
	}

	if err := active.audio.Stop(); err != nil {
		c.events.CaptionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}

	if c.cfg.StreamingGrace > 0 {
		timer := time.NewTimer(c.cfg.StreamingGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	_ = active.stream.CloseSend()
	streamErr := active.drain(4 * time.Second)
	<-active.eventsDone
	<-active.audioDone
	active.cancel()

	draft := c.snapshotTranscript()
	if draft.Text == "" && streamErr != nil {
		c.events.CaptionError(domain.ErrorCodeRecognition, streamErr.Error())
		c.finishSession(active, domain.CaptionReasonNoTranscript)
		return domain.CaptionResult{}, domain.NewBackendError("recognition stream", streamErr)
	}
	if draft.Text == "" {
		c.finishSession(active, domain.CaptionReasonNoTranscript)
		return domain.CaptionResult{}, nil
	}

	draft.Translation = c.settleTranslation(ctx, draft)

	result, reason, err := c.finalizer.Finalize(ctx, draft)
	if err != nil {
		c.finishSession(active, reason)
		return domain.CaptionResult{}, err
	}
	result.Heard = active.heard(c.cfg.Audio)

	c.log.Info().Bool("saved", result.Saved).Int("chars", len(result.Raw)).Dur("heard", result.Heard).Msg("captioning stopped")
	c.finishSession(active, reason)
	return result, nil
}

// Abort releases an active session without persisting anything.
func (c *CaptionController) Abort() error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	active.release()
	c.finishSession(active, domain.CaptionReasonReady)
	return nil
}

// Close tears the controller down; it must not be used afterwards.
func (c *CaptionController) Close() {
	_ = c.Abort()
	c.translations.Close()
}

// Clear resets the text without touching an active stream.
func (c *CaptionController) Clear() {
	c.mu.Lock()
	c.transcript.Reset()
	c.interim = ""
	c.translated = ""
	c.version++
	c.translatedVersion = c.version
	c.mu.Unlock()

	c.translations.Cancel()
	c.events.CaptionChanged("")
	c.events.TranslationChanged("")
}

// SetTargetLanguage switches the translation target and re-translates the current text.
func (c *CaptionController) SetTargetLanguage(lang string) error {
	normalized, err := normalizeLanguageTag(lang)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.target = normalized
	c.version++
	version := c.version
	empty := c.transcript.Text() == ""
	c.mu.Unlock()

	if !empty {
		c.scheduleTranslation(version)
	}
	return nil
}

// SetSourceLanguage tears down an active recognition stream and resets the
// session under the new recognition language.
func (c *CaptionController) SetSourceLanguage(lang string) error {
	normalized, err := normalizeLanguageTag(lang)
	if err != nil {
		return err
	}

	c.mu.Lock()
	active := c.current
	c.current = nil
	c.source = normalized
	c.mu.Unlock()

	if active != nil {
		active.release()
	}
	c.reset()
	c.events.CaptionStateChanged(domain.CaptionStateIdle, domain.CaptionReasonLanguageChanged)
	return nil
}

// Status returns the current session snapshot.
func (c *CaptionController) Status() domain.CaptionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := domain.CaptionStateIdle
	if c.current != nil {
		state = domain.CaptionStateListening
	}
	return domain.CaptionStatus{
		State:          state,
		Active:         c.current != nil,
		SourceLanguage: c.source,
		TargetLanguage: c.target,
		Text:           c.transcript.Text(),
		Interim:        c.interim,
		Translation:    c.translated,
	}
}

func (c *CaptionController) consume(active *activeSession) {
	defer close(active.eventsDone)

	for event := range active.stream.Events() {
		text := strings.TrimSpace(event.Text)
		if text == "" {
			continue
		}
		switch event.Kind {
		case domain.RecognitionFinal:
			c.appendFinal(active, text)
		case domain.RecognitionInterim:
			c.setInterim(active, text)
		}
	}
}

func (c *CaptionController) appendFinal(active *activeSession, segment string) {
	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		return
	}
	text := c.transcript.Add(segment)
	c.interim = ""
	c.version++
	version := c.version
	c.mu.Unlock()

	c.events.CaptionChanged(text)
	c.scheduleTranslation(version)
}

func (c *CaptionController) setInterim(active *activeSession, text string) {
	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		return
	}
	c.interim = text
	c.mu.Unlock()

	c.events.InterimCaption(text)
}

func (c *CaptionController) scheduleTranslation(version uint64) {
	c.translations.Arm(func(ctx context.Context) {
		c.translate(ctx, version)
	})
}

func (c *CaptionController) translate(ctx context.Context, version uint64) {
	c.mu.Lock()
	if version != c.version || c.translator == nil {
		c.mu.Unlock()
		return
	}
	text, source, target := c.transcript.Text(), c.source, c.target
	c.mu.Unlock()

	if text == "" {
		return
	}

	translated, err := c.translator.Translate(ctx, source, target, text)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Str("source", source).Str("target", target).Msg("translation failed; keeping previous translation")
		}
		return
	}

	c.mu.Lock()
	if version != c.version {
		c.mu.Unlock()
		return
	}
	c.translated = translated
	c.translatedVersion = version
	c.mu.Unlock()

	c.events.TranslationChanged(translated)
}

// settleTranslation makes sure the persisted transcript carries a translation
// of its final text when the debounce has not caught up yet.
func (c *CaptionController) settleTranslation(ctx context.Context, draft domain.Transcript) string {
	c.mu.Lock()
	upToDate := c.translatedVersion == c.version
	current := c.translated
	c.mu.Unlock()

	if upToDate || c.translator == nil {
		return current
	}

	c.translations.Cancel()
	translated, err := c.translator.Translate(ctx, draft.SourceLanguage, draft.TargetLanguage, draft.Text)
	if err != nil {
		c.log.Warn().Err(err).Msg("final translation failed; saving previous translation")
		return current
	}
	return translated
}

func (c *CaptionController) snapshotTranscript() domain.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Transcript{
		OwnerID:        c.cfg.OwnerID,
		SourceLanguage: c.source,
		TargetLanguage: c.target,
		Text:           c.transcript.Text(),
		Translation:    c.translated,
	}
}

func (c *CaptionController) reset() {
	c.mu.Lock()
	c.transcript.Reset()
	c.interim = ""
	c.translated = ""
	c.version++
	c.translatedVersion = c.version
	c.mu.Unlock()

	c.translations.Cancel()
}

func (c *CaptionController) getCurrent() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNotListening
	}
	return c.current, nil
}

func (c *CaptionController) finishSession(active *activeSession, reason domain.CaptionStateReason) {
	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.mu.Unlock()

	c.reset()
	c.events.CaptionStateChanged(domain.CaptionStateIdle, reason)
}

func normalizeLanguageTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", domain.NewValidationError("language", "language is required")
	}
	// Validate only. Canonical forms (tl -> fil, iw -> he) are not what the
	// recognizer and translator expect.
	if _, err := language.Raw.Parse(tag); err != nil {
		return "", domain.NewValidationError("language", fmt.Sprintf("unsupported language tag %q", tag))
	}
	return tag, nil
}
