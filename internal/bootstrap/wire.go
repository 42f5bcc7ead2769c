package bootstrap

import (
	"fmt"

	"github.com/rs/zerolog"

	"hearme/internal/audio"
	"hearme/internal/auth"
	"hearme/internal/config"
	"hearme/internal/domain"
	"hearme/internal/ports"
	"hearme/internal/providers/deepgram"
	"hearme/internal/providers/lingva"
	"hearme/internal/providers/whisper"
	"hearme/internal/rules"
	"hearme/internal/storage/local"
	"hearme/internal/store/memory"
	"hearme/internal/store/postgres"
	"hearme/internal/store/sqlite"
	"hearme/internal/usecase"
)

// Services is the assembled runtime graph. Per-connection controllers are
// created through its factory methods.
type Services struct {
	Config   config.Config
	Log      zerolog.Logger
	Backend  ports.Backend
	Auth     *auth.Provider
	Google   *auth.Google
	Accounts *usecase.Accounts
	Profiles *usecase.Profiles
	Admin    *usecase.Admin

	recognizer  ports.SpeechRecognizer
	translator  ports.Translator
	rules       ports.RulesEngine
	transcriber ports.FileTranscriber
	encoder     ports.ClipEncoder
	device      ports.AudioCapture
}

// Build wires all backend dependencies for cfg.
func Build(cfg config.Config, logger zerolog.Logger) (*Services, error) {
	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}

	docs, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	files, err := local.New(cfg.Recorder.Dir)
	if err != nil {
		_ = docs.Close()
		return nil, err
	}

	provider, err := auth.NewProvider(docs, auth.Config{
		Secret:        []byte(cfg.Auth.JWTSecret),
		TokenTTL:      cfg.Auth.TokenTTL,
		MaxAttempts:   cfg.Auth.MaxAttempts,
		AttemptWindow: cfg.Auth.AttemptWindow,
	}, logger)
	if err != nil {
		_ = docs.Close()
		return nil, err
	}

	s := &Services{
		Config:  cfg,
		Log:     logger,
		Backend: ports.Backend{Auth: provider, Store: docs, Files: files},
		Auth:    provider,
		rules:   rulesEngine,
		encoder: audio.NewFlacEncoder(),
		translator: lingva.New(lingva.Config{
			BaseURL: cfg.Translation.BaseURL,
			Timeout: cfg.Translation.Timeout,
		}),
	}
	s.Accounts = usecase.NewAccounts(provider, docs, logger)
	s.Profiles = usecase.NewProfiles(docs, docs, logger)
	s.Admin = usecase.NewAdmin(docs, docs, logger)

	if cfg.Auth.GoogleEnabled() {
		s.Google = auth.NewGoogle(auth.GoogleConfig{
			ClientID:     cfg.Auth.GoogleClientID,
			ClientSecret: cfg.Auth.GoogleClientSecret,
			RedirectURL:  cfg.Auth.GoogleRedirectURL,
		})
	}

	dg := deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		SmartFormat: cfg.Deepgram.SmartFormat,
	}, logger)
	if dg.Available() {
		s.recognizer = dg
	} else {
		logger.Warn().Msg("DEEPGRAM_API_KEY is not set; live captions are disabled")
	}

	// A nil *Transcriber must not end up inside the interface.
	if t := whisper.New(whisper.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	}); t != nil {
		s.transcriber = t
	}

	if cfg.Audio.Source == "ffmpeg" {
		s.device = audio.NewDeviceCapture(cfg.Audio.RecorderCommand, logger)
	}

	return s, nil
}

func openStore(cfg config.StoreConfig, logger zerolog.Logger) (ports.DocumentStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(logger), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.Open(cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close releases the document store.
func (s *Services) Close() error {
	return s.Backend.Store.Close()
}

// CaptionsAvailable reports whether a speech recognizer is configured.
func (s *Services) CaptionsAvailable() bool {
	return s.recognizer != nil
}

func (s *Services) audioConfig() ports.AudioConfig {
	return ports.AudioConfig{
		SampleRate:  s.Config.Audio.SampleRate,
		Channels:    s.Config.Audio.Channels,
		InputFormat: s.Config.Audio.InputFormat,
		InputDevice: s.Config.Audio.InputDevice,
	}
}

// captureFor picks the local device when one is configured, otherwise the
// connection's PCM stream.
func (s *Services) captureFor(stream *audio.StreamCapture) ports.AudioCapture {
	if s.device != nil {
		return s.device
	}
	return stream
}

// NewCaptionController builds the caption pipeline for one connection.
func (s *Services) NewCaptionController(owner domain.Identity, sink ports.CaptionSink, stream *audio.StreamCapture) *usecase.CaptionController {
	return usecase.NewCaptionController(
		s.captureFor(stream),
		s.recognizer,
		s.translator,
		s.rules,
		s.Backend.Store,
		sink,
		s.Log,
		usecase.CaptionConfig{
			Audio: s.audioConfig(),
			Streaming: ports.StreamingConfig{
				SampleRate:     s.Config.Audio.SampleRate,
				Channels:       s.Config.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize:      s.Config.Session.ChunkSize,
			StreamingGrace: s.Config.Session.StreamingGrace,
			Debounce:       s.Config.Session.Debounce,
			SourceLanguage: s.Config.Session.SourceLanguage,
			TargetLanguage: s.Config.Session.TargetLanguage,
			OwnerID:        owner.UserID,
		},
	)
}

// NewFeed builds a feed view for one signed-in user.
func (s *Services) NewFeed(identity domain.Identity, sink ports.FeedSink) *usecase.FeedSynchronizer {
	return usecase.NewFeedSynchronizer(s.Backend.Store, s.Backend.Store, sink, s.Log, usecase.FeedConfig{
		Author:        identity,
		PulseDuration: s.Config.Feed.PulseDuration,
	})
}

// NewRecorder builds the clip recorder for one connection.
func (s *Services) NewRecorder(owner domain.Identity, stream *audio.StreamCapture) *usecase.Recorder {
	return usecase.NewRecorder(
		s.captureFor(stream),
		s.encoder,
		s.Backend.Files,
		s.transcriber,
		s.Backend.Store,
		s.Log,
		usecase.RecorderConfig{
			Audio:       s.audioConfig(),
			Language:    s.Config.Recorder.Language,
			OwnerID:     owner.UserID,
			MaxDuration: s.Config.Recorder.MaxDuration,
		},
	)
}
