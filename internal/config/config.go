package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the HearMe server.
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Store       StoreConfig
	Auth        AuthConfig
	Deepgram    DeepgramConfig
	Translation TranslationConfig
	OpenAI      OpenAIConfig
	Audio       AudioConfig
	Rules       RulesConfig
	Recorder    RecorderConfig
	Feed        FeedConfig
	Session     SessionConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type StoreConfig struct {
	Driver string
	DSN    string
}

type AuthConfig struct {
	JWTSecret          string
	TokenTTL           time.Duration
	MaxAttempts        int
	AttemptWindow      time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

type TranslationConfig struct {
	BaseURL string
	Timeout time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AudioConfig selects where caption audio comes from. "stream" reads PCM
// frames sent by the browser; "ffmpeg" records a local input device.
type AudioConfig struct {
	Source          string
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type RecorderConfig struct {
	Dir         string
	Language    string
	MaxDuration time.Duration
}

type FeedConfig struct {
	PulseDuration time.Duration
}

type SessionConfig struct {
	ChunkSize      int
	StreamingGrace time.Duration
	Debounce       time.Duration
	SourceLanguage string
	TargetLanguage string
}

// Load reads an optional .env file and resolves configuration from
// environment variables and defaults.
func Load() (Config, error) {
	envFile := envOrDefault("HEARME_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	rulesPath := strings.TrimSpace(os.Getenv("HEARME_RULES_FILE"))
	if rulesPath == "" {
		rulesPath = firstExisting(
			filepath.Join(home, ".config", "hearme", "rules.yaml"),
			filepath.Join(home, ".config", "hearme", "rules.yml"),
		)
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            firstNonEmpty(os.Getenv("HEARME_ADDR"), portAddr(os.Getenv("PORT")), ":8080"),
			ShutdownTimeout: envOrDefaultDuration("HEARME_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  envOrDefault("HEARME_LOG_LEVEL", "info"),
			Pretty: envOrDefaultBool("HEARME_LOG_PRETTY", false),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(envOrDefault("HEARME_STORE", "memory")),
			DSN:    firstNonEmpty(os.Getenv("HEARME_STORE_DSN"), os.Getenv("DATABASE_URL")),
		},
		Auth: AuthConfig{
			JWTSecret:          strings.TrimSpace(os.Getenv("HEARME_JWT_SECRET")),
			TokenTTL:           envOrDefaultDuration("HEARME_TOKEN_TTL", 7*24*time.Hour),
			MaxAttempts:        envOrDefaultInt("HEARME_AUTH_MAX_ATTEMPTS", 5),
			AttemptWindow:      envOrDefaultDuration("HEARME_AUTH_ATTEMPT_WINDOW", time.Minute),
			GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
			GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
			GoogleRedirectURL:  envOrDefault("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Translation: TranslationConfig{
			BaseURL: envOrDefault("HEARME_LINGVA_URL", "https://lingva.ml"),
			Timeout: envOrDefaultDuration("HEARME_LINGVA_TIMEOUT", 10*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
			Model:   envOrDefault("HEARME_WHISPER_MODEL", "whisper-1"),
		},
		Audio: AudioConfig{
			Source:          strings.ToLower(envOrDefault("HEARME_AUDIO_SOURCE", "stream")),
			RecorderCommand: envOrDefault("HEARME_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("HEARME_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("HEARME_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("HEARME_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("HEARME_CHANNELS", 1),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: envOrDefaultInt("HEARME_RULE_ITERATION_LIMIT", 30),
		},
		Recorder: RecorderConfig{
			Dir:         envOrDefault("HEARME_RECORDINGS_DIR", filepath.Join(home, ".local", "share", "hearme", "recordings")),
			Language:    strings.TrimSpace(os.Getenv("HEARME_RECORDER_LANGUAGE")),
			MaxDuration: envOrDefaultDuration("HEARME_RECORDER_MAX_DURATION", 10*time.Minute),
		},
		Feed: FeedConfig{
			PulseDuration: time.Duration(envOrDefaultInt("HEARME_LIKE_PULSE_MS", 400)) * time.Millisecond,
		},
		Session: SessionConfig{
			ChunkSize:      envOrDefaultInt("HEARME_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace: time.Duration(firstNonNegativeInt("HEARME_STREAMING_GRACE_MS", "DEEPGRAM_STREAMING_GRACE_MS", 1000)) * time.Millisecond,
			Debounce:       time.Duration(envOrDefaultInt("HEARME_TRANSLATE_DEBOUNCE_MS", 700)) * time.Millisecond,
			SourceLanguage: envOrDefault("HEARME_SOURCE_LANGUAGE", "en-US"),
			TargetLanguage: envOrDefault("HEARME_TARGET_LANGUAGE", "tl"),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.Debounce <= 0 {
		cfg.Session.Debounce = 700 * time.Millisecond
	}
	if cfg.Feed.PulseDuration <= 0 {
		cfg.Feed.PulseDuration = 400 * time.Millisecond
	}

	switch cfg.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return Config{}, errors.New("HEARME_STORE must be memory, sqlite or postgres")
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(home, ".local", "share", "hearme", "hearme.db")
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		return Config{}, errors.New("HEARME_STORE_DSN is required for the postgres store")
	}
	switch cfg.Audio.Source {
	case "stream", "ffmpeg":
	default:
		return Config{}, errors.New("HEARME_AUDIO_SOURCE must be stream or ffmpeg")
	}

	return cfg, nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c AuthConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func portAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	return ":" + port
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
