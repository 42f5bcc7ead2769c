package whisper

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/text/language"
)

// Config controls the OpenAI transcription client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Transcriber implements ports.FileTranscriber with the OpenAI audio API.
type Transcriber struct {
	client *openai.Client
	model  string
}

// New returns nil when no API key is configured.
func New(cfg Config) *Transcriber {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &Transcriber{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model}
}

func (t *Transcriber) TranscribeFile(ctx context.Context, name string, audio io.Reader, lang string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: name,
		Reader:   audio,
		Language: baseLanguage(lang),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// baseLanguage reduces a BCP-47 tag to the ISO-639-1 code the API expects.
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	parsed, err := language.Raw.Parse(tag)
	if err != nil {
		return ""
	}
	base, _ := parsed.Base()
	return base.String()
}
