package lingva

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Translator calls a Lingva-compatible translation endpoint.
type Translator struct {
	http *resty.Client
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func New(cfg Config) *Translator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://lingva.ml"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)
	return &Translator{http: c}
}

var languageCodes = map[string]string{
	"en":     "en",
	"tl":     "tl",
	"es":     "es",
	"fil":    "tl",
	"fil-PH": "tl",
	"en-US":  "en",
	"es-ES":  "es",
}

// SourceCode maps a session language tag to the endpoint's source code.
// Unknown tags let the endpoint detect the language.
func SourceCode(tag string) string {
	if code, ok := languageCodes[tag]; ok {
		return code
	}
	return "auto"
}

// TargetCode maps a session language tag to the endpoint's target code.
func TargetCode(tag string) string {
	if code, ok := languageCodes[tag]; ok {
		return code
	}
	return "en"
}

type translationResponse struct {
	Translation string `json:"translation"`
	Error       string `json:"error"`
}

func (t *Translator) Translate(ctx context.Context, source, target, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	var resp translationResponse
	r, err := t.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"source": SourceCode(source),
			"target": TargetCode(target),
			"text":   text,
		}).
		SetResult(&resp).
		SetError(&resp).
		Get("/api/v1/{source}/{target}/{text}")
	if err != nil {
		return "", fmt.Errorf("lingva translate: %w", err)
	}
	if r.IsError() {
		return "", fmt.Errorf("lingva translate: %s; body: %s", r.Status(), strings.TrimSpace(r.String()))
	}
	if resp.Translation == "" {
		return "", fmt.Errorf("lingva translate: empty translation")
	}
	return resp.Translation, nil
}
