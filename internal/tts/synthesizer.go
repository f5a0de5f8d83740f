package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"chartreel/internal/logging"
	"chartreel/internal/services"
)

// maxAudioBytes bounds a single provider response.
const maxAudioBytes = 16 << 20

// Synthesizer produces baseline (speed 1.0) MP3 audio for a chunk of text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// GoogleOptions configures the Google Translate provider.
type GoogleOptions struct {
	Host              string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// GoogleTranslate fetches speech from the translate_tts endpoint.
type GoogleTranslate struct {
	host    string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGoogleTranslate builds the provider. RequestsPerSecond <= 0 disables throttling.
func NewGoogleTranslate(opts GoogleOptions) *GoogleTranslate {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		host = "https://translate.google.com"
	}
	return &GoogleTranslate{
		host:    host,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.NewComponentLogger(opts.Logger, "tts"),
	}
}

// AudioURL returns the upstream URL for text in lang.
func (g *GoogleTranslate) AudioURL(text, lang string) string {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", lang)
	q.Set("total", "1")
	q.Set("idx", "0")
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(text)))
	q.Set("client", "tw-ob")
	q.Set("prev", "input")
	q.Set("ttsspeed", "1")
	return g.host + "/translate_tts?" + q.Encode()
}

// Synthesize fetches MP3 bytes for text. Non-2xx responses are external tool errors.
func (g *GoogleTranslate) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "tts", "synthesize", "empty text", nil)
	}
	if utf8.RuneCountInString(text) > MaxChunkLength {
		return nil, services.Wrap(services.ErrValidation, "tts", "synthesize",
			fmt.Sprintf("text exceeds %d characters; split it with SplitNarration", MaxChunkLength), nil)
	}
	lang = NormalizeLanguage(lang, "en")

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, services.Wrap(services.ErrTimeout, "tts", "rate limit", "wait cancelled", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.AudioURL(text, lang), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "build request", "", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (chartreel)")

	started := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tts", "synthesize", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrExternalTool, "tts", "synthesize",
			fmt.Sprintf("upstream returned %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tts", "synthesize", "read body", err)
	}
	if len(body) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "tts", "synthesize", "upstream returned no audio", nil)
	}
	if len(body) > maxAudioBytes {
		return nil, services.Wrap(services.ErrExternalTool, "tts", "synthesize", "upstream response too large", nil)
	}

	g.logger.Debug("synthesized narration chunk",
		logging.String("lang", lang),
		logging.Int("chars", utf8.RuneCountInString(text)),
		logging.Int("bytes", len(body)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return body, nil
}
