package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"chartreel/internal/services"
)

func TestGoogleTranslateSynthesize(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate_tts" {
			http.NotFound(w, r)
			return
		}
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	provider := NewGoogleTranslate(GoogleOptions{Host: srv.URL + "/"})
	audio, err := provider.Synthesize(context.Background(), "  Sales grew by half  ", "en-gb")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("unexpected audio %q", audio)
	}
	q := gotQuery.Load().(url.Values)
	if q["q"][0] != "Sales grew by half" {
		t.Fatalf("unexpected q param: %v", q["q"])
	}
	if q["tl"][0] != "en-GB" {
		t.Fatalf("expected canonical language, got %v", q["tl"])
	}
	if q["client"][0] != "tw-ob" {
		t.Fatalf("unexpected client param: %v", q["client"])
	}
}

func TestGoogleTranslateUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGoogleTranslate(GoogleOptions{Host: srv.URL}).Synthesize(context.Background(), "hello", "en")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestGoogleTranslateRejectsInvalidText(t *testing.T) {
	provider := NewGoogleTranslate(GoogleOptions{Host: "http://127.0.0.1:1"})
	if _, err := provider.Synthesize(context.Background(), "   ", "en"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank text, got %v", err)
	}
	long := strings.Repeat("a", MaxChunkLength+1)
	if _, err := provider.Synthesize(context.Background(), long, "en"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for long text, got %v", err)
	}
}

func TestGoogleTranslateRespectsCancelledContext(t *testing.T) {
	provider := NewGoogleTranslate(GoogleOptions{Host: "http://127.0.0.1:1", RequestsPerSecond: 0.001, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := provider.Synthesize(ctx, "hello", "en"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"":       "en",
		"vi":     "vi",
		"en_us":  "en-US",
		"EN-gb":  "en-GB",
		"!!bad!": "en",
	}
	for in, want := range cases {
		if got := NormalizeLanguage(in, "en"); got != want {
			t.Fatalf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
