package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsBearerTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/render/history" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"runs":[{"id":"a","status":"done","progress":100,"startedAt":"2026-03-01T12:00:00.000Z"}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "secret").History(context.Background(), 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].ID != "a" {
		t.Fatalf("unexpected runs: %+v", resp.Runs)
	}
}

func TestClientReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"Render already in progress"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Start(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusConflict || statusErr.Message != "Render already in progress" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestClientUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	if _, err := NewClient(addr, "").Status(context.Background()); !errors.Is(err, ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}
