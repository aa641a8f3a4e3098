package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_ComponentTagging(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentSync, Output: &buf})

	l.InfoContext(context.Background(), "Category pushed",
		NewFields().WithEntity("category", "c1", DirectionPush).ToSlice()...)

	out := buf.String()
	for _, want := range []string{"component=sync", "entity=category", "entity_id=c1", "direction=push"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	buf.Reset()
	l.WithComponent(ComponentCloud).Info("hello")
	if strings.Count(buf.String(), "component=") != 1 || !strings.Contains(buf.String(), "component=cloud") {
		t.Errorf("expected a single cloud component, got %q", buf.String())
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentHTTP, Output: &buf})

	var seen *Logger
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
	if seen == nil || seen.Component() != ComponentHTTP {
		t.Error("expected request logger in context")
	}
	if !strings.Contains(buf.String(), "status_code=418") {
		t.Errorf("expected completed log line, got %q", buf.String())
	}
}
