package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type healthBody struct {
	Status string            `json:"status"`
	Deps   map[string]string `json:"deps"`
	Time   string            `json:"time"`
}

func callHealth(t *testing.T, h *Handler) (*httptest.ResponseRecorder, healthBody) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v; raw=%s", err, rec.Body.String())
	}
	return rec, body
}

func TestHealth_ReturnsOKWithRFC3339NanoUTC(t *testing.T) {
	start := time.Now().UTC()
	rec, body := callHealth(t, NewHandler(map[string]Pinger{
		"db": func(context.Context) error { return nil },
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	ct := rec.Header().Get(echo.HeaderContentType)
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}
	if body.Status != "ok" || body.Deps["db"] != "ok" {
		t.Fatalf("unexpected body: %+v", body)
	}

	// Time is RFC3339Nano and UTC (with 'Z')
	parsed, err := time.Parse(time.RFC3339Nano, body.Time)
	if err != nil {
		t.Fatalf("time not RFC3339Nano: %v (value=%q)", err, body.Time)
	}
	if parsed.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", parsed.Location())
	}
	now := time.Now().UTC()
	if parsed.Before(start.Add(-2*time.Second)) || parsed.After(now.Add(2*time.Second)) {
		t.Fatalf("time not within expected window: parsed=%v start=%v now=%v", parsed, start, now)
	}
}

func TestHealth_DegradedWhenADependencyFails(t *testing.T) {
	rec, body := callHealth(t, NewHandler(map[string]Pinger{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if body.Status != "degraded" {
		t.Fatalf(`expected status "degraded", got %q`, body.Status)
	}
	if body.Deps["db"] != "ok" || body.Deps["redis"] != "connection refused" {
		t.Fatalf("unexpected deps: %+v", body.Deps)
	}
}

func TestHealth_NoChecks(t *testing.T) {
	rec, body := callHealth(t, NewHandler(nil))
	if rec.Code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("got %d %+v", rec.Code, body)
	}
}
