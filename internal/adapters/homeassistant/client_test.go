package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.Token == "" {
		cfg.Token = "test-token"
	}
	return NewClient(cfg)
}

func stateHandler(t *testing.T, state string, attrs map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"entity_id":    "device_tracker.car",
			"state":        state,
			"attributes":   attrs,
			"last_updated": "2026-08-20T17:31:00.123456+00:00",
		})
	}
}

func TestClient_FetchSample(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		stateHandler(t, "home", map[string]any{
			"latitude":  40.1,
			"longitude": -104.9,
			"speed":     42.5,
			"heading":   270.0,
		})(w, r)
	}, Config{})

	sample, err := c.FetchSample(context.Background(), "device_tracker.car")
	if err != nil {
		t.Fatalf("FetchSample() error = %v", err)
	}
	if gotPath != "/api/states/device_tracker.car" {
		t.Errorf("request path = %q", gotPath)
	}
	if sample.EntityID != "device_tracker.car" {
		t.Errorf("EntityID = %q", sample.EntityID)
	}
	if sample.Location.Lat != 40.1 || sample.Location.Lon != -104.9 {
		t.Errorf("Location = %+v", sample.Location)
	}
	if sample.Speed == nil || *sample.Speed != 42.5 {
		t.Errorf("Speed = %v, want 42.5", sample.Speed)
	}
	if sample.Heading == nil || *sample.Heading != 270 {
		t.Errorf("Heading = %v, want 270", sample.Heading)
	}
	want := time.Date(2026, 8, 20, 17, 31, 0, 123456000, time.UTC)
	if !sample.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", sample.Time, want)
	}
}

func TestClient_FetchSample_AttributeVariants(t *testing.T) {
	c := newTestClient(t, stateHandler(t, "not_home", map[string]any{
		"Latitude":  "39.5",
		"Longitude": "-105.25",
		"Speed":     "38.5",
		"course":    90.0,
	}), Config{})

	sample, err := c.FetchSample(context.Background(), "device_tracker.car")
	if err != nil {
		t.Fatalf("FetchSample() error = %v", err)
	}
	if sample.Location.Lat != 39.5 || sample.Location.Lon != -105.25 {
		t.Errorf("Location = %+v", sample.Location)
	}
	if sample.Speed == nil || *sample.Speed != 38.5 {
		t.Errorf("Speed = %v, want 38.5 from string attribute", sample.Speed)
	}
	if sample.Heading == nil || *sample.Heading != 90 {
		t.Errorf("Heading = %v, want 90 from course attribute", sample.Heading)
	}
}

func TestClient_FetchSample_OptionalFieldsAbsent(t *testing.T) {
	c := newTestClient(t, stateHandler(t, "home", map[string]any{
		"latitude":  40.0,
		"longitude": -105.0,
	}), Config{})

	sample, err := c.FetchSample(context.Background(), "device_tracker.car")
	if err != nil {
		t.Fatalf("FetchSample() error = %v", err)
	}
	if sample.Speed != nil || sample.Heading != nil {
		t.Errorf("Speed = %v, Heading = %v, want both nil", sample.Speed, sample.Heading)
	}
}

func TestClient_FetchSample_NoFix(t *testing.T) {
	t.Run("unavailable entity", func(t *testing.T) {
		c := newTestClient(t, stateHandler(t, "unavailable", map[string]any{}), Config{})
		_, err := c.FetchSample(context.Background(), "device_tracker.car")
		if !errors.Is(err, domain.ErrNoFix) {
			t.Fatalf("FetchSample() error = %v, want ErrNoFix", err)
		}
	})

	t.Run("missing coordinates", func(t *testing.T) {
		c := newTestClient(t, stateHandler(t, "home", map[string]any{"battery": 80.0}), Config{})
		_, err := c.FetchSample(context.Background(), "device_tracker.car")
		if !errors.Is(err, domain.ErrNoFix) {
			t.Fatalf("FetchSample() error = %v, want ErrNoFix", err)
		}
	})
}

func TestClient_FetchSample_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}, Config{})

	_, err := c.FetchSample(context.Background(), "device_tracker.gone")
	if err == nil {
		t.Fatal("FetchSample() = nil error for HTTP 404")
	}
	if errors.Is(err, domain.ErrNoFix) {
		t.Error("unknown entity should be a hard error, not ErrNoFix")
	}
}

func transition() *domain.ZoneTransition {
	return &domain.ZoneTransition{
		ID:       "t1",
		EntityID: "device_tracker.car",
		FromZone: "America/Denver",
		ToZone:   "America/Chicago",
		Location: domain.GeoPoint{Lat: 40.0, Lon: -103.9},
		Time:     time.Date(2026, 8, 20, 17, 31, 0, 0, time.UTC),
	}
}

func TestClient_NotifyZoneChange(t *testing.T) {
	type call struct {
		path string
		body map[string]any
	}
	var calls []call
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{path: r.URL.Path, body: body})
		w.WriteHeader(http.StatusOK)
	}, Config{EventType: "timezone_changed", ApplyService: "script.apply_timezone"})

	if err := c.NotifyZoneChange(context.Background(), transition()); err != nil {
		t.Fatalf("NotifyZoneChange() error = %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want event + service", len(calls))
	}

	event := calls[0]
	if event.path != "/api/events/timezone_changed" {
		t.Errorf("event path = %q", event.path)
	}
	if event.body["to_timezone"] != "America/Chicago" || event.body["from_timezone"] != "America/Denver" {
		t.Errorf("event body = %v", event.body)
	}
	if event.body["entity_id"] != "device_tracker.car" {
		t.Errorf("event entity_id = %v", event.body["entity_id"])
	}

	svc := calls[1]
	if svc.path != "/api/services/script/apply_timezone" {
		t.Errorf("service path = %q", svc.path)
	}
	if svc.body["time_zone"] != "America/Chicago" {
		t.Errorf("service body = %v", svc.body)
	}
}

func TestClient_NotifyZoneChange_EventOnly(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
	}, Config{EventType: "timezone_changed"})

	if err := c.NotifyZoneChange(context.Background(), transition()); err != nil {
		t.Fatalf("NotifyZoneChange() error = %v", err)
	}
	if len(paths) != 1 || paths[0] != "/api/events/timezone_changed" {
		t.Errorf("paths = %v, want only the event", paths)
	}
}

func TestClient_NotifyZoneChange_BadServiceForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, Config{ApplyService: "noservice"})
	err := c.NotifyZoneChange(context.Background(), transition())
	if err == nil || !strings.Contains(err.Error(), "domain.service") {
		t.Fatalf("NotifyZoneChange() error = %v, want malformed service error", err)
	}
}

func TestClient_NotifyZoneChange_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, Config{EventType: "timezone_changed"})

	if err := c.NotifyZoneChange(context.Background(), transition()); err == nil {
		t.Fatal("NotifyZoneChange() = nil error for HTTP 500")
	}
}
