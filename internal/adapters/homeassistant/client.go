// Package homeassistant talks to a Home Assistant instance over its REST
// API: it reads device tracker positions and pushes confirmed timezone
// changes back as events and service calls.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// Config carries the connection and notification settings for one instance.
// EventType and ApplyService may be empty to disable that output.
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	EventType    string
	ApplyService string
}

// Client implements ports.PositionProvider and ports.ZoneNotifier against
// the Home Assistant REST API.
type Client struct {
	baseURL      string
	token        string
	eventType    string
	applyService string
	http         *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		eventType:    cfg.EventType,
		applyService: cfg.ApplyService,
		http:         &http.Client{Timeout: timeout},
	}
}

// entityState is the wire shape of GET /api/states/<entity_id>.
type entityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastUpdated time.Time      `json:"last_updated"`
}

// FetchSample reads the tracker entity's current position. Trackers that
// are offline or missing coordinates yield domain.ErrNoFix so callers can
// retry later instead of treating it as a hard failure.
func (c *Client) FetchSample(ctx context.Context, entityID string) (*domain.PositionSample, error) {
	var state entityState
	path := "/api/states/" + url.PathEscape(entityID)
	if err := c.getJSON(ctx, path, &state); err != nil {
		return nil, err
	}

	if state.State == "unavailable" || state.State == "unknown" {
		return nil, fmt.Errorf("entity %s is %s: %w", entityID, state.State, domain.ErrNoFix)
	}

	lat := floatAttr(state.Attributes, "latitude", "Latitude")
	lon := floatAttr(state.Attributes, "longitude", "Longitude")
	if lat == nil || lon == nil {
		return nil, fmt.Errorf("entity %s has no coordinates: %w", entityID, domain.ErrNoFix)
	}

	sample := &domain.PositionSample{
		EntityID: entityID,
		Location: domain.GeoPoint{Lat: *lat, Lon: *lon},
		Speed:    floatAttr(state.Attributes, "speed", "Speed", "gps_speed", "velocity"),
		Heading:  floatAttr(state.Attributes, "heading", "Heading", "course", "bearing", "direction"),
		Time:     state.LastUpdated,
	}
	if sample.Time.IsZero() {
		sample.Time = time.Now()
	}
	return sample, nil
}

// NotifyZoneChange pushes a confirmed change to Home Assistant: an event on
// the bus and, when configured, a service call carrying the new timezone.
func (c *Client) NotifyZoneChange(ctx context.Context, t *domain.ZoneTransition) error {
	if c.eventType != "" {
		payload := map[string]any{
			"entity_id":     t.EntityID,
			"from_timezone": t.FromZone,
			"to_timezone":   t.ToZone,
			"latitude":      t.Location.Lat,
			"longitude":     t.Location.Lon,
			"occurred_at":   t.Time,
		}
		if err := c.postJSON(ctx, "/api/events/"+url.PathEscape(c.eventType), payload); err != nil {
			return fmt.Errorf("fire %s event: %w", c.eventType, err)
		}
	}

	if c.applyService != "" {
		dom, svc, ok := strings.Cut(c.applyService, ".")
		if !ok {
			return fmt.Errorf("apply service %q is not in domain.service form", c.applyService)
		}
		payload := map[string]any{"time_zone": t.ToZone}
		path := "/api/services/" + url.PathEscape(dom) + "/" + url.PathEscape(svc)
		if err := c.postJSON(ctx, path, payload); err != nil {
			return fmt.Errorf("call %s: %w", c.applyService, err)
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GET %s: %w", path, domain.ErrUnknownEntity)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: HTTP %d", path, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

// floatAttr pulls the first present attribute under any of the given keys.
// Home Assistant integrations disagree on capitalization and some report
// numbers as strings, so both forms are accepted.
func floatAttr(attrs map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := attrs[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			f := n
			return &f
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}
