// Package homeassistant is a small client for the Home Assistant REST API.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoToken is returned when no long-lived access token is configured.
var ErrNoToken = errors.New("home assistant token not set")

// State is one entity as returned by /api/states.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed,omitempty"`
}

// Domain returns the part of the entity id before the dot.
func (s State) Domain() string {
	domain, _, _ := strings.Cut(s.EntityID, ".")
	return domain
}

// FriendlyName returns the friendly_name attribute, or the entity id.
func (s State) FriendlyName() string {
	if name, ok := s.Attributes["friendly_name"].(string); ok && name != "" {
		return name
	}
	return s.EntityID
}

// APIError is a non-2xx response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("home assistant %s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

func New(baseURL string, token string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    httpClient,
		log:     log.With().Str("component", "homeassistant").Logger(),
	}
}

// States lists every entity.
func (c *Client) States(ctx context.Context) ([]State, error) {
	var states []State
	if err := c.do(ctx, http.MethodGet, "/api/states", nil, &states); err != nil {
		return nil, err
	}
	return states, nil
}

// State fetches one entity.
func (c *Client) State(ctx context.Context, entityID string) (State, error) {
	var state State
	err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil, &state)
	return state, err
}

// Services returns the services registered for a domain. The payload shape
// varies by Home Assistant version, so it is passed through raw.
func (c *Client) Services(ctx context.Context, domain string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/services/"+url.PathEscape(domain), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CallService invokes <domain>/<service> with body as service data.
func (c *Client) CallService(ctx context.Context, domain string, service string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode service data: %w", err)
	}
	path := "/api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(service)
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, payload []byte, out any) error {
	if c.token == "" {
		return ErrNoToken
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("home assistant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("request failed")
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("request complete")
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
