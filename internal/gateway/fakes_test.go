package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"havoice/internal/homeassistant"
)

type fakeCompleter struct {
	mu      sync.Mutex
	answers []string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.answers) == 0 {
		return "", errors.New("no scripted answer")
	}
	answer := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return answer, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type serviceCall struct {
	domain  string
	service string
	body    map[string]any
}

type fakeHome struct {
	mu        sync.Mutex
	states    []homeassistant.State
	listCalls int
	callErr   error
	calls     []serviceCall
	services  map[string]string
}

func (f *fakeHome) States(context.Context) ([]homeassistant.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.states, nil
}

func (f *fakeHome) State(_ context.Context, entityID string) (homeassistant.State, error) {
	for _, s := range f.states {
		if s.EntityID == entityID {
			return s, nil
		}
	}
	return homeassistant.State{}, &homeassistant.APIError{Method: "GET", Path: "/api/states/" + entityID, Status: 404}
}

func (f *fakeHome) Services(_ context.Context, domain string) (json.RawMessage, error) {
	raw, ok := f.services[domain]
	if !ok {
		return nil, errors.New("unknown domain " + domain)
	}
	return json.RawMessage(raw), nil
}

func (f *fakeHome) CallService(_ context.Context, domain string, service string, body map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return f.callErr
	}
	f.calls = append(f.calls, serviceCall{domain: domain, service: service, body: body})
	return nil
}

func newHome() *fakeHome {
	return &fakeHome{
		states: []homeassistant.State{
			{EntityID: "light.kitchen", State: "off", Attributes: map[string]any{"friendly_name": "Kitchen Light"}},
			{EntityID: "media_player.living_room_appletv", State: "idle", Attributes: map[string]any{}},
			{EntityID: "sensor.outdoor_temperature", State: "12", Attributes: map[string]any{}},
		},
		services: map[string]string{
			"light":  `{"turn_on":{},"turn_off":{}}`,
			"notify": `{"mobile_app_phone":{}}`,
		},
	}
}

func memoryCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache("", 0, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
