package gateway

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"havoice/internal/api"
	"havoice/internal/homeassistant"
)

//go:embed prompts/homeassistant.md
var homeAssistantPrompt string

const deviceCatalogKey = "catalog:devices"

var (
	// ErrInvalidServicePath means url_path is not <domain>/<service>.
	ErrInvalidServicePath = errors.New("invalid services home assistant path")
	// ErrMissingEntity means the planned call names no entity.
	ErrMissingEntity = errors.New("missing entity_id")
)

// controllableDomains are the entity domains offered to the model.
var controllableDomains = map[string]struct{}{
	"light": {}, "switch": {}, "fan": {}, "cover": {}, "climate": {},
	"lock": {}, "media_player": {}, "vacuum": {}, "scene": {}, "script": {},
	"input_boolean": {}, "humidifier": {}, "water_heater": {},
}

// StateLister lists Home Assistant entities.
type StateLister interface {
	States(ctx context.Context) ([]homeassistant.State, error)
}

// Planner turns a spoken command into a Home Assistant service call.
type Planner struct {
	model  Completer
	states StateLister
	cache  *Cache
	log    zerolog.Logger
}

// NewPlanner builds a planner. cache may be nil, in which case the device
// catalog is fetched for every command.
func NewPlanner(model Completer, states StateLister, cache *Cache, log zerolog.Logger) *Planner {
	return &Planner{model: model, states: states, cache: cache, log: log.With().Str("component", "planner").Logger()}
}

func (p *Planner) Plan(ctx context.Context, command string) (api.ServiceCall, error) {
	catalog, err := p.catalog(ctx)
	if err != nil {
		return api.ServiceCall{}, err
	}

	prompt := strings.ReplaceAll(homeAssistantPrompt, "{{{Devices}}}", catalog)
	prompt = strings.ReplaceAll(prompt, "{{{UserCommand}}}", command)

	answer, err := p.model.Complete(ctx, "", prompt)
	if err != nil {
		return api.ServiceCall{}, err
	}
	call, err := parseServiceCall(answer)
	if err != nil {
		return api.ServiceCall{}, err
	}
	p.log.Info().Str("command", command).Str("url_path", call.URLPath).Str("entity_id", call.EntityID).Msg("command planned")
	return call, nil
}

type catalogEntry struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	State    string `json:"state"`
}

// catalog renders the controllable devices grouped by domain.
func (p *Planner) catalog(ctx context.Context) (string, error) {
	if p.cache != nil {
		if cached, ok, err := p.cache.Get(deviceCatalogKey); err == nil && ok {
			return string(cached), nil
		}
	}

	states, err := p.states.States(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch devices: %w", err)
	}

	grouped := make(map[string][]catalogEntry)
	for _, state := range states {
		domain := state.Domain()
		if _, ok := controllableDomains[domain]; !ok {
			continue
		}
		grouped[domain] = append(grouped[domain], catalogEntry{
			EntityID: state.EntityID,
			Name:     state.FriendlyName(),
			State:    state.State,
		})
	}
	for _, entries := range grouped {
		sort.Slice(entries, func(i, j int) bool { return entries[i].EntityID < entries[j].EntityID })
	}

	rendered, err := json.MarshalIndent(grouped, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render device catalog: %w", err)
	}
	if p.cache != nil {
		if err := p.cache.Set(deviceCatalogKey, rendered); err != nil {
			p.log.Debug().Err(err).Msg("could not cache device catalog")
		}
	}
	return string(rendered), nil
}

// parseServiceCall extracts the JSON object from a model answer, which may
// be wrapped in prose or a code fence.
func parseServiceCall(answer string) (api.ServiceCall, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end < start {
		return api.ServiceCall{}, fmt.Errorf("model answer has no JSON object: %q", answer)
	}

	var call api.ServiceCall
	if err := json.Unmarshal([]byte(answer[start:end+1]), &call); err != nil {
		return api.ServiceCall{}, fmt.Errorf("decode service call: %w", err)
	}
	return call, nil
}

// ServiceTarget validates call and splits its path into domain and service.
func ServiceTarget(call api.ServiceCall) (string, string, error) {
	path := strings.Trim(strings.TrimSpace(call.URLPath), "/")
	domain, service, ok := strings.Cut(path, "/")
	if !ok || domain == "" || service == "" || strings.Contains(service, "/") {
		return "", "", ErrInvalidServicePath
	}
	if strings.TrimSpace(call.EntityID) == "" {
		return "", "", ErrMissingEntity
	}
	return domain, service, nil
}

// ServiceBody builds the request body: entity_id plus service_data merged at
// the top level.
func ServiceBody(call api.ServiceCall) map[string]any {
	body := make(map[string]any, len(call.ServiceData)+1)
	for key, value := range call.ServiceData {
		body[key] = value
	}
	body["entity_id"] = call.EntityID
	return body
}
