// Package credentials resolves the speech engine key and region.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"havoice/internal/api"
	"havoice/internal/domain"
	"havoice/internal/gatewayclient"
	"havoice/internal/ports"
)

// Getter is the slice of the gateway client the gateway source needs.
type Getter interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Gateway fetches credentials from the gateway on every call so rotated
// keys are picked up on the next backend start.
type Gateway struct {
	client Getter
}

func NewGateway(client Getter) *Gateway {
	return &Gateway{client: client}
}

func (g *Gateway) SpeechCredentials(ctx context.Context) (domain.SpeechCredentials, error) {
	var resp api.SpeechCredentialsResponse
	if err := g.client.GetJSON(ctx, api.PathSpeechCredentials, &resp); err != nil {
		if gatewayclient.IsStatus(err, http.StatusBadRequest) {
			return domain.SpeechCredentials{}, fmt.Errorf("%w: %w", ports.ErrMissingCredentials, err)
		}
		return domain.SpeechCredentials{}, fmt.Errorf("fetch speech credentials: %w", err)
	}
	return validate(domain.SpeechCredentials{Key: resp.SpeechKey, Region: resp.SpeechRegion})
}

// Static serves credentials taken from local configuration.
type Static domain.SpeechCredentials

func (s Static) SpeechCredentials(context.Context) (domain.SpeechCredentials, error) {
	return validate(domain.SpeechCredentials(s))
}

func validate(creds domain.SpeechCredentials) (domain.SpeechCredentials, error) {
	creds.Key = strings.TrimSpace(creds.Key)
	creds.Region = strings.TrimSpace(creds.Region)
	if !creds.Complete() {
		return creds, ports.ErrMissingCredentials
	}
	return creds, nil
}
