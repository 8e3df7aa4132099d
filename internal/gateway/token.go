package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"havoice/internal/domain"
)

// DefaultTokenEndpoint is the Azure Speech token service; {region} is
// replaced with the configured region.
const DefaultTokenEndpoint = "https://{region}.api.cognitive.microsoft.com/sts/v1.0/issueToken"

// TokenError is a non-2xx answer from the token service.
type TokenError struct {
	Status int
	Body   string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token service returned %d: %s", e.Status, e.Body)
}

// AzureTokenIssuer exchanges the subscription key for a short-lived speech
// token so the key itself stays on the gateway.
type AzureTokenIssuer struct {
	endpoint string
	http     *http.Client
}

func NewAzureTokenIssuer(endpoint string, httpClient *http.Client) *AzureTokenIssuer {
	if endpoint == "" {
		endpoint = DefaultTokenEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &AzureTokenIssuer{endpoint: endpoint, http: httpClient}
}

func (a *AzureTokenIssuer) IssueToken(ctx context.Context, creds domain.SpeechCredentials) (string, error) {
	url := strings.ReplaceAll(a.endpoint, "{region}", creds.Region)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", creds.Key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request speech token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read speech token: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TokenError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return strings.TrimSpace(string(body)), nil
}
