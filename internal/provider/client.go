package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmcalloway/runtrack-core/internal/infrastructure/config"
	"github.com/jmcalloway/runtrack-core/internal/runtime"
)

// Client polls the remote vendor API for device status snapshots. It
// implements runtime.SampleSource.
//
// Access tokens are short-lived; the client refreshes them with the
// configured refresh token whenever the API answers 401 and retries the
// request once. Safe for concurrent use.
type Client struct {
	baseURL  string
	tokenURL string
	apiKey   string

	httpClient *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// statusResponse is the provider's per-device status payload.
type statusResponse struct {
	DeviceID        string `json:"device_id"`
	Connected       bool   `json:"connected"`
	EquipmentStatus string `json:"equipment_status"`
	Revision        string `json:"revision"`
	ObservedAt      string `json:"observed_at"`
	Runtime         struct {
		ActualTemperature  *float64 `json:"actual_temperature"`
		ActualHumidity     *float64 `json:"actual_humidity"`
		DesiredHeat        *float64 `json:"desired_heat"`
		DesiredCool        *float64 `json:"desired_cool"`
		OutdoorTemperature *float64 `json:"outdoor_temperature"`
	} `json:"runtime"`
}

// tokenResponse is the provider's token-endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// New creates a provider client from configuration.
func New(cfg config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		apiKey:       cfg.APIKey,
		refreshToken: cfg.RefreshToken,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// FetchSample retrieves the current status snapshot for one device and
// maps it onto the engine's sample shape.
func (c *Client) FetchSample(ctx context.Context, deviceID string) (*runtime.Sample, error) {
	body, err := c.get(ctx, c.baseURL+"/devices/"+url.PathEscape(deviceID)+"/status")
	if err != nil {
		return nil, err
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decoding status for %s: %w", deviceID, err)
	}

	sample := &runtime.Sample{
		DeviceID:        deviceID,
		EquipmentStatus: status.EquipmentStatus,
		Reachable:       status.Connected,
		Revision:        status.Revision,
		Telemetry: runtime.Telemetry{
			Temperature:        status.Runtime.ActualTemperature,
			Humidity:           status.Runtime.ActualHumidity,
			HeatSetpoint:       status.Runtime.DesiredHeat,
			CoolSetpoint:       status.Runtime.DesiredCool,
			OutdoorTemperature: status.Runtime.OutdoorTemperature,
		},
	}

	if status.ObservedAt != "" {
		observed, err := time.Parse(time.RFC3339, status.ObservedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing observed_at for %s: %w", deviceID, err)
		}
		sample.ObservedAt = observed
	}

	return sample, nil
}

// get performs an authenticated GET, refreshing the access token and
// retrying once on 401.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	body, status, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if err := c.refreshAccessToken(ctx); err != nil {
			return nil, err
		}
		body, status, err = c.do(ctx, rawURL)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case status == http.StatusOK:
		return body, nil
	case status == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case status == http.StatusNotFound:
		return nil, ErrDeviceNotFound
	case status >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	default:
		return nil, fmt.Errorf("provider: unexpected status %d", status)
	}
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// refreshAccessToken exchanges the refresh token for a new access token.
// The provider rotates refresh tokens on each exchange.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrTokenRefresh, resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrTokenRefresh, err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrTokenRefresh)
	}

	c.mu.Lock()
	c.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.refreshToken = token.RefreshToken
	}
	c.mu.Unlock()

	return nil
}
