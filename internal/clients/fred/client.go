// Package fred provides a client for the FRED (Federal Reserve Economic
// Data) observations API.
package fred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.stlouisfed.org"
	// FRED reports missing observations with this sentinel value.
	missingValueSentinel = "."
)

// ErrMissingAPIKey is returned when no API key is configured. The request
// never reaches FRED; the rates endpoint reports it as an operator error.
var ErrMissingAPIKey = errors.New("FRED API key not configured")

// Client is the FRED API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new FRED client.
// baseURL is optional and overrides the public API host (used in tests).
func NewClient(apiKey, baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("client", "fred").Logger(),
	}
}

// observationsResponse is the shape of /fred/series/observations
type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// LatestObservation fetches the single most recent observation of a series.
// A missing observation, the sentinel value ".", or an unparseable value
// yields (nil, nil): the series has no usable reading, which is not an
// error. Only transport failures and non-2xx upstream responses are errors.
func (c *Client) LatestObservation(ctx context.Context, seriesID string) (*float64, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	endpoint := fmt.Sprintf("%s/fred/series/observations", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("series_id", seriesID)
	q.Set("api_key", c.apiKey)
	q.Set("file_type", "json")
	q.Set("sort_order", "desc")
	q.Set("limit", "1")
	req.URL.RawQuery = q.Encode()

	c.log.Debug().Str("series", seriesID).Msg("Fetching latest observation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed for %s: %w", seriesID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		bodyStr := string(body)
		if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "..."
		}
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("series", seriesID).
			Str("body", bodyStr).
			Msg("FRED returned non-2xx status")
		return nil, fmt.Errorf("FRED API error for %s: status %d", seriesID, resp.StatusCode)
	}

	var parsed observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.Warn().Err(err).Str("series", seriesID).Msg("Failed to parse observations response")
		return nil, nil
	}

	if len(parsed.Observations) == 0 {
		c.log.Warn().Str("series", seriesID).Msg("Series has no observations")
		return nil, nil
	}

	raw := parsed.Observations[0].Value
	if raw == missingValueSentinel {
		c.log.Debug().Str("series", seriesID).Msg("Latest observation is the missing-value sentinel")
		return nil, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.log.Warn().Str("series", seriesID).Str("value", raw).Msg("Unparseable observation value")
		return nil, nil
	}

	c.log.Debug().Str("series", seriesID).Float64("value", value).Msg("Fetched observation")
	return &value, nil
}
