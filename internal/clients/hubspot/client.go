// Package hubspot provides a client for the HubSpot CRM v3 deals API.
// The relay only touches deal records: reading configured properties and
// writing property updates.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.hubapi.com"
	// Upstream bodies are truncated to this many bytes in errors and logs.
	maxErrorBodyLen = 500
)

// ErrMissingToken is returned when no access token is configured. The
// request never reaches HubSpot; handlers surface it as an operator error
// rather than passing through an upstream auth failure.
var ErrMissingToken = errors.New("HubSpot token not configured")

// Client is the HubSpot CRM API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new HubSpot client.
// baseURL is optional and overrides the public API host (used in tests).
func NewClient(token, baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("client", "hubspot").Logger(),
	}
}

// APIError is a structured error from the HubSpot API. The category and
// sub-category come from the parsed error body; Body keeps the truncated
// raw response for diagnostics.
type APIError struct {
	StatusCode  int
	Category    string
	SubCategory string
	Message     string
	Body        string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hubspot API error: status %d (%s): %s", e.StatusCode, e.Category, e.Message)
	}
	return fmt.Sprintf("hubspot API error: status %d, body: %s", e.StatusCode, e.Body)
}

// propertyNotFoundRe matches the message HubSpot returns for writes against
// a property that was never provisioned on the portal.
var propertyNotFoundRe = regexp.MustCompile(`(?i)property "([^"]+)" does not exist`)

// IsMissingProperty reports whether the error is HubSpot's validation
// rejection for a non-existent property. The check is against the parsed
// category and message fields of the structured error body, not the raw
// response text.
func (e *APIError) IsMissingProperty() bool {
	if e.StatusCode != http.StatusBadRequest {
		return false
	}
	if e.Category != "VALIDATION_ERROR" {
		return false
	}
	if e.SubCategory == "PROPERTY_DOESNT_EXIST" {
		return true
	}
	return propertyNotFoundRe.MatchString(e.Message)
}

// dealResponse is the shape of GET /crm/v3/objects/deals/{id}
type dealResponse struct {
	ID         string             `json:"id"`
	Properties map[string]*string `json:"properties"`
}

// errorBody is the shape of HubSpot's structured error responses
type errorBody struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Category    string `json:"category"`
	SubCategory string `json:"subCategory"`
}

// GetDealProperties fetches the named properties of a deal record.
// Properties the portal doesn't carry, or that hold null, are omitted from
// the returned map. Deal IDs are opaque strings and are not validated.
func (c *Client) GetDealProperties(ctx context.Context, dealID string, names []string) (map[string]string, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}

	endpoint := fmt.Sprintf("%s/crm/v3/objects/deals/%s", c.baseURL, url.PathEscape(dealID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("properties", strings.Join(names, ","))
	q.Set("archived", "false")
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Authorization", "Bearer "+c.token)

	c.log.Debug().Str("deal_id", dealID).Strs("properties", names).Msg("Fetching deal properties")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := c.newAPIError(resp.StatusCode, body)
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("deal_id", dealID).
			Str("body", apiErr.Body).
			Msg("Deal fetch returned non-2xx status")
		return nil, apiErr
	}

	var deal dealResponse
	if err := json.Unmarshal(body, &deal); err != nil {
		return nil, fmt.Errorf("failed to parse deal response: %w", err)
	}

	props := make(map[string]string, len(deal.Properties))
	for name, value := range deal.Properties {
		if value != nil {
			props[name] = *value
		}
	}

	return props, nil
}

// UpdateDealProperties forwards a property mapping verbatim to the deal
// update endpoint. Non-2xx responses come back as *APIError.
func (c *Client) UpdateDealProperties(ctx context.Context, dealID string, props map[string]string) error {
	if c.token == "" {
		return ErrMissingToken
	}

	endpoint := fmt.Sprintf("%s/crm/v3/objects/deals/%s", c.baseURL, url.PathEscape(dealID))

	payload, err := json.Marshal(map[string]interface{}{"properties": props})
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("deal_id", dealID).Int("property_count", len(props)).Msg("Updating deal properties")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := c.newAPIError(resp.StatusCode, body)
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("deal_id", dealID).
			Str("body", apiErr.Body).
			Msg("Deal update returned non-2xx status")
		return apiErr
	}

	return nil
}

// newAPIError builds an APIError from a non-2xx response body, parsing the
// structured error fields when the body is HubSpot's JSON error shape.
func (c *Client) newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Body:       truncate(string(body), maxErrorBodyLen),
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Category = parsed.Category
		apiErr.SubCategory = parsed.SubCategory
		apiErr.Message = parsed.Message
	}

	return apiErr
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
