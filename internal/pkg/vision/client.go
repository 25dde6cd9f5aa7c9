// Package vision is a client for an external safe-search annotation API.
// One annotation call is one unit of paid quota; admission control happens
// in the caller, never here.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds configuration for the safe-search client.
type Config struct {
	Endpoint string // API base URL, e.g. "https://vision.googleapis.com"
	APIKey   string
	Timeout  time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint: endpoint,
		Timeout:  10 * time.Second,
	}
}

// Client calls the safe-search annotation endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new safe-search client.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Annotation is the outcome of one safe-search call.
type Annotation struct {
	SafeSearch  SafeSearch
	Scores      Scores
	ProcessedAt time.Time
}

type annotateRequest struct {
	Requests []annotateItem `json:"requests"`
}

type annotateItem struct {
	Image   annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Source struct {
		ImageURI string `json:"imageUri"`
	} `json:"source"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		SafeSearchAnnotation *SafeSearch `json:"safeSearchAnnotation"`
		Error                *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// AnnotateURL runs safe-search detection on a publicly reachable image URL.
// Any transport, status, or decode failure is returned as an error; the
// caller treats those as classifier failures.
func (c *Client) AnnotateURL(ctx context.Context, imageURL string) (*Annotation, error) {
	item := annotateItem{
		Features: []annotateFeature{{Type: "SAFE_SEARCH_DETECTION"}},
	}
	item.Image.Source.ImageURI = imageURL
	reqBody := annotateRequest{Requests: []annotateItem{item}}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.config.Endpoint + "/v1/images:annotate"
	if c.config.APIKey != "" {
		url += "?key=" + c.config.APIKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call safe-search API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("safe-search API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp annotateResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResp.Responses) == 0 {
		return nil, fmt.Errorf("safe-search API returned no responses")
	}
	r := apiResp.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("safe-search API error (code %d): %s", r.Error.Code, r.Error.Message)
	}
	if r.SafeSearchAnnotation == nil {
		return nil, fmt.Errorf("safe-search API response missing annotation")
	}

	ss := *r.SafeSearchAnnotation
	return &Annotation{
		SafeSearch:  ss,
		Scores:      ss.Scores(),
		ProcessedAt: time.Now(),
	}, nil
}

// Ping checks whether the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("safe-search API not reachable at %s: %w", c.config.Endpoint, err)
	}
	resp.Body.Close()
	return nil
}
