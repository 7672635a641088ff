// ABOUTME: Searcher backed by the Naver local search API
// ABOUTME: Strips highlight markup from titles and maps throttling to a retryable error

package naver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/voyage-gateway/internal/agent"
)

// DefaultEndpoint is the public local search endpoint.
const DefaultEndpoint = "https://openapi.naver.com/v1/search/local.json"

// maxDisplay is the most results the local API returns per call.
const maxDisplay = 5

// ErrRateLimited is returned on HTTP 429.
var ErrRateLimited = errors.New("naver: rate limited")

// Config holds API credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	// Endpoint overrides DefaultEndpoint.
	Endpoint string
	Timeout  time.Duration
}

// Client implements agent.Searcher.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ agent.Searcher = (*Client)(nil)

// New creates a Client. Both credentials are required.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("naver: credentials: %w", agent.ErrUnavailable)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

type localItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Telephone   string `json:"telephone"`
	Address     string `json:"address"`
	RoadAddress string `json:"roadAddress"`
}

var markup = strings.NewReplacer("<b>", "", "</b>", "", "&amp;", "&", "&quot;", `"`, "&lt;", "<", "&gt;", ">")

// SearchPlaces queries the local search API.
func (c *Client) SearchPlaces(ctx context.Context, query string, limit int) ([]agent.Place, error) {
	if limit <= 0 || limit > maxDisplay {
		limit = maxDisplay
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(limit))
	params.Set("start", "1")
	params.Set("sort", "random")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", c.cfg.ClientID)
	req.Header.Set("X-Naver-Client-Secret", c.cfg.ClientSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("local search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data struct {
		Items []localItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding local search: %w", err)
	}

	places := make([]agent.Place, 0, len(data.Items))
	for _, it := range data.Items {
		places = append(places, agent.Place{
			Name:        markup.Replace(it.Title),
			Category:    it.Category,
			Address:     it.Address,
			RoadAddress: it.RoadAddress,
			Telephone:   it.Telephone,
			Link:        it.Link,
			Description: markup.Replace(it.Description),
		})
	}
	return places, nil
}
