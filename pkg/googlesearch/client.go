// Package googlesearch provides a client for the Google Custom Search JSON API.
package googlesearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// Client performs Google Custom Search operations.
type Client interface {
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the response from the Custom Search JSON API.
type SearchResponse struct {
	Kind              string            `json:"kind"`
	SearchInformation SearchInformation `json:"searchInformation"`
	Items             []Item            `json:"items"`
}

// SearchInformation summarizes the result set.
type SearchInformation struct {
	TotalResults string `json:"totalResults"`
}

// Item is a single search result.
type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
}

// SearchOption adjusts a single search call.
type SearchOption func(*searchParams)

type searchParams struct {
	num     int
	gl      string
	siteURL string
}

// WithNum limits the number of results (the API caps this at 10).
func WithNum(n int) SearchOption {
	return func(p *searchParams) {
		p.num = n
	}
}

// WithCountry biases results toward a country code, e.g. "pt".
func WithCountry(gl string) SearchOption {
	return func(p *searchParams) {
		p.gl = gl
	}
}

// WithSite restricts results to a single site.
func WithSite(site string) SearchOption {
	return func(p *searchParams) {
		p.siteURL = site
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey   string
	engineID string
	baseURL  string
	http     *http.Client
}

// NewClient creates a Google Custom Search client bound to one search engine.
func NewClient(apiKey, engineID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	params := searchParams{num: 10}
	for _, o := range opts {
		o(&params)
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.engineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(params.num))
	if params.gl != "" {
		q.Set("gl", params.gl)
	}
	if params.siteURL != "" {
		q.Set("siteSearch", params.siteURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "googlesearch: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "googlesearch: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "googlesearch: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("googlesearch: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "googlesearch: unmarshal response")
	}

	return &result, nil
}
