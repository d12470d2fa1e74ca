package titledata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	id "conveyance/pkg/domain"
	"conveyance/pkg/platform/sentinel"
)

// HTTPClient talks to the title API over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type HTTPOption func(*HTTPClient)

func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) { c.logger = l }
}

func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Get(ctx context.Context, titleNumber id.TitleNumber) (Data, error) {
	u := fmt.Sprintf("%s/v1/titles/%s", c.baseURL, url.PathEscape(string(titleNumber)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Data{}, fmt.Errorf("titledata: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "title api unreachable", "title_number", titleNumber, "error", err)
		return Data{}, fmt.Errorf("titledata: fetch %s: %w", titleNumber, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Data{}, fmt.Errorf("title %s: %w", titleNumber, sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		c.logger.ErrorContext(ctx, "title api error", "title_number", titleNumber, "status", resp.StatusCode)
		return Data{}, fmt.Errorf("titledata: fetch %s: status %d: %w", titleNumber, resp.StatusCode, sentinel.ErrUnavailable)
	}

	var data Data
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		// Malformed registry data is a source fault, same as a 5xx.
		c.logger.ErrorContext(ctx, "title api returned malformed body", "title_number", titleNumber, "error", err)
		return Data{}, fmt.Errorf("titledata: decode response: %v: %w", err, sentinel.ErrUnavailable)
	}
	return data, nil
}
