package deploy

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

type ConfigFetcher interface {
	Fetch(ctx context.Context, slug, commitID string) (*ConfigResponse, error)
}

type ConfigResponse struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (r *ConfigResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *ConfigResponse) NotFound() bool {
	return r.StatusCode == http.StatusNotFound
}

// HTTPConfigFetcher reads replit-deploy.json from a raw content host. It makes
// a single unauthenticated attempt per call.
type HTTPConfigFetcher struct {
	Host   string
	Client *http.Client
}

func NewHTTPConfigFetcher(host string, client *http.Client) *HTTPConfigFetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPConfigFetcher{
		Host:   host,
		Client: client,
	}
}

func (f *HTTPConfigFetcher) Fetch(ctx context.Context, slug, commitID string) (*ConfigResponse, error) {
	url := ConfigURL(f.Host, slug, commitID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build config request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	out := &ConfigResponse{
		URL:        url,
		StatusCode: resp.StatusCode,
	}

	if !out.OK() {
		return out, nil
	}

	out.Body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}

	return out, nil
}
