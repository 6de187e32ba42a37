package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/khrj/repl.deploy/signer"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, endpoint any, body []byte, signature string) error
}

type HTTPDispatcher struct {
	Client *http.Client
}

func NewHTTPDispatcher(client *http.Client) *HTTPDispatcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPDispatcher{Client: client}
}

// Dispatch POSTs the signed body to endpoint. Every failure, including an
// endpoint that is not a string, is returned as an error.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, endpoint any, body []byte, signature string) error {
	url, ok := endpoint.(string)
	if !ok {
		return fmt.Errorf("endpoint is %T, not a string", endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build redeploy request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signer.SignatureHeader, signature)

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("redeploy request failed: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("redeploy endpoint responded with %s", resp.Status)
	}

	return nil
}
