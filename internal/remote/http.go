package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/resumely/cvsync/internal/types"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 4 << 10
)

// HTTPClient is the shared transport for the HTTP adapters.
type HTTPClient struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token  string
	Client *http.Client
}

func newHTTPClient(baseURL, token string) HTTPClient {
	return HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// postJSON posts body as JSON to path and returns the response body of a 2xx reply.
func (c HTTPClient) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	return data, nil
}

// statusError builds a StatusError, preferring a JSON {"error"|"message"} body.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Message != "":
			msg = body.Message
		case body.Error != "":
			msg = body.Error
		}
	}
	return &StatusError{Status: resp.StatusCode, Message: msg}
}

// HTTPRenderer calls POST {base}/render with the snapshot and returns the HTML body.
type HTTPRenderer struct {
	HTTPClient
}

// NewHTTPRenderer returns a renderer for the service at baseURL.
func NewHTTPRenderer(baseURL, token string) *HTTPRenderer {
	return &HTTPRenderer{HTTPClient: newHTTPClient(baseURL, token)}
}

// Render implements Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, snap types.Snapshot) (string, error) {
	data, err := r.postJSON(ctx, "/render", snap)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HTTPConverter calls POST {base}/convert and returns the binary body.
type HTTPConverter struct {
	HTTPClient
}

// NewHTTPConverter returns a converter for the service at baseURL.
func NewHTTPConverter(baseURL, token string) *HTTPConverter {
	return &HTTPConverter{HTTPClient: newHTTPClient(baseURL, token)}
}

// Convert implements Converter.
func (c *HTTPConverter) Convert(ctx context.Context, req ConvertRequest) ([]byte, error) {
	data, err := c.postJSON(ctx, "/convert", req)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("converter returned an empty document")
	}
	return data, nil
}
