package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/logging"
)

// PeerCaller issues one assist call against a peer endpoint. The coordinator
// depends on this interface so tests can substitute the HTTP transport.
type PeerCaller interface {
	Assist(ctx context.Context, endpoint string, req AssistRequest) (AssistResponse, error)
}

// ClientOptions configure a Client.
type ClientOptions struct {
	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client
	// Logger receives structured request events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Client talks to a peer agent's HTTP surface.
type Client struct {
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient constructs a peer client.
func NewClient(optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{httpClient: opts.HTTPClient, logger: opts.Logger}
}

// Assist sends one delegated task to a peer and decodes its answer.
func (c *Client) Assist(ctx context.Context, endpoint string, req AssistRequest) (AssistResponse, error) {
	var resp AssistResponse
	if err := c.postJSON(ctx, endpoint+"/assist", req, &resp); err != nil {
		return AssistResponse{}, err
	}
	return resp, nil
}

// Register announces this agent to a peer's directory.
func (c *Client) Register(ctx context.Context, endpoint string, reg Registration) error {
	return c.postJSON(ctx, endpoint+"/registry/register", reg, nil)
}

// Heartbeat reports liveness to a peer's directory.
func (c *Client) Heartbeat(ctx context.Context, endpoint string, hb Heartbeat) error {
	return c.postJSON(ctx, endpoint+"/registry/heartbeat", hb, nil)
}

// Discover queries a peer's directory for agents advertising a capability tag.
func (c *Client) Discover(ctx context.Context, endpoint, capability string) ([]core.PeerRecord, error) {
	u := endpoint + "/registry/discover"
	if capability != "" {
		u += "?capability=" + url.QueryEscape(capability)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build discover request: %w", err)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discover: unexpected status %d", httpResp.StatusCode)
	}

	var recs []core.PeerRecord
	if err := json.NewDecoder(httpResp.Body).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode discover response: %w", err)
	}
	return recs, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer httpResp.Body.Close()

	c.logger.Debug(
		"collab.client.post",
		"url", url,
		"status", httpResp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", url, httpResp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
