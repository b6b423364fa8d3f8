package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config carries the provider credentials and trainer selection.
type Config struct {
	BaseURL  string
	Token    string
	Owner    string
	Trainer  string
	Version  string
	Hardware string
}

// Client is a narrow HTTP client for the training provider's API.
type Client struct {
	cfg    Config
	client *http.Client
}

// New constructs a provider client. A nil http.Client falls back
// to a default with a 30s timeout.
func New(cfg Config, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, client: client}
}

// Training is the provider's view of a training run.
type Training struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TrainingRequest describes a training run to start.
type TrainingRequest struct {
	Destination string                 `json:"destination"`
	Input       map[string]interface{} `json:"input"`
	WebhookURL  string                 `json:"webhook"`
	Events      []string               `json:"webhook_events_filter"`
}

// CreateModel registers a private destination model under the
// configured owner.
func (c *Client) CreateModel(ctx context.Context, name string) error {
	body := map[string]interface{}{
		"owner":      c.cfg.Owner,
		"name":       name,
		"visibility": "private",
		"hardware":   c.cfg.Hardware,
	}
	return c.do(ctx, http.MethodPost, "/models", body, nil)
}

// CreateTraining starts a training run against the configured
// trainer version.
func (c *Client) CreateTraining(ctx context.Context, req TrainingRequest) (*Training, error) {
	path := fmt.Sprintf("/models/%s/versions/%s/trainings", c.cfg.Trainer, c.cfg.Version)

	var training Training
	if err := c.do(ctx, http.MethodPost, path, req, &training); err != nil {
		return nil, err
	}
	return &training, nil
}

// DefaultWebhookSecret fetches the shared secret used to sign
// webhook deliveries for this account.
func (c *Client) DefaultWebhookSecret(ctx context.Context) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodGet, "/webhooks/default/secret", nil, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", errors.New("provider returned an empty webhook secret")
	}
	return resp.Key, nil
}

// DeleteModelVersion removes one trained version from a model.
func (c *Client) DeleteModelVersion(ctx context.Context, name, version string) error {
	path := fmt.Sprintf("/models/%s/%s/versions/%s", c.cfg.Owner, name, version)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// DeleteModel removes the destination model entirely.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	path := fmt.Sprintf("/models/%s/%s", c.cfg.Owner, name)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Run executes a synchronous prediction against a model ref of
// the form "owner/name" and returns the output image URLs.
func (c *Client) Run(ctx context.Context, model string, input map[string]interface{}) ([]string, error) {
	path := fmt.Sprintf("/models/%s/predictions", model)
	body := map[string]interface{}{"input": input}

	var resp struct {
		Output []string `json:"output"`
		Error  string   `json:"error"`
	}
	if err := c.doWithHeaders(ctx, http.MethodPost, path, body, &resp, map[string]string{
		"Prefer": "wait",
	}); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.Errorf("prediction failed: %s", resp.Error)
	}
	return resp.Output, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.doWithHeaders(ctx, method, path, body, out, nil)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path string, body, out interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf(
			"provider responded %d to %s %s: %s",
			resp.StatusCode, method, path, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}

	return nil
}
