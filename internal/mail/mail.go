package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Message is one transactional email.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config carries the email provider credentials.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client posts messages to a resend-compatible email API.
type Client struct {
	cfg    Config
	client *http.Client
}

// New constructs an email client. A nil http.Client falls back
// to a default with a 10s timeout.
func New(cfg Config, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, client: client}
}

// Send implements the Sender interface.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("message requires a recipient")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.cfg.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf(
			"email provider responded %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return nil
}
