package storage

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

// Config points the client at a supabase-compatible storage
// service and the bucket holding uploaded training archives.
type Config struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
}

// Client issues signed URLs and deletes objects. All operations
// are scoped to the configured bucket.
type Client struct {
	cfg    Config
	client *http.Client
}

// New constructs a storage client. A nil http.Client falls back
// to a default with a 30s timeout.
func New(cfg Config, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, client: client}
}

// SignedUploadURL mints a short-lived URL a client can PUT the
// training archive to, under the given object key.
func (c *Client) SignedUploadURL(ctx context.Context, key string) (string, error) {
	path := fmt.Sprintf("/object/upload/sign/%s/%s", c.cfg.Bucket, key)

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", errors.New("storage returned an empty upload url")
	}
	return c.absolute(resp.URL), nil
}

// SignedDownloadURL mints a short-lived URL for reading the
// object at key, valid for ttl.
func (c *Client) SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	path := fmt.Sprintf("/object/sign/%s/%s", c.cfg.Bucket, key)
	body := map[string]interface{}{"expiresIn": int(ttl.Seconds())}

	var resp struct {
		SignedURL string `json:"signedURL"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	if resp.SignedURL == "" {
		return "", errors.New("storage returned an empty download url")
	}
	return c.absolute(resp.SignedURL), nil
}

// Delete removes the object at key from the bucket.
func (c *Client) Delete(ctx context.Context, key string) error {
	path := fmt.Sprintf("/object/%s/%s", c.cfg.Bucket, key)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) absolute(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return c.cfg.BaseURL + "/" + strings.TrimLeft(url, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
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

	req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf(
			"storage responded %d to %s %s: %s",
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
