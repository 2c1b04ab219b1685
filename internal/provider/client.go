// Package provider talks to the upstream open-banking API: the consent URL,
// the authorization-code exchange and the data endpoints.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	maxTokenResponseBytes = 1 << 20
	// DefaultMaxDataBytes caps account and transaction payloads.
	DefaultMaxDataBytes = 32 << 20
)

var ErrResponseTooLarge = errors.New("upstream response too large")

type Config struct {
	ClientID     string
	ClientSecret string
	AuthURI      string
	TokenURI     string
	RedirectURI  string
	APIURI       string
	// AccountID pins the account whose transactions are fetched. When empty
	// the first account returned by the accounts endpoint is used.
	AccountID string
	// MaxDataBytes caps data endpoint bodies. Zero means DefaultMaxDataBytes.
	MaxDataBytes int64
	HTTPClient   *http.Client
}

type Client struct {
	clientID     string
	clientSecret string
	authURI      string
	tokenURI     string
	redirectURI  string
	apiURI       string
	accountID    string
	maxDataBytes int64
	httpClient   *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	maxDataBytes := cfg.MaxDataBytes
	if maxDataBytes <= 0 {
		maxDataBytes = DefaultMaxDataBytes
	}

	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		authURI:      strings.TrimRight(cfg.AuthURI, "/"),
		tokenURI:     cfg.TokenURI,
		redirectURI:  cfg.RedirectURI,
		apiURI:       strings.TrimRight(cfg.APIURI, "/"),
		accountID:    cfg.AccountID,
		maxDataBytes: maxDataBytes,
		httpClient:   httpClient,
	}
}

// do sends req and returns the status with the body. A body longer than
// limit is an ErrResponseTooLarge, never a truncated payload.
func (c *Client) do(req *http.Request, limit int64) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > limit {
		return resp.StatusCode, nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) get(ctx context.Context, path, accessToken string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURI+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, c.maxDataBytes)
	if err != nil {
		return 0, nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return status, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
