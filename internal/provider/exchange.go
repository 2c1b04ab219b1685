package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var ErrUpstreamExchange = errors.New("upstream token exchange failed")

// ExchangeError carries the provider's answer to a rejected exchange.
// Status is zero when the request never got a response.
type ExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Err != nil && e.Status == 0:
		return fmt.Sprintf("%s: %v", ErrUpstreamExchange, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v: %s", ErrUpstreamExchange, e.Status, e.Err, e.Body)
	default:
		return fmt.Sprintf("%s: status %d: %s", ErrUpstreamExchange, e.Status, e.Body)
	}
}

func (e *ExchangeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamExchange, e.Err}
	}
	return []error{ErrUpstreamExchange}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Exchange trades an authorization code for an access token. One attempt;
// the refresh token is ignored.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {c.redirectURI},
		"code":          {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURI, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, maxTokenResponseBytes)
	if err != nil {
		return "", &ExchangeError{Status: status, Err: err}
	}
	if !isSuccess(status) {
		return "", &ExchangeError{Status: status, Body: string(body)}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", &ExchangeError{Status: status, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		return "", &ExchangeError{Status: status, Body: string(body), Err: errors.New("response has no access_token")}
	}

	return tokenResp.AccessToken, nil
}
