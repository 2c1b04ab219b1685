package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

var ErrNoAccounts = errors.New("upstream returned no accounts")

// Response is an upstream reply kept verbatim so non-2xx payloads can be
// handed back to the caller untouched.
type Response struct {
	Status int
	Body   []byte
}

func (r Response) OK() bool {
	return isSuccess(r.Status)
}

type accountsResponse struct {
	Results []struct {
		AccountID string `json:"account_id"`
	} `json:"results"`
}

// Transactions fetches the transaction list of the configured account, or
// of the first account the token can see.
func (c *Client) Transactions(ctx context.Context, accessToken string) (Response, error) {
	accountID := c.accountID
	if accountID == "" {
		resp, id, err := c.firstAccount(ctx, accessToken)
		if err != nil {
			return Response{}, err
		}
		if !resp.OK() {
			return resp, nil
		}
		accountID = id
	}

	status, body, err := c.get(ctx, "/data/v1/accounts/"+url.PathEscape(accountID)+"/transactions", accessToken)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: status, Body: body}, nil
}

func (c *Client) firstAccount(ctx context.Context, accessToken string) (Response, string, error) {
	status, body, err := c.get(ctx, "/data/v1/accounts", accessToken)
	if err != nil {
		return Response{}, "", err
	}
	resp := Response{Status: status, Body: body}
	if !resp.OK() {
		return resp, "", nil
	}

	var accounts accountsResponse
	if err := json.Unmarshal(body, &accounts); err != nil {
		return Response{}, "", fmt.Errorf("decode accounts: %w", err)
	}
	for _, account := range accounts.Results {
		if account.AccountID != "" {
			return resp, account.AccountID, nil
		}
	}
	return Response{}, "", ErrNoAccounts
}
