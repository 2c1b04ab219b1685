package provider

import (
	"net/url"
	"strings"
)

const (
	consentScopes    = "info%20accounts%20balance%20cards%20transactions%20direct_debits%20standing_orders%20offline_access"
	consentProviders = "uk-ob-all%20uk-oauth-all%20uk-cs-mock"
)

// AuthorizationURL returns the consent URL the user visits to link a bank.
// Parameter order is fixed. state, when non-empty, comes back untouched on
// the callback.
func (c *Client) AuthorizationURL(state string) string {
	var b strings.Builder
	b.WriteString(c.authURI)
	b.WriteString("/?response_type=code")
	b.WriteString("&client_id=")
	b.WriteString(url.QueryEscape(c.clientID))
	b.WriteString("&scope=")
	b.WriteString(consentScopes)
	b.WriteString("&redirect_uri=")
	b.WriteString(url.QueryEscape(c.redirectURI))
	b.WriteString("&providers=")
	b.WriteString(consentProviders)
	if state != "" {
		b.WriteString("&state=")
		b.WriteString(url.QueryEscape(state))
	}
	return b.String()
}
