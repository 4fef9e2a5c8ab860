// Package discovery resolves and caches OAuth 2.0 authorization server
// metadata (RFC 8414).
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// WellKnownPath is the metadata path relative to the issuer (RFC 8414).
const WellKnownPath = "/.well-known/oauth-authorization-server"

// Metadata is the authorization server metadata document. It is immutable
// once fetched.
type Metadata struct {
	Issuer                             string   `json:"issuer"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint"`
	TokenEndpoint                      string   `json:"token_endpoint"`
	DeviceAuthorizationEndpoint        string   `json:"device_authorization_endpoint,omitempty"`
	PushedAuthorizationRequestEndpoint string   `json:"pushed_authorization_request_endpoint,omitempty"`
	ScopesSupported                    []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported             []string `json:"response_types_supported"`
	GrantTypesSupported                []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported      []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported  []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// SupportsGrantType reports whether the server advertises the grant type.
func (m *Metadata) SupportsGrantType(grantType string) bool {
	for _, g := range m.GrantTypesSupported {
		if g == grantType {
			return true
		}
	}
	return false
}

// Error wraps a metadata resolution failure so callers can branch on the
// failure class without string matching.
type Error struct {
	Issuer string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery failed for issuer %s: %v", e.Issuer, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client fetches metadata documents and caches them per issuer for the
// process lifetime. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cache      sync.Map // issuer -> *Metadata
}

// NewClient creates a discovery client. A nil httpClient gets a default with
// a 10 second timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// Discover resolves the metadata document for an issuer, serving repeated
// calls from the cache.
func (c *Client) Discover(ctx context.Context, issuer string) (*Metadata, error) {
	if cached, ok := c.cache.Load(issuer); ok {
		return cached.(*Metadata), nil
	}

	metadataURL := strings.TrimSuffix(issuer, "/") + WellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, &Error{Issuer: issuer, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Issuer: issuer, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Issuer: issuer, Err: fmt.Errorf("metadata request returned status %d", resp.StatusCode)}
	}

	var doc Metadata
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &Error{Issuer: issuer, Err: fmt.Errorf("failed to decode metadata document: %w", err)}
	}

	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return nil, &Error{Issuer: issuer, Err: fmt.Errorf("metadata document is missing required endpoints")}
	}

	c.cache.Store(issuer, &doc)
	log.Debug().Str("issuer", issuer).Str("token_endpoint", doc.TokenEndpoint).Msg("authorization server metadata resolved")

	return &doc, nil
}
