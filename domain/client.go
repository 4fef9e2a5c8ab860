package domain

import "time"

// Client represents a registered OAuth 2.0 client application.
type Client struct {
	ID           string    `json:"id"`
	Secret       string    `json:"secret,omitempty"` // empty for public clients
	Name         string    `json:"name,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	Active       bool      `json:"active"`
	Revoked      bool      `json:"revoked"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public reports whether the client was registered without a secret.
func (c *Client) Public() bool {
	return c.Secret == ""
}

// HasRedirectURI reports whether uri matches one of the registered redirect
// URIs byte-for-byte. No normalization is applied.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
