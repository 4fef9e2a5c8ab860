package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.pilab.hu/oauth"
	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
	"go.pilab.hu/oauth/tokenstore"
)

// DefaultPollTimeout bounds the whole polling operation, independent of the
// device code TTL.
const DefaultPollTimeout = 300 * time.Second

// slowDownStep is the RFC 8628 mandated interval increase on slow_down.
const slowDownStep = 5 * time.Second

// PollOptions tunes PollDeviceToken. Zero values take defaults.
type PollOptions struct {
	// Timeout bounds the whole polling loop. Defaults to DefaultPollTimeout.
	Timeout time.Duration
}

// RequestDeviceAuthorization starts a device authorization flow, returning
// the codes to display and poll with.
func (c *Client) RequestDeviceAuthorization(ctx context.Context, scopes ...string) (*domain.DeviceAuthorizationResponse, error) {
	meta, err := c.discovery.Discover(ctx, c.cfg.Issuer)
	if err != nil {
		return nil, err
	}
	if meta.DeviceAuthorizationEndpoint == "" {
		return nil, &serrors.OAuth2Error{
			Code:        serrors.InvalidRequest,
			Description: "authorization server does not advertise a device authorization endpoint",
		}
	}

	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.DeviceAuthorizationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build device authorization request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.pipeline.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: meta.DeviceAuthorizationEndpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var oauthErr serrors.OAuth2Error
		if err := json.NewDecoder(resp.Body).Decode(&oauthErr); err != nil || oauthErr.Code == "" {
			return nil, fmt.Errorf("device authorization endpoint returned status %d", resp.StatusCode)
		}
		return nil, &oauthErr
	}

	var deviceResp domain.DeviceAuthorizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&deviceResp); err != nil {
		return nil, fmt.Errorf("failed to decode device authorization response: %w", err)
	}

	return &deviceResp, nil
}

// PollDeviceToken polls the token endpoint until the user approves or denies
// the authorization, the device code expires, the overall timeout elapses, or
// ctx is cancelled. Each cycle sleeps the server-assigned interval first;
// slow_down raises the interval by 5 seconds. The timeout bounds the whole
// operation including any in-flight token request, so a stalled endpoint
// cannot stretch the loop past its deadline. Cancellation interrupts an
// in-flight sleep promptly. Tokens are persisted on success.
func (c *Client) PollDeviceToken(ctx context.Context, auth *domain.DeviceAuthorizationResponse, opts PollOptions) (*tokenstore.Tokens, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultPollTimeout
	}

	interval := time.Duration(auth.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", oauth.GrantTypeDeviceCode)
	form.Set("device_code", auth.DeviceCode)
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	for {
		wait := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, pollExitErr(parent, timeout)
		case <-wait.C:
		}

		resp, err := c.tokenRequest(ctx, form)
		if err != nil && ctx.Err() != nil {
			return nil, pollExitErr(parent, timeout)
		}
		if err == nil {
			tokens := &tokenstore.Tokens{
				AccessToken:  resp.AccessToken,
				RefreshToken: resp.RefreshToken,
				TokenType:    resp.TokenType,
				ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
				Scopes:       oauth.SplitScope(resp.Scope),
			}
			if storeErr := c.store.Set(ctx, c.cfg.ClientID, tokens); storeErr != nil {
				return nil, fmt.Errorf("failed to store tokens: %w", storeErr)
			}
			return tokens, nil
		}

		var oauthErr *serrors.OAuth2Error
		if !errors.As(err, &oauthErr) {
			return nil, err
		}

		switch oauthErr.Code {
		case serrors.AuthorizationPending:
			// keep polling at the current interval
		case serrors.SlowDown:
			interval += slowDownStep
		default:
			// expired_token, access_denied, and anything else terminate.
			return nil, oauthErr
		}
	}
}

// pollExitErr distinguishes caller cancellation from the overall polling
// timeout once the derived context is done.
func pollExitErr(parent context.Context, timeout time.Duration) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return &PollingTimeoutError{Timeout: timeout}
}
