package oauth

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
)

// User codes avoid vowels and ambiguous glyphs so they survive being read
// aloud and typed on a TV remote.
const userCodeCharset = "BCDFGHJKLMNPQRSTVWXZ"

// DeviceCodeGrant implements the device authorization grant (RFC 8628):
// issuance of device/user code pairs and validation of token polls.
type DeviceCodeGrant struct {
	server *Server
}

// NewDeviceCodeGrant creates the device_code grant handler.
func NewDeviceCodeGrant(s *Server) *DeviceCodeGrant {
	return &DeviceCodeGrant{server: s}
}

func (g *DeviceCodeGrant) GrantType() string {
	return GrantTypeDeviceCode
}

// HandleDeviceAuthorizationRequest creates a device authorization: a high
// entropy device_code for the polling client and a short human-enterable
// user_code for the browser session.
func (s *Server) HandleDeviceAuthorizationRequest(ctx context.Context, clientID, scope string) (*domain.DeviceAuthorizationResponse, error) {
	cli, err := s.resolveClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	scopes, err := s.ResolveScopes(ctx, cli, SplitScope(scope))
	if err != nil {
		return nil, err
	}

	deviceCode, err := randomToken(32)
	if err != nil {
		return nil, serrors.NewServerError("failed to generate device code")
	}
	userCode, err := generateUserCode()
	if err != nil {
		return nil, serrors.NewServerError("failed to generate user code")
	}

	now := s.now()
	auth := &domain.DeviceAuth{
		ID:         uuid.NewString(),
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ClientID:   cli.ID,
		Scopes:     scopes,
		Interval:   s.cfg.DeviceInterval,
		ExpiresAt:  now.Add(s.cfg.DeviceCodeTTL),
		CreatedAt:  now,
	}
	if err := s.repo.SaveDeviceAuth(ctx, auth); err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("device auth store failed")
		return nil, serrors.NewServerError("failed to store device authorization")
	}

	resp := &domain.DeviceAuthorizationResponse{
		DeviceCode:      deviceCode,
		UserCode:        userCode,
		VerificationURI: s.cfg.VerificationURI,
		ExpiresIn:       int64(s.cfg.DeviceCodeTTL.Seconds()),
		Interval:        s.cfg.DeviceInterval,
	}
	if s.cfg.VerificationURI != "" {
		resp.VerificationURIComplete = s.cfg.VerificationURI + "?user_code=" + url.QueryEscape(userCode)
	}

	return resp, nil
}

// ApproveDeviceAuth records the user's approval for the authorization
// identified by userCode. Called from the host's verification UI. User codes
// are matched case-insensitively, so typed lowercase input is accepted.
func (s *Server) ApproveDeviceAuth(ctx context.Context, userCode, userID string) error {
	return s.decideDeviceAuth(ctx, userCode, true, userID)
}

// DenyDeviceAuth records the user's denial.
func (s *Server) DenyDeviceAuth(ctx context.Context, userCode string) error {
	return s.decideDeviceAuth(ctx, userCode, false, "")
}

func (s *Server) decideDeviceAuth(ctx context.Context, userCode string, approved bool, userID string) error {
	userCode = strings.ToUpper(strings.TrimSpace(userCode))
	auth, err := s.repo.GetDeviceAuthByUserCode(ctx, userCode)
	if err != nil {
		return serrors.NewInvalidRequest("unknown user code")
	}
	if auth.Expired(s.now()) {
		return serrors.NewExpiredToken("device authorization expired")
	}
	if err := s.repo.SetDeviceAuthDecision(ctx, userCode, approved, userID); err != nil {
		if err == serrors.ErrAlreadyUsed {
			return serrors.NewInvalidRequest("device authorization already decided")
		}
		log.Error().Err(err).Msg("device auth decision store failed")
		return serrors.NewServerError("failed to record decision")
	}
	return nil
}

// Validate checks a token poll from the device. The ordering matters:
// existence, expiry, then the minimum polling interval before the pending
// check, so impatient clients get slow_down instead of authorization_pending.
func (g *DeviceCodeGrant) Validate(ctx context.Context, req *TokenRequest) error {
	s := g.server

	if req.DeviceCode == "" {
		return serrors.NewInvalidRequest("device_code is required")
	}

	cli, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, false)
	if err != nil {
		return err
	}
	req.client = cli

	auth, err := s.repo.GetDeviceAuthByDeviceCode(ctx, req.DeviceCode)
	if err != nil {
		return serrors.NewInvalidGrant("invalid device code")
	}
	if auth.ClientID != cli.ID {
		return serrors.NewInvalidGrant("device code was not issued to this client")
	}

	now := s.now()
	if auth.Expired(now) {
		return serrors.NewExpiredToken("device code expired")
	}
	if auth.UsedAt != nil {
		return serrors.NewInvalidGrant("device code already used")
	}

	interval := time.Duration(auth.Interval) * time.Second
	if !auth.LastPolledAt.IsZero() && now.Sub(auth.LastPolledAt) < interval {
		return serrors.NewSlowDown()
	}
	if err := s.repo.UpdateDeviceAuthLastPolledAt(ctx, req.DeviceCode, now); err != nil {
		log.Error().Err(err).Msg("device auth poll timestamp update failed")
	}

	if auth.Pending() {
		return serrors.NewAuthorizationPending()
	}
	if !*auth.Approved {
		return serrors.NewAccessDenied("the user denied the authorization request")
	}

	req.deviceAuth = auth

	return nil
}

// Issue consumes the approved device authorization and mints tokens.
func (g *DeviceCodeGrant) Issue(ctx context.Context, req *TokenRequest) (*domain.TokenResponse, error) {
	s := g.server

	if err := s.repo.MarkDeviceAuthUsed(ctx, req.deviceAuth.DeviceCode); err != nil {
		if err == serrors.ErrAlreadyUsed {
			return nil, serrors.NewInvalidGrant("device code already used")
		}
		log.Error().Err(err).Str("client_id", req.client.ID).Msg("device auth consume failed")
		return nil, serrors.NewServerError("failed to consume device authorization")
	}

	return s.issueTokens(ctx, req.client, req.deviceAuth.Scopes, req.deviceAuth.UserID, true)
}

func generateUserCode() (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	code := make([]byte, 0, 9)
	for i, b := range raw {
		if i == 4 {
			code = append(code, '-')
		}
		code = append(code, userCodeCharset[int(b)%len(userCodeCharset)])
	}
	return string(code), nil
}
