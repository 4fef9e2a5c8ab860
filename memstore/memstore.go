// Package memstore provides an in-memory implementation of the domain
// repositories, used by the daemon for single-node deployments and by the
// test suite. The single-use marks are taken under one mutex so the
// compare-and-set contract holds for concurrent exchanges in-process.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
)

// Store implements domain.OAuthRepository in memory.
type Store struct {
	mu sync.Mutex

	clients map[string]*domain.Client
	scopes  []string

	authCodes   *ttlcache.Cache[string, *domain.AuthCode]
	deviceAuths *ttlcache.Cache[string, *domain.DeviceAuth]
	userCodes   *ttlcache.Cache[string, string] // user_code -> device_code
	requests    *ttlcache.Cache[string, *domain.AuthRequest]
	refresh     *ttlcache.Cache[string, *domain.RefreshToken]
}

var _ domain.OAuthRepository = (*Store)(nil)

// New creates an empty store. Expired records are evicted automatically.
func New() *Store {
	s := &Store{
		clients:     make(map[string]*domain.Client),
		authCodes:   ttlcache.New(ttlcache.WithDisableTouchOnHit[string, *domain.AuthCode]()),
		deviceAuths: ttlcache.New(ttlcache.WithDisableTouchOnHit[string, *domain.DeviceAuth]()),
		userCodes:   ttlcache.New(ttlcache.WithDisableTouchOnHit[string, string]()),
		requests:    ttlcache.New(ttlcache.WithDisableTouchOnHit[string, *domain.AuthRequest]()),
		refresh:     ttlcache.New(ttlcache.WithDisableTouchOnHit[string, *domain.RefreshToken]()),
	}
	go s.authCodes.Start()
	go s.deviceAuths.Start()
	go s.userCodes.Start()
	go s.requests.Start()
	go s.refresh.Start()
	return s
}

// Close stops the eviction goroutines.
func (s *Store) Close() error {
	s.authCodes.Stop()
	s.deviceAuths.Stop()
	s.userCodes.Stop()
	s.requests.Stop()
	s.refresh.Stop()
	return nil
}

// AddClient registers a client.
func (s *Store) AddClient(cli *domain.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[cli.ID] = cli
}

// SetScopes replaces the set of scopes the server knows about.
func (s *Store) SetScopes(scopes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = append([]string(nil), scopes...)
}

func (s *Store) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cli, ok := s.clients[clientID]
	if !ok {
		return nil, serrors.ErrClientNotFound
	}
	return cli, nil
}

func (s *Store) ListScopes(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scopes...), nil
}

func (s *Store) SaveAuthCode(_ context.Context, code *domain.AuthCode) error {
	s.authCodes.Set(code.Code, code, time.Until(code.ExpiresAt))
	return nil
}

func (s *Store) GetAuthCode(_ context.Context, code string) (*domain.AuthCode, error) {
	item := s.authCodes.Get(code)
	if item == nil {
		return nil, serrors.ErrAuthCodeNotFound
	}
	return item.Value(), nil
}

func (s *Store) MarkAuthCodeUsed(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.authCodes.Get(code)
	if item == nil {
		return serrors.ErrAuthCodeNotFound
	}
	authCode := item.Value()
	if authCode.UsedAt != nil {
		return serrors.ErrAlreadyUsed
	}
	now := time.Now()
	authCode.UsedAt = &now
	return nil
}

func (s *Store) SaveDeviceAuth(_ context.Context, auth *domain.DeviceAuth) error {
	ttl := time.Until(auth.ExpiresAt)
	s.deviceAuths.Set(auth.DeviceCode, auth, ttl)
	s.userCodes.Set(auth.UserCode, auth.DeviceCode, ttl)
	return nil
}

func (s *Store) GetDeviceAuthByDeviceCode(_ context.Context, deviceCode string) (*domain.DeviceAuth, error) {
	item := s.deviceAuths.Get(deviceCode)
	if item == nil {
		return nil, serrors.ErrDeviceCodeNotFound
	}
	return item.Value(), nil
}

func (s *Store) GetDeviceAuthByUserCode(ctx context.Context, userCode string) (*domain.DeviceAuth, error) {
	item := s.userCodes.Get(userCode)
	if item == nil {
		return nil, serrors.ErrUserCodeNotFound
	}
	return s.GetDeviceAuthByDeviceCode(ctx, item.Value())
}

func (s *Store) SetDeviceAuthDecision(ctx context.Context, userCode string, approved bool, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	auth, err := s.GetDeviceAuthByUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	if auth.Approved != nil {
		return serrors.ErrAlreadyUsed
	}
	auth.Approved = &approved
	auth.UserID = userID
	return nil
}

func (s *Store) UpdateDeviceAuthLastPolledAt(_ context.Context, deviceCode string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.deviceAuths.Get(deviceCode)
	if item == nil {
		return serrors.ErrDeviceCodeNotFound
	}
	item.Value().LastPolledAt = at
	return nil
}

func (s *Store) MarkDeviceAuthUsed(_ context.Context, deviceCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.deviceAuths.Get(deviceCode)
	if item == nil {
		return serrors.ErrDeviceCodeNotFound
	}
	auth := item.Value()
	if auth.UsedAt != nil {
		return serrors.ErrAlreadyUsed
	}
	now := time.Now()
	auth.UsedAt = &now
	return nil
}

func (s *Store) SaveAuthRequest(_ context.Context, req *domain.AuthRequest) error {
	s.requests.Set(req.RequestURI, req, time.Until(req.ExpiresAt))
	return nil
}

func (s *Store) GetAuthRequest(_ context.Context, requestURI string) (*domain.AuthRequest, error) {
	item := s.requests.Get(requestURI)
	if item == nil {
		return nil, serrors.ErrAuthRequestNotFound
	}
	return item.Value(), nil
}

func (s *Store) MarkAuthRequestUsed(_ context.Context, requestURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.requests.Get(requestURI)
	if item == nil {
		return serrors.ErrAuthRequestNotFound
	}
	req := item.Value()
	if req.UsedAt != nil {
		return serrors.ErrAlreadyUsed
	}
	now := time.Now()
	req.UsedAt = &now
	return nil
}

func (s *Store) SaveRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	s.refresh.Set(token.Token, token, time.Until(token.ExpiresAt))
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	item := s.refresh.Get(token)
	if item == nil {
		return nil, serrors.ErrRefreshTokenNotFound
	}
	return item.Value(), nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.refresh.Get(token)
	if item == nil {
		return serrors.ErrRefreshTokenNotFound
	}
	item.Value().Revoked = true
	return nil
}
