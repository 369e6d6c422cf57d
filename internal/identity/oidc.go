package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// OIDCConfig configures the OAuth authorization-code flow.
type OIDCConfig struct {
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"clientID"`
	ClientSecret string   `yaml:"clientSecret"`
	RedirectURL  string   `yaml:"redirectURL"`
	Scopes       []string `yaml:"scopes"`
	// UseAccessToken sends the OAuth access token to the backend instead of the ID token.
	UseAccessToken bool `yaml:"useAccessToken"`
}

// URLOpener presents the authorization URL to the user.
type URLOpener func(authURL string) error

type pendingSignIn struct {
	verifier  string
	createdAt time.Time
}

// OIDCProvider drives sign-in against an OpenID Connect issuer with PKCE.
type OIDCProvider struct {
	emitter
	oauth         oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	useAccess     bool
	open          URLOpener
	restore       PersistedSource
	httpClient    *http.Client

	mu      sync.Mutex
	pending map[string]pendingSignIn
	token   *oauth2.Token
	current *Snapshot
}

const pendingSignInTTL = 10 * time.Minute

// NewOIDCProvider discovers the issuer configuration.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, open URLOpener, restore PersistedSource) (*OIDCProvider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, pkgerrors.Newf(pkgerrors.InvalidParams, "oidc issuer and clientID are required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.IdentityProviderFailed, "failed to discover OIDC provider: %v", err)
	}
	var discovery struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&discovery); err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.IdentityProviderFailed, "failed to read OIDC discovery: %v", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile", oidc.ScopeOfflineAccess}
	}
	return &OIDCProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier:      provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		revocationURL: discovery.RevocationEndpoint,
		useAccess:     cfg.UseAccessToken,
		open:          open,
		restore:       restore,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		pending:       make(map[string]pendingSignIn),
	}, nil
}

func (p *OIDCProvider) Session(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	if p.current != nil {
		snap := *p.current
		p.mu.Unlock()
		return &snap, nil
	}
	p.mu.Unlock()

	if p.restore == nil {
		return nil, nil
	}
	raw, err := p.restore.Persisted(ctx)
	if err != nil || raw == "" {
		return nil, err
	}
	var snap *Snapshot
	if p.useAccess {
		snap, err = SnapshotFromToken(raw, time.Now())
	} else {
		snap, err = p.verifyIDToken(ctx, raw)
	}
	if err != nil {
		logger.Info(ctx, "persisted token ignored", zap.Error(err))
		return nil, nil
	}
	p.mu.Lock()
	p.current = snap
	p.mu.Unlock()
	copied := *snap
	return &copied, nil
}

// SignIn creates a PKCE challenge and hands the authorization URL to the opener.
func (p *OIDCProvider) SignIn(ctx context.Context) error {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	p.mu.Lock()
	p.prunePendingLocked(time.Now())
	p.pending[state] = pendingSignIn{verifier: verifier, createdAt: time.Now()}
	p.mu.Unlock()

	if p.open == nil {
		return pkgerrors.Newf(pkgerrors.IdentityProviderFailed, "no way to open %s", authURL)
	}
	if err := p.open(authURL); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.IdentityProviderFailed, "open sign-in page failed: %v", err)
	}
	logger.Info(ctx, "sign-in started", zap.String("state", state))
	return nil
}

// HandleCallback completes the redirect flow and emits the login event.
func (p *OIDCProvider) HandleCallback(ctx context.Context, state, code string) error {
	p.mu.Lock()
	pending, ok := p.pending[state]
	delete(p.pending, state)
	p.mu.Unlock()
	if !ok || time.Since(pending.createdAt) > pendingSignInTTL {
		return pkgerrors.New(pkgerrors.SignInStateMismatch)
	}
	if code == "" {
		return pkgerrors.ValidationError("code", "authorization code is empty")
	}

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.IdentityProviderFailed, "token exchange failed: %v", err)
	}
	snap, err := p.snapshotFromOAuth(ctx, tok)
	if err != nil {
		return err
	}
	p.install(tok, snap)
	return nil
}

// Refresh exchanges the refresh token and emits the refreshed session.
func (p *OIDCProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	current := p.token
	p.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return pkgerrors.Newf(pkgerrors.IdentityProviderFailed, "no refresh token available")
	}

	// TokenSource only refreshes expired tokens, so hand it an expired copy.
	stale := *current
	stale.Expiry = time.Now().Add(-time.Minute)
	tok, err := p.oauth.TokenSource(ctx, &stale).Token()
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.IdentityProviderFailed, "token refresh failed: %v", err)
	}
	snap, err := p.snapshotFromOAuth(ctx, tok)
	if err != nil {
		return err
	}
	p.install(tok, snap)
	return nil
}

// SignOut revokes the refresh (or access) token when the issuer supports it.
// The local session is dropped and the logout event emitted regardless.
func (p *OIDCProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	tok := p.token
	p.token = nil
	p.current = nil
	p.mu.Unlock()

	var revokeErr error
	if tok != nil && p.revocationURL != "" {
		revokeErr = p.revoke(ctx, tok)
	}
	p.emit(nil)
	return revokeErr
}

func (p *OIDCProvider) install(tok *oauth2.Token, snap *Snapshot) {
	p.mu.Lock()
	p.token = tok
	p.current = snap
	p.mu.Unlock()
	p.emit(snap)
}

func (p *OIDCProvider) snapshotFromOAuth(ctx context.Context, tok *oauth2.Token) (*Snapshot, error) {
	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, pkgerrors.Newf(pkgerrors.IdentityProviderFailed, "token response has no id_token")
	}
	snap, err := p.verifyIDToken(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if p.useAccess {
		snap.Token = tok.AccessToken
		snap.ExpiresAt = tok.Expiry
	}
	return snap, nil
}

func (p *OIDCProvider) verifyIDToken(ctx context.Context, raw string) (*Snapshot, error) {
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.TokenInvalid, "id token verification failed: %v", err)
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.TokenInvalid, "id token claims invalid: %v", err)
	}
	return &Snapshot{Subject: idToken.Subject, Email: claims.Email, Token: raw, ExpiresAt: idToken.Expiry}, nil
}

func (p *OIDCProvider) revoke(ctx context.Context, tok *oauth2.Token) error {
	form := url.Values{}
	if tok.RefreshToken != "" {
		form.Set("token", tok.RefreshToken)
		form.Set("token_type_hint", "refresh_token")
	} else {
		form.Set("token", tok.AccessToken)
		form.Set("token_type_hint", "access_token")
	}
	form.Set("client_id", p.oauth.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.RequestBuildFailed, "build revoke request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.oauth.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(p.oauth.ClientID), url.QueryEscape(p.oauth.ClientSecret))
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return pkgerrors.TransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Newf(pkgerrors.IdentityProviderFailed, "revoke returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (p *OIDCProvider) prunePendingLocked(now time.Time) {
	for state, pending := range p.pending {
		if now.Sub(pending.createdAt) > pendingSignInTTL {
			delete(p.pending, state)
		}
	}
}

// String is used in logs.
func (p *OIDCProvider) String() string {
	return fmt.Sprintf("oidc(%s)", p.oauth.ClientID)
}
