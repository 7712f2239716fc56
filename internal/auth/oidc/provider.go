// Package oidc implements single sign-on against an OpenID Connect provider.
// SSO only authenticates: the returned Identity must match an existing
// profile, and the role always comes from that profile.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/diligence-portal/portal/internal/config"
	"golang.org/x/oauth2"
)

// Identity is the verified subset of ID token claims the portal uses.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Provider wraps provider discovery, the code flow and ID token checks.
type Provider struct {
	verifier   *oidc.IDTokenVerifier
	oauth      *oauth2.Config
	endSession string
}

// NewProvider runs discovery against cfg.IssuerURL, bounded by ctx.
func NewProvider(ctx context.Context, cfg config.OIDCConfig) (*Provider, error) {
	switch {
	case !cfg.Enabled:
		return nil, errors.New("OIDC is not enabled")
	case cfg.IssuerURL == "":
		return nil, errors.New("OIDC issuer URL is required")
	case cfg.ClientID == "":
		return nil, errors.New("OIDC client ID is required")
	case cfg.ClientSecret == "":
		return nil, errors.New("OIDC client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	var discovery struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	_ = provider.Claims(&discovery)

	return &Provider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		endSession: discovery.EndSessionEndpoint,
	}, nil
}

// AuthCodeURL builds the authorization redirect. nonce is echoed in the ID
// token; pkceVerifier is kept by the caller and handed back to Exchange.
func (p *Provider) AuthCodeURL(state, nonce, pkceVerifier string) string {
	return p.oauth.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(pkceVerifier))
}

// EndSessionURL is the provider's logout endpoint, or "" if it has none.
func (p *Provider) EndSessionURL() string {
	return p.endSession
}

// Exchange redeems an authorization code, verifies the ID token and its
// nonce, and returns the identity it asserts.
func (p *Provider) Exchange(ctx context.Context, code, pkceVerifier, nonce string) (*Identity, error) {
	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(pkceVerifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("token response has no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("ID token nonce mismatch")
	}
	return identityFromToken(idToken)
}

type claimSource interface {
	Claims(v any) error
}

func identityFromToken(tok claimSource) (*Identity, error) {
	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	if claims.Sub == "" {
		return nil, errors.New("ID token missing 'sub' claim")
	}
	if claims.Email == "" {
		return nil, errors.New("ID token missing 'email' claim")
	}

	id := &Identity{
		Subject: claims.Sub,
		Email:   claims.Email,
		Name:    claims.Name,
		// Providers that omit email_verified are trusted to have verified it.
		EmailVerified: claims.EmailVerified == nil || *claims.EmailVerified,
	}
	if id.Name == "" {
		id.Name = id.Email
	}
	return id, nil
}
