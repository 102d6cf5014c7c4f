// Package oidc verifies bearer tokens issued by an external OpenID Connect provider.
// Discovery runs once at startup; key rotation is handled by the provider's remote key set.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/lanehq/lanehq/internal/auth"
	"github.com/lanehq/lanehq/internal/config"
)

const defaultScopeClaim = "scope"

// Verifier wraps an ID token verifier and maps its claims onto an auth.Principal.
type Verifier struct {
	verifier   *oidc.IDTokenVerifier
	scopeClaim string
}

// NewVerifier performs OIDC discovery against cfg.IssuerURL.
func NewVerifier(ctx context.Context, cfg config.OIDCConfig) (*Verifier, error) {
	if !cfg.Enabled {
		return nil, errors.New("OIDC is not enabled")
	}
	if cfg.IssuerURL == "" {
		return nil, errors.New("OIDC issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("OIDC client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return newVerifier(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg.ScopeClaim), nil
}

// NewStaticVerifier builds a verifier over a fixed key set without discovery.
func NewStaticVerifier(issuer string, keys oidc.KeySet, cfg config.OIDCConfig) *Verifier {
	return newVerifier(oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: cfg.ClientID}), cfg.ScopeClaim)
}

func newVerifier(v *oidc.IDTokenVerifier, scopeClaim string) *Verifier {
	if scopeClaim == "" {
		scopeClaim = defaultScopeClaim
	}
	return &Verifier{verifier: v, scopeClaim: scopeClaim}
}

// Verify implements auth.Verifier.
func (v *Verifier) Verify(ctx context.Context, raw string) (*auth.Principal, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", auth.ErrInvalidToken, err)
	}
	if idToken.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", auth.ErrInvalidToken)
	}

	email, _ := claims["email"].(string)
	return &auth.Principal{
		Subject: idToken.Subject,
		Email:   email,
		Scopes:  known(auth.ScopesFromClaim(claims[v.scopeClaim])),
		Method:  "oidc",
	}, nil
}

// known drops scopes lanehq does not define, such as "openid" or "profile".
func known(scopes []string) []string {
	out := scopes[:0]
	for _, s := range scopes {
		if auth.ValidateScopes([]string{s}) == nil {
			out = append(out, s)
		}
	}
	return out
}
