// Package auth - jwt.go verifies HS256 bearer tokens signed with a shared secret. Tokens
// are minted by the operator's identity service; Issue exists for tooling and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lanehq/lanehq/internal/config"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// minSecretLength is the shortest HS256 secret accepted.
const minSecretLength = 32

// Principal is the verified caller.
type Principal struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email,omitempty"`
	Scopes  []string `json:"scopes"`
	// Method is "jwt" or "oidc".
	Method string `json:"method"`
}

// Has reports whether the principal holds scope.
func (p *Principal) Has(scope Scope) bool {
	return p != nil && HasScope(p.Scopes, scope)
}

// Verifier turns a raw bearer token into a principal.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Principal, error)
}

// Claims represents the JWT claims structure
type Claims struct {
	Email string `json:"email,omitempty"`
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier verifies HS256 tokens.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewHMACVerifier validates the configured secret.
func NewHMACVerifier(cfg config.JWTConfig) (*HMACVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth.jwt.secret is required (generate one with: openssl rand -hex 32)")
	}
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("auth.jwt.secret must be at least %d characters", minSecretLength)
	}
	return &HMACVerifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer, audience: cfg.Audience}, nil
}

// Verify parses and validates a token. Expiry is required.
func (v *HMACVerifier) Verify(_ context.Context, raw string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	return &Principal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Scopes:  ScopesFromClaim(claims.Scope),
		Method:  "jwt",
	}, nil
}

// Issue signs a token for subject with the given scopes.
func (v *HMACVerifier) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := ValidateScopes(scopes); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier []Verifier

// Verify implements Verifier.
func (c ChainVerifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	var lastErr error = ErrInvalidToken
	for _, v := range c {
		p, err := v.Verify(ctx, raw)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
