package tracker

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/go-github/v72/github"
)

// MaxJWTDuration is the maximum lifetime GitHub accepts for an App JWT.
const MaxJWTDuration = 10 * time.Minute

// TokenRefreshBuffer is how long before expiry an installation token is replaced.
const TokenRefreshBuffer = 5 * time.Minute

// JWTGenerator signs GitHub App JWTs.
type JWTGenerator struct {
	appID      string
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// NewJWTGenerator parses a PEM-encoded RSA key (PKCS#1 or PKCS#8).
func NewJWTGenerator(appID string, privateKeyPEM []byte) (*JWTGenerator, error) {
	if appID == "" {
		return nil, fmt.Errorf("app ID cannot be empty")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &JWTGenerator{appID: appID, privateKey: key, now: time.Now}, nil
}

// GenerateToken returns a JWT valid for MaxJWTDuration.
func (g *JWTGenerator) GenerateToken() (string, error) {
	now := g.now()

	// Backdate issuance to absorb clock drift with GitHub.
	claims := jwt.RegisteredClaims{
		Issuer:    g.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(MaxJWTDuration - time.Minute)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(g.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// InstallationTokenSource exchanges App JWTs for installation tokens and
// caches them until shortly before they expire.
type InstallationTokenSource struct {
	mu sync.RWMutex

	installationID int64
	jwt            *JWTGenerator
	apps           *github.AppsService

	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewInstallationTokenSource builds a token source for one App installation.
func NewInstallationTokenSource(appID string, installationID int64, privateKeyPEM []byte, baseURL, userAgent string) (*InstallationTokenSource, error) {
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}

	gen, err := NewJWTGenerator(appID, privateKeyPEM)
	if err != nil {
		return nil, err
	}

	appClient, err := newGitHubClient(&http.Client{
		Timeout: 30 * time.Second,
		Transport: &bearerTransport{token: func(context.Context) (string, error) {
			return gen.GenerateToken()
		}},
	}, baseURL, userAgent)
	if err != nil {
		return nil, err
	}

	return &InstallationTokenSource{
		installationID: installationID,
		jwt:            gen,
		apps:           appClient.Apps,
		now:            time.Now,
	}, nil
}

// Token returns a valid installation token, refreshing it when needed.
func (s *InstallationTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.validLocked() {
		token := s.token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited.
	if s.validLocked() {
		return s.token, nil
	}

	tok, _, err := s.apps.CreateInstallationToken(ctx, s.installationID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create installation token: %w", err)
	}

	s.token = tok.GetToken()
	s.expiresAt = tok.GetExpiresAt().Time
	return s.token, nil
}

func (s *InstallationTokenSource) validLocked() bool {
	if s.token == "" {
		return false
	}
	return s.expiresAt.After(s.now().Add(TokenRefreshBuffer))
}

// bearerTransport sets a bearer Authorization header from a token func.
type bearerTransport struct {
	token func(ctx context.Context) (string, error)
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.token(req.Context())
	if err != nil {
		return nil, err
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
