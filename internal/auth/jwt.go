package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

// Claims are the identity fields read from a verified token
type Claims struct {
	Subject string
	Email   string
	Name    string
}

// Verifier validates the bearer token on a request
type Verifier interface {
	Verify(r *http.Request) (*Claims, error)
}

func claimsFromToken(token jwt.Token) (*Claims, error) {
	userID := token.Subject()
	if userID == "" {
		return nil, errors.New("token missing user ID (subject)")
	}

	claims := &Claims{Subject: userID}
	if v, ok := token.Get("email"); ok {
		claims.Email, _ = v.(string)
	}
	if v, ok := token.Get("name"); ok {
		claims.Name, _ = v.(string)
	}
	return claims, nil
}

// HMACSigner issues and verifies HS256 tokens for local accounts
type HMACSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewHMACSigner creates a signer with secret issuing tokens valid for ttl
func NewHMACSigner(secret string, ttl time.Duration) *HMACSigner {
	return &HMACSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for user
func (s *HMACSigner) Issue(user *models.User) (string, error) {
	now := s.now()
	token, err := jwt.NewBuilder().
		Subject(user.ID).
		IssuedAt(now).
		Expiration(now.Add(s.ttl)).
		Claim("email", user.Email).
		Claim("name", user.Name).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Verify parses the Authorization header. jwt.ParseRequest strips the
// "Bearer " prefix.
func (s *HMACSigner) Verify(r *http.Request) (*Claims, error) {
	token, err := jwt.ParseRequest(
		r,
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	return claimsFromToken(token)
}

// JWKSVerifier verifies tokens from an external identity provider against a
// cached JWKS
type JWKSVerifier struct {
	jwksURL     string
	cache       *jwk.Cache
	keySet      jwk.Set
	keySetMutex sync.RWMutex
	lastFetch   time.Time
	refreshTTL  time.Duration
}

// NewJWKSVerifier registers jwksURL and warms the key cache. Keys are
// refreshed in the background until ctx is done.
func NewJWKSVerifier(ctx context.Context, jwksURL string) (*JWKSVerifier, error) {
	v := &JWKSVerifier{
		jwksURL:    jwksURL,
		refreshTTL: 5 * time.Minute,
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(v.refreshTTL)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	v.cache = cache

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keySet, err := v.fetchKeySet(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("failed initial JWKS fetch: %w", err)
	}
	v.keySet = keySet
	v.lastFetch = time.Now()

	go v.backgroundRefresh(ctx)

	return v, nil
}

func (v *JWKSVerifier) fetchKeySet(ctx context.Context) (jwk.Set, error) {
	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return jwk.Fetch(ctx, v.jwksURL)
	}
	return keySet, nil
}

func (v *JWKSVerifier) backgroundRefresh(ctx context.Context) {
	ticker := time.NewTicker(v.refreshTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		keySet, err := v.fetchKeySet(fetchCtx)
		cancel()

		// keep the previous keys on error; retried next tick
		if err == nil {
			v.keySetMutex.Lock()
			v.keySet = keySet
			v.lastFetch = time.Now()
			v.keySetMutex.Unlock()
		}
	}
}

func (v *JWKSVerifier) getKeySet() jwk.Set {
	v.keySetMutex.RLock()
	defer v.keySetMutex.RUnlock()
	return v.keySet
}

// Verify validates the request's token against the cached key set
func (v *JWKSVerifier) Verify(r *http.Request) (*Claims, error) {
	token, err := jwt.ParseRequest(
		r,
		jwt.WithKeySet(v.getKeySet()),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	return claimsFromToken(token)
}

// CacheStats reports the state of the JWKS cache
func (v *JWKSVerifier) CacheStats() map[string]any {
	v.keySetMutex.RLock()
	defer v.keySetMutex.RUnlock()

	keyCount := 0
	if v.keySet != nil {
		keyCount = v.keySet.Len()
	}

	return map[string]any{
		"keys_cached": keyCount,
		"last_fetch":  v.lastFetch,
		"refresh_ttl": v.refreshTTL.String(),
		"age_seconds": time.Since(v.lastFetch).Seconds(),
		"jwks_url":    v.jwksURL,
	}
}
