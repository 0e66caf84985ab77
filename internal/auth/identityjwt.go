package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// IdentityProviderConfig configures verification of the upstream identity
// provider's JWTs (spec §4.1: "Verify via the upstream provider SDK
// contract"). Grounded on the teacher's JWTCfg/JWKS cache
// (internal/auth/jwt.go in the teacher repo), generalized from "upstream IdP
// for sync" to "upstream IdP for mobile/third-party AI clients".
type IdentityProviderConfig struct {
	Issuer   string
	JWKSURL  string
	Audience string
	// ProgramAlias is the program id identity-JWT subjects are tagged with
	// (spec §4.1: "program id is `mobile` (or the provider-specific
	// alias)").
	ProgramAlias string
}

type jwksCache struct {
	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	lastFetch  time.Time
	cacheTTL   time.Duration
	url        string
	httpClient *http.Client
}

func newJWKSCache(url string) *jwksCache {
	return &jwksCache{
		keys:     make(map[string]*rsa.PublicKey),
		cacheTTL: time.Hour,
		url:      url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type jwksResponse struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *jwksCache) fetch(force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && time.Since(c.lastFetch) < c.cacheTTL && len(c.keys) > 0 {
		return nil
	}

	resp, err := c.httpClient.Get(c.url)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read jwks response: %w", err)
	}

	var parsed jwksResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("parse jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, k := range parsed.Keys {
		if k.Kty != "RSA" || k.Use != "sig" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			log.Warn().Err(err).Str("kid", k.Kid).Msg("jwks: failed to decode modulus")
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			log.Warn().Err(err).Str("kid", k.Kid).Msg("jwks: failed to decode exponent")
			continue
		}
		var eInt int
		for _, b := range eBytes {
			eInt = eInt<<8 | int(b)
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: eInt}
	}
	if len(keys) == 0 {
		return errors.New("jwks: no valid RSA signing keys found")
	}

	c.keys = keys
	c.lastFetch = time.Now()
	return nil
}

func (c *jwksCache) key(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	expired := time.Since(c.lastFetch) >= c.cacheTTL
	c.mu.RUnlock()
	if expired {
		if err := c.fetch(false); err != nil {
			log.Warn().Err(err).Msg("jwks: refresh failed, using stale cache")
		}
	}

	c.mu.RLock()
	k, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok {
		return k, nil
	}

	if err := c.fetch(true); err != nil {
		return nil, fmt.Errorf("jwks: fetch for missing kid %s: %w", kid, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("jwks: kid %s not found after refresh", kid)
	}
	return k, nil
}

// IdentityVerifier verifies identity JWTs against one upstream provider.
type IdentityVerifier struct {
	cfg   IdentityProviderConfig
	cache *jwksCache
}

func NewIdentityVerifier(cfg IdentityProviderConfig) *IdentityVerifier {
	v := &IdentityVerifier{cfg: cfg}
	if cfg.JWKSURL != "" {
		v.cache = newJWKSCache(cfg.JWKSURL)
		if err := v.cache.fetch(false); err != nil {
			log.Warn().Err(err).Msg("identity jwks: pre-fetch failed, will retry on first request")
		}
	}
	return v
}

// Verify validates tokenString and returns its subject claim.
func (v *IdentityVerifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("identity jwt: empty token")
	}
	if v.cache == nil {
		return "", errors.New("identity jwt: provider not configured")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid in token header")
		}
		return v.cache.key(kid)
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("identity jwt validation failed: %w", err)
	}

	if v.cfg.Issuer != "" {
		if iss, ok := claims["iss"].(string); !ok || iss != v.cfg.Issuer {
			return "", fmt.Errorf("invalid issuer: expected %s, got %v", v.cfg.Issuer, claims["iss"])
		}
	}
	if v.cfg.Audience != "" {
		if !audienceMatches(claims["aud"], v.cfg.Audience) {
			return "", fmt.Errorf("invalid audience: expected %s, got %v", v.cfg.Audience, claims["aud"])
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing or invalid sub claim")
	}
	return sub, nil
}

func audienceMatches(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return v == expected
	case []interface{}:
		for _, a := range v {
			if s, ok := a.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

// ValidateIdentityJWT implements spec §4.1's identity JWT path.
func ValidateIdentityJWT(v *IdentityVerifier, tokenString string) (Context, error) {
	if v == nil {
		return Context{}, ErrUnauthenticated
	}
	sub, err := v.Verify(tokenString)
	if err != nil {
		return Context{}, ErrUnauthorized
	}
	program := v.cfg.ProgramAlias
	if program == "" {
		program = "mobile"
	}
	return Context{
		TenantID:     sub,
		ProgramID:    program,
		Capabilities: defaultCapabilities(program),
	}, nil
}
