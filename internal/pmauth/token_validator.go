// Package pmauth implements the Token Validator (C1) and the
// per-connection Rate Limiter (C2).
package pmauth

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

	"github.com/pmsync/pmsync/internal/pmerr"
)

// Claims is the validated identity record C1 produces: subject, tenant,
// temporal bounds, and roles. This is deliberately narrower than the raw
// JWT map — downstream code only ever reasons about these fields.
type Claims struct {
	Sub       string
	TenantID  string
	ExpiresAt int64
	IssuedAt  int64
	Roles     []string
}

func (c Claims) validate() error {
	if c.Sub == "" {
		return pmerr.ValidationErr("sub", "subject claim must not be empty")
	}
	if c.TenantID == "" {
		return pmerr.ValidationErr("tenant_id", "tenant_id claim must not be empty")
	}
	if len(c.TenantID) > 128 {
		return pmerr.ValidationErr("tenant_id", "tenant_id claim must be at most 128 characters")
	}
	return nil
}

// ValidatorConfig holds the pre-initialized keys used to verify bearer
// tokens: a symmetric secret for HS256 and, optionally, a JWKS endpoint
// for RS256 tokens issued by an upstream identity provider.
type ValidatorConfig struct {
	HS256Secret string
	JWKSURL     string
	Issuer      string
	Audience    string
	// ClockSkew bounds the leeway given to exp/iat/nbf checks. The spec
	// requires +-30s; exposed here only so tests can shrink it.
	ClockSkew time.Duration
}

func DefaultClockSkew() time.Duration { return 30 * time.Second }

// jwksCache fetches and caches RSA public keys by kid, refreshing on a
// TTL and on cache-miss (to tolerate key rotation without a restart).
type jwksCache struct {
	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	lastFetch  time.Time
	cacheTTL   time.Duration
	jwksURL    string
	httpClient *http.Client
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

func newJWKSCache(url string) *jwksCache {
	return &jwksCache{
		keys:       make(map[string]*rsa.PublicKey),
		cacheTTL:   1 * time.Hour,
		jwksURL:    url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *jwksCache) fetch(forceRefresh bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh && time.Since(c.lastFetch) < c.cacheTTL && len(c.keys) > 0 {
		return nil
	}

	resp, err := c.httpClient.Get(c.jwksURL)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
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
			log.Warn().Err(err).Str("kid", k.Kid).Msg("failed to decode jwks modulus")
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			log.Warn().Err(err).Str("kid", k.Kid).Msg("failed to decode jwks exponent")
			continue
		}
		var eInt int
		for _, b := range eBytes {
			eInt = eInt<<8 | int(b)
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: eInt}
	}
	if len(keys) == 0 {
		return errors.New("no valid RSA signing keys found in jwks")
	}
	c.keys = keys
	c.lastFetch = time.Now()
	log.Info().Int("key_count", len(keys)).Msg("refreshed jwks cache")
	return nil
}

func (c *jwksCache) publicKey(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	expired := time.Since(c.lastFetch) >= c.cacheTTL
	c.mu.RUnlock()
	if expired {
		if err := c.fetch(false); err != nil {
			log.Warn().Err(err).Msg("failed to refresh expired jwks cache, using stale keys")
		}
	}
	c.mu.RLock()
	key, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}
	if err := c.fetch(true); err != nil {
		return nil, fmt.Errorf("fetch jwks for missing kid %s: %w", kid, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("kid %s not found in jwks even after refresh", kid)
	}
	return key, nil
}

// Validator validates bearer tokens and produces Claims. One Validator is
// constructed at process startup and shared across connections — unlike
// C2's rate limiter, it holds no per-connection state.
type Validator struct {
	cfg  ValidatorConfig
	jwks *jwksCache
}

func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = DefaultClockSkew()
	}
	v := &Validator{cfg: cfg}
	if cfg.JWKSURL != "" {
		v.jwks = newJWKSCache(cfg.JWKSURL)
		if err := v.jwks.fetch(false); err != nil {
			log.Warn().Err(err).Msg("failed to pre-fetch jwks (will retry on first request)")
		}
	}
	return v
}

// Validate checks signature and temporal claims, allowing the configured
// clock skew, then re-validates sub/tenant_id per 4.1. Expiry failures
// are surfaced as the distinct TokenExpired kind.
func (v *Validator) Validate(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, pmerr.UnauthorizedErr("token is empty")
	}

	leeway := v.cfg.ClockSkew
	parserOpts := []jwt.ParserOption{jwt.WithLeeway(leeway)}
	if v.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.cfg.Audience))
	}

	raw := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, raw, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA:
			if v.jwks == nil {
				return nil, errors.New("no jwks configured for RS256 tokens")
			}
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, errors.New("missing kid in token header")
			}
			return v.jwks.publicKey(kid)
		case *jwt.SigningMethodHMAC:
			if v.cfg.HS256Secret == "" {
				return nil, errors.New("hs256 secret not configured")
			}
			return []byte(v.cfg.HS256Secret), nil
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
	}, parserOpts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, pmerr.TokenExpiredErr()
		}
		return Claims{}, pmerr.Wrap(pmerr.Unauthorized, err, "token validation failed")
	}
	if !token.Valid {
		return Claims{}, pmerr.UnauthorizedErr("token is not valid")
	}

	sub, _ := raw["sub"].(string)
	tenantID, _ := raw["tenant_id"].(string)
	var exp, iat int64
	if v, ok := raw["exp"].(float64); ok {
		exp = int64(v)
	}
	if v, ok := raw["iat"].(float64); ok {
		iat = int64(v)
	}
	var roles []string
	if rs, ok := raw["roles"].([]interface{}); ok {
		for _, r := range rs {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}

	claims := Claims{Sub: sub, TenantID: tenantID, ExpiresAt: exp, IssuedAt: iat, Roles: roles}
	if err := claims.validate(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
