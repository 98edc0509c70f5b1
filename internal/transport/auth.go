package transport

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/docflowhq/docflow/internal/config"
	"github.com/docflowhq/docflow/model"
)

// jwk is the subset of RFC 7517 fields needed to rebuild RSA and EC
// public keys.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// JWKSClient fetches signing keys from the identity provider and caches
// them. A failed refresh keeps serving the previous key set so token
// verification survives identity-provider blips.
type JWKSClient struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	lastFetch time.Time
}

func NewJWKSClient(url string, ttl time.Duration, logger *zap.Logger) *JWKSClient {
	return &JWKSClient{
		url:        url,
		ttl:        ttl,
		minRefresh: 5 * time.Minute,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		keys:       map[string]crypto.PublicKey{},
	}
}

// GetKey returns the public key for kid, refreshing the cached set when it
// is stale or the kid is unknown.
func (c *JWKSClient) GetKey(kid string) (crypto.PublicKey, error) {
	if key, ok := c.cached(kid, true); ok {
		return key, nil
	}

	if err := c.refresh(); err != nil {
		// Degraded mode: a stale key beats rejecting every request.
		if key, ok := c.cached(kid, false); ok {
			c.logger.Warn("jwks refresh failed, serving cached key", zap.Error(err))
			return key, nil
		}
		return nil, fmt.Errorf("jwks fetch: %w", err)
	}

	key, ok := c.cached(kid, false)
	if !ok {
		return nil, fmt.Errorf("jwks: no signing key %q", kid)
	}
	return key, nil
}

// cached looks up kid, optionally treating an expired cache as a miss.
func (c *JWKSClient) cached(kid string, checkTTL bool) (crypto.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if checkTTL && time.Since(c.lastFetch) > c.ttl {
		return nil, false
	}
	key, ok := c.keys[kid]
	return key, ok
}

func (c *JWKSClient) refresh() error {
	c.mu.RLock()
	recent := time.Since(c.lastFetch) < c.minRefresh && len(c.keys) > 0
	c.mu.RUnlock()
	if recent {
		// Throttle: a burst of unknown kids must not hammer the provider.
		return nil
	}

	resp, err := c.httpClient.Get(c.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parse jwks: %w", err)
	}

	fresh := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" {
			continue
		}
		key, err := k.publicKey()
		if err != nil {
			c.logger.Warn("skipping unusable jwk", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		if key != nil {
			fresh[k.Kid] = key
		}
	}

	c.mu.Lock()
	c.keys = fresh
	c.lastFetch = time.Now()
	c.mu.Unlock()
	return nil
}

// publicKey rebuilds the crypto.PublicKey. Unsupported key types return
// (nil, nil) and are skipped.
func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := b64Int(k.N)
		if err != nil {
			return nil, fmt.Errorf("modulus: %w", err)
		}
		e, err := b64Int(k.E)
		if err != nil {
			return nil, fmt.Errorf("exponent: %w", err)
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := b64Int(k.X)
		if err != nil {
			return nil, fmt.Errorf("x coordinate: %w", err)
		}
		y, err := b64Int(k.Y)
		if err != nil {
			return nil, fmt.Errorf("y coordinate: %w", err)
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	}
	return nil, nil
}

func b64Int(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("empty value")
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// JWTAuthenticator verifies bearer tokens against the JWKS and places the
// verified claims in the request context for BuildRequestContext.
func JWTAuthenticator(cfg config.IdentityConfig, jwks *JWKSClient) func(http.Handler) http.Handler {
	keyFor := func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return jwks.GetKey(kid)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				WriteError(w, model.NewUnauthorizedError("Missing or malformed authorization header"))
				return
			}

			token, err := jwt.Parse(raw, keyFor,
				jwt.WithValidMethods(cfg.Algorithms),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithAudience(cfg.Audience),
				jwt.WithLeeway(30*time.Second),
				jwt.WithExpirationRequired(),
			)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(rejectionReason(err)))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				WriteError(w, model.NewUnauthorizedError("Invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), map[string]any(claims))))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) || len(auth) == len(prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

// rejectionReason maps verification failures to client-safe messages
// without leaking parser internals.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "Unknown signing key"
	default:
		return "Invalid token"
	}
}
