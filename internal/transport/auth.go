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
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// refreshFloor limits how often a cache miss may trigger a JWKS fetch once
// at least one key is known. Unknown kids otherwise turn every bad token
// into an outbound request.
const refreshFloor = 5 * time.Minute

const jwksMaxBody = 1 << 20

// jsonWebKey carries the subset of RFC 7517 fields needed to rebuild RSA and
// EC public keys. Symmetric and unknown key types are skipped.
type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// JWKSClient resolves token signing keys by kid, caching the identity
// provider's key set between fetches.
type JWKSClient struct {
	url  string
	ttl  time.Duration
	http *http.Client

	mu      sync.RWMutex
	byKid   map[string]crypto.PublicKey
	fetched time.Time
}

func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	return &JWKSClient{
		url:   url,
		ttl:   ttl,
		http:  &http.Client{Timeout: 10 * time.Second},
		byKid: make(map[string]crypto.PublicKey),
	}
}

// GetKey returns the public key published under kid, refreshing the cached
// key set when it is stale or the kid is unknown. A failed refresh falls
// back to the cached key so token checks survive provider outages.
func (c *JWKSClient) GetKey(kid string) (crypto.PublicKey, error) {
	if key, ok := c.cached(kid, true); ok {
		return key, nil
	}

	if err := c.refresh(); err != nil {
		if key, ok := c.cached(kid, false); ok {
			slog.Warn("serving signing key from stale cache", "kid", kid, "error", err)
			return key, nil
		}
		return nil, fmt.Errorf("jwks: fetch failed: %w", err)
	}

	key, ok := c.cached(kid, false)
	if !ok {
		return nil, fmt.Errorf("jwks: unknown signing key %q", kid)
	}
	return key, nil
}

func (c *JWKSClient) cached(kid string, wantFresh bool) (crypto.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.byKid[kid]
	if wantFresh && time.Since(c.fetched) > c.ttl {
		return nil, false
	}
	return key, ok
}

func (c *JWKSClient) refresh() error {
	c.mu.RLock()
	throttled := len(c.byKid) > 0 && time.Since(c.fetched) < refreshFloor
	c.mu.RUnlock()
	if throttled {
		return nil
	}

	set, err := c.fetchKeySet()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.byKid = set
	c.fetched = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *JWKSClient) fetchKeySet() (map[string]crypto.PublicKey, error) {
	resp, err := c.http.Get(c.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, jwksMaxBody))
	if err != nil {
		return nil, err
	}

	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("jwks: parse error: %w", err)
	}

	set := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" {
			continue
		}
		key, err := k.publicKey()
		if err != nil {
			if !errors.Is(err, errUnsupportedKeyType) {
				slog.Warn("skipping unparseable signing key", "kid", k.Kid, "error", err)
			}
			continue
		}
		set[k.Kid] = key
	}
	return set, nil
}

var errUnsupportedKeyType = errors.New("unsupported key type")

func (k jsonWebKey) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaKey()
	case "EC":
		return k.ecKey()
	default:
		return nil, errUnsupportedKeyType
	}
}

func (k jsonWebKey) rsaKey() (*rsa.PublicKey, error) {
	n, err := decodeBigInt(k.N, "n")
	if err != nil {
		return nil, err
	}
	e, err := decodeBigInt(k.E, "e")
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func (k jsonWebKey) ecKey() (*ecdsa.PublicKey, error) {
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
	x, err := decodeBigInt(k.X, "x")
	if err != nil {
		return nil, err
	}
	y, err := decodeBigInt(k.Y, "y")
	if err != nil {
		return nil, err
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

func decodeBigInt(field, name string) (*big.Int, error) {
	if field == "" {
		return nil, fmt.Errorf("missing %s", name)
	}
	raw, err := base64.RawURLEncoding.DecodeString(field)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// JWTAuthenticator returns middleware that verifies the bearer token against
// the identity provider's key set. Verified claims and the raw token both go
// into the request context; the raw token is forwarded to the listing
// backend, which performs its own verification.
func JWTAuthenticator(cfg config.IdentityConfig, jwks *JWKSClient) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := bearerToken(r)
			if err != nil {
				WriteError(w, err)
				return
			}

			token, parseErr := jwt.Parse(tokenStr,
				func(token *jwt.Token) (any, error) {
					kid, _ := token.Header["kid"].(string)
					if kid == "" {
						return nil, fmt.Errorf("missing kid in token header")
					}
					return jwks.GetKey(kid)
				},
				jwt.WithValidMethods(cfg.Algorithms),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithAudience(cfg.Audience),
				jwt.WithLeeway(30*time.Second),
				jwt.WithExpirationRequired(),
			)
			if parseErr != nil {
				WriteError(w, model.NewUnauthorizedError(rejectionReason(parseErr)))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				WriteError(w, model.NewUnauthorizedError("Invalid token"))
				return
			}

			ctx := WithClaims(r.Context(), map[string]any(claims))
			ctx = WithBearerToken(ctx, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", model.NewUnauthorizedError("Missing authorization header")
	}
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || token == "" {
		return "", model.NewUnauthorizedError("Invalid authorization header format")
	}
	return token, nil
}

// rejectionReason maps a token validation failure to the message returned to
// the caller. The sentinel errors cover every check jwt.Parse runs; anything
// unrecognized gets the generic message.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "Unknown signing key"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	default:
		return "Invalid token"
	}
}
