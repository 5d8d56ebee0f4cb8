package sso

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// jwksCache holds the provider's signing keys for the process lifetime.
// Reads see an immutable snapshot swapped atomically; refreshes on a
// missing kid are deduplicated with singleflight so concurrent
// verifications never observe a half-built key set.
type jwksCache struct {
	url      string
	http     *http.Client
	snapshot atomic.Pointer[keySet]
	group    singleflight.Group
}

type keySet struct {
	byKID map[string]any // kid -> *rsa.PublicKey | *ecdsa.PublicKey
}

func newJWKSCache(url string, hc *http.Client) *jwksCache {
	return &jwksCache{url: url, http: hc}
}

// Key returns the public key for kid, fetching the set on first use and
// refreshing it once when the kid is unknown (key rotation).
func (c *jwksCache) Key(kid string) (any, error) {
	if ks := c.snapshot.Load(); ks != nil {
		if k, ok := ks.byKID[kid]; ok {
			return k, nil
		}
	}
	if err := c.refresh(); err != nil {
		return nil, err
	}
	if ks := c.snapshot.Load(); ks != nil {
		if k, ok := ks.byKID[kid]; ok {
			return k, nil
		}
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

func (c *jwksCache) refresh() error {
	_, err, _ := c.group.Do("jwks", func() (any, error) {
		resp, err := c.http.Get(c.url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
		}

		var doc struct {
			Keys []jwk `json:"keys"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, err
		}

		ks := &keySet{byKID: make(map[string]any, len(doc.Keys))}
		for _, k := range doc.Keys {
			pub, err := k.publicKey()
			if err != nil {
				continue // skip unusable entries, keep the rest
			}
			ks.byKID[k.KID] = pub
		}
		if len(ks.byKID) == 0 {
			return nil, fmt.Errorf("jwks fetch: no usable keys")
		}
		c.snapshot.Store(ks)
		return nil, nil
	})
	return err
}

type jwk struct {
	KID string `json:"kid"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (k jwk) publicKey() (any, error) {
	switch k.Kty {
	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	case "EC":
		if k.Crv != "P-256" {
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, err
		}
		y, err := base64.RawURLEncoding.DecodeString(k.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}
