// Package did resolves decentralised identifiers to public keys: a
// local in-memory registry for tests and trusted peers, and a remote
// did:web / did:key resolver cached with a per-DID TTL.
package did

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/multiformats/go-multibase"
)

// Multicodec prefixes for did:key, per the Multikey profile this
// ecosystem uses for EC keys (W3C VC Data Integrity Multikey).
const (
	multicodecP256PubKey = 0x1200
	multicodecP384PubKey = 0x1201
)

// DIDDocument represents a W3C DID Document.
type DIDDocument struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []interface{}        `json:"authentication,omitempty"`
	AssertionMethod    []interface{}        `json:"assertionMethod,omitempty"`
}

// VerificationMethod represents a verification method in a DID Document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyJwk       *JWK   `json:"publicKeyJwk,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// JWK represents a JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// Resolver maps a DID (optionally with a key fragment) to a public key.
type Resolver struct {
	cache      *ttlcache.Cache[string, interface{}]
	httpClient *http.Client
	localKeys  map[string]interface{}
	mu         sync.RWMutex
	ttl        time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL overrides the default 30-minute cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithHTTPClient overrides the default HTTP client used for did:web resolution.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.httpClient = client }
}

// NewResolver creates a new DID resolver. Resolution results are
// cached per DID URL for the resolver's TTL. A cache miss resolves
// upstream without holding a lock, so distinct DIDs never block each
// other; concurrent misses for the same DID each resolve upstream.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		localKeys:  make(map[string]interface{}),
		ttl:        30 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cache = ttlcache.New(
		ttlcache.WithTTL[string, interface{}](r.ttl),
		ttlcache.WithDisableTouchOnHit[string, interface{}](),
	)
	go r.cache.Start()
	return r
}

// ResolveKey resolves a DID (or a DID URL with a key fragment, as
// carried in a JWS `kid` header) to its public key, satisfying the
// jwtvc.KeyResolver contract. The fragment selects among a document's
// verification methods; a bare DID falls back to the first
// assertionMethod or verification method.
func (r *Resolver) ResolveKey(ctx context.Context, didURL string) (interface{}, error) {
	base, fragment := splitFragment(didURL)

	r.mu.RLock()
	key, ok := r.localKeys[didURL]
	if !ok {
		key, ok = r.localKeys[base]
	}
	r.mu.RUnlock()
	if ok {
		return key, nil
	}

	if item := r.cache.Get(didURL); item != nil {
		return item.Value(), nil
	}

	key, err := r.resolveWithContext(ctx, base, fragment)
	if err != nil {
		return nil, err
	}
	r.cache.Set(didURL, key, ttlcache.DefaultTTL)
	return key, nil
}

// splitFragment separates a DID URL into its base DID and key
// fragment, if any.
func splitFragment(didURL string) (string, string) {
	if i := strings.Index(didURL, "#"); i >= 0 {
		return didURL[:i], didURL[i+1:]
	}
	return didURL, ""
}

// resolveWithContext dispatches by DID method.
func (r *Resolver) resolveWithContext(ctx context.Context, did, fragment string) (interface{}, error) {
	switch {
	case strings.HasPrefix(did, "did:web:"):
		return r.resolveWebDID(ctx, did, fragment)
	case strings.HasPrefix(did, "did:key:"):
		return r.resolveKeyDID(did)
	default:
		return nil, fmt.Errorf("unsupported DID method: %s", did)
	}
}

// RegisterLocalKey registers a local key for testing or trusted peers.
func (r *Resolver) RegisterLocalKey(did string, publicKey interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localKeys[did] = publicKey
}

// resolveWebDID resolves a did:web DID against its well-known endpoint.
func (r *Resolver) resolveWebDID(ctx context.Context, did, fragment string) (interface{}, error) {
	didParts := strings.Split(did, ":")
	if len(didParts) < 3 {
		return nil, fmt.Errorf("invalid did:web format: %s", did)
	}
	domain := strings.Join(didParts[2:], ":")
	url := fmt.Sprintf("https://%s/.well-known/did.json", domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build did:web request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch DID document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch DID document: status %d", resp.StatusCode)
	}

	var didDoc DIDDocument
	if err := json.NewDecoder(resp.Body).Decode(&didDoc); err != nil {
		return nil, fmt.Errorf("failed to parse DID document: %w", err)
	}

	return extractPublicKey(&didDoc, fragment)
}

// resolveKeyDID resolves a did:key DID. The key material is the
// multibase-encoded multicodec-prefixed key that directly follows
// "did:key:".
func (r *Resolver) resolveKeyDID(did string) (interface{}, error) {
	multikey := strings.TrimPrefix(did, "did:key:")
	return multikeyToECDSAPublicKey(multikey)
}

// extractPublicKey extracts the public key from a DID document: the
// verification method matching the key fragment when one is given,
// the first assertionMethod reference otherwise, falling back to the
// first verification method.
func extractPublicKey(didDoc *DIDDocument, fragment string) (interface{}, error) {
	if len(didDoc.VerificationMethod) == 0 {
		return nil, fmt.Errorf("no verification methods found")
	}

	vm := didDoc.VerificationMethod[0]
	if fragment != "" {
		found := false
		for _, cand := range didDoc.VerificationMethod {
			if cand.ID == fragment || strings.HasSuffix(cand.ID, "#"+fragment) {
				vm = cand
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no verification method matches key fragment %q", fragment)
		}
	} else if len(didDoc.AssertionMethod) > 0 {
		if ref, ok := didDoc.AssertionMethod[0].(string); ok {
			for _, cand := range didDoc.VerificationMethod {
				if cand.ID == ref {
					vm = cand
					break
				}
			}
		}
	}

	if vm.PublicKeyJwk != nil {
		return jwkToPublicKey(vm.PublicKeyJwk)
	}
	if vm.PublicKeyMultibase != "" {
		return multikeyToECDSAPublicKey(vm.PublicKeyMultibase)
	}
	return nil, fmt.Errorf("no supported public key format found")
}

func jwkToPublicKey(jwk *JWK) (interface{}, error) {
	if jwk.Kty != "EC" {
		return nil, fmt.Errorf("unsupported key type: %s", jwk.Kty)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode X coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Y coordinate: %w", err)
	}

	var curve elliptic.Curve
	switch jwk.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	default:
		return nil, fmt.Errorf("unsupported curve: %s", jwk.Crv)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// multikeyToECDSAPublicKey decodes a multibase Multikey string
// (multicodec varint || 0x04 uncompressed-point marker || X || Y) to
// an ECDSA public key. Supports P-256 and P-384.
func multikeyToECDSAPublicKey(multikey string) (*ecdsa.PublicKey, error) {
	if multikey == "" {
		return nil, fmt.Errorf("multikey is empty")
	}

	_, decoded, err := multibase.Decode(multikey)
	if err != nil {
		return nil, fmt.Errorf("multibase decoding failed: %w", err)
	}
	if len(decoded) < 3 {
		return nil, fmt.Errorf("multikey too short")
	}

	codec, n := binary.Uvarint(decoded)
	if n <= 0 {
		return nil, fmt.Errorf("invalid multicodec varint")
	}
	keyBytes := decoded[n:]

	var curve elliptic.Curve
	var coordSize int
	switch codec {
	case multicodecP256PubKey:
		curve = elliptic.P256()
		coordSize = 32
	case multicodecP384PubKey:
		curve = elliptic.P384()
		coordSize = 48
	default:
		return nil, fmt.Errorf("unsupported multicodec: 0x%x", codec)
	}

	if len(keyBytes) != 1+2*coordSize || keyBytes[0] != 0x04 {
		return nil, fmt.Errorf("unexpected key encoding length %d", len(keyBytes))
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(keyBytes[1 : 1+coordSize]),
		Y:     new(big.Int).SetBytes(keyBytes[1+coordSize:]),
	}, nil
}

// ClearCache clears the DID resolution cache.
func (r *Resolver) ClearCache() {
	r.cache.DeleteAll()
}
