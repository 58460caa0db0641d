// Package statuslist fetches, verifies, and reads bitstring
// status-list credentials: a signed JWT whose payload carries a
// DEFLATE-compressed bitstring, 2 bits per credential, encoding one
// of active/suspended/revoked at the credential's status-list index.
package statuslist

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/jwtvc"
)

// Status is the 2-bit credential status encoded in a status list.
type Status int

const (
	StatusActive Status = iota
	StatusSuspended
	_ // 10 is reserved; the ecosystem's profile only defines 00/01/11
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// entry is a decoded, cached status list.
type entry struct {
	bits []byte
}

func (e *entry) statusAt(index int) (Status, error) {
	bitOffset := index * 2
	byteIdx := bitOffset / 8
	if byteIdx >= len(e.bits) {
		return StatusActive, fmt.Errorf("status list index %d out of range", index)
	}
	shift := 6 - (bitOffset % 8)
	b := e.bits[byteIdx]
	value := (b >> uint(shift)) & 0x03
	return Status(value), nil
}

// Client fetches and caches status lists by URL.
type Client struct {
	httpClient *http.Client
	validator  *jwtvc.Validator
	cache      *ttlcache.Cache[string, *entry]
}

// Option configures a Client.
type Option func(*Client)

// WithTTL overrides the default 5-minute cache TTL for fetched lists.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = newListCache(ttl)
	}
}

// newListCache builds the per-URL list cache. Touch-on-hit is
// disabled so a hot list still expires and gets re-fetched; the TTL
// bounds staleness, not idleness.
func newListCache(ttl time.Duration) *ttlcache.Cache[string, *entry] {
	return ttlcache.New(
		ttlcache.WithTTL[string, *entry](ttl),
		ttlcache.WithDisableTouchOnHit[string, *entry](),
	)
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a status-list client. Status lists are signed by
// the issuer, so verification reuses the same JWT validator (and
// therefore DID resolver) as VC/VP validation.
func NewClient(validator *jwtvc.Validator, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		validator:  validator,
		cache:      newListCache(5 * time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.cache.Start()
	return c
}

// CheckStatus fetches (or reuses a cached) status list at url,
// verifies its issuer signature, and returns the status at
// statusListIndex. A fetched list is reused until its TTL lapses.
// Requests for different urls never block each other; concurrent
// cache misses for the same url each perform their own fetch.
func (c *Client) CheckStatus(ctx context.Context, url string, statusListIndex int) (Status, error) {
	if item := c.cache.Get(url); item != nil {
		return item.Value().statusAt(statusListIndex)
	}

	e, err := c.fetchAndVerify(ctx, url)
	if err != nil {
		return StatusActive, err
	}
	c.cache.Set(url, e, ttlcache.DefaultTTL)
	return e.statusAt(statusListIndex)
}

func (c *Client) fetchAndVerify(ctx context.Context, url string) (*entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch status list: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status list body: %w", err)
	}

	claims, err := c.validator.ValidateVC(ctx, string(bytes.TrimSpace(body)))
	if err != nil {
		return nil, fmt.Errorf("status list signature validation failed: %w", err)
	}

	encoded, err := extractEncodedList(claims)
	if err != nil {
		return nil, err
	}

	bits, err := inflateBase64URL(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate status list bitstring: %w", err)
	}

	return &entry{bits: bits}, nil
}

// extractEncodedList pulls the `encodedList` field out of the VC's
// credentialSubject map.
func extractEncodedList(claims *jwtvc.VCClaims) (string, error) {
	raw, ok := claims.VC.CredentialSubject["encodedList"]
	if !ok {
		return "", fmt.Errorf("status list credential missing encodedList")
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("status list encodedList is not a non-empty string")
	}
	return s, nil
}

// inflateBase64URL decodes a base64url string and inflates it as raw
// DEFLATE data, per the bitstring status-list encoding.
func inflateBase64URL(encoded string) ([]byte, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		if decoded, altErr := base64.URLEncoding.DecodeString(encoded); altErr == nil {
			compressed = decoded
		} else {
			return nil, fmt.Errorf("failed to base64url-decode encodedList: %w", err)
		}
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate: %w", err)
	}
	return out, nil
}

// ClearCache clears the status-list cache.
func (c *Client) ClearCache() {
	c.cache.DeleteAll()
}
