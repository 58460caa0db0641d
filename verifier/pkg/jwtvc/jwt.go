// Package jwtvc signs and verifies Verifiable Credential and
// Verifiable Presentation JWTs as ES256 compact JWS, resolving issuer
// and holder keys through a pluggable DID resolver.
package jwtvc

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VCClaims represents the claims in a Verifiable Credential JWT.
type VCClaims struct {
	jwt.RegisteredClaims
	VC CredentialSubject `json:"vc"`
}

// VPClaims represents the claims in a Verifiable Presentation JWT.
type VPClaims struct {
	jwt.RegisteredClaims
	VP PresentationSubject `json:"vp"`
}

// CredentialSubject represents the credential subject in a VC.
type CredentialSubject struct {
	Context           []string               `json:"@context"`
	Type              []string               `json:"type"`
	CredentialSubject map[string]interface{} `json:"credentialSubject"`
	Issuer            string                 `json:"issuer,omitempty"`
	IssuanceDate      string                 `json:"issuanceDate,omitempty"`
	ExpirationDate    string                 `json:"expirationDate,omitempty"`
	CredentialStatus  *CredentialStatus      `json:"credentialStatus,omitempty"`
	// OpaqueIDSeed carries the pairwise pseudonymous identifier seed
	// this credential was issued against, when the issuer supports it.
	OpaqueIDSeed string `json:"opaque_id_seed,omitempty"`
}

// PresentationSubject represents the presentation in a VP.
type PresentationSubject struct {
	Context              []string `json:"@context"`
	Type                 []string `json:"type"`
	VerifiableCredential []string `json:"verifiableCredential"`
	Holder               string   `json:"holder,omitempty"`
}

// CredentialStatus represents the credential status.
type CredentialStatus struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	StatusListIndex      string `json:"statusListIndex,omitempty"`
	StatusListCredential string `json:"statusListCredential,omitempty"`
}

// KeyResolver resolves a public key from a DID.
type KeyResolver interface {
	ResolveKey(ctx context.Context, did string) (interface{}, error)
}

// Validator validates VC and VP JWTs. ClockSkew tolerates modest
// clock drift between issuer, holder and verifier when checking
// exp/nbf; Clock is overridable for deterministic tests.
type Validator struct {
	KeyResolver KeyResolver
	ClockSkew   time.Duration
	Clock       func() time.Time
}

// NewValidator creates a new JWT validator with no clock-skew
// tolerance (ClockSkew 0).
func NewValidator(resolver KeyResolver) *Validator {
	return &Validator{
		KeyResolver: resolver,
		ClockSkew:   0,
		Clock:       time.Now,
	}
}

func (v *Validator) now() time.Time {
	if v.Clock != nil {
		return v.Clock()
	}
	return time.Now()
}

// ValidateVC validates a Verifiable Credential JWT.
func (v *Validator) ValidateVC(ctx context.Context, vcJWT string) (*VCClaims, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(vcJWT, &VCClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse VC JWT: %w", err)
	}

	claims, ok := token.Claims.(*VCClaims)
	if !ok {
		return nil, fmt.Errorf("invalid VC claims")
	}

	issuerDID := claims.Issuer
	if issuerDID == "" && claims.VC.Issuer != "" {
		issuerDID = claims.VC.Issuer
	}
	if issuerDID == "" {
		return nil, fmt.Errorf("issuer not found in VC")
	}

	publicKey, err := v.KeyResolver.ResolveKey(ctx, keyIDForDID(token, issuerDID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve issuer key: %w", err)
	}

	validatedToken, err := jwt.ParseWithClaims(vcJWT, &VCClaims{}, es256KeyFunc(publicKey),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithLeeway(v.ClockSkew), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("JWT validation failed: %w", err)
	}

	validatedClaims, ok := validatedToken.Claims.(*VCClaims)
	if !ok {
		return nil, fmt.Errorf("invalid validated claims")
	}

	now := v.now()
	if validatedClaims.ExpiresAt != nil && validatedClaims.ExpiresAt.Before(now.Add(-v.ClockSkew)) {
		return nil, fmt.Errorf("credential has expired")
	}
	if validatedClaims.NotBefore != nil && validatedClaims.NotBefore.After(now.Add(v.ClockSkew)) {
		return nil, fmt.Errorf("credential not yet valid")
	}

	if validatedClaims.VC.ExpirationDate != "" {
		expTime, err := time.Parse(time.RFC3339, validatedClaims.VC.ExpirationDate)
		if err == nil && expTime.Before(now.Add(-v.ClockSkew)) {
			return nil, fmt.Errorf("credential has expired (VC expirationDate)")
		}
	}

	return validatedClaims, nil
}

// ValidateVP validates a Verifiable Presentation JWT against the
// nonce and audience the verifier expects.
func (v *Validator) ValidateVP(ctx context.Context, vpJWT, expectedNonce, expectedAudience string) (*VPClaims, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(vpJWT, &VPClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse VP JWT: %w", err)
	}

	claims, ok := token.Claims.(*VPClaims)
	if !ok {
		return nil, fmt.Errorf("invalid VP claims")
	}

	holderDID := claims.Subject
	if holderDID == "" && claims.VP.Holder != "" {
		holderDID = claims.VP.Holder
	}
	if holderDID == "" {
		return nil, fmt.Errorf("holder not found in VP")
	}

	publicKey, err := v.KeyResolver.ResolveKey(ctx, keyIDForDID(token, holderDID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve holder key: %w", err)
	}

	validatedToken, err := jwt.ParseWithClaims(vpJWT, &VPClaims{}, es256KeyFunc(publicKey),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithLeeway(v.ClockSkew), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("JWT validation failed: %w", err)
	}

	validatedClaims, ok := validatedToken.Claims.(*VPClaims)
	if !ok {
		return nil, fmt.Errorf("invalid validated claims")
	}

	if expectedNonce != "" && validatedClaims.ID != expectedNonce {
		return nil, fmt.Errorf("nonce mismatch: expected %s, got %s", expectedNonce, validatedClaims.ID)
	}

	if expectedAudience != "" {
		found := false
		for _, aud := range validatedClaims.Audience {
			if aud == expectedAudience {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("audience mismatch: %s not in %v", expectedAudience, validatedClaims.Audience)
		}
	}

	now := v.now()
	if validatedClaims.ExpiresAt != nil && validatedClaims.ExpiresAt.Before(now.Add(-v.ClockSkew)) {
		return nil, fmt.Errorf("presentation has expired")
	}
	if validatedClaims.NotBefore != nil && validatedClaims.NotBefore.After(now.Add(v.ClockSkew)) {
		return nil, fmt.Errorf("presentation not yet valid")
	}

	return validatedClaims, nil
}

// keyIDForDID returns the token's `kid` header when it is a key
// fragment of did, so the resolver can select the exact verification
// method; otherwise resolution proceeds on the bare DID. A kid
// pointing outside the expected DID is ignored rather than trusted.
func keyIDForDID(token *jwt.Token, did string) string {
	if kid, ok := token.Header["kid"].(string); ok && strings.HasPrefix(kid, did+"#") {
		return kid
	}
	return did
}

// es256KeyFunc returns a jwt.Keyfunc that hands out publicKey for
// ES256 tokens and rejects every other algorithm, "none" included.
func es256KeyFunc(publicKey interface{}) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok || token.Method.Alg() != jwt.SigningMethodES256.Alg() {
			return nil, fmt.Errorf("unsupported signing method: %v", token.Method.Alg())
		}
		return publicKey, nil
	}
}

// SignVC creates a signed Verifiable Credential JWT.
func SignVC(claims *VCClaims, privateKey interface{}, kid string) (string, error) {
	return sign(claims, privateKey, kid)
}

// SignVP creates a signed Verifiable Presentation JWT.
func SignVP(claims *VPClaims, privateKey interface{}, kid string) (string, error) {
	return sign(claims, privateKey, kid)
}

func sign(claims jwt.Claims, privateKey interface{}, kid string) (string, error) {
	ecKey, ok := privateKey.(*ecdsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("unsupported private key type: ES256 requires an EC P-256 key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}

	signedString, err := token.SignedString(ecKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedString, nil
}

// ParsePublicKeyPEM parses a PEM-encoded public key.
func ParsePublicKeyPEM(pemData string) (interface{}, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("failed to parse public key")
}

// ParsePrivateKeyPEM parses a PEM-encoded private key.
func ParsePrivateKeyPEM(pemData string) (interface{}, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("failed to parse private key")
}

// ExtractDIDFromJWT extracts a DID from the named claim without
// signature validation — used to look up a resolver key before the
// signature can be checked.
func ExtractDIDFromJWT(jwtString string, claimName string) (string, error) {
	parts := strings.Split(jwtString, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid JWT format")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("failed to decode JWT payload: %w", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("failed to parse JWT claims: %w", err)
	}

	if did, ok := claims[claimName].(string); ok && did != "" {
		return did, nil
	}
	return "", fmt.Errorf("DID not found in claim: %s", claimName)
}
