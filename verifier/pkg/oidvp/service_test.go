package oidvp

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/did"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/errors"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/jwtvc"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/models"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/vp"
)

// TestNewVerifierService tests service creation
func TestNewVerifierService(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	if service == nil {
		t.Error("NewVerifierService returned nil")
	}
	if service.vpVerifyURI != "http://localhost:8080/verify" {
		t.Errorf("Expected vpVerifyURI to be set, got %s", service.vpVerifyURI)
	}
}

// TestModifyPresentationDefinitionData_MissingParams tests with missing parameters
func TestModifyPresentationDefinitionData_MissingParams(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()

	tests := []struct {
		name     string
		mode     string
		clientID string
		nonce    string
	}{
		{"Missing mode", "", "client-id", "nonce"},
		{"Missing clientID", "save", "", "nonce"},
		{"Missing nonce", "save", "client-id", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ModifyPresentationDefinitionData(ctx, tt.mode, tt.clientID, tt.nonce, nil)
			if err == nil {
				t.Error("Expected error for missing parameters")
			}
			vpErr, ok := err.(*errors.VPError)
			if !ok {
				t.Errorf("Expected VPError, got %T", err)
			}
			if vpErr.Code != errors.ErrIllegalArgument {
				t.Errorf("Expected error code %d, got %d", errors.ErrIllegalArgument, vpErr.Code)
			}
		})
	}
}

// TestModifyPresentationDefinitionData_SaveWithoutPD tests save mode without PD
func TestModifyPresentationDefinitionData_SaveWithoutPD(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()

	err := service.ModifyPresentationDefinitionData(ctx, "save", "client-id", "nonce", nil)
	if err == nil {
		t.Error("Expected error when saving without presentation definition")
	}
	vpErr, ok := err.(*errors.VPError)
	if !ok {
		t.Errorf("Expected VPError, got %T", err)
	}
	if vpErr.Code != errors.ErrIllegalArgument {
		t.Errorf("Expected error code %d, got %d", errors.ErrIllegalArgument, vpErr.Code)
	}
}

// TestModifyPresentationDefinitionData_SaveSuccess tests successful save
func TestModifyPresentationDefinitionData_SaveSuccess(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()
	pd := map[string]interface{}{
		"id":                 "test-pd",
		"input_descriptors": []interface{}{},
	}

	if err := service.ModifyPresentationDefinitionData(ctx, "save", "client-id", "nonce", pd); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

// TestModifyPresentationDefinitionData_DeleteSuccess tests successful delete
func TestModifyPresentationDefinitionData_DeleteSuccess(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()

	if err := service.ModifyPresentationDefinitionData(ctx, "delete", "client-id", "nonce", nil); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

// TestModifyPresentationDefinitionData_InvalidMode tests with invalid mode
func TestModifyPresentationDefinitionData_InvalidMode(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()

	err := service.ModifyPresentationDefinitionData(ctx, "invalid-mode", "client-id", "nonce", nil)
	if err == nil {
		t.Error("Expected error for invalid mode")
	}
	vpErr, ok := err.(*errors.VPError)
	if !ok {
		t.Errorf("Expected VPError, got %T", err)
	}
	if vpErr.Code != errors.ErrIllegalArgument {
		t.Errorf("Expected error code %d, got %d", errors.ErrIllegalArgument, vpErr.Code)
	}
}

// TestVerify_WithoutSavedDefinition tests that verify before save fails
func TestVerify_WithoutSavedDefinition(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()
	authzResponse := &models.OIDVPAuthorizationResponse{
		VPToken:                "eyJhbGciOiJFUzI1NiJ9.test.signature",
		PresentationSubmission: `{"id":"test"}`,
	}

	_, err := service.Verify(ctx, authzResponse, "never-saved-nonce", "never-saved-client", "{}")
	if err == nil {
		t.Error("Expected error when verifying without a prior SAVE")
	}
}

// TestVerify_WalletError tests verification when wallet returns an error
func TestVerify_WalletError(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()

	if err := service.ModifyPresentationDefinitionData(ctx, "save", "test-client-id", "test-nonce", map[string]interface{}{"id": "pd"}); err != nil {
		t.Fatalf("failed to save presentation definition: %v", err)
	}

	authzResponse := &models.OIDVPAuthorizationResponse{
		Error:            "access_denied",
		ErrorDescription: "User cancelled the request",
	}

	result, err := service.Verify(ctx, authzResponse, "test-nonce", "test-client-id", "{}")
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if result.VerifyResult {
		t.Error("Expected VerifyResult to be false when wallet returns error")
	}
	if result.Error == nil {
		t.Error("Expected error info in result")
	}

	// Polling afterwards should report the rejected verdict.
	verdict, err := service.GetVerifyResult(ctx, "test-client-id", "test-nonce")
	if err != nil {
		t.Fatalf("unexpected error polling verdict: %v", err)
	}
	if verdict.VerifyResult {
		t.Error("expected rejected verdict")
	}
}

// TestFullFlow_SaveVerifyPoll exercises the full SAVE -> verify -> poll
// session lifecycle with a real signed VP/VC pair.
func TestFullFlow_SaveVerifyPoll(t *testing.T) {
	issuerPrivateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate issuer key: %v", err)
	}
	holderPrivateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate holder key: %v", err)
	}

	issuerDID := "did:example:issuer123"
	holderDID := "did:example:holder456"
	clientID := "C1"
	nonce := "N1"

	resolver := did.NewResolver()
	resolver.RegisterLocalKey(issuerDID, &issuerPrivateKey.PublicKey)
	resolver.RegisterLocalKey(holderDID, &holderPrivateKey.PublicKey)

	vcClaims := &jwtvc.VCClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerDID,
			Subject:   holderDID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        "vc-1",
		},
		VC: jwtvc.CredentialSubject{
			Context: []string{"https://www.w3.org/2018/credentials/v1"},
			Type:    []string{"VerifiableCredential", "NationalIDCredential"},
			CredentialSubject: map[string]interface{}{
				"id": holderDID,
			},
			Issuer: issuerDID,
		},
	}
	vcJWT, err := jwtvc.SignVC(vcClaims, issuerPrivateKey, issuerDID+"#key-1")
	if err != nil {
		t.Fatalf("failed to sign VC: %v", err)
	}

	vpClaims := &jwtvc.VPClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Subject:   holderDID,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		VP: jwtvc.PresentationSubject{
			Context:              []string{"https://www.w3.org/2018/credentials/v1"},
			Type:                 []string{"VerifiablePresentation"},
			VerifiableCredential: []string{vcJWT},
			Holder:               holderDID,
		},
	}
	vpJWT, err := jwtvc.SignVP(vpClaims, holderPrivateKey, holderDID+"#key-1")
	if err != nil {
		t.Fatalf("failed to sign VP: %v", err)
	}

	service := NewVerifierService("http://localhost:8080/verify")
	service.vpService = vp.NewServiceWithResolver(resolver)
	ctx := context.Background()

	if err := service.ModifyPresentationDefinitionData(ctx, "save", clientID, nonce, map[string]interface{}{"id": "pd-1"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Polling before the wallet responds must not pretend to have a verdict.
	pending, err := service.GetVerifyResult(ctx, clientID, nonce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending.VerifyResult {
		t.Error("expected pending session to report VerifyResult=false")
	}

	authzResponse := &models.OIDVPAuthorizationResponse{
		VPToken:                vpJWT,
		PresentationSubmission: `{"id":"sub-1","definition_id":"pd-1"}`,
	}
	verdict, err := service.Verify(ctx, authzResponse, nonce, clientID, "{}")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !verdict.VerifyResult {
		t.Fatalf("expected verified verdict, got error: %v", verdict.Error)
	}
	if verdict.HolderDID != holderDID {
		t.Errorf("expected holder DID %s, got %s", holderDID, verdict.HolderDID)
	}

	final, err := service.GetVerifyResult(ctx, clientID, nonce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !final.VerifyResult {
		t.Errorf("expected verified verdict on poll, got error: %v", final.Error)
	}
}

// TestGetVerifyResult_MissingBothParams tests retrieval with missing parameters
func TestGetVerifyResult_MissingBothParams(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()

	result, err := service.GetVerifyResult(ctx, "", "")
	if err == nil {
		t.Error("Expected error when both clientID and nonce are empty")
	}
	vpErr, ok := err.(*errors.VPError)
	if !ok {
		t.Errorf("Expected VPError, got %T", err)
	}
	if vpErr.Code != errors.ErrIllegalArgument {
		t.Errorf("Expected error code %d, got %d", errors.ErrIllegalArgument, vpErr.Code)
	}
	if result != nil {
		t.Error("Expected nil result when error occurs")
	}
}

// TestGetVerifyResult_UnknownSession tests retrieval for a session that was never saved
func TestGetVerifyResult_UnknownSession(t *testing.T) {
	service := NewVerifierService("http://localhost:8080/verify")
	ctx := context.Background()

	result, err := service.GetVerifyResult(ctx, "no-such-client", "no-such-nonce")
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if result.VerifyResult {
		t.Error("Expected VerifyResult to be false for an unknown session")
	}
}

// TestGetVerifyResult_ExpiredSession tests that a session read after
// its TTL reports EXPIRED rather than pretending it never existed.
func TestGetVerifyResult_ExpiredSession(t *testing.T) {
	service := NewVerifierServiceWithTTL("http://localhost:8080/verify", 30*time.Millisecond)
	ctx := context.Background()

	if err := service.ModifyPresentationDefinitionData(ctx, "save", "client-ttl", "nonce-ttl", map[string]interface{}{"id": "pd"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	result, err := service.GetVerifyResult(ctx, "client-ttl", "nonce-ttl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.VerifyResult {
		t.Error("expected VerifyResult=false for expired session")
	}
	if result.State != StateExpired.String() {
		t.Errorf("expected state %s, got %s", StateExpired, result.State)
	}

	// An authorization response arriving after expiry must be refused.
	authzResponse := &models.OIDVPAuthorizationResponse{
		VPToken:                "eyJhbGciOiJFUzI1NiJ9.test.signature",
		PresentationSubmission: `{"id":"late"}`,
	}
	if _, err := service.Verify(ctx, authzResponse, "nonce-ttl", "client-ttl", "{}"); err == nil {
		t.Error("expected verify on an expired session to fail")
	}
}
