// Package credential implements the issuer's credential lifecycle:
// generation (status-list index allocation, VC composition and
// signing), query by CID or nonce, and the revoke/suspend/recover
// state machine, with the owning status list re-signed and
// republished on every transition.
package credential

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/moda-gov-tw/twdiw-trust-engine/issuer/pkg/errors"
	"github.com/moda-gov-tw/twdiw-trust-engine/issuer/pkg/models"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/jwtvc"
)

// Validation limits to prevent DoS attacks
const (
	MaxCredentialSubjectEntries = 1000    // Maximum number of fields in credential subject
	MaxStringLength             = 1048576 // 1MB - Maximum length of any string field
	MaxMapDepth                 = 10      // Maximum nesting depth for maps

	defaultCredentialValidity = 365 * 24 * time.Hour
	defaultStatusListBaseURL  = "https://issuer.example/status-lists"
)

// Service handles credential issuance and management.
type Service struct {
	issuerDID  string
	signingKey *ecdsa.PrivateKey
	kid        string

	credentialValidity time.Duration

	mu      sync.RWMutex
	records map[string]*models.IssuerCredentialRecord
	byNonce map[string]string

	opaqueSeeds *OpaqueIDSeedRegistry
	statusLists *statusListManager
}

// Option configures a Service.
type Option func(*Service)

// WithStatusListBaseURL overrides the URL prefix status lists are
// published under.
func WithStatusListBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.statusLists.baseURL = baseURL
	}
}

// WithCredentialValidity overrides the default validity period applied
// when a generation request omits an explicit expirationDate.
func WithCredentialValidity(d time.Duration) Option {
	return func(s *Service) { s.credentialValidity = d }
}

// NewService creates a new credential service. issuerKey is treated as
// a PEM-encoded EC private key; if it is empty or does not parse, an
// ephemeral P-256 key is generated so the service is always able to
// sign, matching the teacher's "DID must be registered before
// issuance, key material is the engine's own concern" split.
func NewService(issuerDID, issuerKey string, opts ...Option) *Service {
	key := parseOrGenerateKey(issuerKey)
	return NewServiceWithKey(issuerDID, key, opts...)
}

// NewServiceWithKey creates a credential service with a caller-supplied
// signing key — used by tests and by callers that want to register the
// matching public key with a verifier's DID resolver.
func NewServiceWithKey(issuerDID string, signingKey *ecdsa.PrivateKey, opts ...Option) *Service {
	kid := issuerDID + "#key-1"
	s := &Service{
		issuerDID:          issuerDID,
		signingKey:         signingKey,
		kid:                kid,
		credentialValidity: defaultCredentialValidity,
		records:            make(map[string]*models.IssuerCredentialRecord),
		byNonce:            make(map[string]string),
		opaqueSeeds:        NewOpaqueIDSeedRegistry(),
		statusLists:        newStatusListManager(issuerDID, kid, signingKey, defaultStatusListBaseURL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func parseOrGenerateKey(issuerKey string) *ecdsa.PrivateKey {
	if issuerKey != "" {
		if key, err := jwtvc.ParsePrivateKeyPEM(issuerKey); err == nil {
			if ecKey, ok := key.(*ecdsa.PrivateKey); ok {
				return ecKey
			}
		}
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		// crypto/rand failures are not recoverable; the service cannot
		// sign anything without a key.
		panic(fmt.Sprintf("credential: failed to generate issuer signing key: %v", err))
	}
	return key
}

// PublicKey returns the service's signing public key, so a caller can
// register it with a verifier's DID resolver for end-to-end wiring.
func (s *Service) PublicKey() *ecdsa.PublicKey {
	return &s.signingKey.PublicKey
}

// GetPublishedStatusList returns the currently published status-list
// JWT for url, for an HTTP handler to serve at that well-known URL.
func (s *Service) GetPublishedStatusList(url string) (string, bool) {
	return s.statusLists.get(url)
}

// Generate generates a new verifiable credential.
func (s *Service) Generate(ctx context.Context, request *models.CredentialRequestDTO) (string, int, error) {
	if request == nil {
		return errResponse(errors.NewVCError(
			errors.ErrCredInvalidCredentialGenerationRequest,
			"invalid credential generation request",
		))
	}

	if s.issuerDID == "" {
		return errResponse(errors.NewVCError(
			errors.ErrSysNotRegisterDIDYetError,
			"issuer has not yet registered a DID",
		))
	}

	if request.CredentialType == "" {
		return errResponse(errors.NewVCError(
			errors.ErrCredInvalidCredentialType,
			"credential type is required",
		))
	}
	if len(request.CredentialType) > MaxStringLength {
		return errResponse(errors.NewVCError(
			errors.ErrCredInvalidCredentialType,
			fmt.Sprintf("credential type exceeds maximum length of %d", MaxStringLength),
		))
	}

	if len(request.CredentialSubject) == 0 {
		return errResponse(errors.NewVCError(
			errors.ErrCredInvalidCredentialSubject,
			"credential subject is required",
		))
	}
	if len(request.CredentialSubject) > MaxCredentialSubjectEntries {
		return errResponse(errors.NewVCError(
			errors.ErrCredInvalidCredentialSubject,
			fmt.Sprintf("credential subject exceeds maximum %d entries", MaxCredentialSubjectEntries),
		))
	}
	if err := validateMapStringLengths(request.CredentialSubject, 0); err != nil {
		return errResponse(errors.NewVCError(errors.ErrCredInvalidCredentialSubject, err.Error()))
	}

	select {
	case <-ctx.Done():
		return errResponse(errors.NewVCError(errors.Unknown, "operation cancelled"))
	default:
	}

	holderDID := request.CredentialSubjectID
	if holderDID == "" {
		if id, ok := request.CredentialSubject["id"].(string); ok {
			holderDID = id
		}
	}

	listID, index, statusURL, err := s.statusLists.allocate()
	if err != nil {
		return errResponse(errors.NewVCError(errors.ErrSLGenerateStatusListError, fmt.Sprintf("failed to allocate status list index: %v", err)))
	}

	subject := request.CredentialSubject
	if holderDID != "" {
		subject, err = s.opaqueSeeds.InjectOpaqueIDSeed(request.CredentialSubject, holderDID, request.CredentialType)
		if err != nil {
			return errResponse(errors.NewVCError(errors.ErrCredGenerateVCError, fmt.Sprintf("failed to inject opaque ID seed: %v", err)))
		}
	}

	now := time.Now()
	issuanceDate := now
	if request.IssuanceDate != nil {
		issuanceDate = *request.IssuanceDate
	}
	expirationDate := issuanceDate.Add(s.credentialValidity)
	if request.ExpirationDate != nil {
		expirationDate = *request.ExpirationDate
	}
	if !expirationDate.After(issuanceDate) {
		return errResponse(errors.NewVCError(
			errors.ErrCredInvalidExpirationDate,
			"expiration date must be after issuance date",
		))
	}

	cid := uuid.NewString()
	nonce := request.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}

	vcJWT, err := s.signCredential(cid, holderDID, request.CredentialType, subject, issuanceDate, expirationDate, statusURL, index)
	if err != nil {
		return errResponse(errors.NewVCError(errors.ErrCredSignVCError, fmt.Sprintf("failed to sign credential: %v", err)))
	}

	record := &models.IssuerCredentialRecord{
		CID:             cid,
		IssuerDID:       s.issuerDID,
		HolderDID:       holderDID,
		CredentialType:  request.CredentialType,
		IssuedJWT:       vcJWT,
		Nonce:           nonce,
		StatusListID:    listID,
		StatusListURL:   statusURL,
		StatusListIndex: index,
		Status:          models.CredentialStatusActive,
		IssuedAt:        issuanceDate,
		ExpiresAt:       expirationDate,
	}

	s.mu.Lock()
	s.records[cid] = record
	s.byNonce[nonce] = cid
	s.mu.Unlock()

	credentialResponse := &models.CredentialResponseDTO{
		CID:        cid,
		Credential: vcJWT,
		Nonce:      nonce,
	}
	response, _ := json.Marshal(credentialResponse)
	return string(response), http.StatusOK, nil
}

// signCredential composes and signs a VC JWT per the engine's §3 data
// model (@context, type, issuer, issuanceDate/expirationDate,
// credentialSubject, credentialStatus).
func (s *Service) signCredential(
	cid, holderDID, credentialType string,
	subject map[string]interface{},
	issuanceDate, expirationDate time.Time,
	statusURL string, statusIndex int,
) (string, error) {
	claims := &jwtvc.VCClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuerDID,
			Subject:   holderDID,
			ID:        cid,
			IssuedAt:  jwt.NewNumericDate(issuanceDate),
			ExpiresAt: jwt.NewNumericDate(expirationDate),
		},
		VC: jwtvc.CredentialSubject{
			Context:           []string{"https://www.w3.org/2018/credentials/v1"},
			Type:              []string{"VerifiableCredential", credentialType},
			Issuer:            s.issuerDID,
			IssuanceDate:      issuanceDate.Format(time.RFC3339),
			ExpirationDate:    expirationDate.Format(time.RFC3339),
			CredentialSubject: subject,
			CredentialStatus: &jwtvc.CredentialStatus{
				ID:                   statusURL,
				Type:                 "StatusList2021Entry",
				StatusListIndex:      fmt.Sprintf("%d", statusIndex),
				StatusListCredential: statusURL,
			},
		},
	}
	return jwtvc.SignVC(claims, s.signingKey, s.kid)
}

// Query queries a credential by CID.
func (s *Service) Query(ctx context.Context, cid string) (string, int, error) {
	if cid == "" {
		return errResponse(errors.NewVCError(errors.ErrCredInvalidCredentialID, "invalid credential ID"))
	}

	s.mu.RLock()
	record, ok := s.records[cid]
	s.mu.RUnlock()
	if !ok {
		return errResponse(errors.NewVCError(errors.ErrCredCredentialNotFound, fmt.Sprintf("credential not found: %s", cid)))
	}

	response, _ := json.Marshal(record)
	return string(response), http.StatusOK, nil
}

// QueryByNonce queries a credential by nonce.
func (s *Service) QueryByNonce(ctx context.Context, nonce string) (string, int, error) {
	if nonce == "" {
		return errResponse(errors.NewVCError(errors.ErrCredInvalidNonce, "invalid nonce"))
	}

	s.mu.RLock()
	cid, ok := s.byNonce[nonce]
	var record *models.IssuerCredentialRecord
	if ok {
		record = s.records[cid]
	}
	s.mu.RUnlock()
	if !ok || record == nil {
		return errResponse(errors.NewVCError(errors.ErrCredCredentialNotFound, fmt.Sprintf("credential not found with nonce: %s", nonce)))
	}

	response, _ := json.Marshal(record)
	return string(response), http.StatusOK, nil
}

// Revoke revokes a credential. REVOKED is terminal: revoking an
// already-revoked credential is a no-op that still returns success.
func (s *Service) Revoke(ctx context.Context, cid string) (string, int, error) {
	if cid == "" {
		return errResponse(errors.NewVCError(errors.ErrCredInvalidCredentialID, "invalid credential ID"))
	}

	record, err := s.lockedRecord(cid)
	if err != nil {
		return errResponse(err)
	}

	s.mu.Lock()
	already := record.Status == models.CredentialStatusRevoked
	if !already {
		record.Status = models.CredentialStatusRevoked
	}
	s.mu.Unlock()

	if !already {
		if err := s.statusLists.setStatus(record.StatusListID, record.StatusListIndex, bitStatusRevoked); err != nil {
			return errResponse(errors.NewVCError(errors.ErrSLSignStatusListError, fmt.Sprintf("failed to publish revocation: %v", err)))
		}
	}

	return lifecycleResponse(cid, models.CredentialStatusRevoked)
}

// Suspend suspends an active credential. Suspending a revoked
// credential is forbidden; suspending an already-suspended credential
// is idempotent.
func (s *Service) Suspend(ctx context.Context, cid string) (string, int, error) {
	if cid == "" {
		return errResponse(errors.NewVCError(errors.ErrCredInvalidCredentialID, "invalid credential ID"))
	}

	record, err := s.lockedRecord(cid)
	if err != nil {
		return errResponse(err)
	}

	s.mu.RLock()
	status := record.Status
	s.mu.RUnlock()

	if status == models.CredentialStatusRevoked {
		return errResponse(errors.NewVCError(errors.ErrCredRevokedCredCannotBeSuspendedError, fmt.Sprintf("credential %s is revoked and cannot be suspended", cid)))
	}
	if status == models.CredentialStatusSuspended {
		return lifecycleResponse(cid, models.CredentialStatusSuspended)
	}

	s.mu.Lock()
	record.Status = models.CredentialStatusSuspended
	s.mu.Unlock()

	if err := s.statusLists.setStatus(record.StatusListID, record.StatusListIndex, bitStatusSuspended); err != nil {
		return errResponse(errors.NewVCError(errors.ErrSLSignStatusListError, fmt.Sprintf("failed to publish suspension: %v", err)))
	}

	return lifecycleResponse(cid, models.CredentialStatusSuspended)
}

// Recover restores a suspended credential to active. Recovering a
// revoked credential is forbidden; recovering an already-active
// credential is idempotent.
func (s *Service) Recover(ctx context.Context, cid string) (string, int, error) {
	if cid == "" {
		return errResponse(errors.NewVCError(errors.ErrCredInvalidCredentialID, "invalid credential ID"))
	}

	record, err := s.lockedRecord(cid)
	if err != nil {
		return errResponse(err)
	}

	s.mu.RLock()
	status := record.Status
	s.mu.RUnlock()

	if status == models.CredentialStatusRevoked {
		return errResponse(errors.NewVCError(errors.ErrCredRevokedCredCannotBeRecoveredError, fmt.Sprintf("credential %s is revoked and cannot be recovered", cid)))
	}
	if status == models.CredentialStatusActive {
		return lifecycleResponse(cid, models.CredentialStatusActive)
	}

	s.mu.Lock()
	record.Status = models.CredentialStatusActive
	s.mu.Unlock()

	if err := s.statusLists.setStatus(record.StatusListID, record.StatusListIndex, bitStatusActive); err != nil {
		return errResponse(errors.NewVCError(errors.ErrSLSignStatusListError, fmt.Sprintf("failed to publish recovery: %v", err)))
	}

	return lifecycleResponse(cid, models.CredentialStatusActive)
}

func (s *Service) lockedRecord(cid string) (*models.IssuerCredentialRecord, *errors.VCError) {
	s.mu.RLock()
	record, ok := s.records[cid]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewVCError(errors.ErrCredCredentialNotFound, fmt.Sprintf("credential not found: %s", cid))
	}
	return record, nil
}

func lifecycleResponse(cid, status string) (string, int, error) {
	result := map[string]interface{}{"cid": cid, "status": status}
	response, _ := json.Marshal(result)
	return string(response), http.StatusOK, nil
}

func errResponse(vcErr *errors.VCError) (string, int, error) {
	response, _ := json.Marshal(vcErr.Response())
	return string(response), vcErr.HTTPStatus(), vcErr
}

// validateMapStringLengths validates string lengths and nesting depth in a map
func validateMapStringLengths(m map[string]interface{}, depth int) error {
	if depth > MaxMapDepth {
		return fmt.Errorf("map nesting exceeds maximum depth of %d", MaxMapDepth)
	}

	for key, value := range m {
		if len(key) > MaxStringLength {
			return fmt.Errorf("map key exceeds maximum length of %d", MaxStringLength)
		}

		switch v := value.(type) {
		case string:
			if len(v) > MaxStringLength {
				return fmt.Errorf("string value for key '%s' exceeds maximum length of %d", key, MaxStringLength)
			}
		case map[string]interface{}:
			if err := validateMapStringLengths(v, depth+1); err != nil {
				return err
			}
		case []interface{}:
			for i, item := range v {
				if str, ok := item.(string); ok {
					if len(str) > MaxStringLength {
						return fmt.Errorf("string in array at key '%s'[%d] exceeds maximum length of %d", key, i, MaxStringLength)
					}
				} else if nestedMap, ok := item.(map[string]interface{}); ok {
					if err := validateMapStringLengths(nestedMap, depth+1); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}
