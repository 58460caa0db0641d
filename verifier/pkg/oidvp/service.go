// Package oidvp implements the OID4VP authorization-response state
// machine: a verifier application registers a presentation
// definition keyed by (client_id, nonce), the wallet later posts its
// authorization response, and the verifier application polls for the
// resulting verdict under the same key.
package oidvp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/errors"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/models"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/vp"
)

// SessionState is a position in the OID4VP state machine.
type SessionState int

const (
	StateNone SessionState = iota
	StateDefinitionRegistered
	StateResponsePending
	StateVerified
	StateRejected
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateDefinitionRegistered:
		return "DEFINITION_REGISTERED"
	case StateResponsePending:
		return "RESPONSE_PENDING"
	case StateVerified:
		return "VERIFIED"
	case StateRejected:
		return "REJECTED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "NONE"
	}
}

// session is the persisted OID4VPSession record.
type session struct {
	transactionID          string
	presentationDefinition map[string]interface{}
	state                  SessionState
	verdict                *models.VerifyResult
	createdAt              time.Time
	updatedAt              time.Time
	expiresAt              time.Time
}

func (s *session) expired(now time.Time) bool {
	return now.After(s.expiresAt)
}

const defaultSessionTTL = 10 * time.Minute

// VerifierService handles OID4VP verification: presentation-definition
// registration, authorization-response ingestion, and verdict polling.
type VerifierService struct {
	vpVerifyURI string
	vpService   *vp.Service
	sessionTTL  time.Duration
	sessions    *ttlcache.Cache[string, *session]
}

// Option configures a VerifierService.
type Option func(*VerifierService)

// WithSessionTTL overrides the default 10-minute session TTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *VerifierService) { s.sessionTTL = ttl }
}

// WithVPService supplies the VP validation service authorization
// responses are verified through, letting callers share one DID
// resolver cache and logger across services.
func WithVPService(svc *vp.Service) Option {
	return func(s *VerifierService) { s.vpService = svc }
}

// NewVerifierService creates a new OID4VP verifier service with the
// default 10-minute session TTL and its own VP validation service.
// Expired sessions are retained for a further TTL so reads within that
// window report EXPIRED rather than not-found; the cache sweeper
// reclaims them after that.
func NewVerifierService(vpVerifyURI string, opts ...Option) *VerifierService {
	s := &VerifierService{
		vpVerifyURI: vpVerifyURI,
		vpService:   vp.NewService(),
		sessionTTL:  defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = ttlcache.New(
		ttlcache.WithTTL[string, *session](2*s.sessionTTL),
		ttlcache.WithDisableTouchOnHit[string, *session](),
	)
	go s.sessions.Start()
	return s
}

// NewVerifierServiceWithTTL creates a new OID4VP verifier service with
// a caller-specified session TTL.
func NewVerifierServiceWithTTL(vpVerifyURI string, ttl time.Duration) *VerifierService {
	return NewVerifierService(vpVerifyURI, WithSessionTTL(ttl))
}

func sessionKey(clientID, nonce string) string {
	return clientID + "|" + nonce
}

// ModifyPresentationDefinitionData saves or deletes a presentation
// definition for the (client_id, nonce) key: SAVE registers the
// session (NONE -> DEFINITION_REGISTERED), DELETE tears it down.
func (s *VerifierService) ModifyPresentationDefinitionData(ctx context.Context, mode, clientID, nonce string, presentationDefinition map[string]interface{}) error {
	if mode == "" || clientID == "" || nonce == "" {
		return errors.NewVPError(
			errors.ErrIllegalArgument,
			"required input is not exist",
		)
	}

	key := sessionKey(clientID, nonce)

	switch mode {
	case "save", "SAVE":
		if presentationDefinition == nil {
			return errors.NewVPError(
				errors.ErrIllegalArgument,
				"presentation_definition must be submit",
			)
		}
		now := time.Now()
		s.sessions.Set(key, &session{
			transactionID:          uuid.NewString(),
			presentationDefinition: presentationDefinition,
			state:                  StateDefinitionRegistered,
			createdAt:              now,
			updatedAt:              now,
			expiresAt:              now.Add(s.sessionTTL),
		}, ttlcache.DefaultTTL)
		return nil

	case "delete", "DELETE":
		s.sessions.Delete(key)
		return nil

	default:
		return errors.NewVPError(
			errors.ErrIllegalArgument,
			fmt.Sprintf("invalid mode: %s", mode),
		)
	}
}

// Verify ingests an OID4VP authorization response for the
// (client_id, nonce) session, validates the VP token, cross-checks
// nonce and audience, and records the verdict.
func (s *VerifierService) Verify(ctx context.Context, authzResponse *models.OIDVPAuthorizationResponse, nonce, clientID, presentationDefinition string) (*models.VerifyResult, error) {
	key := sessionKey(clientID, nonce)
	item := s.sessions.Get(key)
	if item == nil {
		return nil, errors.NewVPError(
			errors.ErrIllegalArgument,
			"session not found: a presentation definition must be saved before verify",
		)
	}
	sess := item.Value()
	if sess.expired(time.Now()) {
		sess.state = StateExpired
		return nil, errors.NewVPError(
			errors.ErrIllegalArgument,
			"session expired: a presentation definition must be saved again before verify",
		)
	}
	sess.state = StateResponsePending
	sess.updatedAt = time.Now()

	if !authzResponse.IsSuccess() {
		verdict := &models.VerifyResult{
			VerifyResult: false,
			Error: &models.ErrorInfo{
				Code:    errors.Unknown,
				Message: fmt.Sprintf("%s: %s", authzResponse.Error, authzResponse.ErrorDescription),
			},
		}
		sess.state = StateRejected
		sess.verdict = verdict
		sess.updatedAt = time.Now()
		return verdict, nil
	}

	verdict := s.verifyPresentation(ctx, authzResponse.VPToken, nonce, clientID)
	if verdict.VerifyResult {
		sess.state = StateVerified
	} else {
		sess.state = StateRejected
	}
	sess.verdict = verdict
	sess.updatedAt = time.Now()

	return verdict, nil
}

// verifyPresentation invokes VP validation on the wallet's vp_token
// and cross-checks the embedded nonce/audience against the session.
func (s *VerifierService) verifyPresentation(ctx context.Context, vpToken, nonce, clientID string) *models.VerifyResult {
	if nonce == "" || clientID == "" {
		return &models.VerifyResult{
			VerifyResult: false,
			Error: &models.ErrorInfo{
				Code:    errors.ErrIllegalArgument,
				Message: "required verify info is null or blank",
			},
		}
	}

	result, status, err := s.vpService.Validate(ctx, []string{vpToken})
	if err != nil || status != 200 {
		return &models.VerifyResult{
			VerifyResult: false,
			Error: &models.ErrorInfo{
				Code:    errors.ErrPresValidateVPError,
				Message: fmt.Sprintf("VP token validation failed: %v", err),
			},
		}
	}

	var responses []models.PresentationValidationResponse
	if err := json.Unmarshal([]byte(result), &responses); err != nil || len(responses) == 0 {
		return &models.VerifyResult{
			VerifyResult: false,
			Error: &models.ErrorInfo{
				Code:    errors.ErrPresValidateVPContentError,
				Message: "VP token did not produce a presentation result",
			},
		}
	}
	resp := responses[0]

	if resp.Nonce != nonce {
		return &models.VerifyResult{
			VerifyResult: false,
			Error: &models.ErrorInfo{
				Code:    errors.ErrPresHolderPublicKeyInconsistent,
				Message: fmt.Sprintf("nonce mismatch: expected %s, got %s", nonce, resp.Nonce),
			},
		}
	}
	if resp.ClientID != clientID {
		return &models.VerifyResult{
			VerifyResult: false,
			Error: &models.ErrorInfo{
				Code:    errors.ErrPresHolderPublicKeyInconsistent,
				Message: fmt.Sprintf("audience mismatch: expected %s, got %s", clientID, resp.ClientID),
			},
		}
	}

	vcClaims := make([]models.VCResponseObject, 0, len(resp.VerifiableCredentials))
	for _, vc := range resp.VerifiableCredentials {
		credType := ""
		if len(vc.CredentialTypes) > 0 {
			credType = vc.CredentialTypes[len(vc.CredentialTypes)-1]
		}
		vcClaims = append(vcClaims, models.VCResponseObject{
			CredentialType: credType,
			Claims:         vc.CredentialSubject,
		})
	}

	return &models.VerifyResult{
		VerifyResult: true,
		HolderDID:    resp.HolderDID,
		VCClaims:     vcClaims,
	}
}

// GetVerifyResult retrieves the cached verdict for a (client_id, nonce)
// session. A missing session or a session awaiting its authorization
// response yields an illegal-argument style result rather than the
// stored verdict.
func (s *VerifierService) GetVerifyResult(ctx context.Context, clientID, nonce string) (*models.VerifyResult, error) {
	if clientID == "" && nonce == "" {
		return nil, errors.NewVPError(
			errors.ErrIllegalArgument,
			"'client_id' and 'nonce' must not be null at the same time",
		)
	}

	key := sessionKey(clientID, nonce)
	item := s.sessions.Get(key)
	if item == nil {
		return &models.VerifyResult{
			VerifyResult: false,
			Error: &models.ErrorInfo{
				Code:    errors.ErrIllegalArgument,
				Message: "session expired or not found",
			},
		}, nil
	}

	sess := item.Value()
	if sess.expired(time.Now()) {
		sess.state = StateExpired
	}

	switch sess.state {
	case StateDefinitionRegistered:
		return &models.VerifyResult{
			VerifyResult: false,
			State:        StateDefinitionRegistered.String(),
			Error: &models.ErrorInfo{
				Code:    errors.ErrIllegalArgument,
				Message: "no authorization response has been received for this session yet",
			},
		}, nil
	case StateExpired:
		return &models.VerifyResult{
			VerifyResult: false,
			State:        StateExpired.String(),
			Error: &models.ErrorInfo{
				Code:    errors.ErrIllegalArgument,
				Message: "session expired",
			},
		}, nil
	case StateVerified, StateRejected:
		verdict := *sess.verdict
		verdict.State = sess.state.String()
		return &verdict, nil
	default:
		return &models.VerifyResult{
			VerifyResult: false,
			State:        sess.state.String(),
			Error: &models.ErrorInfo{
				Code:    errors.Unknown,
				Message: "session in unexpected state: " + sess.state.String(),
			},
		}, nil
	}
}

// ClearSessions removes all sessions. Used by tests to reset state
// between cases without waiting out the TTL.
func (s *VerifierService) ClearSessions() {
	s.sessions.DeleteAll()
}
