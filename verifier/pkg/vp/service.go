// Package vp validates batches of Verifiable Presentations (W3C
// JWT-VP and ISO 18013-5 mDL), checking proof, per-credential content,
// holder-binding consistency, and revocation status.
package vp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/did"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/errors"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/jwtvc"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/models"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/statuslist"
)

// Validation limits to prevent DoS attacks.
const (
	MaxPresentations    = 100      // Maximum number of presentations in a single request
	MaxPresentationSize = 1048576  // 1MiB - maximum size of a single presentation string
	MaxTotalPayloadSize = 10485760 // 10MiB - maximum total size of all presentations

	// maxStatusCheckConcurrency bounds the fan-out of concurrent
	// status-list lookups within one presentation.
	maxStatusCheckConcurrency = 8
)

// Service handles VP (Verifiable Presentation) validation.
type Service struct {
	jwtValidator    *jwtvc.Validator
	didResolver     *did.Resolver
	statusListCheck *statuslist.Client
	log             logr.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger the service records internal validation
// causes through. Those causes are never echoed to clients; without a
// logger they are discarded.
func WithLogger(log logr.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithHTTPClient sets the HTTP client (and therefore the outbound
// deadline) used for status-list fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		s.statusListCheck = statuslist.NewClient(s.jwtValidator, statuslist.WithHTTPClient(hc))
	}
}

// NewService creates a new VP validation service with its own DID
// resolver and status-list client.
func NewService(opts ...Option) *Service {
	return NewServiceWithResolver(did.NewResolver(), opts...)
}

// NewServiceWithResolver creates a new VP validation service with a
// caller-provided DID resolver (for tests, or for sharing one
// resolver's cache across services).
func NewServiceWithResolver(resolver *did.Resolver, opts ...Option) *Service {
	jwtValidator := jwtvc.NewValidator(resolver)
	s := &Service{
		jwtValidator: jwtValidator,
		didResolver:  resolver,
		log:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.statusListCheck == nil {
		s.statusListCheck = statuslist.NewClient(jwtValidator)
	}
	return s
}

// Validate validates a list of verifiable presentations.
func (s *Service) Validate(ctx context.Context, presentations []string) (string, int, error) {
	if len(presentations) == 0 {
		vpErr := errors.NewVPError(
			errors.ErrPresInvalidPresentationValidationRequest,
			"presentations list cannot be empty",
		)
		response, _ := json.Marshal(vpErr.Response())
		return string(response), vpErr.HTTPStatus(), vpErr
	}

	if len(presentations) > MaxPresentations {
		vpErr := errors.NewVPError(
			errors.ErrPresInvalidPresentationValidationRequest,
			fmt.Sprintf("too many presentations: maximum %d allowed", MaxPresentations),
		)
		response, _ := json.Marshal(vpErr.Response())
		return string(response), vpErr.HTTPStatus(), vpErr
	}

	var totalSize int
	for i, presentation := range presentations {
		presentationSize := len(presentation)
		if presentationSize > MaxPresentationSize {
			vpErr := errors.NewVPError(
				errors.ErrPresInvalidPresentationValidationRequest,
				fmt.Sprintf("presentation at index %d exceeds maximum size of %d bytes", i, MaxPresentationSize),
			)
			response, _ := json.Marshal(vpErr.Response())
			return string(response), vpErr.HTTPStatus(), vpErr
		}

		totalSize += presentationSize
		if totalSize > MaxTotalPayloadSize {
			vpErr := errors.NewVPError(
				errors.ErrPresInvalidPresentationValidationRequest,
				fmt.Sprintf("total payload exceeds maximum size of %d bytes", MaxTotalPayloadSize),
			)
			response, _ := json.Marshal(vpErr.Response())
			return string(response), vpErr.HTTPStatus(), vpErr
		}
	}

	results, err := s.validateVPs(ctx, presentations)
	if err != nil {
		if vpErr, ok := err.(*errors.VPError); ok {
			response, _ := json.Marshal(vpErr.Response())
			return string(response), vpErr.HTTPStatus(), vpErr
		}
		vpErr := errors.NewVPError(
			errors.ErrPresValidateVPError,
			"presentation validation failed",
		)
		response, _ := json.Marshal(vpErr.Response())
		return string(response), vpErr.HTTPStatus(), vpErr
	}

	response, _ := json.Marshal(results)
	return string(response), http.StatusOK, nil
}

// validateVPs validates multiple VPs, dispatching each to the W3C
// JWT-VP or ISO mDL path based on its wire format.
func (s *Service) validateVPs(ctx context.Context, presentations []string) ([]models.PresentationValidationResponse, error) {
	results := make([]models.PresentationValidationResponse, 0, len(presentations))
	isArray := len(presentations) > 1

	for vpIndex, presentation := range presentations {
		select {
		case <-ctx.Done():
			return nil, errors.NewVPError(errors.Unknown, "operation cancelled")
		default:
		}

		trimmed := strings.TrimSpace(presentation)
		if trimmed == "" {
			continue
		}

		var result models.PresentationValidationResponse
		var err error
		switch detectFormat(trimmed) {
		case models.FormatW3CJWT:
			result, err = s.validateVP(ctx, trimmed, vpIndex, isArray)
		case models.FormatISOMDL:
			result, err = s.validateMDLPresentation(trimmed)
		default:
			err = errors.NewVPError(
				errors.ErrPresValidateVPContentError,
				fmt.Sprintf("unrecognized presentation format at index %d", vpIndex),
			)
		}
		if err != nil {
			return nil, err
		}

		results = append(results, result)
	}

	return results, nil
}

// detectFormat classifies a presentation string: a compact JWS always
// starts with the base64url of `{"` ("eyJ"); an mdoc is CBOR whose
// first byte is a map or tag major type, either raw or under one
// layer of base64.
func detectFormat(presentation string) models.CredentialFormat {
	if strings.HasPrefix(presentation, "eyJ") {
		return models.FormatW3CJWT
	}
	if isCBORLeadByte(presentation[0]) {
		return models.FormatISOMDL
	}
	if decoded, err := base64.StdEncoding.DecodeString(presentation); err == nil && len(decoded) > 0 && isCBORLeadByte(decoded[0]) {
		return models.FormatISOMDL
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(presentation); err == nil && len(decoded) > 0 && isCBORLeadByte(decoded[0]) {
		return models.FormatISOMDL
	}
	return models.FormatUnknown
}

// isCBORLeadByte reports whether b opens a CBOR map (0xA0..0xBF) or
// tag (0xC0..0xDF) data item.
func isCBORLeadByte(b byte) bool {
	return b >= 0xA0 && b <= 0xDF
}

// validateVP validates a single W3C JWT-VP.
func (s *Service) validateVP(ctx context.Context, presentation string, vpIndex int, isArray bool) (models.PresentationValidationResponse, error) {
	vpClaims, err := s.jwtValidator.ValidateVP(ctx, presentation, "", "")
	if err != nil {
		// The internal cause may name keys, libraries or URLs; log it
		// and return the sanitized message only.
		s.log.Error(err, "VP proof validation failed", "vp_path", getVPPath(vpIndex, isArray))
		return models.PresentationValidationResponse{}, errors.NewVPError(
			errors.ErrPresValidateVPProofError,
			"VP validation failed",
		)
	}

	holderDID := vpClaims.Subject
	if holderDID == "" && vpClaims.VP.Holder != "" {
		holderDID = vpClaims.VP.Holder
	}

	clientID := ""
	nonce := vpClaims.ID
	if len(vpClaims.Audience) > 0 {
		clientID = vpClaims.Audience[0]
	}

	vpPath := getVPPath(vpIndex, isArray)
	vcResults, vcErrors := s.validateVCs(ctx, vpClaims.VP.VerifiableCredential, holderDID, vpPath)

	return models.PresentationValidationResponse{
		ClientID:              clientID,
		Nonce:                 nonce,
		HolderDID:             holderDID,
		Format:                models.FormatW3CJWT,
		VerifiableCredentials: vcResults,
		VCErrors:              vcErrors,
	}, nil
}

// validateVCs validates each embedded VC and checks its revocation
// status concurrently, bounded by maxStatusCheckConcurrency. A VC
// that fails any check is dropped from the returned slice and its
// failure recorded separately; order among the surviving VCs mirrors
// their order in vcJWTs.
func (s *Service) validateVCs(ctx context.Context, vcJWTs []string, holderDID string, vpPath string) ([]models.VerifiableCredentialData, []models.VCErrorEntry) {
	oks := make([]*models.VerifiableCredentialData, len(vcJWTs))
	fails := make([]*models.VCErrorEntry, len(vcJWTs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxStatusCheckConcurrency)

	for i, vcJWT := range vcJWTs {
		i, vcJWT := i, vcJWT
		g.Go(func() error {
			ok, fail := s.validateVC(gCtx, vcJWT, holderDID, vpPath, i)
			oks[i], fails[i] = ok, fail
			return nil
		})
	}
	_ = g.Wait() // validateVC never returns an error from this group; failures are recorded per-entry

	var results []models.VerifiableCredentialData
	var vcErrors []models.VCErrorEntry
	for i := range vcJWTs {
		if oks[i] != nil {
			results = append(results, *oks[i])
		} else if fails[i] != nil {
			vcErrors = append(vcErrors, *fails[i])
		}
	}

	return results, vcErrors
}

// validateVC validates a single VC's proof and content, then checks
// its status-list entry if it declares one. Exactly one of the two
// return values is non-nil.
func (s *Service) validateVC(ctx context.Context, vcJWT string, expectedHolderDID string, vpPath string, vcIndex int) (*models.VerifiableCredentialData, *models.VCErrorEntry) {
	vcPath := getVCPath(vcIndex)

	vcClaims, err := s.jwtValidator.ValidateVC(ctx, vcJWT)
	if err != nil {
		s.log.Error(err, "VC proof validation failed", "vp_path", vpPath, "vc_path", vcPath)
		return nil, &models.VCErrorEntry{
			VPPath: vpPath, VCPath: vcPath,
			Code: errors.ErrCredValidateVCProofError, Message: "VC validation failed",
		}
	}

	if expectedHolderDID != "" && vcClaims.Subject != expectedHolderDID {
		return nil, &models.VCErrorEntry{
			VPPath: vpPath, VCPath: vcPath,
			Code:    errors.ErrPresHolderPublicKeyInconsistent,
			Message: fmt.Sprintf("VC subject (%s) does not match VP holder (%s)", vcClaims.Subject, expectedHolderDID),
		}
	}

	issuerDID := vcClaims.Issuer
	if issuerDID == "" && vcClaims.VC.Issuer != "" {
		issuerDID = vcClaims.VC.Issuer
	}

	credentialTypes := vcClaims.VC.Type
	if credentialTypes == nil {
		credentialTypes = []string{}
	}

	credentialSubject := vcClaims.VC.CredentialSubject
	if credentialSubject == nil {
		credentialSubject = make(map[string]interface{})
	}

	result := models.VerifiableCredentialData{
		VPPath:            vpPath,
		VCPath:            vcPath,
		IssuerDID:         issuerDID,
		CredentialTypes:   credentialTypes,
		CredentialSubject: credentialSubject,
		IssuanceDate:      vcClaims.VC.IssuanceDate,
		ExpirationDate:    vcClaims.VC.ExpirationDate,
	}

	if vcClaims.VC.CredentialStatus != nil && vcClaims.VC.CredentialStatus.ID != "" {
		result.StatusListURL = vcClaims.VC.CredentialStatus.ID
		index, parseErr := parseStatusListIndex(vcClaims.VC.CredentialStatus.StatusListIndex)
		if parseErr != nil {
			return nil, &models.VCErrorEntry{VPPath: vpPath, VCPath: vcPath, Code: errors.ErrCredValidateVCStatusError, Message: parseErr.Error()}
		}

		status, err := s.statusListCheck.CheckStatus(ctx, vcClaims.VC.CredentialStatus.ID, index)
		if err != nil {
			s.log.Error(err, "status list check failed", "vc_path", vcPath, "status_list_url", vcClaims.VC.CredentialStatus.ID)
			return nil, &models.VCErrorEntry{VPPath: vpPath, VCPath: vcPath, Code: errors.ErrCredValidateVCStatusError, Message: "failed to check credential status"}
		}

		result.CredentialStatus = status.String()
		if status != statuslist.StatusActive {
			return nil, &models.VCErrorEntry{
				VPPath: vpPath, VCPath: vcPath,
				Code: errors.ErrCredValidateVCStatusError, Message: fmt.Sprintf("credential status is %s", status),
			}
		}
	}

	return &result, nil
}

func parseStatusListIndex(raw string) (int, error) {
	var index int
	if _, err := fmt.Sscanf(raw, "%d", &index); err != nil {
		return 0, fmt.Errorf("invalid statusListIndex %q: %w", raw, err)
	}
	return index, nil
}

// getVPPath renders a JSONPath-style pointer to the vpIndex-th
// presentation, matching the original service's response-path
// convention.
func getVPPath(vpIndex int, isArray bool) string {
	if isArray {
		return fmt.Sprintf("$[%d]", vpIndex)
	}
	return "$"
}

func getVCPath(vcIndex int) string {
	return fmt.Sprintf("$.vp.verifiableCredential[%d]", vcIndex)
}
