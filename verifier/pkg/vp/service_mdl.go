package vp

import (
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/errors"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/mdl"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/models"
)

// validateMDLPresentation validates a single CBOR mDL presentation
// (ISO/IEC 18013-5), raw or base64-encoded.
func (s *Service) validateMDLPresentation(presentation string) (models.PresentationValidationResponse, error) {
	mdlValidator := mdl.NewValidator()

	cborData, err := decodeMDLBytes(presentation)
	if err != nil {
		return models.PresentationValidationResponse{}, errors.NewVPError(
			errors.ErrPresValidateVPContentError,
			fmt.Sprintf("invalid mDL encoding: %v", err),
		)
	}

	mdlDoc, err := mdlValidator.ParseDocument(cborData)
	if err != nil {
		return models.PresentationValidationResponse{}, errors.NewVPError(
			errors.ErrPresValidateVPContentError,
			fmt.Sprintf("failed to parse mDL: %v", err),
		)
	}

	mdlResponse, err := mdlValidator.ValidateDocument(mdlDoc)
	if err != nil {
		return models.PresentationValidationResponse{}, errors.NewVPError(
			errors.ErrPresValidateVPProofError,
			fmt.Sprintf("mDL validation failed: %v", err),
		)
	}

	docData := convertMDLResponseToDocumentData(mdlResponse)

	return models.PresentationValidationResponse{
		Format:       models.FormatISOMDL,
		MDLDocuments: []models.MDLDocumentData{docData},
	}, nil
}

// decodeMDLBytes recovers the CBOR bytes of an mdoc submitted either
// raw or under one layer of base64 (standard or url-safe alphabet).
func decodeMDLBytes(presentation string) ([]byte, error) {
	if isCBORLeadByte(presentation[0]) {
		return []byte(presentation), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(presentation); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(presentation); err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("presentation is neither raw CBOR nor base64")
}

// convertMDLResponseToDocumentData converts internal MDLResponse to API MDLDocumentData
func convertMDLResponseToDocumentData(mdlResp *models.MDLResponse) models.MDLDocumentData {
	var issuerCertPEM string
	if mdlResp.IssuerCertificate != nil {
		issuerCertPEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "CERTIFICATE",
			Bytes: mdlResp.IssuerCertificate.Raw,
		}))
	}

	flattenedClaims := make(map[string]interface{})
	for ns, claims := range mdlResp.NameSpaces {
		for key, value := range claims {
			flattenedClaims[fmt.Sprintf("%s/%s", ns, key)] = value
		}
	}

	return models.MDLDocumentData{
		DocType:           mdlResp.DocType,
		IssuerCertificate: issuerCertPEM,
		DeviceKeyID:       mdlResp.DeviceKeyID,
		Claims:            flattenedClaims,
		IssuanceDate:      mdlResp.IssuanceDate.Format("2006-01-02T15:04:05Z"),
		ExpirationDate:    mdlResp.ExpirationDate.Format("2006-01-02T15:04:05Z"),
		ValidationStatus:  mdlResp.ValidationStatus,
	}
}
