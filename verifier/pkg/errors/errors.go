// Package errors defines the verifier-side error taxonomy: stable
// numeric codes grouped by subsystem, their HTTP-status mapping, and
// the wire-format error body returned to clients.
package errors

import (
	"fmt"
	"net/http"
)

// Error codes. Ranges are stable and part of the external contract.
const (
	Unknown            = 99999
	ErrIllegalArgument = 70001

	// Presentation
	ErrPresInvalidPresentationValidationRequest = 71001
	ErrPresValidateVPError                      = 71002
	ErrPresValidateVPContentError               = 71003
	ErrPresValidateVPProofError                 = 71004
	ErrPresLackOfHolderPublicKey                = 71005
	ErrPresHolderPublicKeyInconsistent          = 71006

	// Credential
	ErrCredValidateVCContentError = 72001
	ErrCredValidateVCSchemaError  = 72002
	ErrCredValidateVCProofError   = 72003
	ErrCredValidateVCStatusError  = 72004
	ErrCredLackOfIssuerPublicKey  = 72005
	ErrCredInvalidIssuerDIDFormat = 72006
	ErrCredInvalidIssuerDIDStatus = 72007
	ErrCredLackOfSub              = 72008

	// Status List
	ErrSLValidateStatusListError        = 73001
	ErrSLValidateStatusListContentError = 73002
	ErrSLValidateStatusListProofError   = 73003
	ErrSLLackOfIssuerPublicKey          = 73004

	// DID
	ErrDIDFrontendQueryDIDError = 74001

	// Connection
	ErrConnLoadIssuerStatusListError = 77001
	ErrConnLoadIssuerSchemaError     = 77002
	ErrConnLoadIssuerPublicKeyError  = 77003
	ErrConnInvalidIssuerStatusList   = 77004
	ErrConnInvalidIssuerSchema       = 77005
	ErrConnInvalidIssuerPublicKey    = 77006
	ErrConnNoMatchedIssuerPublicKey  = 77007

	// Database
	ErrDBQueryError  = 78001
	ErrDBInsertError = 78002
	ErrDBUpdateError = 78003
)

// VPError represents a verifiable-presentation-side error.
type VPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *VPError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewVPError creates a new VPError.
func NewVPError(code int, message string) *VPError {
	return &VPError{
		Code:    code,
		Message: message,
	}
}

// HTTPStatus returns the HTTP status code for the error: 400 for the
// malformed-input codes enumerated in the external contract, 500
// otherwise.
func (e *VPError) HTTPStatus() int {
	switch e.Code {
	case ErrPresInvalidPresentationValidationRequest,
		ErrCredValidateVCContentError,
		ErrCredValidateVCSchemaError,
		ErrCredValidateVCProofError,
		ErrCredValidateVCStatusError,
		ErrCredLackOfIssuerPublicKey,
		ErrCredInvalidIssuerDIDFormat,
		ErrCredInvalidIssuerDIDStatus,
		ErrCredLackOfSub:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Response returns the error as a wire-format response body.
func (e *VPError) Response() map[string]interface{} {
	return map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
}
