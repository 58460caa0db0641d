// Package errors defines the issuer-side error taxonomy: stable
// numeric codes grouped by subsystem (61xxx credential issuance,
// 62xxx status-list generation, 68xxx database, 69xxx system), their
// HTTP-status mapping, and the wire-format error body.
package errors

import (
	"fmt"
	"net/http"
)

// Error codes. Ranges are stable and part of the external contract.
const (
	Unknown = 99999

	// Credential issuance (61xxx)
	ErrCredInvalidCredentialGenerationRequest = 61001
	ErrCredGenerateVCError                    = 61002
	ErrCredSignVCError                        = 61004
	ErrCredInvalidCredentialID                = 61006
	ErrCredRevokeVCError                      = 61007
	ErrCredCredentialNotFound                 = 61010
	ErrCredQueryVCError                       = 61011
	ErrCredInvalidNonce                       = 61012
	ErrCredInvalidCredentialType              = 61015
	ErrCredInvalidCredentialSubject           = 61030
	ErrCredInvalidExpirationDate              = 61042
	ErrCredInvalidIssuanceDate                = 61043
	ErrCredRevokedCredCannotBeSuspendedError  = 61048
	ErrCredRevokedCredCannotBeRecoveredError  = 61049
	ErrCredentialStatusUnknownError           = 61050
	ErrCredSuspendVCError                     = 61051
	ErrCredRecoverVCError                     = 61052

	// Status list generation (62xxx)
	ErrSLGenerateStatusListError = 62001
	ErrSLPrepareStatusListError  = 62002
	ErrSLSignStatusListError     = 62003
	ErrSLQueryStatusListError    = 62005

	// Database (68xxx)
	ErrDBQueryError  = 68001
	ErrDBInsertError = 68002
	ErrDBUpdateError = 68003

	// System (69xxx)
	ErrSysGenerateKeyError       = 69001
	ErrSysNotRegisterDIDYetError = 69004
)

// VCError represents a verifiable credential error
type VCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *VCError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewVCError creates a new VCError
func NewVCError(code int, message string) *VCError {
	return &VCError{
		Code:    code,
		Message: message,
	}
}

// HTTPStatus returns the appropriate HTTP status code for the error:
// 400 for malformed input and forbidden lifecycle transitions, 404 for
// unknown credentials, 500 otherwise.
func (e *VCError) HTTPStatus() int {
	switch e.Code {
	case ErrCredInvalidCredentialGenerationRequest,
		ErrCredInvalidCredentialID,
		ErrCredInvalidNonce,
		ErrCredInvalidCredentialType,
		ErrCredInvalidCredentialSubject,
		ErrCredInvalidExpirationDate,
		ErrCredInvalidIssuanceDate,
		ErrCredRevokedCredCannotBeSuspendedError,
		ErrCredRevokedCredCannotBeRecoveredError:
		return http.StatusBadRequest

	case ErrCredCredentialNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

// Response returns the error as an error response
func (e *VCError) Response() map[string]interface{} {
	return map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
}
