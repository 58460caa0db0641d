package models

import "time"

// CredentialRequestDTO represents a request to generate a credential
type CredentialRequestDTO struct {
	IssuerDID           string                 `json:"issuer_did" validate:"required"`
	CredentialType      string                 `json:"credential_type" validate:"required"`
	CredentialSubjectID string                 `json:"credential_subject_id,omitempty"`
	CredentialSubject   map[string]interface{} `json:"credential_subject" validate:"required"`
	IssuanceDate        *time.Time             `json:"issuance_date,omitempty"`
	ExpirationDate      *time.Time             `json:"expiration_date,omitempty"`
	Nonce               string                 `json:"nonce,omitempty"`
}

// CredentialResponseDTO represents the response from credential generation
type CredentialResponseDTO struct {
	CID        string `json:"cid"`
	Credential string `json:"credential"`
	Nonce      string `json:"nonce,omitempty"`
}

// IssuerCredentialRecord is the issuer's durable record of an issued
// credential: the signed JWT, its status-list coordinates, and its
// lifecycle status. Once Status is CredentialStatusRevoked the record
// is terminal; CredentialStatusSuspended and CredentialStatusActive
// are bidirectional.
type IssuerCredentialRecord struct {
	CID             string    `json:"cid"`
	IssuerDID       string    `json:"issuer_did"`
	HolderDID       string    `json:"holder_did,omitempty"`
	CredentialType  string    `json:"credential_type"`
	IssuedJWT       string    `json:"credential"`
	Nonce           string    `json:"nonce,omitempty"`
	StatusListID    string    `json:"-"`
	StatusListURL   string    `json:"status_list_url,omitempty"`
	StatusListIndex int       `json:"status_list_index"`
	Status          string    `json:"status"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// CredentialStatus represents credential status constants
const (
	CredentialStatusActive    = "ACTIVE"
	CredentialStatusRevoked   = "REVOKED"
	CredentialStatusSuspended = "SUSPENDED"
)
