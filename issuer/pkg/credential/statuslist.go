package credential

import (
	"bytes"
	"compress/flate"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/jwtvc"
)

// bitStatus is the 2-bit status encoded per credential in a published
// status list, matching the bit layout verifier/pkg/statuslist reads:
// two bits per index, MSB-first within each byte.
type bitStatus byte

const (
	bitStatusActive    bitStatus = 0
	bitStatusSuspended bitStatus = 1
	bitStatusRevoked   bitStatus = 3
)

// defaultListCapacity bounds how many credential indices one status
// list credential carries before the manager rolls over to a new one.
const defaultListCapacity = 1 << 16

// statusList is one published bitstring-status-list credential.
type statusList struct {
	id        string
	nextIndex int
	bits      []byte
}

// statusListManager allocates status-list indices, mutates status
// bits, and re-signs and republishes the owning list on every change.
// A single mutex serialises bit mutation and publication per manager
// instance, matching the "advisory lock per statusListCredential"
// concurrency model the engine specifies; credential issuance
// elsewhere uses its own locking for the record store.
type statusListManager struct {
	mu         sync.Mutex
	issuerDID  string
	kid        string
	signingKey *ecdsa.PrivateKey
	baseURL    string
	capacity   int

	lists         map[string]*statusList
	currentListID string
	published     map[string]string // url -> signed status-list JWT
}

func newStatusListManager(issuerDID, kid string, signingKey *ecdsa.PrivateKey, baseURL string) *statusListManager {
	return &statusListManager{
		issuerDID:  issuerDID,
		kid:        kid,
		signingKey: signingKey,
		baseURL:    baseURL,
		capacity:   defaultListCapacity,
		lists:      make(map[string]*statusList),
		published:  make(map[string]string),
	}
}

func (m *statusListManager) urlFor(listID string) string {
	return fmt.Sprintf("%s/%s", m.baseURL, listID)
}

// allocate assigns the next free index on the current list, rolling
// over to a freshly minted list once capacity is reached, and
// publishes the (all-active) list so it is fetchable before any
// status transition occurs.
func (m *statusListManager) allocate() (listID string, index int, url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[m.currentListID]
	if list == nil || list.nextIndex >= m.capacity {
		list = &statusList{
			id:   uuid.NewString(),
			bits: make([]byte, (m.capacity*2+7)/8),
		}
		m.lists[list.id] = list
		m.currentListID = list.id
	}

	index = list.nextIndex
	list.nextIndex++

	if err := m.signAndPublishLocked(list); err != nil {
		return "", 0, "", err
	}

	return list.id, index, m.urlFor(list.id), nil
}

// setStatus flips the two bits for index on listID and re-signs and
// republishes the owning list.
func (m *statusListManager) setStatus(listID string, index int, status bitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.lists[listID]
	if !ok {
		return fmt.Errorf("unknown status list %q", listID)
	}

	setBit(list.bits, index, status)
	return m.signAndPublishLocked(list)
}

func setBit(bits []byte, index int, status bitStatus) {
	bitOffset := index * 2
	byteIdx := bitOffset / 8
	shift := uint(6 - (bitOffset % 8))
	bits[byteIdx] = (bits[byteIdx] &^ (0x03 << shift)) | (byte(status&0x03) << shift)
}

// signAndPublishLocked deflates the list's current bitstring, signs it
// as a status-list VC JWT, and stores it under the list's URL. Caller
// must hold m.mu.
func (m *statusListManager) signAndPublishLocked(list *statusList) error {
	encoded, err := deflateBase64URL(list.bits)
	if err != nil {
		return fmt.Errorf("failed to deflate status list: %w", err)
	}

	now := time.Now()
	url := m.urlFor(list.id)

	claims := &jwtvc.VCClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   m.issuerDID,
			Subject:  m.issuerDID,
			ID:       list.id,
			IssuedAt: jwt.NewNumericDate(now),
		},
		VC: jwtvc.CredentialSubject{
			Context:      []string{"https://www.w3.org/2018/credentials/v1", "https://w3id.org/vc/status-list/2021/v1"},
			Type:         []string{"VerifiableCredential", "StatusList2021Credential"},
			Issuer:       m.issuerDID,
			IssuanceDate: now.Format(time.RFC3339),
			CredentialSubject: map[string]interface{}{
				"id":            url,
				"type":          "StatusList2021",
				"statusPurpose": "status",
				"encodedList":   encoded,
			},
		},
	}

	signed, err := jwtvc.SignVC(claims, m.signingKey, m.kid)
	if err != nil {
		return fmt.Errorf("failed to sign status list: %w", err)
	}

	m.published[url] = signed
	return nil
}

// get returns the currently published status-list JWT for url.
func (m *statusListManager) get(url string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.published[url]
	return blob, ok
}

func deflateBase64URL(bits []byte) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(bits); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}
