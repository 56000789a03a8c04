// Package syncx holds the wire protocol shared by the sync server and the
// offline client: push/pull payloads, rejection reasons, protocol limits and
// small time/keyset helpers.
package syncx

import (
	"encoding/json"
	"errors"
)

// Protocol limits
const (
	MaxPushBatch     = 100
	MaxPayloadBytes  = 512 * 1024 // base64 text, per record
	DefaultPullLimit = 100
	MaxPullLimit     = 500
)

// Reason is the machine-readable cause of a per-record push rejection
type Reason string

const (
	ReasonInvalidTimestamp Reason = "invalid_timestamp"
	ReasonVersionConflict  Reason = "version_conflict"
	ReasonForbidden        Reason = "forbidden"
	ReasonTransient        Reason = "transient_storage_error"
	ReasonInvalidRecord    Reason = "invalid_record"
)

// Retryable reports whether a rejected record may be re-pushed unchanged on a later cycle.
func (r Reason) Retryable() bool {
	return r == ReasonTransient
}

// PushItem is one candidate record in a push batch.
// Payload is base64(nonce||ciphertext||tag) and is never decoded by the server.
type PushItem struct {
	RecordID        string `json:"recordId"`
	Type            string `json:"type"`
	Version         int64  `json:"version"`
	Payload         string `json:"payload"`
	ClientUpdatedAt string `json:"clientUpdatedAt"`
	Deleted         bool   `json:"deleted"`
}

// PushRequest is the body of POST /v1/sync/records/push
type PushRequest struct {
	Items []PushItem `json:"items"`
}

// Rejection describes why one record of a batch was not accepted.
// ServerVersion and ServerUpdatedAt are only set for version conflicts.
type Rejection struct {
	RecordID        string  `json:"recordId"`
	Reason          Reason  `json:"reason"`
	ServerVersion   *int64  `json:"serverVersion,omitempty"`
	ServerUpdatedAt *string `json:"serverUpdatedAt,omitempty"`
}

// PushResponse partitions a batch into accepted ids and rejections
type PushResponse struct {
	Accepted   []string    `json:"accepted"`
	Rejected   []Rejection `json:"rejected"`
	ServerTime string      `json:"serverTime"`
}

// PulledRecord is a server record as seen by its owner
type PulledRecord struct {
	RecordID        string `json:"recordId"`
	Type            string `json:"type"`
	Version         int64  `json:"version"`
	Payload         string `json:"payload"`
	ClientUpdatedAt string `json:"clientUpdatedAt"`
	ServerUpdatedAt string `json:"serverUpdatedAt"`
	Deleted         bool   `json:"deleted"`
}

// PullResponse is the body returned by GET /v1/sync/records/pull.
// An empty NextCursor signals end of stream.
type PullResponse struct {
	NextCursor string         `json:"nextCursor"`
	Records    []PulledRecord `json:"records"`
}

// KDF names the key-derivation function and its parameters used to wrap a DEK
type KDF struct {
	Name    string          `json:"name"`
	Params  json.RawMessage `json:"params"`
	SaltB64 string          `json:"saltB64"`
}

// WrappedKey is the only key material the server ever stores
type WrappedKey struct {
	KDF           KDF    `json:"kdf"`
	WrappedDEKB64 string `json:"wrappedDekB64"`
}

// Key escrow errors shared by the server service and the client transport
var (
	ErrKeysNotFound = errors.New("wrapped key not found")
	ErrKeysExist    = errors.New("wrapped key already exists")
)
