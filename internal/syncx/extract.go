package syncx

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingRecordID = errors.New("missing recordId")
	ErrMissingType     = errors.New("missing type")
	ErrBadVersion      = errors.New("version must be >= 1")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrPayloadEncoding = errors.New("payload is not base64")
	ErrEmptyPayload    = errors.New("payload required for live records")
)

// Extracted is the validated form of a PushItem
type Extracted struct {
	Item            PushItem
	ClientUpdatedAt time.Time
}

// ExtractPushItem validates the structure of one candidate record.
// The payload only has to use the base64 alphabet; the server treats the
// blob as opaque and never decodes it.
func ExtractPushItem(item PushItem) (Extracted, Reason, error) {
	if item.RecordID == "" {
		return Extracted{}, ReasonInvalidRecord, ErrMissingRecordID
	}

	ts, err := ParseTimestamp(item.ClientUpdatedAt)
	if err != nil {
		return Extracted{}, ReasonInvalidTimestamp, fmt.Errorf("clientUpdatedAt %q: %w", item.ClientUpdatedAt, err)
	}

	if item.Type == "" {
		return Extracted{}, ReasonInvalidRecord, ErrMissingType
	}
	if item.Version < 1 {
		return Extracted{}, ReasonInvalidRecord, ErrBadVersion
	}
	if len(item.Payload) > MaxPayloadBytes {
		return Extracted{}, ReasonInvalidRecord, ErrPayloadTooLarge
	}
	if item.Payload == "" && !item.Deleted {
		return Extracted{}, ReasonInvalidRecord, ErrEmptyPayload
	}
	if item.Payload != "" && !isBase64(item.Payload) {
		return Extracted{}, ReasonInvalidRecord, ErrPayloadEncoding
	}

	return Extracted{Item: item, ClientUpdatedAt: ts}, "", nil
}

// isBase64 checks the standard alphabet. Padding is optional, but when
// present it is trailing, at most two characters, and completes a quantum.
// The payload is never decoded.
func isBase64(s string) bool {
	pad := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
			if pad > 0 {
				return false
			}
		case c == '=':
			pad++
			if pad > 2 {
				return false
			}
		default:
			return false
		}
	}
	return pad == 0 || len(s)%4 == 0
}
