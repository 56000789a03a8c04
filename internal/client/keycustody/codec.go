package keycustody

import (
	"encoding/base64"
	"fmt"
)

// Codec turns plaintext record bodies into the opaque payloads the server stores
type Codec struct {
	custody *Custody
}

// NewCodec returns a codec bound to c
func NewCodec(c *Custody) *Codec {
	return &Codec{custody: c}
}

// Encrypt seals plaintext under the current key
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	l, err := c.custody.Lease()
	if err != nil {
		return "", err
	}
	return c.EncryptWith(l, plaintext)
}

// EncryptWith seals plaintext, failing with ErrKeyStale if the key changed since l was taken
func (c *Codec) EncryptWith(l Lease, plaintext []byte) (string, error) {
	var out string
	err := c.custody.with(l, func(dek []byte) error {
		blob, err := seal(dek, plaintext)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		out = base64.StdEncoding.EncodeToString(blob)
		return nil
	})
	return out, err
}

// Decrypt opens a payload produced by Encrypt
func (c *Codec) Decrypt(payload string) ([]byte, error) {
	l, err := c.custody.Lease()
	if err != nil {
		return nil, err
	}
	return c.DecryptWith(l, payload)
}

// DecryptWith opens payload under the key generation pinned by l
func (c *Codec) DecryptWith(l Lease, payload string) ([]byte, error) {
	var out []byte
	err := c.custody.with(l, func(dek []byte) error {
		blob, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fmt.Errorf("%w: payload is not base64", ErrDecrypt)
		}
		pt, err := open(dek, blob)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		out = pt
		return nil
	})
	return out, err
}
