package keycustody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize   = 32
	SaltSize  = 16
	NonceSize = 12
	TagSize   = 16
)

func deriveKEK(passphrase, salt []byte, iterations int) []byte {
	return pbkdf2.Key(passphrase, salt, iterations, KeySize, sha256.New)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal returns nonce||ciphertext||tag with a fresh random nonce
func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open reverses seal. The tag is verified before any plaintext is returned.
func open(key, blob []byte) ([]byte, error) {
	if len(blob) < NonceSize+TagSize {
		return nil, fmt.Errorf("blob too short: %d bytes", len(blob))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
