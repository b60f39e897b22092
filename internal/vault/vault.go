// Package vault encrypts session credentials at rest with AES-256-GCM.
//
// Payloads are base64(iv[12] || tag[16] || ciphertext), the layout earlier
// deployments wrote. Their rows stay readable when the secret is 64 hex
// characters; other secrets may derive a different key than those
// deployments did, and their rows then have to be uploaded again.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize = 32
	ivSize  = 12
	tagSize = 16
)

// ErrMalformed indicates a payload that is not valid base64 or too short.
var ErrMalformed = errors.New("malformed payload")

// Vault encrypts and decrypts credential blobs with a fixed key.
type Vault struct {
	aead cipher.AEAD
}

// New derives the key from secret and returns a ready Vault.
// Surrounding quotes are stripped; a hex secret is decoded, anything else is
// taken as UTF-8. The key is zero-padded or truncated to 32 bytes.
func New(secret string) (*Vault, error) {
	secret = strings.Trim(strings.TrimSpace(secret), `"'`)
	if secret == "" {
		return nil, errors.New("empty secret key")
	}

	key := deriveKey(secret)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

func deriveKey(secret string) []byte {
	raw, err := hex.DecodeString(secret)
	if err != nil || len(raw) == 0 {
		raw = []byte(secret)
	}
	key := make([]byte, keySize)
	copy(key, raw)
	return key
}

// Encrypt seals plaintext under a fresh random IV.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}

	// Seal returns ciphertext||tag; the stored layout puts the tag first.
	sealed := v.aead.Seal(nil, iv, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, ivSize+tagSize+len(ct))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt. Any modification of the
// payload fails authentication.
func (v *Vault) Decrypt(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < ivSize+tagSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}

	iv := raw[:ivSize]
	tag := raw[ivSize : ivSize+tagSize]
	ct := raw[ivSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
