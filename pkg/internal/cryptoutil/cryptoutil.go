/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cryptoutil provides the low-level primitives used by the security
// plugins: AES-256-GCM with caller-supplied IVs, GMAC tagging, HMAC-SHA256
// derivation and the middleware's multi-buffer hash.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"

	subtlemac "github.com/google/tink/go/mac/subtle"
	"github.com/google/tink/go/subtle/random"
)

// Sizes of the fixed-length primitives.
const (
	// KeyLen is the AES-256 and HMAC-SHA256 key/output length.
	KeyLen = 32
	// IVLen is the GCM initialization vector length.
	IVLen = 12
	// TagLen is the GCM authentication tag length.
	TagLen = 16
)

// ErrAuthentication reports an authentication tag mismatch.
var ErrAuthentication = errors.New("cryptoutil: message authentication failed")

// RandomBytes returns n bytes from the process-wide CSPRNG.
func RandomBytes(n int) []byte {
	return random.GetRandomBytes(uint32(n))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	return aead, nil
}

// EncryptGCM encrypts plaintext under key with the given 12-byte IV and
// returns the ciphertext and 16-byte tag separately.
func EncryptGCM(key, iv, plaintext []byte) (ciphertext, tag []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	n := len(sealed) - TagLen

	return sealed[:n:n], sealed[n:], nil
}

// DecryptGCM decrypts ciphertext under key and IV, verifying tag. A tag
// mismatch yields ErrAuthentication.
func DecryptGCM(key, iv, ciphertext, tag []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(append(sealed, ciphertext...), tag...)

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}

// GMACTag authenticates data under key and IV without encrypting it,
// returning the 16-byte tag. data is processed as GCM associated data.
func GMACTag(key, iv, data []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	return aead.Seal(nil, iv, nil, data), nil
}

// GMACVerify checks a tag produced by GMACTag. A mismatch yields
// ErrAuthentication.
func GMACVerify(key, iv, data, tag []byte) error {
	aead, err := newGCM(key)
	if err != nil {
		return err
	}

	if _, err := aead.Open(nil, iv, tag, data); err != nil {
		return ErrAuthentication
	}

	return nil
}

// HMACSHA256 computes HMAC-SHA256 over the concatenation of chunks.
func HMACSHA256(key []byte, chunks ...[]byte) ([]byte, error) {
	h, err := subtlemac.NewHMAC("SHA256", key, sha256.Size)
	if err != nil {
		return nil, fmt.Errorf("hmac: %w", err)
	}

	var msg []byte
	for _, c := range chunks {
		msg = append(msg, c...)
	}

	return h.ComputeMAC(msg)
}

// Hash computes SHA-256 over the concatenation of chunks. This is the
// middleware's hash-of-octet-sequences primitive; peers must produce
// identical output for identical inputs.
func Hash(chunks ...[]byte) []byte {
	h := sha256.New()
	for _, c := range chunks {
		h.Write(c)
	}

	return h.Sum(nil)
}
