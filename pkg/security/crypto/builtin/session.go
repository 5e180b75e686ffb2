/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"fmt"

	"github.com/secure-rtps/ddssec/pkg/internal/cryptoutil"
	"github.com/secure-rtps/ddssec/pkg/security/crypto"
)

// sessionKeyCookie prefixes the session key derivation input. No terminator
// byte is included.
const sessionKeyCookie = "SessionKey"

// session is the rotating state under one master key: a session identifier,
// the IV suffix counter, the derived session key and the count of AES blocks
// produced under it.
type session struct {
	id       [4]byte
	ivSuffix [8]byte
	key      []byte
	counter  uint32
}

// inc32 bumps the first byte below 0xff, leaving earlier saturated bytes
// untouched; when all four are 0xff they reset to zero and the carry is
// reported. Peers never recompute this counter, only echo it, so the exact
// stepping is local policy as long as values do not repeat.
func inc32(a []byte) bool {
	for i := 0; i < 4; i++ {
		if a[i] != 0xff {
			a[i]++

			return false
		}
	}

	for i := 0; i < 4; i++ {
		a[i] = 0
	}

	return true
}

// createKey starts a fresh session: random id and IV suffix, derived key,
// zero block counter.
func (s *session) createKey(master keyMaterial) error {
	copy(s.id[:], cryptoutil.RandomBytes(len(s.id)))
	copy(s.ivSuffix[:], cryptoutil.RandomBytes(len(s.ivSuffix)))
	s.counter = 0

	return s.deriveKey(master)
}

// nextID rotates to the next session id with a fresh IV suffix and key.
func (s *session) nextID(master keyMaterial) error {
	inc32(s.id[:])
	copy(s.ivSuffix[:], cryptoutil.RandomBytes(len(s.ivSuffix)))
	s.key = nil
	s.counter = 0

	return s.deriveKey(master)
}

// incIV advances the IV suffix: the low four bytes count, overflowing into
// the high four.
func (s *session) incIV() {
	if inc32(s.ivSuffix[:4]) {
		inc32(s.ivSuffix[4:])
	}
}

// deriveKey computes the session key
// HMAC-SHA256(master_sender_key, "SessionKey" ‖ master_salt ‖ id).
func (s *session) deriveKey(master keyMaterial) error {
	key, err := cryptoutil.HMACSHA256(master.MasterSenderKey,
		[]byte(sessionKeyCookie), master.MasterSalt, s.id[:])
	if err != nil || len(key) == 0 {
		s.key = nil

		return fmt.Errorf("%w: hmac: %v", crypto.ErrDerivationFailure, err)
	}

	s.key = key

	return nil
}

// getKey returns the session key for an inbound header, re-deriving when the
// header names a different session id than the current one.
func (s *session) getKey(master keyMaterial, header cryptoHeader) ([]byte, error) {
	if len(s.key) > 0 && s.id == header.sessionID {
		return s.key, nil
	}

	s.id = header.sessionID
	s.key = nil

	if err := s.deriveKey(master); err != nil {
		return nil, err
	}

	return s.key, nil
}

// iv assembles the 12-byte GCM IV: session id followed by IV suffix, matching
// the crypto header bytes.
func (s *session) iv() []byte {
	iv := make([]byte, 0, cryptoutil.IVLen)
	iv = append(iv, s.id[:]...)
	iv = append(iv, s.ivSuffix[:]...)

	return iv
}

// encauthSetup readies the session for an outbound transform over plainLen
// bytes: first use creates a key, crossing the block budget rotates the
// session, otherwise the IV advances and the blocks are charged.
func encauthSetup(master keyMaterial, s *session, plainLen int) error {
	blocks := uint32((plainLen + blockLenBytes - 1) / blockLenBytes)

	switch {
	case len(s.key) == 0:
		return s.createKey(master)
	case s.counter+blocks > maxBlocksPerSession:
		return s.nextID(master)
	default:
		s.incIV()
		s.counter += blocks

		return nil
	}
}
