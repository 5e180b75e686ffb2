/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	"errors"
	"fmt"
)

// Error kinds returned by crypto plugin operations. Operations wrap these
// with call-site context; match with errors.Is.
var (
	// ErrInvalidHandle reports a nil or unknown handle argument.
	ErrInvalidHandle = errors.New("security/crypto: invalid handle")

	// ErrUnsupportedFeature reports a requested protection the plugin does
	// not implement (RTPS message protection, auth-only payloads).
	ErrUnsupportedFeature = errors.New("security/crypto: unsupported feature")

	// ErrKindUnrecognized reports a transformation kind outside the
	// recognized set.
	ErrKindUnrecognized = errors.New("security/crypto: transformation kind unrecognized")

	// ErrKeyNotRegistered reports an inbound crypto header that matched no
	// stored key.
	ErrKeyNotRegistered = errors.New("security/crypto: key not registered")

	// ErrCryptoBackend reports a failure inside the underlying crypto
	// library.
	ErrCryptoBackend = errors.New("security/crypto: crypto backend failure")

	// ErrAuthFailure reports an authentication tag mismatch on decrypt or
	// verify.
	ErrAuthFailure = errors.New("security/crypto: message authentication failed")

	// ErrDerivationFailure reports that key derivation produced no key.
	ErrDerivationFailure = errors.New("security/crypto: session key derivation failed")
)

// KeyNotRegisteredError is the concrete error for unmatched inbound crypto
// headers. It carries the offending transformation identifier so callers can
// log or report which key was requested. errors.Is(err, ErrKeyNotRegistered)
// matches it.
type KeyNotRegisteredError struct {
	TransformationKind TransformationKind
	SenderKeyID        KeyID
}

// Error implements the error interface.
func (e *KeyNotRegisteredError) Error() string {
	return fmt.Sprintf("%s: kind %x, sender key id %x",
		ErrKeyNotRegistered, e.TransformationKind, e.SenderKeyID)
}

// Is reports whether target is the key-not-registered kind.
func (e *KeyNotRegisteredError) Is(target error) bool {
	return target == ErrKeyNotRegistered
}
