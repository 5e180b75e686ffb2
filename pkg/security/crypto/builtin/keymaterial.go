/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"fmt"

	"github.com/secure-rtps/ddssec/pkg/internal/cryptoutil"
	"github.com/secure-rtps/ddssec/pkg/security/crypto"
	"github.com/secure-rtps/ddssec/pkg/security/crypto/cdr"
)

// keyMaterial is the master key record bound to an endpoint, carried on the
// wire inside crypto tokens.
type keyMaterial struct {
	TransformationKind        crypto.TransformationKind
	MasterSalt                []byte
	SenderKeyID               crypto.KeyID
	MasterSenderKey           []byte
	ReceiverSpecificKeyID     crypto.KeyID
	MasterReceiverSpecificKey []byte
}

// keySequence is an endpoint's ordered keys: for writers, index 0 is the
// submessage key and the next index the payload key; readers hold only the
// submessage key at index 0.
type keySequence []keyMaterial

// volatilePlaceholderKind tags key material that stands in for a built-in
// volatile secure endpoint: a vendor-id prefix instead of a standard kind.
var volatilePlaceholderKind = crypto.TransformationKind{0x01, 0x03, 0x00, 0x01}

// makeKey generates fresh master key material. keyID becomes the sender key
// id, least-significant byte first.
func makeKey(keyID crypto.NativeCryptoHandle, encrypt bool) keyMaterial {
	var k keyMaterial

	kind := crypto.TransformationKindAES256GMAC
	if encrypt {
		kind = crypto.TransformationKindAES256GCM
	}

	k.TransformationKind[crypto.TransformKindIndex] = kind
	k.MasterSalt = cryptoutil.RandomBytes(keyLenBytes)
	k.MasterSenderKey = cryptoutil.RandomBytes(keyLenBytes)

	for i := 0; i < len(k.SenderKeyID); i++ {
		k.SenderKeyID[i] = byte(uint32(keyID) >> (8 * uint(i)))
	}

	return k
}

// makeVolatilePlaceholder returns the sentinel identifying a local volatile
// endpoint handle. It carries no usable key.
func makeVolatilePlaceholder() keyMaterial {
	return keyMaterial{TransformationKind: volatilePlaceholderKind}
}

func isVolatilePlaceholder(k keyMaterial) bool {
	return k.TransformationKind == volatilePlaceholderKind
}

// Key-exchange derivation cookies, both exactly 16 bytes, fed without a
// terminator.
const (
	kxSaltCookie = "keyexchange salt"
	kxKeyCookie  = "key exchange key"
)

func kxDerive(prefix []byte, cookie string, suffix, secret []byte) ([]byte, error) {
	return cryptoutil.HMACSHA256(cryptoutil.Hash(prefix, []byte(cookie), suffix), secret)
}

// makeVolatileKey derives the key material of a built-in volatile secure
// endpoint from the authentication handshake output. Both sides of a match
// derive identical material from the same challenges and secret.
func makeVolatileKey(challenge1, challenge2, secret []byte) (keyMaterial, error) {
	k := keyMaterial{
		TransformationKind: crypto.TransformationKind{0, 0, 0, crypto.TransformationKindAES256GCM},
	}

	salt, err := kxDerive(challenge1, kxSaltCookie, challenge2, secret)
	if err != nil {
		return keyMaterial{}, fmt.Errorf("derive salt: %w", err)
	}

	key, err := kxDerive(challenge2, kxKeyCookie, challenge1, secret)
	if err != nil {
		return keyMaterial{}, fmt.Errorf("derive key: %w", err)
	}

	k.MasterSalt = salt
	k.MasterSenderKey = key

	return k, nil
}

// encrypts reports whether the key selects an AES-GCM transform.
func (k keyMaterial) encrypts() bool {
	kind := k.TransformationKind

	return kind[0] == 0 && kind[1] == 0 && kind[2] == 0 &&
		(kind[crypto.TransformKindIndex] == crypto.TransformationKindAES128GCM ||
			kind[crypto.TransformKindIndex] == crypto.TransformationKindAES256GCM)
}

// authenticates reports whether the key selects an AES-GMAC transform.
func (k keyMaterial) authenticates() bool {
	kind := k.TransformationKind

	return kind[0] == 0 && kind[1] == 0 && kind[2] == 0 &&
		(kind[crypto.TransformKindIndex] == crypto.TransformationKindAES128GMAC ||
			kind[crypto.TransformKindIndex] == crypto.TransformationKindAES256GMAC)
}

// matches reports whether an inbound crypto header was produced under this
// key: transformation kind and sender key id must both be bit-equal.
func (k keyMaterial) matches(h cryptoHeader) bool {
	return k.TransformationKind == h.kind && k.SenderKeyID == h.keyID
}

// marshal serializes the key material in its canonical big-endian, 4-byte
// aligned wire form.
func (k keyMaterial) marshal() ([]byte, error) {
	e := cdr.NewEncoder()

	e.Octets(k.TransformationKind[:])
	e.Align(4)
	e.Uint32(uint32(len(k.MasterSalt)))
	e.Octets(k.MasterSalt)
	e.Octets(k.SenderKeyID[:])
	e.Align(4)
	e.Uint32(uint32(len(k.MasterSenderKey)))
	e.Octets(k.MasterSenderKey)
	e.Octets(k.ReceiverSpecificKeyID[:])
	e.Align(4)
	e.Uint32(uint32(len(k.MasterReceiverSpecificKey)))
	e.Octets(k.MasterReceiverSpecificKey)

	return e.Bytes()
}

func unmarshalKeyMaterial(p []byte) (keyMaterial, error) {
	var k keyMaterial

	d := cdr.NewDecoder(p)

	readID := func(dst []byte) error {
		b, err := d.Octets(len(dst))
		if err != nil {
			return err
		}

		copy(dst, b)

		return nil
	}

	readSeq := func() ([]byte, error) {
		if err := d.Align(4); err != nil {
			return nil, err
		}

		n, err := d.Uint32()
		if err != nil {
			return nil, err
		}

		if n == 0 {
			return nil, nil
		}

		return d.Octets(int(n))
	}

	if err := readID(k.TransformationKind[:]); err != nil {
		return keyMaterial{}, err
	}

	var err error
	if k.MasterSalt, err = readSeq(); err != nil {
		return keyMaterial{}, err
	}

	if err := readID(k.SenderKeyID[:]); err != nil {
		return keyMaterial{}, err
	}

	if k.MasterSenderKey, err = readSeq(); err != nil {
		return keyMaterial{}, err
	}

	if err := readID(k.ReceiverSpecificKeyID[:]); err != nil {
		return keyMaterial{}, err
	}

	if k.MasterReceiverSpecificKey, err = readSeq(); err != nil {
		return keyMaterial{}, err
	}

	return k, nil
}
