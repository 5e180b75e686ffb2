/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"github.com/secure-rtps/ddssec/pkg/internal/cryptoutil"
	"github.com/secure-rtps/ddssec/pkg/security/crypto"
	"github.com/secure-rtps/ddssec/pkg/security/crypto/cdr"
)

// RTPS submessage kinds framing protected content.
const (
	secBody    byte = 0x30
	secPrefix  byte = 0x31
	secPostfix byte = 0x32
)

const (
	submessageHeaderLength   = 4
	cryptoHeaderLength       = 20
	cryptoFooterLength       = 20
	cryptoContentAddedLength = 4
)

// cryptoHeader is the fixed 20-byte record opening every protected scope:
// the transformation identifier plus the session id and IV suffix. It is
// always big-endian on the wire, regardless of the surrounding submessage's
// endian flag.
type cryptoHeader struct {
	kind      crypto.TransformationKind
	keyID     crypto.KeyID
	sessionID [4]byte
	ivSuffix  [8]byte
}

func headerFor(master keyMaterial, s *session) cryptoHeader {
	return cryptoHeader{
		kind:      master.TransformationKind,
		keyID:     master.SenderKeyID,
		sessionID: s.id,
		ivSuffix:  s.ivSuffix,
	}
}

// iv returns the 12-byte GCM IV carried by the header: session id then IV
// suffix, contiguous.
func (h cryptoHeader) iv() []byte {
	iv := make([]byte, 0, cryptoutil.IVLen)
	iv = append(iv, h.sessionID[:]...)
	iv = append(iv, h.ivSuffix[:]...)

	return iv
}

func (h cryptoHeader) marshalTo(e *cdr.Encoder) {
	e.Octets(h.kind[:])
	e.Octets(h.keyID[:])
	e.Octets(h.sessionID[:])
	e.Octets(h.ivSuffix[:])
}

func parseCryptoHeader(d *cdr.Decoder) (cryptoHeader, error) {
	var h cryptoHeader

	for _, dst := range [][]byte{h.kind[:], h.keyID[:], h.sessionID[:], h.ivSuffix[:]} {
		b, err := d.Octets(len(dst))
		if err != nil {
			return cryptoHeader{}, err
		}

		copy(dst, b)
	}

	return h, nil
}

// cryptoFooter closes a protected scope with the 16-byte common MAC and the
// receiver-specific MAC sequence, which this plugin always emits empty.
type cryptoFooter struct {
	commonMAC [cryptoutil.TagLen]byte
}

func (f cryptoFooter) marshalTo(e *cdr.Encoder) {
	e.Octets(f.commonMAC[:])
	e.Align(4)
	e.Uint32(0)
}

func parseCryptoFooter(d *cdr.Decoder) (cryptoFooter, error) {
	var f cryptoFooter

	mac, err := d.Octets(len(f.commonMAC))
	if err != nil {
		return cryptoFooter{}, err
	}

	copy(f.commonMAC[:], mac)

	if err := d.Align(4); err != nil {
		return cryptoFooter{}, err
	}

	n, err := d.Uint32()
	if err != nil {
		return cryptoFooter{}, err
	}

	// Receiver-specific MACs are not consumed, only stepped over.
	const receiverMACLength = 20
	for i := uint32(0); i < n; i++ {
		if err := d.Skip(receiverMACLength); err != nil {
			return cryptoFooter{}, err
		}
	}

	return f, nil
}
