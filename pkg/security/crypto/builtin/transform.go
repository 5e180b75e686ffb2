/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"errors"
	"fmt"

	"github.com/secure-rtps/ddssec/pkg/internal/cryptoutil"
	"github.com/secure-rtps/ddssec/pkg/security/crypto"
	"github.com/secure-rtps/ddssec/pkg/security/crypto/cdr"
)

func copyBytes(p []byte) []byte {
	return append([]byte(nil), p...)
}

// encrypt advances the session and produces the crypto header, footer and
// ciphertext for one outbound buffer.
func (p *Plugin) encrypt(master keyMaterial, sess *session,
	plain []byte) (cryptoHeader, cryptoFooter, []byte, error) {
	var footer cryptoFooter

	if err := encauthSetup(master, sess, len(plain)); err != nil {
		return cryptoHeader{}, footer, nil, err
	}

	header := headerFor(master, sess)

	ciphertext, tag, err := cryptoutil.EncryptGCM(sess.key, sess.iv(), plain)
	if err != nil {
		return cryptoHeader{}, footer, nil, fmt.Errorf("%w: %v", crypto.ErrCryptoBackend, err)
	}

	copy(footer.commonMAC[:], tag)

	return header, footer, ciphertext, nil
}

// authtag advances the session and produces the crypto header and footer
// authenticating one outbound buffer without encrypting it.
func (p *Plugin) authtag(master keyMaterial, sess *session,
	plain []byte) (cryptoHeader, cryptoFooter, error) {
	var footer cryptoFooter

	if err := encauthSetup(master, sess, len(plain)); err != nil {
		return cryptoHeader{}, footer, err
	}

	header := headerFor(master, sess)

	tag, err := cryptoutil.GMACTag(sess.key, sess.iv(), plain)
	if err != nil {
		return cryptoHeader{}, footer, fmt.Errorf("%w: %v", crypto.ErrCryptoBackend, err)
	}

	copy(footer.commonMAC[:], tag)

	return header, footer, nil
}

// decrypt recovers the plaintext protected by an inbound header and footer.
func (p *Plugin) decrypt(master keyMaterial, sess *session, ciphertext []byte,
	header cryptoHeader, footer cryptoFooter) ([]byte, error) {
	key, err := sess.getKey(master, header)
	if err != nil {
		return nil, err
	}

	if master.TransformationKind[crypto.TransformKindIndex] != crypto.TransformationKindAES256GCM {
		return nil, fmt.Errorf("decrypt transformation kind %d: %w",
			master.TransformationKind[crypto.TransformKindIndex], crypto.ErrUnsupportedFeature)
	}

	plain, err := cryptoutil.DecryptGCM(key, header.iv(), ciphertext, footer.commonMAC[:])
	if err != nil {
		if errors.Is(err, cryptoutil.ErrAuthentication) {
			return nil, crypto.ErrAuthFailure
		}

		return nil, fmt.Errorf("%w: %v", crypto.ErrCryptoBackend, err)
	}

	return plain, nil
}

// verify checks the tag over an authenticated-only buffer and returns a copy
// of it.
func (p *Plugin) verify(master keyMaterial, sess *session, data []byte,
	header cryptoHeader, footer cryptoFooter) ([]byte, error) {
	key, err := sess.getKey(master, header)
	if err != nil {
		return nil, err
	}

	if master.TransformationKind[crypto.TransformKindIndex] != crypto.TransformationKindAES256GMAC {
		return nil, fmt.Errorf("verify transformation kind %d: %w",
			master.TransformationKind[crypto.TransformKindIndex], crypto.ErrUnsupportedFeature)
	}

	if err := cryptoutil.GMACVerify(key, header.iv(), data, footer.commonMAC[:]); err != nil {
		if errors.Is(err, cryptoutil.ErrAuthentication) {
			return nil, crypto.ErrAuthFailure
		}

		return nil, fmt.Errorf("%w: %v", crypto.ErrCryptoBackend, err)
	}

	return copyBytes(data), nil
}

// EncodeSerializedPayload protects an application payload with the writer's
// payload key. Writers without payload protection, or without keys, pass the
// buffer through unchanged.
func (p *Plugin) EncodeSerializedPayload(plain []byte,
	sendingWriter crypto.DataWriterCryptoHandle) ([]byte, error) {
	if sendingWriter == crypto.NilHandle {
		return nil, fmt.Errorf("datawriter crypto handle: %w", crypto.ErrInvalidHandle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	keys, ok := p.keys[sendingWriter]
	if !ok || !p.encryptOptions[sendingWriter].IsPayloadProtected || len(keys) == 0 {
		return copyBytes(plain), nil
	}

	// The payload key follows the submessage key in the sequence; a writer
	// with payload protection only holds it at index 0.
	keyIndex := 0
	if len(keys) >= 2 {
		keyIndex = 1
	}

	master := keys[keyIndex]
	sess := p.sessionLocked(sendingWriter, keyIndex)

	e := cdr.NewEncoder()

	switch {
	case master.encrypts():
		header, footer, ciphertext, err := p.encrypt(master, sess, plain)
		if err != nil {
			return nil, err
		}

		header.marshalTo(e)
		e.Uint32(uint32(len(ciphertext)))
		e.Octets(ciphertext)
		footer.marshalTo(e)
	case master.authenticates():
		header, footer, err := p.authtag(master, sess, plain)
		if err != nil {
			return nil, err
		}

		header.marshalTo(e)
		e.Octets(plain)
		footer.marshalTo(e)
	default:
		return nil, fmt.Errorf("key transformation kind %x: %w",
			master.TransformationKind, crypto.ErrKindUnrecognized)
	}

	return e.Bytes()
}

// patchSubmessageLength returns plain with a zero submessageLength field
// replaced by the actual trailing length, written in the byte order named by
// the submessage's endian flag. A zero length is legal on the wire only for
// the final submessage of a message, which a SEC_POSTFIX would follow, so
// the real length is patched in on a copy before tagging.
func patchSubmessageLength(plain []byte) []byte {
	if len(plain) < submessageHeaderLength {
		return plain
	}

	little := plain[1]&1 != 0

	var length uint16
	if little {
		length = uint16(plain[2]) | uint16(plain[3])<<8
	} else {
		length = uint16(plain[2])<<8 | uint16(plain[3])
	}

	if length != 0 {
		return plain
	}

	patched := copyBytes(plain)
	n := len(plain) - submessageHeaderLength

	if little {
		patched[2] = byte(n)
		patched[3] = byte(n >> 8)
	} else {
		patched[2] = byte(n >> 8)
		patched[3] = byte(n)
	}

	return patched
}

// encodeSubmessage wraps one plain submessage in SEC_PREFIX / SEC_BODY /
// SEC_POSTFIX framing under the sender's submessage key. Senders without
// keys pass the buffer through unchanged.
func (p *Plugin) encodeSubmessage(plain []byte, sender crypto.NativeCryptoHandle) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys, ok := p.keys[sender]
	if !ok || len(keys) == 0 {
		return copyBytes(plain), nil
	}

	const submessageKeyIndex = 0

	master := keys[submessageKeyIndex]
	sess := p.sessionLocked(sender, submessageKeyIndex)

	var (
		header   cryptoHeader
		footer   cryptoFooter
		body     []byte
		authOnly bool
		err      error
	)

	switch {
	case master.encrypts():
		header, footer, body, err = p.encrypt(master, sess, plain)
	case master.authenticates():
		authOnly = true
		body = patchSubmessageLength(plain)
		header, footer, err = p.authtag(master, sess, body)
	default:
		return nil, fmt.Errorf("key transformation kind %x: %w",
			master.TransformationKind, crypto.ErrKindUnrecognized)
	}

	if err != nil {
		return nil, err
	}

	e := cdr.NewEncoder()

	e.Octet(secPrefix)
	e.Octet(0)
	e.Uint16(cryptoHeaderLength)
	header.marshalTo(e)

	if !authOnly {
		bodyLength := cryptoContentAddedLength + len(body)
		if rem := len(body) % 4; rem != 0 {
			bodyLength += 4 - rem
		}

		e.Octet(secBody)
		e.Octet(0)
		e.Uint16(uint16(bodyLength))
		e.Uint32(uint32(len(body)))
	}

	e.Octets(body)
	e.Align(4)

	e.Octet(secPostfix)
	e.Octet(0)
	e.Uint16(cryptoFooterLength)
	footer.marshalTo(e)

	return e.Bytes()
}

// EncodeDataWriterSubmessage protects a writer submessage for the listed
// readers and returns the advanced list index. As an extension, an empty
// reader list means the writer is sending to all associated readers.
func (p *Plugin) EncodeDataWriterSubmessage(plain []byte, sendingWriter crypto.DataWriterCryptoHandle,
	receivingReaders []crypto.DataReaderCryptoHandle, listIndex int32) ([]byte, int32, error) {
	if sendingWriter == crypto.NilHandle {
		return nil, listIndex, fmt.Errorf("datawriter crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if listIndex < 0 {
		return nil, listIndex, fmt.Errorf("receiver list index %d: %w", listIndex, crypto.ErrInvalidHandle)
	}

	listLen := int32(len(receivingReaders))
	if listLen > 0 && listIndex >= listLen {
		return nil, listIndex, fmt.Errorf("receiver list index %d of %d: %w",
			listIndex, listLen, crypto.ErrInvalidHandle)
	}

	for _, r := range receivingReaders {
		if r == crypto.NilHandle {
			return nil, listIndex, fmt.Errorf("datareader crypto handle in receiver list: %w",
				crypto.ErrInvalidHandle)
		}
	}

	encodeHandle := sendingWriter

	p.mu.Lock()

	if !p.encryptOptions[encodeHandle].IsSubmessageProtected {
		p.mu.Unlock()

		return copyBytes(plain), listLen, nil
	}

	if len(receivingReaders) == 1 {
		// A volatile writer borrows the matched reader's derived key.
		if keys, ok := p.keys[encodeHandle]; ok && len(keys) == 1 && isVolatilePlaceholder(keys[0]) {
			encodeHandle = receivingReaders[0]
		}
	}

	p.mu.Unlock()

	encoded, err := p.encodeSubmessage(plain, encodeHandle)
	if err != nil {
		return nil, listIndex, err
	}

	return encoded, listLen, nil
}

// EncodeDataReaderSubmessage protects a reader submessage for the listed
// writers.
func (p *Plugin) EncodeDataReaderSubmessage(plain []byte, sendingReader crypto.DataReaderCryptoHandle,
	receivingWriters []crypto.DataWriterCryptoHandle) ([]byte, error) {
	if sendingReader == crypto.NilHandle {
		return nil, fmt.Errorf("datareader crypto handle: %w", crypto.ErrInvalidHandle)
	}

	for _, w := range receivingWriters {
		if w == crypto.NilHandle {
			return nil, fmt.Errorf("datawriter crypto handle in receiver list: %w", crypto.ErrInvalidHandle)
		}
	}

	encodeHandle := sendingReader

	if len(receivingWriters) == 1 {
		p.mu.Lock()

		// A volatile reader borrows the matched writer's derived key.
		if keys, ok := p.keys[encodeHandle]; ok && len(keys) == 1 && isVolatilePlaceholder(keys[0]) {
			encodeHandle = receivingWriters[0]
		}

		p.mu.Unlock()
	}

	return p.encodeSubmessage(plain, encodeHandle)
}

// EncodeRTPSMessage validates its arguments and passes the message through.
// Message-level protection is not implemented by this plugin.
func (p *Plugin) EncodeRTPSMessage(plain []byte, sendingParticipant crypto.ParticipantCryptoHandle,
	receivingParticipants []crypto.ParticipantCryptoHandle, listIndex int32) ([]byte, int32, error) {
	if sendingParticipant == crypto.NilHandle {
		return nil, listIndex, fmt.Errorf("sending participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if len(receivingParticipants) == 0 {
		return nil, listIndex, fmt.Errorf("empty receiving participant list: %w", crypto.ErrInvalidHandle)
	}

	dest := crypto.NilHandle
	if listIndex >= 0 && int(listIndex) < len(receivingParticipants) {
		dest = receivingParticipants[listIndex]
	}

	if dest == crypto.NilHandle {
		return nil, listIndex, fmt.Errorf("receiving participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	return copyBytes(plain), listIndex + 1, nil
}

// DecodeRTPSMessage validates its arguments and passes the message through.
func (p *Plugin) DecodeRTPSMessage(encoded []byte, receivingParticipant,
	sendingParticipant crypto.ParticipantCryptoHandle) ([]byte, error) {
	if receivingParticipant == crypto.NilHandle {
		return nil, fmt.Errorf("receiving participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if sendingParticipant == crypto.NilHandle {
		return nil, fmt.Errorf("sending participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	return copyBytes(encoded), nil
}

// decodeSubmessage unwraps SEC_PREFIX / SEC_BODY / SEC_POSTFIX framing and
// recovers the protected submessage using the sender's first key matching the
// crypto header.
func (p *Plugin) decodeSubmessage(encoded []byte, sender crypto.NativeCryptoHandle) ([]byte, error) {
	d := cdr.NewDecoder(encoded)

	header, _, err := parsePrefixedCryptoHeader(d)
	if err != nil {
		return nil, fmt.Errorf("parse secure submessage prefix: %w", err)
	}

	bodyHeaderOffset := d.Offset()

	if _, err := d.Octet(); err != nil {
		return nil, fmt.Errorf("parse secure submessage body: %w", err)
	}

	bodyFlags, err := d.Octet()
	if err != nil {
		return nil, fmt.Errorf("parse secure submessage body: %w", err)
	}

	d.SetLittleEndian(bodyFlags&1 != 0)

	bodyLength, err := d.Uint16()
	if err != nil {
		return nil, fmt.Errorf("parse secure submessage body: %w", err)
	}

	d.SetLittleEndian(false)

	footerOffset := d.Offset() + int(bodyLength)
	if footerOffset > len(encoded) {
		return nil, fmt.Errorf("parse secure submessage footer: %w", cdr.ErrShortBuffer)
	}

	footer, err := parsePostfixedCryptoFooter(encoded[footerOffset:])
	if err != nil {
		return nil, fmt.Errorf("parse secure submessage footer: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, k := range p.keys[sender] {
		if !k.matches(header) {
			continue
		}

		sess := p.sessionLocked(sender, i)

		switch {
		case k.encrypts():
			n, err := d.Uint32()
			if err != nil {
				return nil, fmt.Errorf("parse secure submessage body: %w", err)
			}

			ciphertext, err := d.Octets(int(n))
			if err != nil {
				return nil, fmt.Errorf("parse secure submessage body: %w", err)
			}

			return p.decrypt(k, sess, ciphertext, header, footer)
		case k.authenticates():
			return p.verify(k, sess, encoded[bodyHeaderOffset:footerOffset], header, footer)
		default:
			return nil, fmt.Errorf("key transformation kind %x: %w",
				k.TransformationKind, crypto.ErrKindUnrecognized)
		}
	}

	return nil, &crypto.KeyNotRegisteredError{
		TransformationKind: header.kind,
		SenderKeyID:        header.keyID,
	}
}

// parsePrefixedCryptoHeader consumes a SEC_PREFIX submessage header (in its
// own byte order) followed by the big-endian crypto header, returning the
// prefix's octets-to-next value.
func parsePrefixedCryptoHeader(d *cdr.Decoder) (cryptoHeader, int, error) {
	if _, err := d.Octet(); err != nil {
		return cryptoHeader{}, 0, err
	}

	flags, err := d.Octet()
	if err != nil {
		return cryptoHeader{}, 0, err
	}

	d.SetLittleEndian(flags&1 != 0)

	prefixLength, err := d.Uint16()
	if err != nil {
		return cryptoHeader{}, 0, err
	}

	d.SetLittleEndian(false)

	header, err := parseCryptoHeader(d)
	if err != nil {
		return cryptoHeader{}, 0, err
	}

	if err := d.Skip(int(prefixLength) - cryptoHeaderLength); err != nil {
		return cryptoHeader{}, 0, err
	}

	return header, int(prefixLength), nil
}

// parsePostfixedCryptoFooter parses a SEC_POSTFIX submessage header and the
// big-endian crypto footer behind it.
func parsePostfixedCryptoFooter(p []byte) (cryptoFooter, error) {
	d := cdr.NewDecoder(p)

	if _, err := d.Octet(); err != nil {
		return cryptoFooter{}, err
	}

	flags, err := d.Octet()
	if err != nil {
		return cryptoFooter{}, err
	}

	d.SetLittleEndian(flags&1 != 0)

	if _, err := d.Uint16(); err != nil {
		return cryptoFooter{}, err
	}

	d.SetLittleEndian(false)

	return parseCryptoFooter(d)
}

// DecodeDataWriterSubmessage recovers a writer submessage. The receiving
// reader handle may be nil: origin authentication is not implemented, so the
// transform does not depend on the receiver.
func (p *Plugin) DecodeDataWriterSubmessage(encoded []byte, receivingReader crypto.DataReaderCryptoHandle,
	sendingWriter crypto.DataWriterCryptoHandle) ([]byte, error) {
	if sendingWriter == crypto.NilHandle {
		return nil, fmt.Errorf("datawriter crypto handle: %w", crypto.ErrInvalidHandle)
	}

	logger.Debugf("decode_datawriter_submessage: sending writer %d, receiving reader %d",
		sendingWriter, receivingReader)

	return p.decodeSubmessage(encoded, sendingWriter)
}

// DecodeDataReaderSubmessage recovers a reader submessage. The receiving
// writer handle may be nil for the same reason as above.
func (p *Plugin) DecodeDataReaderSubmessage(encoded []byte, receivingWriter crypto.DataWriterCryptoHandle,
	sendingReader crypto.DataReaderCryptoHandle) ([]byte, error) {
	if sendingReader == crypto.NilHandle {
		return nil, fmt.Errorf("datareader crypto handle: %w", crypto.ErrInvalidHandle)
	}

	logger.Debugf("decode_datareader_submessage: sending reader %d, receiving writer %d",
		sendingReader, receivingWriter)

	return p.decodeSubmessage(encoded, sendingReader)
}

// DecodeSerializedPayload recovers an application payload protected by the
// sending writer's payload key. Writers without payload protection pass the
// buffer through unchanged.
func (p *Plugin) DecodeSerializedPayload(encoded, _ []byte, receivingReader crypto.DataReaderCryptoHandle,
	sendingWriter crypto.DataWriterCryptoHandle) ([]byte, error) {
	if sendingWriter == crypto.NilHandle {
		return nil, fmt.Errorf("datawriter crypto handle: %w", crypto.ErrInvalidHandle)
	}

	logger.Debugf("decode_serialized_payload: sending writer %d, receiving reader %d",
		sendingWriter, receivingReader)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.encryptOptions[sendingWriter].IsPayloadProtected {
		return copyBytes(encoded), nil
	}

	d := cdr.NewDecoder(encoded)

	header, err := parseCryptoHeader(d)
	if err != nil {
		return nil, fmt.Errorf("parse payload header: %w", err)
	}

	for i, k := range p.keys[sendingWriter] {
		if !k.matches(header) {
			continue
		}

		sess := p.sessionLocked(sendingWriter, i)

		switch {
		case k.encrypts():
			n, err := d.Uint32()
			if err != nil {
				return nil, fmt.Errorf("parse payload body: %w", err)
			}

			ciphertext, err := d.Octets(int(n))
			if err != nil {
				return nil, fmt.Errorf("parse payload body: %w", err)
			}

			footer, err := parseCryptoFooter(d)
			if err != nil {
				return nil, fmt.Errorf("parse payload footer: %w", err)
			}

			return p.decrypt(k, sess, ciphertext, header, footer)
		case k.authenticates():
			return nil, fmt.Errorf("auth-only payload transformation: %w", crypto.ErrUnsupportedFeature)
		default:
			return nil, fmt.Errorf("key transformation kind %x: %w",
				k.TransformationKind, crypto.ErrKindUnrecognized)
		}
	}

	return nil, &crypto.KeyNotRegisteredError{
		TransformationKind: header.kind,
		SenderKeyID:        header.keyID,
	}
}
