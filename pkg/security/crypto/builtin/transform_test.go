/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/secure-rtps/ddssec/pkg/security/crypto"
)

// endpointPair wires two plugin instances into a matched writer/reader pair
// with key tokens exchanged in both directions.
type endpointPair struct {
	alice, bob *Plugin

	aliceParticipant, bobParticipant crypto.ParticipantCryptoHandle
	bobInAlice, aliceInBob           crypto.ParticipantCryptoHandle

	writer       crypto.DataWriterCryptoHandle
	reader       crypto.DataReaderCryptoHandle
	remoteReader crypto.DataReaderCryptoHandle
	remoteWriter crypto.DataWriterCryptoHandle
}

func newEndpointPair(t *testing.T, attrs crypto.EndpointSecurityAttributes,
	props crypto.PropertySeq, exchangeTokens bool) *endpointPair {
	t.Helper()

	pair := &endpointPair{alice: New(), bob: New()}
	secret := newTestSecret()

	var err error

	pair.aliceParticipant, err = pair.alice.RegisterLocalParticipant(1, 2, nil,
		crypto.ParticipantSecurityAttributes{})
	require.NoError(t, err)

	pair.bobParticipant, err = pair.bob.RegisterLocalParticipant(3, 4, nil,
		crypto.ParticipantSecurityAttributes{})
	require.NoError(t, err)

	pair.bobInAlice, err = pair.alice.RegisterMatchedRemoteParticipant(pair.aliceParticipant, 3, 4, secret)
	require.NoError(t, err)

	pair.aliceInBob, err = pair.bob.RegisterMatchedRemoteParticipant(pair.bobParticipant, 1, 2, secret)
	require.NoError(t, err)

	pair.writer, err = pair.alice.RegisterLocalDataWriter(pair.aliceParticipant, props, attrs)
	require.NoError(t, err)

	readerProps := props
	if len(props) != 0 {
		readerProps = volatileProperties(volatileSecureReaderName)
	}

	pair.reader, err = pair.bob.RegisterLocalDataReader(pair.bobParticipant, readerProps, attrs)
	require.NoError(t, err)

	pair.remoteReader, err = pair.alice.RegisterMatchedRemoteDataReader(pair.writer, pair.bobInAlice,
		secret, false)
	require.NoError(t, err)

	pair.remoteWriter, err = pair.bob.RegisterMatchedRemoteDataWriter(pair.reader, pair.aliceInBob, secret)
	require.NoError(t, err)

	if exchangeTokens {
		writerTokens, err := pair.alice.CreateLocalDataWriterCryptoTokens(pair.writer, pair.remoteReader)
		require.NoError(t, err)
		require.NoError(t, pair.bob.SetRemoteDataWriterCryptoTokens(pair.reader, pair.remoteWriter,
			writerTokens))

		readerTokens, err := pair.bob.CreateLocalDataReaderCryptoTokens(pair.reader, pair.remoteWriter)
		require.NoError(t, err)
		require.NoError(t, pair.alice.SetRemoteDataReaderCryptoTokens(pair.writer, pair.remoteReader,
			readerTokens))
	}

	return pair
}

func TestSubmessageRoundTripEncrypted(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)
	plain := []byte{0x01, 0x02, 0x03, 0x04}

	encoded, index, err := pair.alice.EncodeDataWriterSubmessage(plain, pair.writer,
		[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
	require.NoError(t, err)
	require.Equal(t, int32(1), index)

	// SEC_PREFIX, then the 20-byte header, then SEC_BODY.
	require.Equal(t, byte(0x31), encoded[0])
	require.Equal(t, byte(0x30), encoded[24])
	require.NotContains(t, string(encoded), string(plain))

	category, writerHandle, _, err := pair.bob.PreprocessSecureSubmessage(encoded,
		pair.bobParticipant, pair.aliceInBob)
	require.NoError(t, err)
	require.Equal(t, crypto.DataWriterSubmessage, category)
	require.Equal(t, pair.remoteWriter, writerHandle)

	decoded, err := pair.bob.DecodeDataWriterSubmessage(encoded, pair.reader, pair.remoteWriter)
	require.NoError(t, err)
	require.Equal(t, plain, decoded)
}

func TestSubmessageRoundTripGMAC(t *testing.T) {
	attrs := crypto.EndpointSecurityAttributes{IsSubmessageProtected: true}

	tests := []struct {
		name  string
		plain []byte
		want  []byte
	}{
		{
			name:  "little endian, explicit length",
			plain: []byte{0x07, 0x01, 0x04, 0x00, 0xde, 0xad, 0xbe, 0xef},
		},
		{
			name:  "big endian, explicit length",
			plain: []byte{0x07, 0x00, 0x00, 0x04, 0xde, 0xad, 0xbe, 0xef},
		},
		{
			name:  "little endian, zero length patched",
			plain: []byte{0x07, 0x01, 0x00, 0x00, 0xde, 0xad, 0xbe, 0xef},
			want:  []byte{0x07, 0x01, 0x04, 0x00, 0xde, 0xad, 0xbe, 0xef},
		},
		{
			name:  "big endian, zero length patched",
			plain: []byte{0x07, 0x00, 0x00, 0x00, 0xde, 0xad, 0xbe, 0xef},
			want:  []byte{0x07, 0x00, 0x00, 0x04, 0xde, 0xad, 0xbe, 0xef},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pair := newEndpointPair(t, attrs, nil, true)

			encoded, _, err := pair.alice.EncodeDataWriterSubmessage(tc.plain, pair.writer,
				[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
			require.NoError(t, err)

			want := tc.want
			if want == nil {
				want = tc.plain
			}

			// Auth-only framing embeds the submessage verbatim (a zero
			// submessageLength patched to the real length) between the
			// crypto header and the postfix.
			require.Equal(t, want, encoded[24:24+len(want)])

			decoded, err := pair.bob.DecodeDataWriterSubmessage(encoded, pair.reader, pair.remoteWriter)
			require.NoError(t, err)
			require.Equal(t, want, decoded)
		})
	}
}

func TestSubmessageTamperDetection(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)
	plain := []byte{0x01, 0x02, 0x03, 0x04}

	encoded, _, err := pair.alice.EncodeDataWriterSubmessage(plain, pair.writer,
		[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
	require.NoError(t, err)

	t.Run("common mac", func(t *testing.T) {
		tampered := append([]byte(nil), encoded...)
		tampered[len(tampered)-5] ^= 0x01 // last byte of the MAC

		_, err := pair.bob.DecodeDataWriterSubmessage(tampered, pair.reader, pair.remoteWriter)
		require.ErrorIs(t, err, crypto.ErrAuthFailure)
	})

	t.Run("ciphertext", func(t *testing.T) {
		tampered := append([]byte(nil), encoded...)
		tampered[32] ^= 0x80 // first ciphertext byte

		_, err := pair.bob.DecodeDataWriterSubmessage(tampered, pair.reader, pair.remoteWriter)
		require.ErrorIs(t, err, crypto.ErrAuthFailure)
	})

	t.Run("iv suffix in header", func(t *testing.T) {
		tampered := append([]byte(nil), encoded...)
		tampered[16] ^= 0x01 // inside the header's IV suffix

		_, err := pair.bob.DecodeDataWriterSubmessage(tampered, pair.reader, pair.remoteWriter)
		require.ErrorIs(t, err, crypto.ErrAuthFailure)
	})

	t.Run("transformation kind", func(t *testing.T) {
		tampered := append([]byte(nil), encoded...)
		tampered[7] = crypto.TransformationKindAES256GMAC // header kind byte

		_, err := pair.bob.DecodeDataWriterSubmessage(tampered, pair.reader, pair.remoteWriter)
		require.ErrorIs(t, err, crypto.ErrKeyNotRegistered)
	})

	t.Run("sender key id", func(t *testing.T) {
		tampered := append([]byte(nil), encoded...)
		tampered[8] ^= 0xff // header key id byte

		_, err := pair.bob.DecodeDataWriterSubmessage(tampered, pair.reader, pair.remoteWriter)
		require.ErrorIs(t, err, crypto.ErrKeyNotRegistered)
	})
}

func payloadEncryptedAttributes() crypto.EndpointSecurityAttributes {
	return crypto.EndpointSecurityAttributes{
		IsPayloadProtected:       true,
		PluginEndpointAttributes: crypto.FlagIsPayloadEncrypted,
	}
}

func TestPayloadRoundTripLayout(t *testing.T) {
	pair := newEndpointPair(t, payloadEncryptedAttributes(), nil, true)
	plain := make([]byte, 17)

	encoded, err := pair.alice.EncodeSerializedPayload(plain, pair.writer)
	require.NoError(t, err)

	// header(20) + length(4) + ciphertext(17) + mac(16) + pad(3) + seq len(4).
	require.Len(t, encoded, 64)
	require.Equal(t, []byte{0, 0, 0, crypto.TransformationKindAES256GCM}, encoded[0:4])
	require.Equal(t, keyIDForHandle(pair.writer), crypto.KeyID(encoded[4:8]))
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x11}, encoded[20:24])
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, encoded[60:64])

	decoded, err := pair.bob.DecodeSerializedPayload(encoded, nil, pair.reader, pair.remoteWriter)
	require.NoError(t, err)
	require.Equal(t, plain, decoded)
}

func TestPayloadTamperDetection(t *testing.T) {
	pair := newEndpointPair(t, payloadEncryptedAttributes(), nil, true)

	encoded, err := pair.alice.EncodeSerializedPayload([]byte{1, 2, 3}, pair.writer)
	require.NoError(t, err)

	tampered := append([]byte(nil), encoded...)
	tampered[24] ^= 0x01 // ciphertext

	_, err = pair.bob.DecodeSerializedPayload(tampered, nil, pair.reader, pair.remoteWriter)
	require.ErrorIs(t, err, crypto.ErrAuthFailure)

	tampered = append([]byte(nil), encoded...)
	tampered[5] ^= 0x01 // sender key id

	_, err = pair.bob.DecodeSerializedPayload(tampered, nil, pair.reader, pair.remoteWriter)
	require.ErrorIs(t, err, crypto.ErrKeyNotRegistered)
}

func TestPayloadAuthOnlyRejectedOnDecode(t *testing.T) {
	attrs := crypto.EndpointSecurityAttributes{IsPayloadProtected: true}
	pair := newEndpointPair(t, attrs, nil, true)
	plain := []byte{9, 8, 7, 6, 5}

	encoded, err := pair.alice.EncodeSerializedPayload(plain, pair.writer)
	require.NoError(t, err)

	// GMAC payloads carry the plaintext verbatim with no length prefix.
	require.Equal(t, plain, encoded[20:20+len(plain)])

	_, err = pair.bob.DecodeSerializedPayload(encoded, nil, pair.reader, pair.remoteWriter)
	require.ErrorIs(t, err, crypto.ErrUnsupportedFeature)
}

func TestPayloadRekeyAfterBlockBudget(t *testing.T) {
	pair := newEndpointPair(t, payloadEncryptedAttributes(), nil, true)

	const encodes = maxBlocksPerSession + 2

	ids := make([][]byte, 0, encodes)

	var first, last []byte

	for i := 0; i < encodes; i++ {
		encoded, err := pair.alice.EncodeSerializedPayload([]byte{0x42}, pair.writer)
		require.NoError(t, err)

		ids = append(ids, encoded[8:12])

		if i == 0 {
			first = encoded
		}

		last = encoded
	}

	// The session holds for the whole block budget and rotates on the next
	// encode past it.
	require.Equal(t, ids[0], ids[maxBlocksPerSession])
	require.NotEqual(t, ids[0], ids[maxBlocksPerSession+1])

	// The receiver follows the rotation via the header's session id.
	decoded, err := pair.bob.DecodeSerializedPayload(first, nil, pair.reader, pair.remoteWriter)
	require.NoError(t, err)
	require.Equal(t, []byte{0x42}, decoded)

	decoded, err = pair.bob.DecodeSerializedPayload(last, nil, pair.reader, pair.remoteWriter)
	require.NoError(t, err)
	require.Equal(t, []byte{0x42}, decoded)
}

func TestOnWireIVNeverRepeats(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)

	seen := make(map[string]bool)

	for i := 0; i < 300; i++ {
		encoded, _, err := pair.alice.EncodeDataWriterSubmessage([]byte{1, 2, 3, 4}, pair.writer,
			[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
		require.NoError(t, err)

		iv := string(encoded[12:24]) // session id + IV suffix inside the header
		require.False(t, seen[iv], "on-wire IV repeated")
		seen[iv] = true
	}
}

func TestConcurrentEncodesProduceDistinctIVs(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)

	var (
		mu   sync.Mutex
		ivs  = make(map[string]int)
		wg   sync.WaitGroup
		errs = make(chan error, 64)
	)

	for g := 0; g < 8; g++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < 50; i++ {
				encoded, _, err := pair.alice.EncodeDataWriterSubmessage([]byte{1, 2, 3, 4},
					pair.writer, []crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
				if err != nil {
					errs <- err

					return
				}

				mu.Lock()
				ivs[string(encoded[12:24])]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for iv, count := range ivs {
		require.Equal(t, 1, count, "IV %x used more than once", iv)
	}
}

func TestReaderSubmessageRoundTrip(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)
	plain := []byte{0xca, 0xfe, 0xf0, 0x0d}

	encoded, err := pair.bob.EncodeDataReaderSubmessage(plain, pair.reader,
		[]crypto.DataWriterCryptoHandle{pair.remoteWriter})
	require.NoError(t, err)

	category, _, readerHandle, err := pair.alice.PreprocessSecureSubmessage(encoded,
		pair.aliceParticipant, pair.bobInAlice)
	require.NoError(t, err)
	require.Equal(t, crypto.DataReaderSubmessage, category)
	require.Equal(t, pair.remoteReader, readerHandle)

	decoded, err := pair.alice.DecodeDataReaderSubmessage(encoded, pair.writer, pair.remoteReader)
	require.NoError(t, err)
	require.Equal(t, plain, decoded)
}

func TestVolatileEndpointsWorkWithoutTokenExchange(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(),
		volatileProperties(volatileSecureWriterName), false)
	plain := []byte{0x10, 0x20, 0x30, 0x40}

	encoded, index, err := pair.alice.EncodeDataWriterSubmessage(plain, pair.writer,
		[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
	require.NoError(t, err)
	require.Equal(t, int32(1), index)

	decoded, err := pair.bob.DecodeDataWriterSubmessage(encoded, pair.reader, pair.remoteWriter)
	require.NoError(t, err)
	require.Equal(t, plain, decoded)

	// And the reverse direction, reader to writer.
	reply := []byte{0x0a, 0x0b, 0x0c, 0x0d}

	encodedReply, err := pair.bob.EncodeDataReaderSubmessage(reply, pair.reader,
		[]crypto.DataWriterCryptoHandle{pair.remoteWriter})
	require.NoError(t, err)

	decodedReply, err := pair.alice.DecodeDataReaderSubmessage(encodedReply, pair.writer,
		pair.remoteReader)
	require.NoError(t, err)
	require.Equal(t, reply, decodedReply)
}

func TestPassthroughFidelity(t *testing.T) {
	pair := newEndpointPair(t, crypto.EndpointSecurityAttributes{}, nil, true)
	plain := []byte{0x15, 0x01, 0x08, 0x00, 1, 2, 3, 4, 5, 6, 7, 8}

	encoded, index, err := pair.alice.EncodeDataWriterSubmessage(plain, pair.writer,
		[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
	require.NoError(t, err)
	require.Equal(t, int32(1), index)
	require.Equal(t, plain, encoded)

	payload, err := pair.alice.EncodeSerializedPayload(plain, pair.writer)
	require.NoError(t, err)
	require.Equal(t, plain, payload)

	decoded, err := pair.bob.DecodeSerializedPayload(payload, nil, pair.reader, pair.remoteWriter)
	require.NoError(t, err)
	require.Equal(t, plain, decoded)
}

func TestUnregisterStopsMatchingAndEncoding(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)
	plain := []byte{1, 2, 3, 4}

	encoded, _, err := pair.alice.EncodeDataWriterSubmessage(plain, pair.writer,
		[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
	require.NoError(t, err)

	require.NoError(t, pair.bob.UnregisterDataWriter(pair.remoteWriter))

	_, _, _, err = pair.bob.PreprocessSecureSubmessage(encoded, pair.bobParticipant, pair.aliceInBob)
	require.ErrorIs(t, err, crypto.ErrKeyNotRegistered)

	require.NoError(t, pair.alice.UnregisterDataWriter(pair.writer))

	// With its keys and options gone the writer handle encodes passthrough.
	encoded, _, err = pair.alice.EncodeDataWriterSubmessage(plain, pair.writer,
		[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
	require.NoError(t, err)
	require.Equal(t, plain, encoded)
}

func TestEncodeDataWriterSubmessageValidation(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)
	plain := []byte{1, 2, 3, 4}
	readers := []crypto.DataReaderCryptoHandle{pair.remoteReader}

	_, _, err := pair.alice.EncodeDataWriterSubmessage(plain, crypto.NilHandle, readers, 0)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)

	_, index, err := pair.alice.EncodeDataWriterSubmessage(plain, pair.writer, readers, -1)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)
	require.Equal(t, int32(-1), index)

	_, index, err = pair.alice.EncodeDataWriterSubmessage(plain, pair.writer, readers, 1)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)
	require.Equal(t, int32(1), index)

	_, _, err = pair.alice.EncodeDataWriterSubmessage(plain, pair.writer,
		[]crypto.DataReaderCryptoHandle{crypto.NilHandle}, 0)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)

	// An empty receiver list is the send-to-all extension.
	encoded, index, err := pair.alice.EncodeDataWriterSubmessage(plain, pair.writer, nil, 0)
	require.NoError(t, err)
	require.Equal(t, int32(0), index)

	decoded, err := pair.bob.DecodeDataWriterSubmessage(encoded, pair.reader, pair.remoteWriter)
	require.NoError(t, err)
	require.Equal(t, plain, decoded)

	_, err = pair.bob.EncodeDataReaderSubmessage(plain, crypto.NilHandle, nil)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)

	_, err = pair.bob.EncodeDataReaderSubmessage(plain, pair.reader,
		[]crypto.DataWriterCryptoHandle{crypto.NilHandle})
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)
}

func TestRTPSMessagePassthrough(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)
	message := []byte{0x52, 0x54, 0x50, 0x53, 1, 2, 3, 4}

	encoded, index, err := pair.alice.EncodeRTPSMessage(message, pair.aliceParticipant,
		[]crypto.ParticipantCryptoHandle{pair.bobInAlice}, 0)
	require.NoError(t, err)
	require.Equal(t, message, encoded)
	require.Equal(t, int32(1), index)

	decoded, err := pair.bob.DecodeRTPSMessage(encoded, pair.bobParticipant, pair.aliceInBob)
	require.NoError(t, err)
	require.Equal(t, message, decoded)

	_, _, err = pair.alice.EncodeRTPSMessage(message, crypto.NilHandle,
		[]crypto.ParticipantCryptoHandle{pair.bobInAlice}, 0)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)

	_, _, err = pair.alice.EncodeRTPSMessage(message, pair.aliceParticipant, nil, 0)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)

	_, index, err = pair.alice.EncodeRTPSMessage(message, pair.aliceParticipant,
		[]crypto.ParticipantCryptoHandle{pair.bobInAlice}, 5)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)
	require.Equal(t, int32(5), index)

	_, err = pair.bob.DecodeRTPSMessage(encoded, crypto.NilHandle, pair.aliceInBob)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)
}

func TestPreprocessValidation(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)

	encoded, _, err := pair.alice.EncodeDataWriterSubmessage([]byte{1, 2, 3, 4}, pair.writer,
		[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
	require.NoError(t, err)

	_, _, _, err = pair.bob.PreprocessSecureSubmessage(encoded, crypto.NilHandle, pair.aliceInBob)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)

	_, _, _, err = pair.bob.PreprocessSecureSubmessage(encoded, pair.bobParticipant, crypto.NilHandle)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)

	// A header naming an unknown sender key reports the offending
	// transformation identifier.
	tampered := append([]byte(nil), encoded...)
	tampered[8] ^= 0xaa

	_, _, _, err = pair.bob.PreprocessSecureSubmessage(tampered, pair.bobParticipant, pair.aliceInBob)
	require.ErrorIs(t, err, crypto.ErrKeyNotRegistered)

	var notRegistered *crypto.KeyNotRegisteredError
	require.ErrorAs(t, err, &notRegistered)
	require.Equal(t, crypto.TransformationKind(tampered[4:8]), notRegistered.TransformationKind)
	require.Equal(t, crypto.KeyID(tampered[8:12]), notRegistered.SenderKeyID)

	_, _, _, err = pair.bob.PreprocessSecureSubmessage([]byte{0x31}, pair.bobParticipant, pair.aliceInBob)
	require.Error(t, err)
}

func TestDecodeSubmessageUnknownSender(t *testing.T) {
	pair := newEndpointPair(t, submessageEncryptedAttributes(), nil, true)

	encoded, _, err := pair.alice.EncodeDataWriterSubmessage([]byte{1, 2, 3, 4}, pair.writer,
		[]crypto.DataReaderCryptoHandle{pair.remoteReader}, 0)
	require.NoError(t, err)

	_, err = pair.bob.DecodeDataWriterSubmessage(encoded, pair.reader, crypto.NilHandle)
	require.ErrorIs(t, err, crypto.ErrInvalidHandle)

	// A handle without keys matches nothing.
	_, err = pair.bob.DecodeDataWriterSubmessage(encoded, pair.reader, pair.bobParticipant)
	require.ErrorIs(t, err, crypto.ErrKeyNotRegistered)
}
