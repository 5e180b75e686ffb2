/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package crypto defines the cryptographic plugin surface of the DDS Security
// architecture: key factory, key exchange and transform roles. Implementations
// protect RTPS traffic at three scopes (whole messages, individual
// submessages, serialized payloads) using key material exchanged out-of-band
// during discovery.
package crypto

// KeyFactory mints crypto handles for local and matched remote entities and
// owns the key material bound to each handle.
type KeyFactory interface {
	// RegisterLocalParticipant returns a crypto handle for a local
	// participant identified by its identity and permissions handles.
	RegisterLocalParticipant(identity IdentityHandle, permissions PermissionsHandle,
		properties PropertySeq, attributes ParticipantSecurityAttributes) (ParticipantCryptoHandle, error)

	// RegisterMatchedRemoteParticipant returns a crypto handle for a remote
	// participant that completed authentication with the local one.
	RegisterMatchedRemoteParticipant(local ParticipantCryptoHandle, remoteIdentity IdentityHandle,
		remotePermissions PermissionsHandle, secret SharedSecret) (ParticipantCryptoHandle, error)

	// RegisterLocalDataWriter creates key material for a local writer
	// according to its endpoint security attributes.
	RegisterLocalDataWriter(participant ParticipantCryptoHandle, properties PropertySeq,
		attributes EndpointSecurityAttributes) (DataWriterCryptoHandle, error)

	// RegisterMatchedRemoteDataReader returns a crypto handle for a remote
	// reader matched with a local writer. The relayOnly flag is accepted for
	// interface compatibility and not otherwise used.
	RegisterMatchedRemoteDataReader(localWriter DataWriterCryptoHandle, remoteParticipant ParticipantCryptoHandle,
		secret SharedSecret, relayOnly bool) (DataReaderCryptoHandle, error)

	// RegisterLocalDataReader creates key material for a local reader
	// according to its endpoint security attributes.
	RegisterLocalDataReader(participant ParticipantCryptoHandle, properties PropertySeq,
		attributes EndpointSecurityAttributes) (DataReaderCryptoHandle, error)

	// RegisterMatchedRemoteDataWriter returns a crypto handle for a remote
	// writer matched with a local reader.
	RegisterMatchedRemoteDataWriter(localReader DataReaderCryptoHandle, remoteParticipant ParticipantCryptoHandle,
		secret SharedSecret) (DataWriterCryptoHandle, error)

	// UnregisterParticipant releases a participant crypto handle.
	UnregisterParticipant(handle ParticipantCryptoHandle) error

	// UnregisterDataWriter releases a writer crypto handle together with its
	// key material and session state.
	UnregisterDataWriter(handle DataWriterCryptoHandle) error

	// UnregisterDataReader releases a reader crypto handle together with its
	// key material and session state.
	UnregisterDataReader(handle DataReaderCryptoHandle) error
}

// KeyExchange converts local key material to discovery tokens and installs
// tokens received from remote peers.
type KeyExchange interface {
	// CreateLocalParticipantCryptoTokens returns the tokens carrying the
	// local participant's key material, one token per key. The sequence is
	// empty when the handle has no keys.
	CreateLocalParticipantCryptoTokens(local, remote ParticipantCryptoHandle) ([]Token, error)

	// SetRemoteParticipantCryptoTokens replaces the remote participant's key
	// sequence with the keys decoded from tokens. Unrecognized tokens are
	// skipped.
	SetRemoteParticipantCryptoTokens(local, remote ParticipantCryptoHandle, tokens []Token) error

	// CreateLocalDataWriterCryptoTokens returns the tokens carrying a local
	// writer's key material for a matched remote reader.
	CreateLocalDataWriterCryptoTokens(localWriter DataWriterCryptoHandle,
		remoteReader DataReaderCryptoHandle) ([]Token, error)

	// SetRemoteDataWriterCryptoTokens installs a remote writer's keys on the
	// handle matched with the given local reader.
	SetRemoteDataWriterCryptoTokens(localReader DataReaderCryptoHandle,
		remoteWriter DataWriterCryptoHandle, tokens []Token) error

	// CreateLocalDataReaderCryptoTokens returns the tokens carrying a local
	// reader's key material for a matched remote writer.
	CreateLocalDataReaderCryptoTokens(localReader DataReaderCryptoHandle,
		remoteWriter DataWriterCryptoHandle) ([]Token, error)

	// SetRemoteDataReaderCryptoTokens installs a remote reader's keys on the
	// handle matched with the given local writer.
	SetRemoteDataReaderCryptoTokens(localWriter DataWriterCryptoHandle,
		remoteReader DataReaderCryptoHandle, tokens []Token) error

	// ReturnCryptoTokens releases tokens previously created by this plugin.
	ReturnCryptoTokens(tokens []Token) error
}

// Transform encrypts, authenticates, decrypts and verifies wire bytes at the
// message, submessage and payload scopes.
type Transform interface {
	// EncodeSerializedPayload protects a serialized application payload on
	// behalf of the sending writer. Without payload protection the input is
	// returned unchanged (in a fresh buffer).
	EncodeSerializedPayload(plain []byte, sendingWriter DataWriterCryptoHandle) ([]byte, error)

	// EncodeDataWriterSubmessage protects a writer submessage for the listed
	// readers. It returns the advanced receiver list index; an empty list
	// addresses all associated readers.
	EncodeDataWriterSubmessage(plain []byte, sendingWriter DataWriterCryptoHandle,
		receivingReaders []DataReaderCryptoHandle, listIndex int32) ([]byte, int32, error)

	// EncodeDataReaderSubmessage protects a reader submessage for the listed
	// writers.
	EncodeDataReaderSubmessage(plain []byte, sendingReader DataReaderCryptoHandle,
		receivingWriters []DataWriterCryptoHandle) ([]byte, error)

	// EncodeRTPSMessage validates its arguments and passes the message
	// through unchanged, advancing the receiver list index. Message-level
	// protection is not implemented.
	EncodeRTPSMessage(plain []byte, sendingParticipant ParticipantCryptoHandle,
		receivingParticipants []ParticipantCryptoHandle, listIndex int32) ([]byte, int32, error)

	// DecodeRTPSMessage validates its arguments and passes the message
	// through unchanged.
	DecodeRTPSMessage(encoded []byte, receivingParticipant, sendingParticipant ParticipantCryptoHandle) ([]byte, error)

	// PreprocessSecureSubmessage inspects a protected submessage and
	// identifies the sending entity whose key produced it, classifying the
	// submessage as writer- or reader-originated.
	PreprocessSecureSubmessage(encoded []byte, receivingParticipant,
		sendingParticipant ParticipantCryptoHandle) (SecureSubmessageCategory, DataWriterCryptoHandle, DataReaderCryptoHandle, error)

	// DecodeDataWriterSubmessage recovers the writer submessage protected by
	// the sending writer's key. The receiving reader handle may be nil since
	// origin authentication is not implemented.
	DecodeDataWriterSubmessage(encoded []byte, receivingReader DataReaderCryptoHandle,
		sendingWriter DataWriterCryptoHandle) ([]byte, error)

	// DecodeDataReaderSubmessage recovers the reader submessage protected by
	// the sending reader's key.
	DecodeDataReaderSubmessage(encoded []byte, receivingWriter DataWriterCryptoHandle,
		sendingReader DataReaderCryptoHandle) ([]byte, error)

	// DecodeSerializedPayload recovers a serialized payload protected by the
	// sending writer's payload key. The inline QoS bytes are accepted for
	// interface compatibility and not consumed.
	DecodeSerializedPayload(encoded, inlineQoS []byte, receivingReader DataReaderCryptoHandle,
		sendingWriter DataWriterCryptoHandle) ([]byte, error)
}

// Plugin is the full crypto plugin: one component implementing all three
// roles over shared state.
type Plugin interface {
	KeyFactory
	KeyExchange
	Transform
}
