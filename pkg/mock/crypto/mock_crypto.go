/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package crypto provides a canned-value mock of the crypto plugin surface
// for middleware tests.
package crypto

import (
	cryptoapi "github.com/secure-rtps/ddssec/pkg/security/crypto"
)

// Plugin mock. Each operation returns its configured value and error; encode
// and decode operations fall back to echoing their input when no value is
// set, so passthrough-style tests need no configuration.
type Plugin struct {
	RegisterHandleValue cryptoapi.Handle
	RegisterErr         error
	UnregisterErr       error

	CreateTokensValue []cryptoapi.Token
	CreateTokensErr   error
	SetTokensErr      error
	ReturnTokensErr   error

	EncodeValue []byte
	EncodeErr   error
	DecodeValue []byte
	DecodeErr   error

	PreprocessCategory cryptoapi.SecureSubmessageCategory
	PreprocessWriter   cryptoapi.DataWriterCryptoHandle
	PreprocessReader   cryptoapi.DataReaderCryptoHandle
	PreprocessErr      error
}

// SharedSecret is a SharedSecret mock backed by fixed byte slices.
type SharedSecret struct {
	Challenge1Value   []byte
	Challenge2Value   []byte
	SharedSecretValue []byte
}

// Challenge1 returns the mocked first challenge.
func (s *SharedSecret) Challenge1() []byte { return s.Challenge1Value }

// Challenge2 returns the mocked second challenge.
func (s *SharedSecret) Challenge2() []byte { return s.Challenge2Value }

// SharedSecret returns the mocked secret bytes.
func (s *SharedSecret) SharedSecret() []byte { return s.SharedSecretValue }

func (p *Plugin) encoded(in []byte) []byte {
	if p.EncodeValue != nil {
		return p.EncodeValue
	}

	return in
}

func (p *Plugin) decoded(in []byte) []byte {
	if p.DecodeValue != nil {
		return p.DecodeValue
	}

	return in
}

// RegisterLocalParticipant returns the mocked handle and error.
func (p *Plugin) RegisterLocalParticipant(cryptoapi.IdentityHandle, cryptoapi.PermissionsHandle,
	cryptoapi.PropertySeq, cryptoapi.ParticipantSecurityAttributes) (cryptoapi.ParticipantCryptoHandle, error) {
	return p.RegisterHandleValue, p.RegisterErr
}

// RegisterMatchedRemoteParticipant returns the mocked handle and error.
func (p *Plugin) RegisterMatchedRemoteParticipant(cryptoapi.ParticipantCryptoHandle, cryptoapi.IdentityHandle,
	cryptoapi.PermissionsHandle, cryptoapi.SharedSecret) (cryptoapi.ParticipantCryptoHandle, error) {
	return p.RegisterHandleValue, p.RegisterErr
}

// RegisterLocalDataWriter returns the mocked handle and error.
func (p *Plugin) RegisterLocalDataWriter(cryptoapi.ParticipantCryptoHandle, cryptoapi.PropertySeq,
	cryptoapi.EndpointSecurityAttributes) (cryptoapi.DataWriterCryptoHandle, error) {
	return p.RegisterHandleValue, p.RegisterErr
}

// RegisterMatchedRemoteDataReader returns the mocked handle and error.
func (p *Plugin) RegisterMatchedRemoteDataReader(cryptoapi.DataWriterCryptoHandle,
	cryptoapi.ParticipantCryptoHandle, cryptoapi.SharedSecret, bool) (cryptoapi.DataReaderCryptoHandle, error) {
	return p.RegisterHandleValue, p.RegisterErr
}

// RegisterLocalDataReader returns the mocked handle and error.
func (p *Plugin) RegisterLocalDataReader(cryptoapi.ParticipantCryptoHandle, cryptoapi.PropertySeq,
	cryptoapi.EndpointSecurityAttributes) (cryptoapi.DataReaderCryptoHandle, error) {
	return p.RegisterHandleValue, p.RegisterErr
}

// RegisterMatchedRemoteDataWriter returns the mocked handle and error.
func (p *Plugin) RegisterMatchedRemoteDataWriter(cryptoapi.DataReaderCryptoHandle,
	cryptoapi.ParticipantCryptoHandle, cryptoapi.SharedSecret) (cryptoapi.DataWriterCryptoHandle, error) {
	return p.RegisterHandleValue, p.RegisterErr
}

// UnregisterParticipant returns the mocked error.
func (p *Plugin) UnregisterParticipant(cryptoapi.ParticipantCryptoHandle) error {
	return p.UnregisterErr
}

// UnregisterDataWriter returns the mocked error.
func (p *Plugin) UnregisterDataWriter(cryptoapi.DataWriterCryptoHandle) error {
	return p.UnregisterErr
}

// UnregisterDataReader returns the mocked error.
func (p *Plugin) UnregisterDataReader(cryptoapi.DataReaderCryptoHandle) error {
	return p.UnregisterErr
}

// CreateLocalParticipantCryptoTokens returns the mocked tokens and error.
func (p *Plugin) CreateLocalParticipantCryptoTokens(_, _ cryptoapi.ParticipantCryptoHandle) ([]cryptoapi.Token, error) {
	return p.CreateTokensValue, p.CreateTokensErr
}

// SetRemoteParticipantCryptoTokens returns the mocked error.
func (p *Plugin) SetRemoteParticipantCryptoTokens(_, _ cryptoapi.ParticipantCryptoHandle, _ []cryptoapi.Token) error {
	return p.SetTokensErr
}

// CreateLocalDataWriterCryptoTokens returns the mocked tokens and error.
func (p *Plugin) CreateLocalDataWriterCryptoTokens(cryptoapi.DataWriterCryptoHandle,
	cryptoapi.DataReaderCryptoHandle) ([]cryptoapi.Token, error) {
	return p.CreateTokensValue, p.CreateTokensErr
}

// SetRemoteDataWriterCryptoTokens returns the mocked error.
func (p *Plugin) SetRemoteDataWriterCryptoTokens(cryptoapi.DataReaderCryptoHandle,
	cryptoapi.DataWriterCryptoHandle, []cryptoapi.Token) error {
	return p.SetTokensErr
}

// CreateLocalDataReaderCryptoTokens returns the mocked tokens and error.
func (p *Plugin) CreateLocalDataReaderCryptoTokens(cryptoapi.DataReaderCryptoHandle,
	cryptoapi.DataWriterCryptoHandle) ([]cryptoapi.Token, error) {
	return p.CreateTokensValue, p.CreateTokensErr
}

// SetRemoteDataReaderCryptoTokens returns the mocked error.
func (p *Plugin) SetRemoteDataReaderCryptoTokens(cryptoapi.DataWriterCryptoHandle,
	cryptoapi.DataReaderCryptoHandle, []cryptoapi.Token) error {
	return p.SetTokensErr
}

// ReturnCryptoTokens returns the mocked error.
func (p *Plugin) ReturnCryptoTokens([]cryptoapi.Token) error {
	return p.ReturnTokensErr
}

// EncodeSerializedPayload returns the mocked encode value, defaulting to the
// input, and the mocked error.
func (p *Plugin) EncodeSerializedPayload(plain []byte, _ cryptoapi.DataWriterCryptoHandle) ([]byte, error) {
	return p.encoded(plain), p.EncodeErr
}

// EncodeDataWriterSubmessage returns the mocked encode value and advances
// the index past the list.
func (p *Plugin) EncodeDataWriterSubmessage(plain []byte, _ cryptoapi.DataWriterCryptoHandle,
	receivingReaders []cryptoapi.DataReaderCryptoHandle, listIndex int32) ([]byte, int32, error) {
	if p.EncodeErr != nil {
		return nil, listIndex, p.EncodeErr
	}

	return p.encoded(plain), int32(len(receivingReaders)), nil
}

// EncodeDataReaderSubmessage returns the mocked encode value and error.
func (p *Plugin) EncodeDataReaderSubmessage(plain []byte, _ cryptoapi.DataReaderCryptoHandle,
	_ []cryptoapi.DataWriterCryptoHandle) ([]byte, error) {
	return p.encoded(plain), p.EncodeErr
}

// EncodeRTPSMessage returns the mocked encode value and advances the index.
func (p *Plugin) EncodeRTPSMessage(plain []byte, _ cryptoapi.ParticipantCryptoHandle,
	_ []cryptoapi.ParticipantCryptoHandle, listIndex int32) ([]byte, int32, error) {
	if p.EncodeErr != nil {
		return nil, listIndex, p.EncodeErr
	}

	return p.encoded(plain), listIndex + 1, nil
}

// DecodeRTPSMessage returns the mocked decode value and error.
func (p *Plugin) DecodeRTPSMessage(encoded []byte, _, _ cryptoapi.ParticipantCryptoHandle) ([]byte, error) {
	return p.decoded(encoded), p.DecodeErr
}

// PreprocessSecureSubmessage returns the mocked category, handles and error.
func (p *Plugin) PreprocessSecureSubmessage([]byte, cryptoapi.ParticipantCryptoHandle,
	cryptoapi.ParticipantCryptoHandle) (cryptoapi.SecureSubmessageCategory, cryptoapi.DataWriterCryptoHandle,
	cryptoapi.DataReaderCryptoHandle, error) {
	return p.PreprocessCategory, p.PreprocessWriter, p.PreprocessReader, p.PreprocessErr
}

// DecodeDataWriterSubmessage returns the mocked decode value and error.
func (p *Plugin) DecodeDataWriterSubmessage(encoded []byte, _ cryptoapi.DataReaderCryptoHandle,
	_ cryptoapi.DataWriterCryptoHandle) ([]byte, error) {
	return p.decoded(encoded), p.DecodeErr
}

// DecodeDataReaderSubmessage returns the mocked decode value and error.
func (p *Plugin) DecodeDataReaderSubmessage(encoded []byte, _ cryptoapi.DataWriterCryptoHandle,
	_ cryptoapi.DataReaderCryptoHandle) ([]byte, error) {
	return p.decoded(encoded), p.DecodeErr
}

// DecodeSerializedPayload returns the mocked decode value and error.
func (p *Plugin) DecodeSerializedPayload(encoded, _ []byte, _ cryptoapi.DataReaderCryptoHandle,
	_ cryptoapi.DataWriterCryptoHandle) ([]byte, error) {
	return p.decoded(encoded), p.DecodeErr
}
