/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"fmt"

	"github.com/secure-rtps/ddssec/pkg/security/crypto"
)

// RegisterLocalParticipant validates the identity and permissions handles and
// mints a participant handle. No key material is stored; participant-level
// keys only exist when RTPS message protection is configured, which this
// plugin does not support.
func (p *Plugin) RegisterLocalParticipant(identity crypto.IdentityHandle, permissions crypto.PermissionsHandle,
	_ crypto.PropertySeq, attributes crypto.ParticipantSecurityAttributes) (crypto.ParticipantCryptoHandle, error) {
	if identity == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("local participant identity: %w", crypto.ErrInvalidHandle)
	}

	if permissions == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("local participant permissions: %w", crypto.ErrInvalidHandle)
	}

	if attributes.IsRTPSProtected {
		return crypto.NilHandle, fmt.Errorf("rtps message protection: %w", crypto.ErrUnsupportedFeature)
	}

	return p.generateHandle(), nil
}

// RegisterMatchedRemoteParticipant validates the remote identity, permissions
// and shared secret and mints a participant handle for the remote side.
func (p *Plugin) RegisterMatchedRemoteParticipant(local crypto.ParticipantCryptoHandle,
	remoteIdentity crypto.IdentityHandle, remotePermissions crypto.PermissionsHandle,
	secret crypto.SharedSecret) (crypto.ParticipantCryptoHandle, error) {
	if local == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("local participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if remoteIdentity == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("remote participant identity: %w", crypto.ErrInvalidHandle)
	}

	if remotePermissions == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("remote participant permissions: %w", crypto.ErrInvalidHandle)
	}

	if secret == nil {
		return crypto.NilHandle, fmt.Errorf("shared secret: %w", crypto.ErrInvalidHandle)
	}

	return p.generateHandle(), nil
}

// RegisterLocalDataWriter mints a writer handle and generates its key
// sequence: the submessage key first when submessage protection is on, then
// the payload key when payload protection is on. Volatile secure endpoints
// get a placeholder instead; their real keys are derived at matching time.
func (p *Plugin) RegisterLocalDataWriter(participant crypto.ParticipantCryptoHandle,
	properties crypto.PropertySeq, attributes crypto.EndpointSecurityAttributes) (crypto.DataWriterCryptoHandle, error) {
	if participant == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	h := p.generateHandle()
	flags := attributes.PluginEndpointAttributes

	var keys keySequence

	if isBuiltinVolatile(properties) {
		keys = append(keys, makeVolatilePlaceholder())
	} else {
		usedHandle := false

		if attributes.IsSubmessageProtected {
			key := makeKey(h, flags&crypto.FlagIsSubmessageEncrypted != 0)
			keys = append(keys, key)
			usedHandle = true

			logger.Debugf("register_local_datawriter: created submessage key %x for handle %d",
				key.SenderKeyID, h)
		}

		if attributes.IsPayloadProtected {
			keyID := h
			if usedHandle {
				keyID = p.generateHandle()
			}

			key := makeKey(keyID, flags&crypto.FlagIsPayloadEncrypted != 0)
			keys = append(keys, key)

			logger.Debugf("register_local_datawriter: created payload key %x for handle %d",
				key.SenderKeyID, h)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys[h] = keys
	p.participantToEntity[participant] = append(p.participantToEntity[participant],
		entityInfo{category: crypto.DataWriterSubmessage, handle: h})
	p.encryptOptions[h] = attributes

	return h, nil
}

// RegisterMatchedRemoteDataReader mints a handle for a remote reader matched
// with a local writer. For volatile endpoints the reader's keys are derived
// from the shared secret immediately, as if key exchange had happened; for
// ordinary endpoints they arrive later as tokens.
func (p *Plugin) RegisterMatchedRemoteDataReader(localWriter crypto.DataWriterCryptoHandle,
	remoteParticipant crypto.ParticipantCryptoHandle, secret crypto.SharedSecret,
	_ bool) (crypto.DataReaderCryptoHandle, error) {
	if localWriter == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("local datawriter crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if remoteParticipant == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("remote participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if secret == nil {
		return crypto.NilHandle, fmt.Errorf("shared secret: %w", crypto.ErrInvalidHandle)
	}

	h := p.generateHandle()

	p.mu.Lock()
	defer p.mu.Unlock()

	writerKeys, ok := p.keys[localWriter]
	if !ok {
		return crypto.NilHandle, fmt.Errorf("local datawriter crypto handle %d: %w",
			localWriter, crypto.ErrInvalidHandle)
	}

	if len(writerKeys) == 1 && isVolatilePlaceholder(writerKeys[0]) {
		key, err := p.deriveVolatileKey(secret)
		if err != nil {
			return crypto.NilHandle, fmt.Errorf("volatile remote reader: %w", err)
		}

		p.keys[h] = keySequence{key}

		logger.Debugf("register_matched_remote_datareader: created volatile key for handle %d", h)
	}

	p.participantToEntity[remoteParticipant] = append(p.participantToEntity[remoteParticipant],
		entityInfo{category: crypto.DataReaderSubmessage, handle: h})
	p.encryptOptions[h] = p.encryptOptions[localWriter]

	return h, nil
}

// RegisterLocalDataReader mints a reader handle and generates its submessage
// key when submessage protection is on. Volatile secure endpoints get a
// placeholder instead.
func (p *Plugin) RegisterLocalDataReader(participant crypto.ParticipantCryptoHandle,
	properties crypto.PropertySeq, attributes crypto.EndpointSecurityAttributes) (crypto.DataReaderCryptoHandle, error) {
	if participant == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	h := p.generateHandle()
	flags := attributes.PluginEndpointAttributes

	var keys keySequence

	switch {
	case isBuiltinVolatile(properties):
		keys = append(keys, makeVolatilePlaceholder())
	case attributes.IsSubmessageProtected:
		key := makeKey(h, flags&crypto.FlagIsSubmessageEncrypted != 0)
		keys = append(keys, key)

		logger.Debugf("register_local_datareader: created submessage key %x for handle %d",
			key.SenderKeyID, h)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys[h] = keys
	p.participantToEntity[participant] = append(p.participantToEntity[participant],
		entityInfo{category: crypto.DataReaderSubmessage, handle: h})
	p.encryptOptions[h] = attributes

	return h, nil
}

// RegisterMatchedRemoteDataWriter mints a handle for a remote writer matched
// with a local reader, deriving volatile keys from the shared secret when the
// local reader is a volatile endpoint.
func (p *Plugin) RegisterMatchedRemoteDataWriter(localReader crypto.DataReaderCryptoHandle,
	remoteParticipant crypto.ParticipantCryptoHandle, secret crypto.SharedSecret) (crypto.DataWriterCryptoHandle, error) {
	if localReader == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("local datareader crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if remoteParticipant == crypto.NilHandle {
		return crypto.NilHandle, fmt.Errorf("remote participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if secret == nil {
		return crypto.NilHandle, fmt.Errorf("shared secret: %w", crypto.ErrInvalidHandle)
	}

	h := p.generateHandle()

	p.mu.Lock()
	defer p.mu.Unlock()

	readerKeys, ok := p.keys[localReader]
	if !ok {
		return crypto.NilHandle, fmt.Errorf("local datareader crypto handle %d: %w",
			localReader, crypto.ErrInvalidHandle)
	}

	if len(readerKeys) == 1 && isVolatilePlaceholder(readerKeys[0]) {
		key, err := p.deriveVolatileKey(secret)
		if err != nil {
			return crypto.NilHandle, fmt.Errorf("volatile remote writer: %w", err)
		}

		p.keys[h] = keySequence{key}

		logger.Debugf("register_matched_remote_datawriter: created volatile key for handle %d", h)
	}

	p.participantToEntity[remoteParticipant] = append(p.participantToEntity[remoteParticipant],
		entityInfo{category: crypto.DataWriterSubmessage, handle: h})
	p.encryptOptions[h] = p.encryptOptions[localReader]

	return h, nil
}

func (p *Plugin) deriveVolatileKey(secret crypto.SharedSecret) (keyMaterial, error) {
	key, err := makeVolatileKey(secret.Challenge1(), secret.Challenge2(), secret.SharedSecret())
	if err != nil {
		return keyMaterial{}, fmt.Errorf("%w: %v", crypto.ErrDerivationFailure, err)
	}

	if len(key.MasterSalt) == 0 || len(key.MasterSenderKey) == 0 {
		return keyMaterial{}, crypto.ErrDerivationFailure
	}

	return key, nil
}

// UnregisterParticipant validates the handle. Participants hold no endpoint
// data of their own.
func (p *Plugin) UnregisterParticipant(handle crypto.ParticipantCryptoHandle) error {
	if handle == crypto.NilHandle {
		return fmt.Errorf("participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	return nil
}

// UnregisterDataWriter removes the writer's keys, options, lookup entries and
// sessions.
func (p *Plugin) UnregisterDataWriter(handle crypto.DataWriterCryptoHandle) error {
	if handle == crypto.NilHandle {
		return fmt.Errorf("datawriter crypto handle: %w", crypto.ErrInvalidHandle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearEndpointDataLocked(handle)

	return nil
}

// UnregisterDataReader removes the reader's keys, options, lookup entries and
// sessions.
func (p *Plugin) UnregisterDataReader(handle crypto.DataReaderCryptoHandle) error {
	if handle == crypto.NilHandle {
		return fmt.Errorf("datareader crypto handle: %w", crypto.ErrInvalidHandle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearEndpointDataLocked(handle)

	return nil
}
