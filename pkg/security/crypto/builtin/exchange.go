/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"fmt"

	"github.com/secure-rtps/ddssec/pkg/security/crypto"
)

// keysToTokens encodes each key of a sequence as one token carrying the
// serialized key material. Keys that fail to serialize are skipped.
func keysToTokens(keys keySequence) []crypto.Token {
	tokens := make([]crypto.Token, 0, len(keys))

	for _, k := range keys {
		value, err := k.marshal()
		if err != nil {
			logger.Errorf("keys_to_tokens: dropping key %x: %s", k.SenderKeyID, err)

			continue
		}

		tokens = append(tokens, crypto.Token{
			ClassID: crypto.CryptoTokenClassID,
			BinaryProperties: []crypto.BinaryProperty{{
				Name:      crypto.TokenKeyMaterialPropertyName,
				Value:     value,
				Propagate: true,
			}},
		})
	}

	return tokens
}

// tokensToKeys decodes the key material carried by a token sequence. Tokens
// with an unknown class id or property name, and values that fail to decode,
// are skipped rather than rejected, preserving forward compatibility.
func tokensToKeys(tokens []crypto.Token) keySequence {
	var keys keySequence

	for _, t := range tokens {
		if t.ClassID != crypto.CryptoTokenClassID {
			continue
		}

		for _, prop := range t.BinaryProperties {
			if prop.Name != crypto.TokenKeyMaterialPropertyName {
				continue
			}

			k, err := unmarshalKeyMaterial(prop.Value)
			if err != nil {
				logger.Debugf("tokens_to_keys: skipping undecodable key material: %s", err)

				break
			}

			keys = append(keys, k)

			break
		}
	}

	return keys
}

func (p *Plugin) createLocalTokens(local, remote crypto.NativeCryptoHandle, role string) ([]crypto.Token, error) {
	if local == crypto.NilHandle {
		return nil, fmt.Errorf("local %s handle: %w", role, crypto.ErrInvalidHandle)
	}

	if remote == crypto.NilHandle {
		return nil, fmt.Errorf("remote %s handle: %w", role, crypto.ErrInvalidHandle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	keys, ok := p.keys[local]
	if !ok {
		// Nothing to exchange for this handle (participants, for example,
		// hold no keys under this plugin's configuration).
		return []crypto.Token{}, nil
	}

	return keysToTokens(keys), nil
}

func (p *Plugin) setRemoteTokens(local, remote crypto.NativeCryptoHandle, tokens []crypto.Token,
	localRole, remoteRole string) error {
	if local == crypto.NilHandle {
		return fmt.Errorf("local %s handle: %w", localRole, crypto.ErrInvalidHandle)
	}

	if remote == crypto.NilHandle {
		return fmt.Errorf("remote %s handle: %w", remoteRole, crypto.ErrInvalidHandle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys[remote] = tokensToKeys(tokens)

	return nil
}

// CreateLocalParticipantCryptoTokens returns the local participant's keys as
// tokens. The sequence is empty when the participant holds no keys.
func (p *Plugin) CreateLocalParticipantCryptoTokens(local,
	remote crypto.ParticipantCryptoHandle) ([]crypto.Token, error) {
	return p.createLocalTokens(local, remote, "participant")
}

// SetRemoteParticipantCryptoTokens installs the keys decoded from a remote
// participant's tokens.
func (p *Plugin) SetRemoteParticipantCryptoTokens(local, remote crypto.ParticipantCryptoHandle,
	tokens []crypto.Token) error {
	return p.setRemoteTokens(local, remote, tokens, "participant", "participant")
}

// CreateLocalDataWriterCryptoTokens returns the local writer's keys as
// tokens, one per key.
func (p *Plugin) CreateLocalDataWriterCryptoTokens(localWriter crypto.DataWriterCryptoHandle,
	remoteReader crypto.DataReaderCryptoHandle) ([]crypto.Token, error) {
	return p.createLocalTokens(localWriter, remoteReader, "datawriter")
}

// SetRemoteDataWriterCryptoTokens installs the keys decoded from a remote
// writer's tokens on its matched handle.
func (p *Plugin) SetRemoteDataWriterCryptoTokens(localReader crypto.DataReaderCryptoHandle,
	remoteWriter crypto.DataWriterCryptoHandle, tokens []crypto.Token) error {
	return p.setRemoteTokens(localReader, remoteWriter, tokens, "datareader", "datawriter")
}

// CreateLocalDataReaderCryptoTokens returns the local reader's keys as
// tokens.
func (p *Plugin) CreateLocalDataReaderCryptoTokens(localReader crypto.DataReaderCryptoHandle,
	remoteWriter crypto.DataWriterCryptoHandle) ([]crypto.Token, error) {
	return p.createLocalTokens(localReader, remoteWriter, "datareader")
}

// SetRemoteDataReaderCryptoTokens installs the keys decoded from a remote
// reader's tokens on its matched handle.
func (p *Plugin) SetRemoteDataReaderCryptoTokens(localWriter crypto.DataWriterCryptoHandle,
	remoteReader crypto.DataReaderCryptoHandle, tokens []crypto.Token) error {
	return p.setRemoteTokens(localWriter, remoteReader, tokens, "datawriter", "datareader")
}

// ReturnCryptoTokens releases tokens created by this plugin. Token memory is
// garbage collected; nothing further is required.
func (p *Plugin) ReturnCryptoTokens([]crypto.Token) error {
	return nil
}
