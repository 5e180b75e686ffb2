/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"fmt"

	"github.com/secure-rtps/ddssec/pkg/security/crypto"
	"github.com/secure-rtps/ddssec/pkg/security/crypto/cdr"
)

// PreprocessSecureSubmessage parses the SEC_PREFIX and crypto header of a
// protected submessage and walks the sending participant's registered
// entities for the first key matching the header's transformation identifier.
// The matched entity's category tells the caller which decode operation to
// dispatch to.
func (p *Plugin) PreprocessSecureSubmessage(encoded []byte, receivingParticipant,
	sendingParticipant crypto.ParticipantCryptoHandle) (crypto.SecureSubmessageCategory,
	crypto.DataWriterCryptoHandle, crypto.DataReaderCryptoHandle, error) {
	if receivingParticipant == crypto.NilHandle {
		return crypto.InfoSubmessage, crypto.NilHandle, crypto.NilHandle,
			fmt.Errorf("receiving participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	if sendingParticipant == crypto.NilHandle {
		return crypto.InfoSubmessage, crypto.NilHandle, crypto.NilHandle,
			fmt.Errorf("sending participant crypto handle: %w", crypto.ErrInvalidHandle)
	}

	header, _, err := parsePrefixedCryptoHeader(cdr.NewDecoder(encoded))
	if err != nil {
		return crypto.InfoSubmessage, crypto.NilHandle, crypto.NilHandle,
			fmt.Errorf("parse secure submessage prefix: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	logger.Debugf("preprocess_secure_submsg: looking for key with kind %x, sender key id %x",
		header.kind, header.keyID)

	for _, entity := range p.participantToEntity[sendingParticipant] {
		keys, ok := p.keys[entity.handle]
		if !ok {
			continue
		}

		for _, k := range keys {
			if !k.matches(header) {
				continue
			}

			switch entity.category {
			case crypto.DataWriterSubmessage:
				logger.Debugf("preprocess_secure_submsg: matched datawriter handle %d", entity.handle)

				return entity.category, entity.handle, crypto.NilHandle, nil
			case crypto.DataReaderSubmessage:
				logger.Debugf("preprocess_secure_submsg: matched datareader handle %d", entity.handle)

				return entity.category, crypto.NilHandle, entity.handle, nil
			}
		}
	}

	return crypto.InfoSubmessage, crypto.NilHandle, crypto.NilHandle, &crypto.KeyNotRegisteredError{
		TransformationKind: header.kind,
		SenderKeyID:        header.keyID,
	}
}
