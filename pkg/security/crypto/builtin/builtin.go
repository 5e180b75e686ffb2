/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package builtin implements the DDS Security built-in cryptographic plugin
// (AES-GCM/GMAC): key factory, key exchange and transform over a single
// keystore. Submessages and serialized payloads are protected with
// AES-256-GCM or AES-256-GMAC under per-session keys derived from master key
// material exchanged as discovery tokens.
package builtin

import (
	"sync"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/secure-rtps/ddssec/pkg/security/crypto"
)

var logger = log.New("ddssec/security/crypto/builtin")

const (
	keyLenBytes         = 32
	blockLenBytes       = 16
	maxBlocksPerSession = 1024
)

// entityInfo records one endpoint originating from a participant, for
// inbound submessage lookup.
type entityInfo struct {
	category crypto.SecureSubmessageCategory
	handle   crypto.NativeCryptoHandle
}

// sessionID keys the session table by endpoint handle and key index.
type sessionID struct {
	handle   crypto.NativeCryptoHandle
	keyIndex int
}

// Plugin is the built-in crypto plugin. One instance serves a whole process;
// all three plugin roles share its keystore. The zero value is not usable,
// construct with New.
type Plugin struct {
	mu         sync.Mutex
	nextHandle int32

	keys                map[crypto.NativeCryptoHandle]keySequence
	encryptOptions      map[crypto.NativeCryptoHandle]crypto.EndpointSecurityAttributes
	participantToEntity map[crypto.ParticipantCryptoHandle][]entityInfo
	sessions            map[sessionID]*session
}

var _ crypto.Plugin = (*Plugin)(nil)

// New returns an empty plugin instance.
func New() *Plugin {
	return &Plugin{
		nextHandle:          1,
		keys:                make(map[crypto.NativeCryptoHandle]keySequence),
		encryptOptions:      make(map[crypto.NativeCryptoHandle]crypto.EndpointSecurityAttributes),
		participantToEntity: make(map[crypto.ParticipantCryptoHandle][]entityInfo),
		sessions:            make(map[sessionID]*session),
	}
}

// generateHandle mints the next handle. Handles are never reused.
func (p *Plugin) generateHandle() crypto.NativeCryptoHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.generateHandleLocked()
}

func (p *Plugin) generateHandleLocked() crypto.NativeCryptoHandle {
	h := crypto.NativeCryptoHandle(p.nextHandle)
	p.nextHandle++

	return h
}

// sessionLocked returns the session for (handle, keyIndex), creating it on
// first use. Callers hold the keystore mutex.
func (p *Plugin) sessionLocked(handle crypto.NativeCryptoHandle, keyIndex int) *session {
	id := sessionID{handle: handle, keyIndex: keyIndex}

	s, ok := p.sessions[id]
	if !ok {
		s = &session{}
		p.sessions[id] = s
	}

	return s
}

// clearEndpointDataLocked removes every trace of an endpoint handle: its key
// sequence, protection options, lookup entries and sessions. Callers hold
// the keystore mutex.
func (p *Plugin) clearEndpointDataLocked(handle crypto.NativeCryptoHandle) {
	delete(p.keys, handle)
	delete(p.encryptOptions, handle)

	for participant, entities := range p.participantToEntity {
		kept := entities[:0]

		for _, e := range entities {
			if e.handle != handle {
				kept = append(kept, e)
			}
		}

		if len(kept) == 0 {
			delete(p.participantToEntity, participant)
		} else {
			p.participantToEntity[participant] = kept
		}
	}

	for id := range p.sessions {
		if id.handle == handle {
			delete(p.sessions, id)
		}
	}
}
