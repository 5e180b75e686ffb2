/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

// Handle identifies a registered participant or endpoint. Handles are opaque,
// non-zero and never reused within a process.
type Handle int32

// NilHandle is the zero handle, used as an error sentinel.
const NilHandle Handle = 0

// Role-specific handle names. All handles come from the same allocator; the
// aliases keep operation signatures readable.
type (
	// IdentityHandle references an identity issued by the authentication plugin.
	IdentityHandle = Handle
	// PermissionsHandle references a grant issued by the access control plugin.
	PermissionsHandle = Handle
	// ParticipantCryptoHandle references a registered participant.
	ParticipantCryptoHandle = Handle
	// DataWriterCryptoHandle references a registered data writer.
	DataWriterCryptoHandle = Handle
	// DataReaderCryptoHandle references a registered data reader.
	DataReaderCryptoHandle = Handle
	// NativeCryptoHandle references any registered entity.
	NativeCryptoHandle = Handle
)

// TransformationKind is the 4-byte wire identifier of a cryptographic
// transformation. Standard kinds have the first three bytes zero and the
// kind value in the last byte.
type TransformationKind [4]byte

// KeyID is the 4-byte wire identifier of a key within a sender's sequence.
type KeyID [4]byte

// Standard transformation kind values (last byte of TransformationKind).
const (
	TransformationKindNone       byte = 0
	TransformationKindAES128GCM  byte = 1
	TransformationKindAES256GCM  byte = 2
	TransformationKindAES128GMAC byte = 3
	TransformationKindAES256GMAC byte = 4
)

// TransformKindIndex is the offset of the kind value inside TransformationKind.
const TransformKindIndex = 3

// SecureSubmessageCategory classifies a protected submessage by the kind of
// entity that produced it.
type SecureSubmessageCategory int32

// Secure submessage categories.
const (
	InfoSubmessage SecureSubmessageCategory = iota
	DataWriterSubmessage
	DataReaderSubmessage
)

// Property is a named configuration value passed at registration time.
type Property struct {
	Name      string
	Value     string
	Propagate bool
}

// PropertySeq is an ordered property list.
type PropertySeq []Property

// BinaryProperty is a named binary value carried inside a token.
type BinaryProperty struct {
	Name      string
	Value     []byte
	Propagate bool
}

// Token is the discovery-time wire representation of a key: a class id plus
// named binary properties.
type Token struct {
	ClassID          string
	BinaryProperties []BinaryProperty
}

// Token identifiers used by the built-in AES-GCM/GMAC plugin.
const (
	// CryptoTokenClassID is the class id of every key-carrying token.
	CryptoTokenClassID = "DDS:Crypto:AES_GCM_GMAC"
	// TokenKeyMaterialPropertyName names the binary property holding the
	// serialized key material.
	TokenKeyMaterialPropertyName = "dds.cryp.keymat"
)

// SharedSecret exposes the result of the authentication handshake between two
// participants: a pair of challenges and the shared secret bytes.
type SharedSecret interface {
	Challenge1() []byte
	Challenge2() []byte
	SharedSecret() []byte
}

// ParticipantSecurityAttributes carries the participant-level protection
// policy resolved by the access control plugin.
type ParticipantSecurityAttributes struct {
	AllowUnauthenticatedParticipants bool
	IsAccessProtected                bool
	IsRTPSProtected                  bool
	IsDiscoveryProtected             bool
	IsLivelinessProtected            bool
	PluginParticipantAttributes      uint32
}

// PluginEndpointSecurityAttributesMask refines endpoint protection with
// plugin-specific flags.
type PluginEndpointSecurityAttributesMask uint32

// Plugin endpoint attribute flags.
const (
	// FlagIsSubmessageEncrypted selects AES-GCM over AES-GMAC for submessages.
	FlagIsSubmessageEncrypted PluginEndpointSecurityAttributesMask = 1 << iota
	// FlagIsPayloadEncrypted selects AES-GCM over AES-GMAC for payloads.
	FlagIsPayloadEncrypted
	// FlagIsSubmessageOriginAuthenticated requests receiver-specific MACs.
	// Origin authentication is not implemented by the built-in plugin.
	FlagIsSubmessageOriginAuthenticated
)

// EndpointSecurityAttributes carries the endpoint-level protection policy
// resolved by the access control plugin.
type EndpointSecurityAttributes struct {
	IsReadProtected       bool
	IsWriteProtected      bool
	IsDiscoveryProtected  bool
	IsLivelinessProtected bool
	IsSubmessageProtected bool
	IsPayloadProtected    bool
	IsKeyProtected        bool

	PluginEndpointAttributes PluginEndpointSecurityAttributesMask
}
