/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package builtin

import (
	"github.com/mitchellh/mapstructure"

	"github.com/secure-rtps/ddssec/pkg/security/crypto"
)

// Property names and values recognized at registration time. All other
// property names are ignored.
const (
	builtinEndpointNameProperty = "dds.sec.builtin_endpoint_name"

	volatileSecureWriterName = "BuiltinParticipantVolatileMessageSecureWriter"
	volatileSecureReaderName = "BuiltinParticipantVolatileMessageSecureReader"
)

// endpointProperties is the typed view of a registration property list.
type endpointProperties struct {
	BuiltinEndpointName string `mapstructure:"dds.sec.builtin_endpoint_name"`
}

func decodeEndpointProperties(props crypto.PropertySeq) (endpointProperties, error) {
	values := make(map[string]string, len(props))
	for _, p := range props {
		values[p.Name] = p.Value
	}

	var ep endpointProperties
	if err := mapstructure.Decode(values, &ep); err != nil {
		return endpointProperties{}, err
	}

	return ep, nil
}

// isBuiltinVolatile reports whether the property list names one of the
// built-in volatile secure endpoints, whose keys come from the shared secret
// instead of token exchange.
func isBuiltinVolatile(props crypto.PropertySeq) bool {
	ep, err := decodeEndpointProperties(props)
	if err != nil {
		return false
	}

	return ep.BuiltinEndpointName == volatileSecureWriterName ||
		ep.BuiltinEndpointName == volatileSecureReaderName
}
