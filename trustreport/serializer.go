// Copyright (c) 2021 - 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trustreport

import (
	"crypto"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v3/message"
)

var ErrNoSignatures = errors.New("no signatures present")

// Serializer is a generic interface providing methods for data serialization and
// de-serialization. This enables storing and signing trust reports in
// different formats, such as JSON/JWS or CBOR/COSE
type Serializer interface {
	GetPayload(raw []byte) ([]byte, error)
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Sign(data []byte, key crypto.Signer, chain []*x509.Certificate) ([]byte, error)
	Verify(data []byte, roots []*x509.Certificate) ([]byte, error)
	String() string
}

func DetectSerialization(payload []byte) (Serializer, error) {
	if json.Valid(payload) {
		return JsonSerializer{}, nil
	} else if err := cbor.Valid(payload); err == nil {
		return CborSerializer{}, nil
	} else {
		return nil, fmt.Errorf("failed to detect serialization")
	}
}

// GetSerializer returns the serializer for the given name (json, cbor), media
// type (application/json, application/cbor) or CoAP content format (50, 60)
func GetSerializer(name string) (Serializer, error) {
	name = strings.TrimSpace(name)
	for _, s := range []Serializer{JsonSerializer{}, CborSerializer{}} {
		mt := GetMediaType(s)
		if strings.EqualFold(name, s.String()) || strings.EqualFold(name, mt.String()) {
			return s, nil
		}
		if n, err := strconv.ParseUint(name, 10, 16); err == nil && message.MediaType(n) == mt {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown serialization %q", name)
}

// GetMediaType returns the media type that corresponds to the serializer
func GetMediaType(s Serializer) message.MediaType {
	switch s.(type) {
	case JsonSerializer:
		return message.AppJSON
	case CborSerializer:
		return message.AppCBOR
	default:
		return message.TextPlain
	}
}

// FileExtension returns the file extension for data of the given media type
func FileExtension(mt message.MediaType) string {
	switch mt {
	case message.AppJSON:
		return ".json"
	case message.AppCBOR:
		return ".cbor"
	default:
		return ".txt"
	}
}

func rawChain(chain []*x509.Certificate) ([][]byte, error) {
	if len(chain) == 0 {
		return nil, errors.New("no signing certificate given")
	}
	raw := make([][]byte, 0, len(chain))
	for _, c := range chain {
		raw = append(raw, c.Raw)
	}
	return raw, nil
}
