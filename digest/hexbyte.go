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

package digest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// HexByte is a byte array which is encoded as hex string in JSON but
// used as byte array internally and by CBOR encoding
type HexByte []byte

// MarshalJSON marshals a byte array into a hex string
func (h HexByte) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON unmarshals JSON hex strings into byte arrays
func (h *HexByte) UnmarshalJSON(data []byte) error {

	var v string
	err := json.Unmarshal(data, &v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}

	*h, err = hex.DecodeString(v)
	if err != nil {
		return fmt.Errorf("failed to decode string: %w", err)
	}

	return nil
}

func (h HexByte) String() string {
	return hex.EncodeToString(h)
}

// JSONSchema describes the hex string encoding for generated schemas
func (HexByte) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:    "string",
		Pattern: "^([0-9a-fA-F]{2})*$",
	}
}
