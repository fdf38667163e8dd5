// Copyright (c) 2025 Fraunhofer AISEC
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

package verifier

import (
	"errors"
	"fmt"

	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/trustreport"
)

// VerifyJson verifies a serialized host manifest against a serialized signed
// flavor. Both can be encoded as JSON or CBOR
func (v *Verifier) VerifyJson(manifest, signedFlavor []byte, skipSignature bool) (*trustreport.TrustReport, error) {
	m, err := DecodeManifest(manifest)
	if err != nil {
		return nil, err
	}

	flavors, err := DecodeFlavors(signedFlavor)
	if err != nil {
		return nil, err
	}
	if len(flavors) != 1 {
		return nil, fmt.Errorf("expected a single flavor, got %v", len(flavors))
	}

	return v.Verify(m, flavors[0], skipSignature)
}

// DecodeManifest decodes a JSON or CBOR encoded host manifest and checks its
// PCR banks, indices and value lengths
func DecodeManifest(data []byte) (*hostmanifest.HostManifest, error) {
	s, err := trustreport.DetectSerialization(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode host manifest: %w", err)
	}
	log.Tracef("Detected %v serialization for host manifest", s.String())

	m := new(hostmanifest.HostManifest)
	if err := s.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal host manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host manifest: %w", err)
	}
	return m, nil
}

// DecodeFlavors decodes a JSON or CBOR encoded signed flavor or a
// collection of signed flavors
func DecodeFlavors(data []byte) ([]*flavor.SignedFlavor, error) {
	s, err := trustreport.DetectSerialization(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode flavor: %w", err)
	}
	log.Tracef("Detected %v serialization for flavor", s.String())

	var collection flavor.SignedFlavorCollection
	if err := s.Unmarshal(data, &collection); err == nil && len(collection.SignedFlavors) > 0 {
		flavors := make([]*flavor.SignedFlavor, 0, len(collection.SignedFlavors))
		for i := range collection.SignedFlavors {
			flavors = append(flavors, &collection.SignedFlavors[i])
		}
		return flavors, nil
	}

	sf := new(flavor.SignedFlavor)
	if err := s.Unmarshal(data, sf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signed flavor: %w", err)
	}
	if sf.Flavor.Meta.Description.FlavorPart == "" {
		return nil, errors.New("failed to unmarshal signed flavor: no flavor part")
	}
	return []*flavor.SignedFlavor{sf}, nil
}
