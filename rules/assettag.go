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

package rules

import (
	"bytes"
	"maps"

	"github.com/Fraunhofer-AISEC/hostverifier/assettag"
	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
)

const (
	AssetTagMatchesName = "AssetTagMatches"
)

// AssetTagMatches requires the asset tag digest reported by the host to be
// equal to the digest of the provisioned tag certificate
type AssetTagMatches struct {
	base
	Expected digest.HexByte    `json:"expected_tag,omitempty" cbor:"0,keyasint,omitempty"`
	Tags     map[string]string `json:"expected_tag_kv,omitempty" cbor:"1,keyasint,omitempty"`
}

func NewAssetTagMatches(expected []byte, tags map[string]string, markers ...Marker) *AssetTagMatches {
	return &AssetTagMatches{
		base:     base{RuleMarkers: markers},
		Expected: expected,
		Tags:     tags,
	}
}

// NewAssetTagMatchesFromCertificate expects the SHA384 digest of the tag
// certificate, which is what gets provisioned to the host
func NewAssetTagMatchesFromCertificate(cert *assettag.AttributeCertificate, markers ...Marker) *AssetTagMatches {
	if cert == nil {
		return NewAssetTagMatches(nil, nil, markers...)
	}
	return NewAssetTagMatches(cert.Digest().Value, cert.Tags(), markers...)
}

func (r *AssetTagMatches) Name() string {
	return AssetTagMatchesName
}

func (r *AssetTagMatches) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)

	switch {
	case m.AssetTagDigest == nil:
		result.fault(assetTagMissing())
	case r.Expected == nil:
		result.fault(assetTagNotProvisioned())
	case !bytes.Equal(r.Expected, m.AssetTagDigest):
		log.Debugf("Reported asset tag %v does not match expected %v", m.AssetTagDigest, r.Expected)
		result.fault(assetTagMismatch(r.Expected, m.AssetTagDigest))
	}

	return result
}

func (r *AssetTagMatches) Equal(other Rule) bool {
	o, ok := other.(*AssetTagMatches)
	return ok && r.sameMarkers(o) && bytes.Equal(r.Expected, o.Expected) && maps.Equal(r.Tags, o.Tags)
}
