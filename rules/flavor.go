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
	"errors"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/google/uuid"
)

const (
	FlavorTrustedName  = "FlavorTrusted"
	DefaultTrustedName = "DefaultTrusted"
)

// FlavorTrusted requires the flavor to be signed by the flavor signing
// certificate, which in turn must chain up to a flavor CA if configured
type FlavorTrusted struct {
	base
	FlavorId     uuid.UUID `json:"flavor_id" cbor:"0,keyasint"`
	signedFlavor *flavor.SignedFlavor
	anchors      *anchors.TrustAnchors
}

func NewFlavorTrusted(sf *flavor.SignedFlavor, a *anchors.TrustAnchors, markers ...Marker) *FlavorTrusted {
	return &FlavorTrusted{
		base:         base{RuleMarkers: markers},
		FlavorId:     sf.Flavor.Meta.ID,
		signedFlavor: sf,
		anchors:      a,
	}
}

func (r *FlavorTrusted) Name() string {
	return FlavorTrustedName
}

func (r *FlavorTrusted) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)
	result.SetFlavorId(r.FlavorId)
	id := r.FlavorId.String()

	if r.signedFlavor == nil || r.signedFlavor.Signature == "" {
		result.fault(flavorSignatureMissing(id))
		return result
	}

	cert, err := r.anchors.FlavorSigningCert()
	if err != nil {
		log.Debugf("Flavor signing certificate not trusted: %v", err)
		result.fault(flavorSignatureNotTrusted(id, err))
		return result
	}

	err = r.signedFlavor.VerifySignature(cert)
	switch {
	case err == nil:
		log.Tracef("Verified signature of flavor %v", id)
	case errors.Is(err, flavor.ErrSignatureInvalid):
		result.fault(flavorSignatureNotTrusted(id, err))
	default:
		result.fault(flavorSignatureVerificationFailed(id, err))
	}

	return result
}

func (r *FlavorTrusted) Equal(other Rule) bool {
	o, ok := other.(*FlavorTrusted)
	return ok && r.sameMarkers(o) && r.FlavorId == o.FlavorId && r.signedFlavor == o.signedFlavor
}

// DefaultTrusted always passes
type DefaultTrusted struct {
	base
}

func NewDefaultTrusted(markers ...Marker) *DefaultTrusted {
	return &DefaultTrusted{base: base{RuleMarkers: markers}}
}

func (r *DefaultTrusted) Name() string {
	return DefaultTrustedName
}

func (r *DefaultTrusted) Apply(m *hostmanifest.HostManifest) *RuleResult {
	return newResult(r)
}

func (r *DefaultTrusted) Equal(other Rule) bool {
	o, ok := other.(*DefaultTrusted)
	return ok && r.sameMarkers(o)
}
