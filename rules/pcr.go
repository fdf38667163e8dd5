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
	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/google/uuid"
)

const (
	PcrMatchesConstantName     = "PcrMatchesConstant"
	PcrEventLogIntegrityName   = "PcrEventLogIntegrity"
	Pcr15EventLogIntegrityName = "Pcr15EventLogIntegrity"

	Pcr15 = 15
)

// PcrMatchesConstant requires the host PCR to be equal to the expected PCR
type PcrMatchesConstant struct {
	base
	Expected hostmanifest.Pcr `json:"expected_pcr" cbor:"0,keyasint"`
}

func NewPcrMatchesConstant(expected hostmanifest.Pcr, markers ...Marker) *PcrMatchesConstant {
	return &PcrMatchesConstant{
		base:     base{RuleMarkers: markers},
		Expected: expected,
	}
}

func (r *PcrMatchesConstant) Name() string {
	return PcrMatchesConstantName
}

func (r *PcrMatchesConstant) ExpectedPcr() *hostmanifest.Pcr {
	return &r.Expected
}

func (r *PcrMatchesConstant) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)

	if m.PcrManifest == nil {
		result.fault(pcrManifestMissing())
		return result
	}

	actual := m.PcrManifest.Get(r.Expected.Bank, r.Expected.Index)
	if actual == nil {
		result.fault(pcrValueMissing(r.Expected.Index))
		return result
	}

	if !r.Expected.Equal(actual.Pcr) {
		result.fault(pcrValueMismatch(r.Expected.Bank, r.Expected.Index, r.Expected.Value, actual.Value))
	}

	return result
}

func (r *PcrMatchesConstant) Equal(other Rule) bool {
	o, ok := other.(*PcrMatchesConstant)
	return ok && r.sameMarkers(o) && r.Expected.Equal(o.Expected)
}

// PcrEventLogIntegrity requires the host PCR value to be the result of
// replaying its event log
type PcrEventLogIntegrity struct {
	base
	Expected hostmanifest.Pcr `json:"expected_pcr" cbor:"0,keyasint"`
}

func NewPcrEventLogIntegrity(expected hostmanifest.Pcr, markers ...Marker) *PcrEventLogIntegrity {
	return &PcrEventLogIntegrity{
		base:     base{RuleMarkers: markers},
		Expected: expected,
	}
}

func (r *PcrEventLogIntegrity) Name() string {
	return PcrEventLogIntegrityName
}

func (r *PcrEventLogIntegrity) ExpectedPcr() *hostmanifest.Pcr {
	return &r.Expected
}

func (r *PcrEventLogIntegrity) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)
	checkIntegrity(result, m, r.Expected.Bank, r.Expected.Index)
	return result
}

// Equal deliberately ignores the expected PCR value, so that a policy holds
// only one integrity rule per PCR. Trust reports still keep results of such
// rules apart if their expected values differ
func (r *PcrEventLogIntegrity) Equal(other Rule) bool {
	o, ok := other.(*PcrEventLogIntegrity)
	return ok && r.sameMarkers(o) &&
		r.Expected.Bank == o.Expected.Bank && r.Expected.Index == o.Expected.Index
}

func checkIntegrity(result *RuleResult, m *hostmanifest.HostManifest, bank digest.Algorithm, index int) {
	if m.PcrManifest == nil {
		result.fault(pcrManifestMissing())
		return
	}

	actual := m.PcrManifest.Get(bank, index)
	if actual == nil {
		result.fault(pcrValueMissing(index))
		return
	}

	if actual.EventLog == nil {
		result.fault(pcrEventLogMissing(&index))
		return
	}

	replayed, err := actual.EventLog.Replay(bank)
	if err != nil {
		log.Debugf("Failed to replay event log of PCR %v (%v): %v", index, bank, err)
		result.fault(pcrEventLogInvalid(index))
		return
	}

	log.Tracef("PCR %v (%v): comparing %v with replayed %v", index, bank, actual.Value, replayed)

	if !replayed.Equal(digest.Digest{Algorithm: bank, Value: actual.Value}) {
		result.fault(pcrEventLogInvalid(index))
	}
}

// Pcr15EventLogIntegrity checks the integrity of the PCR15 event log which
// holds the software measurements. The bank is selected by the TPM version of
// the host, the rule is bound to the host PCR when applied
type Pcr15EventLogIntegrity struct {
	base
	FlavorId uuid.UUID         `json:"flavor_id" cbor:"0,keyasint"`
	Expected *hostmanifest.Pcr `json:"expected_pcr,omitempty" cbor:"1,keyasint,omitempty"`
}

func NewPcr15EventLogIntegrity(flavorId uuid.UUID, markers ...Marker) *Pcr15EventLogIntegrity {
	return &Pcr15EventLogIntegrity{
		base:     base{RuleMarkers: markers},
		FlavorId: flavorId,
	}
}

func (r *Pcr15EventLogIntegrity) Name() string {
	return Pcr15EventLogIntegrityName
}

func (r *Pcr15EventLogIntegrity) ExpectedPcr() *hostmanifest.Pcr {
	return r.Expected
}

func (r *Pcr15EventLogIntegrity) Apply(m *hostmanifest.HostManifest) *RuleResult {
	bank := digest.SHA1
	if m.TpmVersion() == "2.0" {
		bank = digest.SHA256
	}

	bound := &Pcr15EventLogIntegrity{
		base:     base{RuleMarkers: r.RuleMarkers},
		FlavorId: r.FlavorId,
	}
	if e := m.PcrManifest.Get(bank, Pcr15); e != nil {
		p := e.Pcr
		bound.Expected = &p
	}

	result := newResult(bound)
	checkIntegrity(result, m, bank, Pcr15)
	result.SetFlavorId(r.FlavorId)
	return result
}

func (r *Pcr15EventLogIntegrity) Equal(other Rule) bool {
	o, ok := other.(*Pcr15EventLogIntegrity)
	return ok && r.sameMarkers(o) && r.FlavorId == o.FlavorId
}
