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
	"slices"
	"strings"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
)

const (
	PcrEventLogIncludesName        = "PcrEventLogIncludes"
	PcrEventLogEqualsName          = "PcrEventLogEquals"
	PcrEventLogEqualsExcludingName = "PcrEventLogEqualsExcluding"
)

// IgnoredEventLabel is the label of events which are injected by the
// platform and never reported as unexpected
const IgnoredEventLabel = "0x4fe"

// HostSpecificModules are the component names of measurements which differ
// legitimately between hosts of the same flavor
var HostSpecificModules = []string{
	"commandLine.",
	"LCP_CONTROL_HASH",
	"initrd",
	"vmlinuz",
	"componentName.imgdb.tgz",
	"componentName.onetime.tgz",
}

// PcrEventLogIncludes requires the host event log to contain all expected
// measurements. Additional measurements are accepted
type PcrEventLogIncludes struct {
	base
	Bank     digest.Algorithm      `json:"pcr_bank" cbor:"0,keyasint"`
	Index    int                   `json:"pcr_index" cbor:"1,keyasint"`
	Expected hostmanifest.EventLog `json:"expected" cbor:"2,keyasint"`
}

func NewPcrEventLogIncludes(bank digest.Algorithm, index int, expected hostmanifest.EventLog, markers ...Marker) *PcrEventLogIncludes {
	return &PcrEventLogIncludes{
		base:     base{RuleMarkers: markers},
		Bank:     bank,
		Index:    index,
		Expected: expected.Unique(),
	}
}

func (r *PcrEventLogIncludes) Name() string {
	return PcrEventLogIncludesName
}

func (r *PcrEventLogIncludes) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)

	if m.PcrManifest == nil {
		result.fault(pcrEventLogMissing(nil))
		return result
	}

	actual, ok := m.PcrManifest.EventLog(r.Bank, r.Index)
	if !ok || len(actual) == 0 {
		result.fault(pcrEventLogMissing(&r.Index))
		return result
	}

	missing := r.Expected.Subtract(actual).Unique()
	if len(missing) > 0 {
		log.Debugf("PCR %v (%v) is missing %v expected entries", r.Index, r.Bank, len(missing))
		result.fault(pcrEventLogMissingExpectedEntries(r.Index, missing))
	}

	return result
}

func (r *PcrEventLogIncludes) Equal(other Rule) bool {
	o, ok := other.(*PcrEventLogIncludes)
	return ok && r.sameMarkers(o) && r.Bank == o.Bank && r.Index == o.Index &&
		sameValues(r.Expected, o.Expected)
}

// PcrEventLogEquals requires the host event log to contain exactly the
// expected measurements, compared by digest value
type PcrEventLogEquals struct {
	base
	Bank     digest.Algorithm      `json:"pcr_bank" cbor:"0,keyasint"`
	Index    int                   `json:"pcr_index" cbor:"1,keyasint"`
	Expected hostmanifest.EventLog `json:"expected" cbor:"2,keyasint"`
}

func NewPcrEventLogEquals(bank digest.Algorithm, index int, expected hostmanifest.EventLog, markers ...Marker) *PcrEventLogEquals {
	return &PcrEventLogEquals{
		base:     base{RuleMarkers: markers},
		Bank:     bank,
		Index:    index,
		Expected: expected,
	}
}

func (r *PcrEventLogEquals) Name() string {
	return PcrEventLogEqualsName
}

// ExpectedPcr returns nil, event log rules are not bound to a PCR value
func (r *PcrEventLogEquals) ExpectedPcr() *hostmanifest.Pcr {
	return nil
}

func (r *PcrEventLogEquals) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)
	if m.PcrManifest == nil {
		result.fault(pcrEventLogMissing(nil))
		return result
	}
	actual, _ := m.PcrManifest.EventLog(r.Bank, r.Index)
	compareEventLogs(result, r.Index, r.Expected, actual)
	return result
}

func (r *PcrEventLogEquals) Equal(other Rule) bool {
	o, ok := other.(*PcrEventLogEquals)
	return ok && r.sameMarkers(o) && r.Bank == o.Bank && r.Index == o.Index &&
		r.Expected.Equal(o.Expected)
}

// PcrEventLogEqualsExcluding works like PcrEventLogEquals but first removes
// host specific and dynamic modules from the host event log
type PcrEventLogEqualsExcluding struct {
	base
	Bank                       digest.Algorithm      `json:"pcr_bank" cbor:"0,keyasint"`
	Index                      int                   `json:"pcr_index" cbor:"1,keyasint"`
	Expected                   hostmanifest.EventLog `json:"expected" cbor:"2,keyasint"`
	ExcludeHostSpecificModules bool                  `json:"exclude_host_specific_modules" cbor:"3,keyasint"`
}

func NewPcrEventLogEqualsExcluding(bank digest.Algorithm, index int, expected hostmanifest.EventLog, markers ...Marker) *PcrEventLogEqualsExcluding {
	return &PcrEventLogEqualsExcluding{
		base:                       base{RuleMarkers: markers},
		Bank:                       bank,
		Index:                      index,
		Expected:                   expected,
		ExcludeHostSpecificModules: true,
	}
}

func (r *PcrEventLogEqualsExcluding) Name() string {
	return PcrEventLogEqualsExcludingName
}

func (r *PcrEventLogEqualsExcluding) ExpectedPcr() *hostmanifest.Pcr {
	return nil
}

func (r *PcrEventLogEqualsExcluding) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)
	if m.PcrManifest == nil {
		result.fault(pcrEventLogMissing(nil))
		return result
	}
	actual, _ := m.PcrManifest.EventLog(r.Bank, r.Index)
	compareEventLogs(result, r.Index, r.Expected, actual.Filter(r.keep))
	return result
}

func (r *PcrEventLogEqualsExcluding) keep(e hostmanifest.Measurement) bool {
	name, hasName := e.Info[hostmanifest.InfoComponentName]
	if r.ExcludeHostSpecificModules && hasName && slices.Contains(HostSpecificModules, name) {
		log.Tracef("Skipping host specific module %v", name)
		return false
	}
	pkg, hasPkg := e.Info[hostmanifest.InfoPackageName]
	vendor, hasVendor := e.Info[hostmanifest.InfoPackageVendor]
	if hasPkg && hasVendor && pkg == "" && vendor == "" {
		log.Tracef("Skipping dynamic module %v", name)
		return false
	}
	return true
}

func (r *PcrEventLogEqualsExcluding) Equal(other Rule) bool {
	o, ok := other.(*PcrEventLogEqualsExcluding)
	return ok && r.sameMarkers(o) && r.Bank == o.Bank && r.Index == o.Index &&
		r.ExcludeHostSpecificModules == o.ExcludeHostSpecificModules &&
		r.Expected.Equal(o.Expected)
}

func compareEventLogs(result *RuleResult, index int, expected, actual hostmanifest.EventLog) {
	if len(actual) == 0 {
		result.fault(pcrEventLogMissing(&index))
		return
	}

	ignored := actual.Filter(func(e hostmanifest.Measurement) bool {
		return strings.EqualFold(e.Label, IgnoredEventLabel)
	})
	unexpected := actual.Subtract(expected).Subtract(ignored)
	if len(unexpected) > 0 {
		log.Debugf("PCR %v contains %v unexpected entries", index, len(unexpected))
		result.fault(pcrEventLogContainsUnexpectedEntries(index, unexpected))
	}

	missing := expected.Subtract(actual).Unique()
	if len(missing) > 0 {
		log.Debugf("PCR %v is missing %v expected entries", index, len(missing))
		result.fault(pcrEventLogMissingExpectedEntries(index, missing))
	}
}

// sameValues compares two logs as sets of digest values
func sameValues(a, b hostmanifest.EventLog) bool {
	return len(a.Subtract(b)) == 0 && len(b.Subtract(a)) == 0
}
