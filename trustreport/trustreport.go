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

// Package trustreport contains the result of verifying a host manifest
// against a flavor, together with the serializers for storing and signing
// trust reports
package trustreport

import (
	"encoding/json"
	"maps"

	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/rules"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "trustreport")

// TrustReport holds the results of all rules of a policy applied to a host
// manifest. It is trusted if it holds at least one result and all results
// are trusted
type TrustReport struct {
	HostManifest *hostmanifest.HostManifest `json:"host_manifest,omitempty" cbor:"0,keyasint,omitempty"`
	PolicyName   string                     `json:"policy_name" cbor:"1,keyasint"`
	Results      []*rules.RuleResult        `json:"results" cbor:"2,keyasint"`
}

func New(m *hostmanifest.HostManifest, policyName string) *TrustReport {
	return &TrustReport{
		HostManifest: m,
		PolicyName:   policyName,
		Results:      []*rules.RuleResult{},
	}
}

// AddResult adds the result unless an equal result is already present for
// the first marker of its rule. Results of PCR rules are kept if their
// expected PCRs differ
func (tr *TrustReport) AddResult(r *rules.RuleResult) {
	if r == nil {
		return
	}
	if tr.exists(r) {
		log.Tracef("Skipping duplicate result of rule %v", r.RuleName)
		return
	}
	tr.Results = append(tr.Results, r)
}

func (tr *TrustReport) exists(r *rules.RuleResult) bool {
	markers := r.Markers()
	if len(markers) == 0 || r.Rule == nil {
		return false
	}

	for _, existing := range tr.ResultsForMarker(markers[0]) {
		if !r.Rule.Equal(existing.Rule) {
			continue
		}
		if pr, ok := r.Rule.(rules.PcrRule); ok {
			other, _ := existing.Rule.(rules.PcrRule)
			if !sameExpectedPcr(pr, other) {
				continue
			}
		}
		return true
	}
	return false
}

func sameExpectedPcr(a, b rules.PcrRule) bool {
	if a == nil || b == nil {
		return false
	}
	pa, pb := a.ExpectedPcr(), b.ExpectedPcr()
	if pa == nil || pb == nil {
		return false
	}
	return pa.Equal(*pb)
}

// Merge adds all results of the other report
func (tr *TrustReport) Merge(other *TrustReport) {
	if other == nil {
		return
	}
	for _, r := range other.Results {
		tr.AddResult(r)
	}
}

// Trusted returns true if the report holds results and all of them are trusted
func (tr *TrustReport) Trusted() bool {
	return trusted(tr.Results)
}

// TrustedForMarker returns true if the report holds results for the marker
// and all of them are trusted
func (tr *TrustReport) TrustedForMarker(m rules.Marker) bool {
	return trusted(tr.ResultsForMarker(m))
}

func trusted(results []*rules.RuleResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Trusted() {
			return false
		}
	}
	return true
}

// ResultsForMarker returns all results whose rule carries the marker
func (tr *TrustReport) ResultsForMarker(m rules.Marker) []*rules.RuleResult {
	results := []*rules.RuleResult{}
	for _, r := range tr.Results {
		if r.HasMarker(m) {
			results = append(results, r)
		}
	}
	return results
}

// ResultByRuleName returns the first result of the rule with the given
// name or nil
func (tr *TrustReport) ResultByRuleName(name string) *rules.RuleResult {
	for _, r := range tr.Results {
		if r.RuleName == name {
			return r
		}
	}
	return nil
}

// FaultCount returns the number of faults of all results
func (tr *TrustReport) FaultCount() int {
	n := 0
	for _, r := range tr.Results {
		n += len(r.Faults)
	}
	return n
}

// Tags returns the asset tags the host was verified against
func (tr *TrustReport) Tags() map[string]string {
	tags := map[string]string{}
	for _, r := range tr.ResultsForMarker(rules.MarkerAssetTag) {
		if rule, ok := r.Rule.(*rules.AssetTagMatches); ok {
			tags = maps.Clone(rule.Tags)
		}
	}
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

type trustReportJson struct {
	HostManifest *hostmanifest.HostManifest `json:"host_manifest,omitempty"`
	PolicyName   string                     `json:"policy_name"`
	Results      []*rules.RuleResult        `json:"results"`
	Trusted      bool                       `json:"trusted"`
	FaultCount   int                        `json:"fault_count"`
}

// MarshalJSON additionally serializes the overall verdict
func (tr *TrustReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(trustReportJson{
		HostManifest: tr.HostManifest,
		PolicyName:   tr.PolicyName,
		Results:      tr.Results,
		Trusted:      tr.Trusted(),
		FaultCount:   tr.FaultCount(),
	})
}

func (tr *TrustReport) UnmarshalJSON(data []byte) error {
	var raw trustReportJson
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tr.HostManifest = raw.HostManifest
	tr.PolicyName = raw.PolicyName
	tr.Results = raw.Results
	return nil
}
