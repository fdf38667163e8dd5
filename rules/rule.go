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

// Package rules contains the verification rules which are applied to a
// host manifest. Rules are immutable and can be applied to any number of
// manifests, failures are reported as faults within the result
package rules

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "rules")

// Rule is a single check of a host manifest
type Rule interface {
	// Name is the discriminant used when serializing rules
	Name() string
	Markers() []Marker
	Apply(m *hostmanifest.HostManifest) *RuleResult
	// Equal compares rules by value
	Equal(other Rule) bool
}

// PcrRule is implemented by rules bound to one expected PCR
type PcrRule interface {
	Rule
	ExpectedPcr() *hostmanifest.Pcr
}

type base struct {
	RuleMarkers []Marker `json:"markers" cbor:"99,keyasint"`
}

func (b *base) Markers() []Marker {
	return b.RuleMarkers
}

func (b *base) sameMarkers(other Rule) bool {
	return slices.Equal(b.RuleMarkers, other.Markers())
}

// RuleResult is the outcome of applying one rule. The result is trusted
// if it does not contain any faults
type RuleResult struct {
	Rule     Rule       `json:"rule" cbor:"0,keyasint"`
	RuleName string     `json:"rule_name" cbor:"1,keyasint"`
	Faults   []Fault    `json:"faults,omitempty" cbor:"2,keyasint,omitempty"`
	FlavorId *uuid.UUID `json:"flavor_id,omitempty" cbor:"3,keyasint,omitempty"`
}

func newResult(r Rule) *RuleResult {
	return &RuleResult{
		Rule:     r,
		RuleName: r.Name(),
	}
}

func (r *RuleResult) fault(f Fault) {
	log.Tracef("%v: %v", r.RuleName, f.Description)
	r.Faults = append(r.Faults, f)
}

// Trusted returns true if the rule passed without faults
func (r *RuleResult) Trusted() bool {
	return len(r.Faults) == 0
}

// SetFlavorId associates the result with a flavor
func (r *RuleResult) SetFlavorId(id uuid.UUID) {
	r.FlavorId = &id
}

// Markers returns the markers of the rule or nil
func (r *RuleResult) Markers() []Marker {
	if r.Rule == nil {
		return nil
	}
	return r.Rule.Markers()
}

// HasMarker returns true if the rule of the result carries the marker
func (r *RuleResult) HasMarker(m Marker) bool {
	return slices.Contains(r.Markers(), m)
}

type ruleResultJson struct {
	Rule     json.RawMessage `json:"rule"`
	RuleName string          `json:"rule_name"`
	Faults   []Fault         `json:"faults,omitempty"`
	FlavorId *uuid.UUID      `json:"flavor_id,omitempty"`
	Trusted  bool            `json:"trusted"`
}

func (r *RuleResult) MarshalJSON() ([]byte, error) {
	rule, err := json.Marshal(r.Rule)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule %v: %w", r.RuleName, err)
	}
	return json.Marshal(ruleResultJson{
		Rule:     rule,
		RuleName: r.RuleName,
		Faults:   r.Faults,
		FlavorId: r.FlavorId,
		Trusted:  r.Trusted(),
	})
}

func (r *RuleResult) UnmarshalJSON(data []byte) error {
	var raw ruleResultJson
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal rule result: %w", err)
	}
	rule, err := New(raw.RuleName)
	if err != nil {
		return err
	}
	if len(raw.Rule) > 0 {
		if err := json.Unmarshal(raw.Rule, rule); err != nil {
			return fmt.Errorf("failed to unmarshal rule %v: %w", raw.RuleName, err)
		}
	}
	r.Rule = rule
	r.RuleName = raw.RuleName
	r.Faults = raw.Faults
	r.FlavorId = raw.FlavorId
	return nil
}

type ruleResultCbor struct {
	Rule     cbor.RawMessage `cbor:"0,keyasint"`
	RuleName string          `cbor:"1,keyasint"`
	Faults   []Fault         `cbor:"2,keyasint,omitempty"`
	FlavorId *uuid.UUID      `cbor:"3,keyasint,omitempty"`
	Trusted  bool            `cbor:"4,keyasint"`
}

func (r *RuleResult) MarshalCBOR() ([]byte, error) {
	rule, err := cbor.Marshal(r.Rule)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule %v: %w", r.RuleName, err)
	}
	return cbor.Marshal(ruleResultCbor{
		Rule:     rule,
		RuleName: r.RuleName,
		Faults:   r.Faults,
		FlavorId: r.FlavorId,
		Trusted:  r.Trusted(),
	})
}

func (r *RuleResult) UnmarshalCBOR(data []byte) error {
	var raw ruleResultCbor
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal rule result: %w", err)
	}
	rule, err := New(raw.RuleName)
	if err != nil {
		return err
	}
	if len(raw.Rule) > 0 {
		if err := cbor.Unmarshal(raw.Rule, rule); err != nil {
			return fmt.Errorf("failed to unmarshal rule %v: %w", raw.RuleName, err)
		}
	}
	r.Rule = rule
	r.RuleName = raw.RuleName
	r.Faults = raw.Faults
	r.FlavorId = raw.FlavorId
	return nil
}

var registry = map[string]func() Rule{
	PcrMatchesConstantName:          func() Rule { return &PcrMatchesConstant{} },
	PcrEventLogIntegrityName:        func() Rule { return &PcrEventLogIntegrity{} },
	Pcr15EventLogIntegrityName:      func() Rule { return &Pcr15EventLogIntegrity{} },
	PcrEventLogIncludesName:         func() Rule { return &PcrEventLogIncludes{} },
	PcrEventLogEqualsName:           func() Rule { return &PcrEventLogEquals{} },
	PcrEventLogEqualsExcludingName:  func() Rule { return &PcrEventLogEqualsExcluding{} },
	AikCertificateTrustedName:       func() Rule { return &AikCertificateTrusted{} },
	TagCertificateTrustedName:       func() Rule { return &TagCertificateTrusted{} },
	AssetTagMatchesName:             func() Rule { return &AssetTagMatches{} },
	FlavorTrustedName:               func() Rule { return &FlavorTrusted{} },
	XmlMeasurementsDigestEqualsName: func() Rule { return &XmlMeasurementsDigestEquals{} },
	XmlMeasurementLogEqualsName:     func() Rule { return &XmlMeasurementLogEquals{} },
	XmlMeasurementLogIntegrityName:  func() Rule { return &XmlMeasurementLogIntegrity{} },
	DefaultTrustedName:              func() Rule { return &DefaultTrusted{} },
}

// New returns an empty rule for the given name which can be used as
// target for deserialization. Rules decoded this way do not carry trust
// anchors and are meant for inspecting reports only
func New(name string) (Rule, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown rule %q", name)
	}
	return f(), nil
}
