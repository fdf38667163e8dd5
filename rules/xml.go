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
	"crypto/sha1"
	"regexp"
	"strings"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/google/uuid"
)

const (
	XmlMeasurementsDigestEqualsName = "XmlMeasurementsDigestEquals"
	XmlMeasurementLogEqualsName     = "XmlMeasurementLogEquals"
	XmlMeasurementLogIntegrityName  = "XmlMeasurementLogIntegrity"
)

var uuidRegex = regexp.MustCompile(`[[:xdigit:]]{8}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{12}`)

// XmlMeasurementsDigestEquals requires all XML measurement logs of the host
// to use the digest algorithm of the software flavor
type XmlMeasurementsDigestEquals struct {
	base
	FlavorId        uuid.UUID        `json:"flavor_id" cbor:"0,keyasint"`
	DigestAlgorithm digest.Algorithm `json:"digest_algorithm" cbor:"1,keyasint"`
}

func NewXmlMeasurementsDigestEquals(flavorId uuid.UUID, alg digest.Algorithm, markers ...Marker) *XmlMeasurementsDigestEquals {
	return &XmlMeasurementsDigestEquals{
		base:            base{RuleMarkers: markers},
		FlavorId:        flavorId,
		DigestAlgorithm: alg,
	}
}

func (r *XmlMeasurementsDigestEquals) Name() string {
	return XmlMeasurementsDigestEqualsName
}

func (r *XmlMeasurementsDigestEquals) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)
	result.SetFlavorId(r.FlavorId)
	id := r.FlavorId.String()

	if len(m.MeasurementXmls) == 0 {
		result.fault(xmlMeasurementLogMissing(id))
		return result
	}

	for _, x := range m.MeasurementXmls {
		ml, err := hostmanifest.ParseMeasurementLog(x)
		if err != nil {
			log.Debugf("Failed to parse XML measurement log: %v", err)
			result.fault(xmlMeasurementLogInvalid(err))
			return result
		}
		alg, err := digest.ParseAlgorithm(ml.DigestAlg)
		if err != nil || alg != r.DigestAlgorithm {
			result.fault(xmlMeasurementsDigestValueMismatch(id, string(r.DigestAlgorithm), ml.Uuid, ml.DigestAlg))
		}
	}

	return result
}

func (r *XmlMeasurementsDigestEquals) Equal(other Rule) bool {
	o, ok := other.(*XmlMeasurementsDigestEquals)
	return ok && r.sameMarkers(o) && r.FlavorId == o.FlavorId && r.DigestAlgorithm == o.DigestAlgorithm
}

// XmlMeasurementLogEquals requires the XML measurement log of the flavor to
// contain exactly the expected measurements. Entries whose path is present
// on both sides with different values are reported as modified
type XmlMeasurementLogEquals struct {
	base
	FlavorId    uuid.UUID                         `json:"flavor_id" cbor:"0,keyasint"`
	FlavorLabel string                            `json:"flavor_label" cbor:"1,keyasint"`
	Expected    hostmanifest.SoftwareMeasurements `json:"expected_measurements" cbor:"2,keyasint"`
}

func NewXmlMeasurementLogEquals(flavorId uuid.UUID, label string, expected hostmanifest.SoftwareMeasurements, markers ...Marker) *XmlMeasurementLogEquals {
	return &XmlMeasurementLogEquals{
		base:        base{RuleMarkers: markers},
		FlavorId:    flavorId,
		FlavorLabel: label,
		Expected:    expected,
	}
}

func (r *XmlMeasurementLogEquals) Name() string {
	return XmlMeasurementLogEqualsName
}

func (r *XmlMeasurementLogEquals) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)
	result.SetFlavorId(r.FlavorId)
	id := r.FlavorId.String()

	ml := measurementLog(result, m, r.FlavorId, r.FlavorLabel)
	if ml == nil {
		return result
	}
	if len(ml.Measurements) == 0 {
		result.fault(xmlMeasurementLogMissing(id))
		return result
	}

	unexpected := ml.Measurements.Subtract(r.Expected)
	missing := r.Expected.Subtract(ml.Measurements)

	unexpected, missing, modified := splitModified(unexpected, missing)
	if len(modified) > 0 {
		log.Debugf("XML measurement log of flavor %v contains %v modified entries", id, len(modified))
		result.fault(xmlMeasurementLogValueMismatchEntries(id, modified))
	}
	if len(unexpected) > 0 {
		log.Debugf("XML measurement log of flavor %v contains %v unexpected entries", id, len(unexpected))
		result.fault(xmlMeasurementLogContainsUnexpectedEntries(id, unexpected))
	}
	if len(missing) > 0 {
		log.Debugf("XML measurement log of flavor %v is missing %v entries", id, len(missing))
		result.fault(xmlMeasurementLogMissingExpectedEntries(id, missing))
	}

	return result
}

// splitModified moves all pairs of unexpected and missing entries with the
// same path (case-insensitive) into the list of modified entries. The
// expected entry is reported as modified
func splitModified(unexpected, missing hostmanifest.SoftwareMeasurements) (hostmanifest.SoftwareMeasurements, hostmanifest.SoftwareMeasurements, hostmanifest.SoftwareMeasurements) {
	removedUnexpected := make([]bool, len(unexpected))
	removedMissing := make([]bool, len(missing))
	modified := hostmanifest.SoftwareMeasurements{}

	for i, u := range unexpected {
		for j, e := range missing {
			if !strings.EqualFold(u.Path, e.Path) {
				continue
			}
			if !removedMissing[j] {
				modified = append(modified, e)
			}
			removedUnexpected[i] = true
			removedMissing[j] = true
		}
	}

	remainingUnexpected := hostmanifest.SoftwareMeasurements{}
	for i, u := range unexpected {
		if !removedUnexpected[i] {
			remainingUnexpected = append(remainingUnexpected, u)
		}
	}
	remainingMissing := hostmanifest.SoftwareMeasurements{}
	for j, e := range missing {
		if !removedMissing[j] {
			remainingMissing = append(remainingMissing, e)
		}
	}

	return remainingUnexpected, remainingMissing, modified
}

func (r *XmlMeasurementLogEquals) Equal(other Rule) bool {
	o, ok := other.(*XmlMeasurementLogEquals)
	if !ok || !r.sameMarkers(o) || r.FlavorId != o.FlavorId || r.FlavorLabel != o.FlavorLabel ||
		len(r.Expected) != len(o.Expected) {
		return false
	}
	for i := range r.Expected {
		a, b := r.Expected[i], o.Expected[i]
		if a.Type != b.Type || a.Path != b.Path || !bytes.Equal(a.Value, b.Value) ||
			a.Include != b.Include || a.Exclude != b.Exclude {
			return false
		}
	}
	return true
}

// XmlMeasurementLogIntegrity requires the cumulative hash of the software
// flavor to match the PCR15 event of the flavor, the cumulative hash of the
// XML measurement log and the replayed XML measurement log
type XmlMeasurementLogIntegrity struct {
	base
	FlavorId    uuid.UUID      `json:"flavor_id" cbor:"0,keyasint"`
	FlavorLabel string         `json:"flavor_label" cbor:"1,keyasint"`
	Expected    digest.HexByte `json:"expected_value" cbor:"2,keyasint"`
}

func NewXmlMeasurementLogIntegrity(flavorId uuid.UUID, label string, cumulativeHash []byte, markers ...Marker) *XmlMeasurementLogIntegrity {
	return &XmlMeasurementLogIntegrity{
		base:        base{RuleMarkers: markers},
		FlavorId:    flavorId,
		FlavorLabel: label,
		Expected:    cumulativeHash,
	}
}

func (r *XmlMeasurementLogIntegrity) Name() string {
	return XmlMeasurementLogIntegrityName
}

func (r *XmlMeasurementLogIntegrity) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)
	result.SetFlavorId(r.FlavorId)

	ml := measurementLog(result, m, r.FlavorId, r.FlavorLabel)
	if ml == nil || len(ml.Measurements) == 0 {
		return result
	}

	values := [][]byte{}
	for _, e := range ml.Measurements {
		if len(e.Value) > 0 {
			values = append(values, e.Value)
		}
	}
	replayed, err := digest.Fold(digest.SHA384, values...)
	if err != nil {
		result.fault(xmlMeasurementLogInvalid(err))
		return result
	}

	bank := digest.SHA1
	if m.TpmVersion() == "2.0" {
		bank = digest.SHA384
	}
	events, ok := m.PcrManifest.EventLog(bank, Pcr15)
	if !ok {
		index := Pcr15
		result.fault(pcrEventLogMissing(&index))
		return result
	}

	expectedEvent := []byte(r.Expected)
	if m.TpmVersion() == "1.2" {
		h := sha1.Sum(r.Expected)
		expectedEvent = h[:]
	}
	event := r.findEvent(events)
	if event == nil || !bytes.Equal(expectedEvent, event.Value) {
		log.Debugf("Cumulative hash of flavor %v does not match PCR15 event log", r.FlavorId)
		actual := ml.CumulativeHash
		if event != nil {
			actual = event.Value
		}
		result.fault(xmlMeasurementValueMismatch(digest.SHA384, r.Expected, actual))
		return result
	}

	if !bytes.Equal(r.Expected, ml.CumulativeHash) {
		log.Debugf("Cumulative hash of flavor %v does not match XML measurement log", r.FlavorId)
		result.fault(xmlMeasurementValueMismatch(digest.SHA384, r.Expected, ml.CumulativeHash))
		return result
	}

	if !bytes.Equal(r.Expected, replayed.Value) {
		log.Debugf("Cumulative hash of flavor %v does not match replayed XML measurement log", r.FlavorId)
		result.fault(xmlMeasurementValueMismatch(digest.SHA384, r.Expected, replayed.Value))
	}

	return result
}

// findEvent returns the PCR15 event of the flavor. Events are matched by a
// flavor id within the label or, for default flavors, by the label prefix
func (r *XmlMeasurementLogIntegrity) findEvent(events hostmanifest.EventLog) *hostmanifest.Measurement {
	isDefault := strings.Contains(r.FlavorLabel, hostmanifest.DefaultApplicationFlavorPrefix) ||
		strings.Contains(r.FlavorLabel, hostmanifest.DefaultWorkloadFlavorPrefix)

	for i, e := range events {
		for _, id := range uuidRegex.FindAllString(e.Label, -1) {
			if strings.EqualFold(id, r.FlavorId.String()) {
				return &events[i]
			}
		}
		if isDefault && strings.HasPrefix(e.Label, r.FlavorLabel) {
			return &events[i]
		}
	}
	return nil
}

func (r *XmlMeasurementLogIntegrity) Equal(other Rule) bool {
	o, ok := other.(*XmlMeasurementLogIntegrity)
	return ok && r.sameMarkers(o) && r.FlavorId == o.FlavorId && r.FlavorLabel == o.FlavorLabel &&
		bytes.Equal(r.Expected, o.Expected)
}

// measurementLog returns the XML measurement log of the flavor. If the log is
// not available or empty, the matching fault is added and nil returned
func measurementLog(result *RuleResult, m *hostmanifest.HostManifest, flavorId uuid.UUID, label string) *hostmanifest.MeasurementLog {
	id := flavorId.String()

	if len(m.MeasurementXmls) == 0 {
		result.fault(xmlMeasurementLogMissing(id))
		return nil
	}

	ml, err := m.MeasurementLogFor(id, label)
	if err != nil {
		log.Debugf("Failed to parse XML measurement logs: %v", err)
		result.fault(xmlMeasurementLogInvalid(err))
		return nil
	}
	if ml == nil {
		result.fault(xmlMeasurementLogMissing(id))
		return nil
	}

	return ml
}
