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

package hostmanifest

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
)

const (
	MeasurementNamespace = "lib:wml:measurements:1.0"

	// Label prefixes of the software flavors created by default
	DefaultFlavorPrefix            = "ISecL_Default"
	DefaultApplicationFlavorPrefix = "ISecL_Default_Application_Flavor_v"
	DefaultWorkloadFlavorPrefix    = "ISecL_Default_Workload_Flavor_v"
)

// Measurement entry types
const (
	DirectoryMeasurementType = "directoryMeasurementType"
	FileMeasurementType      = "fileMeasurementType"
	SymlinkMeasurementType   = "symlinkMeasurementType"
)

// SoftwareMeasurement is a single file, directory or symlink measurement
// of an XML measurement log or a software flavor
type SoftwareMeasurement struct {
	Type    string         `json:"type" cbor:"0,keyasint"`
	Path    string         `json:"Path" cbor:"1,keyasint"`
	Value   digest.HexByte `json:"value" cbor:"2,keyasint"`
	Include string         `json:"Include,omitempty" cbor:"3,keyasint,omitempty"`
	Exclude string         `json:"Exclude,omitempty" cbor:"4,keyasint,omitempty"`
}

// Equal compares software measurements by value only
func (m SoftwareMeasurement) Equal(other SoftwareMeasurement) bool {
	return bytes.Equal(m.Value, other.Value)
}

// SoftwareMeasurements is an ordered list of software measurements
type SoftwareMeasurements []SoftwareMeasurement

func (l SoftwareMeasurements) Contains(m SoftwareMeasurement) bool {
	for _, e := range l {
		if e.Equal(m) {
			return true
		}
	}
	return false
}

// Subtract returns the entries of l whose value is not present in other
func (l SoftwareMeasurements) Subtract(other SoftwareMeasurements) SoftwareMeasurements {
	diff := SoftwareMeasurements{}
	for _, m := range l {
		if !other.Contains(m) {
			diff = append(diff, m)
		}
	}
	return diff
}

// MeasurementLog is a parsed XML software measurement log
type MeasurementLog struct {
	Label          string
	Uuid           string
	DigestAlg      string
	Measurements   SoftwareMeasurements
	CumulativeHash digest.HexByte
}

type xmlMeasurement struct {
	XMLName        xml.Name   `xml:"Measurement"`
	Label          string     `xml:"Label,attr"`
	Uuid           string     `xml:"Uuid,attr"`
	DigestAlg      string     `xml:"DigestAlg,attr"`
	CumulativeHash string     `xml:"CumulativeHash"`
	Entries        []xmlEntry `xml:",any"`
}

type xmlEntry struct {
	XMLName xml.Name
	Path    string `xml:"Path,attr"`
	Include string `xml:"Include,attr"`
	Exclude string `xml:"Exclude,attr"`
	Value   string `xml:",chardata"`
}

var entryTypes = map[string]string{
	"Dir":     DirectoryMeasurementType,
	"File":    FileMeasurementType,
	"Symlink": SymlinkMeasurementType,
}

// ParseMeasurementLog parses an XML measurement log
func ParseMeasurementLog(data string) (*MeasurementLog, error) {
	var x xmlMeasurement
	err := xml.Unmarshal([]byte(data), &x)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal measurement xml: %w", err)
	}

	cumulative, err := hex.DecodeString(strings.TrimSpace(x.CumulativeHash))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cumulative hash: %w", err)
	}

	ml := &MeasurementLog{
		Label:          x.Label,
		Uuid:           x.Uuid,
		DigestAlg:      x.DigestAlg,
		CumulativeHash: cumulative,
		Measurements:   SoftwareMeasurements{},
	}

	for _, e := range x.Entries {
		t, ok := entryTypes[e.XMLName.Local]
		if !ok {
			log.Tracef("Ignoring unknown measurement element %v", e.XMLName.Local)
			continue
		}
		v, err := hex.DecodeString(strings.TrimSpace(e.Value))
		if err != nil {
			return nil, fmt.Errorf("failed to decode value of %v: %w", e.Path, err)
		}
		ml.Measurements = append(ml.Measurements, SoftwareMeasurement{
			Type:    t,
			Path:    e.Path,
			Value:   v,
			Include: e.Include,
			Exclude: e.Exclude,
		})
	}

	return ml, nil
}

// BelongsTo returns true if the log was recorded for the software flavor with
// the specified id and label
func (ml *MeasurementLog) BelongsTo(flavorId, flavorLabel string) bool {
	if strings.EqualFold(ml.Uuid, flavorId) {
		return true
	}
	return strings.HasPrefix(flavorLabel, DefaultFlavorPrefix) && ml.Label == flavorLabel
}

// MeasurementLogFor returns the XML measurement log of the manifest belonging
// to the specified software flavor. It returns nil if no log matches and an
// error if a log cannot be parsed
func (m *HostManifest) MeasurementLogFor(flavorId, flavorLabel string) (*MeasurementLog, error) {
	for _, x := range m.MeasurementXmls {
		ml, err := ParseMeasurementLog(x)
		if err != nil {
			return nil, err
		}
		if ml.BelongsTo(flavorId, flavorLabel) {
			return ml, nil
		}
	}
	return nil, nil
}
