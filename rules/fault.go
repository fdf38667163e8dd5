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
	"fmt"
	"time"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
)

// FaultType is the discriminant of a serialized fault
type FaultType string

const (
	PcrManifestMissing                   FaultType = "PcrManifestMissing"
	PcrValueMissing                      FaultType = "PcrValueMissing"
	PcrValueMismatchSha1                 FaultType = "PcrValueMismatchSha1"
	PcrValueMismatchSha256               FaultType = "PcrValueMismatchSha256"
	PcrValueMismatchSha384               FaultType = "PcrValueMismatchSha384"
	PcrEventLogMissing                   FaultType = "PcrEventLogMissing"
	PcrEventLogInvalid                   FaultType = "PcrEventLogInvalid"
	PcrEventLogContainsUnexpectedEntries FaultType = "PcrEventLogContainsUnexpectedEntries"
	PcrEventLogMissingExpectedEntries    FaultType = "PcrEventLogMissingExpectedEntries"

	AikCertificateMissing     FaultType = "AikCertificateMissing"
	AikCertificateExpired     FaultType = "AikCertificateExpired"
	AikCertificateNotYetValid FaultType = "AikCertificateNotYetValid"
	AikCertificateNotTrusted  FaultType = "AikCertificateNotTrusted"

	TagCertificateMissing     FaultType = "TagCertificateMissing"
	TagCertificateExpired     FaultType = "TagCertificateExpired"
	TagCertificateNotYetValid FaultType = "TagCertificateNotYetValid"
	TagCertificateNotTrusted  FaultType = "TagCertificateNotTrusted"

	AssetTagMissing        FaultType = "AssetTagMissing"
	AssetTagNotProvisioned FaultType = "AssetTagNotProvisioned"
	AssetTagMismatch       FaultType = "AssetTagMismatch"

	FlavorSignatureMissing            FaultType = "FlavorSignatureMissing"
	FlavorSignatureNotTrusted         FaultType = "FlavorSignatureNotTrusted"
	FlavorSignatureVerificationFailed FaultType = "FlavorSignatureVerificationFailed"

	XmlMeasurementLogMissing                   FaultType = "XmlMeasurementLogMissing"
	XmlMeasurementLogInvalid                   FaultType = "XmlMeasurementLogInvalid"
	XmlMeasurementsDigestValueMismatch         FaultType = "XmlMeasurementsDigestValueMismatch"
	XmlMeasurementLogContainsUnexpectedEntries FaultType = "XmlMeasurementLogContainsUnexpectedEntries"
	XmlMeasurementLogMissingExpectedEntries    FaultType = "XmlMeasurementLogMissingExpectedEntries"
	XmlMeasurementLogValueMismatchEntries      FaultType = "XmlMeasurementLogValueMismatchEntries"
	XmlMeasurementValueMismatchSha256          FaultType = "XmlMeasurementValueMismatchSha256"
	XmlMeasurementValueMismatchSha384          FaultType = "XmlMeasurementValueMismatchSha384"
)

// Fault is a structured reason why a rule did not pass. Only the fields
// relevant for the fault type are set
type Fault struct {
	Type        FaultType `json:"fault_name" cbor:"0,keyasint"`
	Description string    `json:"description" cbor:"1,keyasint"`
	Cause       string    `json:"cause,omitempty" cbor:"2,keyasint,omitempty"`

	PcrIndex      *int             `json:"pcr_index,omitempty" cbor:"3,keyasint,omitempty"`
	PcrBank       digest.Algorithm `json:"pcr_bank,omitempty" cbor:"4,keyasint,omitempty"`
	ExpectedValue digest.HexByte   `json:"expected_value,omitempty" cbor:"5,keyasint,omitempty"`
	ActualValue   digest.HexByte   `json:"actual_value,omitempty" cbor:"6,keyasint,omitempty"`

	UnexpectedEntries hostmanifest.EventLog `json:"unexpected_entries,omitempty" cbor:"7,keyasint,omitempty"`
	MissingEntries    hostmanifest.EventLog `json:"missing_entries,omitempty" cbor:"8,keyasint,omitempty"`

	UnexpectedMeasurements hostmanifest.SoftwareMeasurements `json:"unexpected_measurements,omitempty" cbor:"9,keyasint,omitempty"`
	MissingMeasurements    hostmanifest.SoftwareMeasurements `json:"missing_measurements,omitempty" cbor:"10,keyasint,omitempty"`
	MismatchMeasurements   hostmanifest.SoftwareMeasurements `json:"mismatch_measurements,omitempty" cbor:"11,keyasint,omitempty"`

	FlavorId             string `json:"flavor_id,omitempty" cbor:"12,keyasint,omitempty"`
	FlavorDigestAlg      string `json:"flavor_digest_alg,omitempty" cbor:"13,keyasint,omitempty"`
	MeasurementId        string `json:"measurement_id,omitempty" cbor:"14,keyasint,omitempty"`
	MeasurementDigestAlg string `json:"measurement_digest_alg,omitempty" cbor:"15,keyasint,omitempty"`

	Time *time.Time `json:"time,omitempty" cbor:"16,keyasint,omitempty"`
}

func (f Fault) String() string {
	return fmt.Sprintf("%v: %v", f.Type, f.Description)
}

func pcrManifestMissing() Fault {
	return Fault{
		Type:        PcrManifestMissing,
		Description: "Host report does not include a PCR manifest",
	}
}

func pcrValueMissing(index int) Fault {
	return Fault{
		Type:        PcrValueMissing,
		Description: fmt.Sprintf("Host report does not include required PCR %d", index),
		PcrIndex:    &index,
	}
}

func pcrValueMismatch(bank digest.Algorithm, index int, expected, actual []byte) Fault {
	t := PcrValueMismatchSha1
	switch bank {
	case digest.SHA256:
		t = PcrValueMismatchSha256
	case digest.SHA384:
		t = PcrValueMismatchSha384
	}
	return Fault{
		Type: t,
		Description: fmt.Sprintf("Host PCR %d with value %v does not match expected value %v",
			index, digest.HexByte(actual), digest.HexByte(expected)),
		PcrIndex:      &index,
		PcrBank:       bank,
		ExpectedValue: expected,
		ActualValue:   actual,
	}
}

// pcrEventLogMissing is raised without index if the PCR manifest is absent
func pcrEventLogMissing(index *int) Fault {
	if index == nil {
		return Fault{
			Type:        PcrEventLogMissing,
			Description: "Host report does not include a PCR Event Log",
		}
	}
	return Fault{
		Type:        PcrEventLogMissing,
		Description: fmt.Sprintf("Host report does not include a PCR Event Log for PCR %d", *index),
		PcrIndex:    index,
	}
}

func pcrEventLogInvalid(index int) Fault {
	return Fault{
		Type:        PcrEventLogInvalid,
		Description: fmt.Sprintf("PCR %d Event Log is invalid", index),
		PcrIndex:    &index,
	}
}

func pcrEventLogContainsUnexpectedEntries(index int, entries hostmanifest.EventLog) Fault {
	return Fault{
		Type:              PcrEventLogContainsUnexpectedEntries,
		Description:       fmt.Sprintf("Module manifest for PCR %d contains %d unexpected entries", index, len(entries)),
		PcrIndex:          &index,
		UnexpectedEntries: entries,
	}
}

func pcrEventLogMissingExpectedEntries(index int, entries hostmanifest.EventLog) Fault {
	return Fault{
		Type:           PcrEventLogMissingExpectedEntries,
		Description:    fmt.Sprintf("Module manifest for PCR %d missing %d expected entries", index, len(entries)),
		PcrIndex:       &index,
		MissingEntries: entries,
	}
}

func aikCertificateMissing() Fault {
	return Fault{
		Type:        AikCertificateMissing,
		Description: "Host report does not include an AIK certificate",
	}
}

func aikCertificateExpired(notAfter time.Time) Fault {
	return Fault{
		Type:        AikCertificateExpired,
		Description: fmt.Sprintf("AIK certificate not valid after %v", notAfter),
		Time:        &notAfter,
	}
}

func aikCertificateNotYetValid(notBefore time.Time) Fault {
	return Fault{
		Type:        AikCertificateNotYetValid,
		Description: fmt.Sprintf("AIK certificate not valid before %v", notBefore),
		Time:        &notBefore,
	}
}

func aikCertificateNotTrusted() Fault {
	return Fault{
		Type:        AikCertificateNotTrusted,
		Description: "AIK certificate is not signed by any trusted CA",
	}
}

func tagCertificateMissing() Fault {
	return Fault{
		Type:        TagCertificateMissing,
		Description: "Host trust policy requires tag validation but the tag certificate was not found",
	}
}

func tagCertificateExpired(notAfter time.Time) Fault {
	return Fault{
		Type:        TagCertificateExpired,
		Description: fmt.Sprintf("Tag certificate not valid after %v", notAfter),
		Time:        &notAfter,
	}
}

func tagCertificateNotYetValid(notBefore time.Time) Fault {
	return Fault{
		Type:        TagCertificateNotYetValid,
		Description: fmt.Sprintf("Tag certificate not valid before %v", notBefore),
		Time:        &notBefore,
	}
}

func tagCertificateNotTrusted() Fault {
	return Fault{
		Type:        TagCertificateNotTrusted,
		Description: "Tag certificate is not signed by any trusted CA",
	}
}

func assetTagMissing() Fault {
	return Fault{
		Type:        AssetTagMissing,
		Description: "AssetTag Reported is null",
	}
}

func assetTagNotProvisioned() Fault {
	return Fault{
		Type:        AssetTagNotProvisioned,
		Description: "AssetTag is not provisioned by the management",
	}
}

func assetTagMismatch(expected, actual []byte) Fault {
	return Fault{
		Type:          AssetTagMismatch,
		Description:   "Asset tag provisioned does not match asset tag reported",
		ExpectedValue: expected,
		ActualValue:   actual,
	}
}

func flavorSignatureMissing(flavorId string) Fault {
	return Fault{
		Type:        FlavorSignatureMissing,
		Description: fmt.Sprintf("Signature is missing for flavor with id %v", flavorId),
		FlavorId:    flavorId,
	}
}

func flavorSignatureNotTrusted(flavorId string, cause error) Fault {
	f := Fault{
		Type:        FlavorSignatureNotTrusted,
		Description: fmt.Sprintf("Signature is not trusted for flavor with id %v", flavorId),
		FlavorId:    flavorId,
	}
	if cause != nil {
		f.Cause = cause.Error()
	}
	return f
}

func flavorSignatureVerificationFailed(flavorId string, cause error) Fault {
	f := Fault{
		Type:        FlavorSignatureVerificationFailed,
		Description: fmt.Sprintf("Signature verification failed for flavor with id %v", flavorId),
		FlavorId:    flavorId,
	}
	if cause != nil {
		f.Cause = cause.Error()
	}
	return f
}

func xmlMeasurementLogMissing(flavorId string) Fault {
	return Fault{
		Type:        XmlMeasurementLogMissing,
		Description: fmt.Sprintf("Host report does not contain XML Measurement log for flavor %v.", flavorId),
		FlavorId:    flavorId,
	}
}

func xmlMeasurementLogInvalid(cause error) Fault {
	f := Fault{
		Type:        XmlMeasurementLogInvalid,
		Description: "Unable to parse one of the measurement present in HostManifest",
	}
	if cause != nil {
		f.Cause = cause.Error()
	}
	return f
}

func xmlMeasurementsDigestValueMismatch(flavorId, flavorAlg, measurementId, measurementAlg string) Fault {
	return Fault{
		Type: XmlMeasurementsDigestValueMismatch,
		Description: fmt.Sprintf("XML measurement log for flavor %v has %v algorithm does not match with measurement %v - %v algorithm.",
			flavorId, flavorAlg, measurementId, measurementAlg),
		FlavorId:             flavorId,
		FlavorDigestAlg:      flavorAlg,
		MeasurementId:        measurementId,
		MeasurementDigestAlg: measurementAlg,
	}
}

func xmlMeasurementLogContainsUnexpectedEntries(flavorId string, entries hostmanifest.SoftwareMeasurements) Fault {
	return Fault{
		Type:                   XmlMeasurementLogContainsUnexpectedEntries,
		Description:            fmt.Sprintf("XML measurement log of flavor %v contains %d unexpected entries", flavorId, len(entries)),
		FlavorId:               flavorId,
		UnexpectedMeasurements: entries,
	}
}

func xmlMeasurementLogMissingExpectedEntries(flavorId string, entries hostmanifest.SoftwareMeasurements) Fault {
	return Fault{
		Type:                XmlMeasurementLogMissingExpectedEntries,
		Description:         fmt.Sprintf("XML measurement log for flavor %v missing %d expected entries", flavorId, len(entries)),
		FlavorId:            flavorId,
		MissingMeasurements: entries,
	}
}

func xmlMeasurementLogValueMismatchEntries(flavorId string, entries hostmanifest.SoftwareMeasurements) Fault {
	return Fault{
		Type: XmlMeasurementLogValueMismatchEntries,
		Description: fmt.Sprintf("XML measurement log for flavor %v contains %d entries for which the values are modified.",
			flavorId, len(entries)),
		FlavorId:             flavorId,
		MismatchMeasurements: entries,
	}
}

func xmlMeasurementValueMismatch(alg digest.Algorithm, expected, actual []byte) Fault {
	t := XmlMeasurementValueMismatchSha384
	if alg == digest.SHA256 {
		t = XmlMeasurementValueMismatchSha256
	}
	return Fault{
		Type: t,
		Description: fmt.Sprintf("Host XML measurement log final hash with value %v does not match expected value %v",
			digest.HexByte(actual), digest.HexByte(expected)),
		ExpectedValue: expected,
		ActualValue:   actual,
	}
}
