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

// Package flavor contains the signed measurement baselines (flavors) a host
// is verified against.
package flavor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Fraunhofer-AISEC/hostverifier/assettag"
	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "flavor")

// Part is the aspect of the host a flavor describes
type Part string

const (
	Platform   Part = "PLATFORM"
	Os         Part = "OS"
	HostUnique Part = "HOST_UNIQUE"
	AssetTag   Part = "ASSET_TAG"
	Software   Part = "SOFTWARE"
)

var parts = []Part{Platform, Os, HostUnique, AssetTag, Software}

// ParsePart parses the flavor part case-insensitively
func ParsePart(s string) (Part, error) {
	for _, p := range parts {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown flavor part %q", s)
}

type Description struct {
	FlavorPart      string `json:"flavor_part" cbor:"0,keyasint"`
	Label           string `json:"label,omitempty" cbor:"1,keyasint,omitempty"`
	Source          string `json:"source,omitempty" cbor:"2,keyasint,omitempty"`
	OsName          string `json:"os_name,omitempty" cbor:"3,keyasint,omitempty"`
	OsVersion       string `json:"os_version,omitempty" cbor:"4,keyasint,omitempty"`
	BiosName        string `json:"bios_name,omitempty" cbor:"5,keyasint,omitempty"`
	BiosVersion     string `json:"bios_version,omitempty" cbor:"6,keyasint,omitempty"`
	TpmVersion      string `json:"tpm_version,omitempty" cbor:"7,keyasint,omitempty"`
	TbootInstalled  string `json:"tboot_installed,omitempty" cbor:"8,keyasint,omitempty"`
	DigestAlgorithm string `json:"digest_algorithm,omitempty" cbor:"9,keyasint,omitempty"`
	HardwareUUID    string `json:"hardware_uuid,omitempty" cbor:"10,keyasint,omitempty"`
}

type Meta struct {
	ID          uuid.UUID   `json:"id" cbor:"0,keyasint"`
	Vendor      string      `json:"vendor,omitempty" cbor:"1,keyasint,omitempty"`
	Description Description `json:"description" cbor:"2,keyasint"`
}

type FeatureCBNT struct {
	Enabled bool   `json:"enabled,omitempty" cbor:"0,keyasint,omitempty"`
	Profile string `json:"profile,omitempty" cbor:"1,keyasint,omitempty"`
}

type FeatureSUEFI struct {
	Enabled bool `json:"enabled,omitempty" cbor:"0,keyasint,omitempty"`
}

type FeatureTPM struct {
	Enabled  bool     `json:"enabled" cbor:"0,keyasint"`
	Version  string   `json:"version,omitempty" cbor:"1,keyasint,omitempty"`
	PcrBanks []string `json:"pcr_banks,omitempty" cbor:"2,keyasint,omitempty"`
}

type FeatureTXT struct {
	Enabled bool `json:"enabled,omitempty" cbor:"0,keyasint,omitempty"`
}

type Feature struct {
	TXT   *FeatureTXT   `json:"TXT,omitempty" cbor:"0,keyasint,omitempty"`
	TPM   *FeatureTPM   `json:"TPM,omitempty" cbor:"1,keyasint,omitempty"`
	CBNT  *FeatureCBNT  `json:"CBNT,omitempty" cbor:"2,keyasint,omitempty"`
	SUEFI *FeatureSUEFI `json:"SUEFI,omitempty" cbor:"3,keyasint,omitempty"`
}

type Hardware struct {
	Vendor         string   `json:"vendor,omitempty" cbor:"0,keyasint,omitempty"`
	ProcessorInfo  string   `json:"processor_info,omitempty" cbor:"1,keyasint,omitempty"`
	ProcessorFlags string   `json:"processor_flags,omitempty" cbor:"2,keyasint,omitempty"`
	Feature        *Feature `json:"feature,omitempty" cbor:"3,keyasint,omitempty"`
}

type AssetTagInfo struct {
	TagCertificate *assettag.AttributeCertificate `json:"tag_certificate,omitempty" cbor:"0,keyasint,omitempty"`
}

type External struct {
	AssetTag *AssetTagInfo `json:"asset_tag,omitempty" cbor:"0,keyasint,omitempty"`
}

type SoftwareInfo struct {
	Measurements   hostmanifest.SoftwareMeasurements `json:"measurements" cbor:"0,keyasint"`
	CumulativeHash digest.HexByte                    `json:"cumulative_hash" cbor:"1,keyasint"`
}

// Flavor is a baseline of expected measurements for one flavor part
type Flavor struct {
	Meta     Meta                      `json:"meta" cbor:"0,keyasint"`
	Hardware *Hardware                 `json:"hardware,omitempty" cbor:"1,keyasint,omitempty"`
	Pcrs     *hostmanifest.PcrManifest `json:"pcrs,omitempty" cbor:"2,keyasint,omitempty"`
	External *External                 `json:"external,omitempty" cbor:"3,keyasint,omitempty"`
	Software *SoftwareInfo             `json:"software,omitempty" cbor:"4,keyasint,omitempty"`
}

// SignedFlavor is a flavor with the base64 encoded signature over its
// canonical serialization
type SignedFlavor struct {
	Flavor    Flavor `json:"flavor" cbor:"0,keyasint"`
	Signature string `json:"signature" cbor:"1,keyasint"`
}

type SignedFlavorCollection struct {
	SignedFlavors []SignedFlavor `json:"signed_flavors" cbor:"0,keyasint"`
}

// Part returns the parsed flavor part
func (f *Flavor) Part() (Part, error) {
	return ParsePart(f.Meta.Description.FlavorPart)
}

// Id returns the flavor id as string
func (f *Flavor) Id() string {
	return f.Meta.ID.String()
}

// Label returns the flavor label
func (f *Flavor) Label() string {
	return f.Meta.Description.Label
}

// TbootInstalled returns false only if the flavor explicitly states that
// tboot is not installed
func (f *Flavor) TbootInstalled() bool {
	t := f.Meta.Description.TbootInstalled
	return t == "" || strings.EqualFold(t, "true")
}

// Pcr returns the expected PCR entry or nil
func (f *Flavor) Pcr(bank digest.Algorithm, index int) *hostmanifest.PcrEntry {
	return f.Pcrs.Get(bank, index)
}

// TagCertificate returns the asset tag certificate of the flavor or nil
func (f *Flavor) TagCertificate() *assettag.AttributeCertificate {
	if f.External == nil || f.External.AssetTag == nil {
		return nil
	}
	return f.External.AssetTag.TagCertificate
}

// CbntEnabled returns true if Intel Converged Boot Guard and TXT is enabled
// with the specified profile
func (f *Flavor) CbntEnabled(profile string) bool {
	if f.Hardware == nil || f.Hardware.Feature == nil || f.Hardware.Feature.CBNT == nil {
		return false
	}
	cbnt := f.Hardware.Feature.CBNT
	return cbnt.Enabled && strings.EqualFold(cbnt.Profile, profile)
}

// SuefiEnabled returns true if UEFI secure boot is enabled
func (f *Flavor) SuefiEnabled() bool {
	if f.Hardware == nil || f.Hardware.Feature == nil || f.Hardware.Feature.SUEFI == nil {
		return false
	}
	return f.Hardware.Feature.SUEFI.Enabled
}

// Validate checks that the flavor can be used to build a trust policy
func (f *Flavor) Validate() error {
	if f.Meta.ID == uuid.Nil {
		return errors.New("flavor id is missing")
	}
	part, err := f.Part()
	if err != nil {
		return err
	}
	if part == Software {
		if f.Software == nil {
			return fmt.Errorf("software flavor %v does not contain measurements", f.Id())
		}
		if _, err := digest.ParseAlgorithm(f.Meta.Description.DigestAlgorithm); err != nil {
			return fmt.Errorf("software flavor %v: %w", f.Id(), err)
		}
	}
	if f.Pcrs != nil {
		for _, p := range f.Pcrs.Pcrs {
			if !p.Bank.Valid() {
				return fmt.Errorf("flavor %v contains PCR %v with unsupported bank %q", f.Id(), p.Index, p.Bank)
			}
		}
	}
	log.Tracef("Flavor %v (%v) is valid", f.Id(), part)
	return nil
}

// Canonical returns the serialization the flavor signature is calculated over
func (f *Flavor) Canonical() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flavor: %w", err)
	}
	return data, nil
}
