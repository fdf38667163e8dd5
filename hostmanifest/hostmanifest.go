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

// Package hostmanifest contains the evidence a host reports for verification:
// host information, the AIK certificate, PCR values with their event logs and
// the XML software measurement logs.
package hostmanifest

import (
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/Fraunhofer-AISEC/hostverifier/assettag"
	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/fxamacker/cbor/v2"
	"github.com/invopop/jsonschema"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "hostmanifest")

// HostInfo describes the host platform
type HostInfo struct {
	HostName       string `json:"host_name,omitempty" cbor:"0,keyasint,omitempty"`
	HardwareUUID   string `json:"hardware_uuid,omitempty" cbor:"1,keyasint,omitempty"`
	OSName         string `json:"os_name" cbor:"2,keyasint"`
	OSVersion      string `json:"os_version,omitempty" cbor:"3,keyasint,omitempty"`
	BiosName       string `json:"bios_name,omitempty" cbor:"4,keyasint,omitempty"`
	BiosVersion    string `json:"bios_version,omitempty" cbor:"5,keyasint,omitempty"`
	TpmVersion     string `json:"tpm_version" cbor:"6,keyasint"`
	TbootInstalled string `json:"tboot_installed,omitempty" cbor:"7,keyasint,omitempty"`
}

// HostManifest is the complete evidence of a host. It is treated as
// read-only during verification
type HostManifest struct {
	HostInfo        HostInfo                       `json:"host_info" cbor:"0,keyasint"`
	AikCertificate  *Certificate                   `json:"aik_certificate,omitempty" cbor:"1,keyasint,omitempty"`
	TagCertificate  *assettag.AttributeCertificate `json:"tag_certificate,omitempty" cbor:"2,keyasint,omitempty"`
	AssetTagDigest  digest.HexByte                 `json:"asset_tag_digest,omitempty" cbor:"3,keyasint,omitempty"`
	PcrManifest     *PcrManifest                   `json:"pcr_manifest,omitempty" cbor:"4,keyasint,omitempty"`
	MeasurementXmls []string                       `json:"measurement_xmls,omitempty" cbor:"5,keyasint,omitempty"`
}

// Certificate wraps an X.509 certificate which is serialized as DER and
// accepts PEM or DER when deserialized
type Certificate struct {
	*x509.Certificate
}

func NewCertificate(c *x509.Certificate) *Certificate {
	if c == nil {
		return nil
	}
	return &Certificate{Certificate: c}
}

func (c *Certificate) MarshalJSON() ([]byte, error) {
	if c == nil || c.Certificate == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(c.Raw)
}

func (c *Certificate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal certificate: %w", err)
	}
	// PEM encoded strings are accepted as well as base64 encoded DER
	var raw []byte
	if len(s) > 0 && s[0] == '-' {
		raw = []byte(s)
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode certificate: %w", err)
	}
	cert, err := internal.ParseCert(raw)
	if err != nil {
		return err
	}
	c.Certificate = cert
	return nil
}

func (c *Certificate) MarshalCBOR() ([]byte, error) {
	if c == nil || c.Certificate == nil {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(c.Raw)
}

func (c *Certificate) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal certificate: %w", err)
	}
	cert, err := internal.ParseCert(raw)
	if err != nil {
		return err
	}
	c.Certificate = cert
	return nil
}

func (Certificate) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:            "string",
		ContentEncoding: "base64",
		Description:     "DER encoded X.509 certificate",
	}
}

// Aik returns the parsed AIK certificate or nil
func (m *HostManifest) Aik() *x509.Certificate {
	if m == nil || m.AikCertificate == nil {
		return nil
	}
	return m.AikCertificate.Certificate
}

// TpmVersion returns the TPM version reported by the host
func (m *HostManifest) TpmVersion() string {
	if m == nil {
		return ""
	}
	return m.HostInfo.TpmVersion
}

// Validate performs basic consistency checks of the manifest
func (m *HostManifest) Validate() error {
	if m == nil {
		return fmt.Errorf("host manifest is nil")
	}
	if m.PcrManifest == nil {
		return nil
	}
	for _, p := range m.PcrManifest.Pcrs {
		if !p.Bank.Valid() {
			return fmt.Errorf("PCR %v has unsupported bank %q", p.Index, p.Bank)
		}
		if p.Index < 0 || p.Index > MaxPcrIndex {
			return fmt.Errorf("invalid PCR index %v", p.Index)
		}
		if len(p.Value) > 0 && len(p.Value) != p.Bank.Size() {
			return fmt.Errorf("PCR %v (%v) has invalid length %v", p.Index, p.Bank, len(p.Value))
		}
	}
	log.Tracef("Host manifest of %v contains %v PCRs", m.HostInfo.HostName, len(m.PcrManifest.Pcrs))
	return nil
}
