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

package policy

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/rules"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetLevel(logrus.TraceLevel)
}

func sha256Of(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

// testFlavor creates a flavor with SHA256 PCRs. The map value specifies if
// the PCR has an event log
func testFlavor(part flavor.Part, vendor, tpm string, pcrs map[int]bool) *flavor.SignedFlavor {
	f := flavor.Flavor{
		Meta: flavor.Meta{
			ID:     uuid.MustParse("c1bd1a2c-4b2e-4a6b-9f43-3ef2ab7d9b11"),
			Vendor: vendor,
			Description: flavor.Description{
				FlavorPart: string(part),
				Label:      "test",
				TpmVersion: tpm,
			},
		},
		Pcrs: &hostmanifest.PcrManifest{},
	}
	for index, events := range pcrs {
		e := hostmanifest.PcrEntry{
			Pcr: hostmanifest.Pcr{Index: index, Bank: digest.SHA256, Value: sha256Of(fmt.Sprint(index))},
		}
		if events {
			e.EventLog = hostmanifest.EventLog{{Label: "event", Value: sha256Of("event")}}
		}
		f.Pcrs.Set(e)
	}
	return &flavor.SignedFlavor{Flavor: f, Signature: "c2lnbmF0dXJl"}
}

func host(os, tpm string) *hostmanifest.HostManifest {
	return &hostmanifest.HostManifest{HostInfo: hostmanifest.HostInfo{OSName: os, TpmVersion: tpm}}
}

func TestReaderKey(t *testing.T) {
	type args struct {
		vendor    string
		flavorTpm string
		os        string
		hostTpm   string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{"RHEL TPM 2.0", args{"", "2.0", "RHEL", "1.2"}, "intel-da"},
		{"Flavor Vendor", args{"MICROSOFT", "1.2", "RHEL", "2.0"}, "microsoft"},
		{"Host TPM Version", args{"", "", "VMware ESXi", "2.0"}, "vmware-da"},
		{"Invalid Flavor Vendor", args{"fakeVendor", "1.2", " ubuntu ", "1.2"}, "unknown"},
		{"Unmapped Flavor Vendor On RHEL", args{"unknown-sa", "1.2", "RHEL", "1.2"}, "unknown"},
		{"Windows Server", args{"", "2.0", "Microsoft Windows Server 2016 Datacenter", ""}, "microsoft-da"},
		{"Unknown OS", args{"", "2.0", "SUSE", ""}, "unknown-da"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sf := testFlavor(flavor.Platform, tt.args.vendor, tt.args.flavorTpm, nil)
			if got := ReaderKey(&sf.Flavor, host(tt.args.os, tt.args.hostTpm)); got != tt.want {
				t.Errorf("ReaderKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyErrors(t *testing.T) {
	noId := testFlavor(flavor.Platform, "INTEL", "2.0", nil)
	noId.Flavor.Meta.ID = uuid.Nil

	type args struct {
		sf *flavor.SignedFlavor
		m  *hostmanifest.HostManifest
	}
	tests := []struct {
		name        string
		args        args
		unsupported bool
	}{
		{"Unknown OS", args{testFlavor(flavor.Platform, "", "2.0", nil), host("SUSE", "2.0")}, true},
		{"Unmapped Vendor", args{testFlavor(flavor.Platform, "unknown-sa", "1.2", nil), host("RHEL", "1.2")}, true},
		{"Unmapped Vendor TPM 2.0", args{testFlavor(flavor.Platform, "unknown-sa", "2.0", nil), host("RHEL", "2.0")}, true},
		{"Invalid Flavor", args{noId, host("RHEL", "2.0")}, false},
		{"Unknown Part", args{testFlavor("BIOS", "INTEL", "2.0", nil), host("RHEL", "2.0")}, false},
		{"Software Without Measurements", args{testFlavor(flavor.Software, "INTEL", "2.0", nil), host("RHEL", "2.0")}, false},
		{"No Flavor", args{nil, host("RHEL", "2.0")}, false},
		{"No Manifest", args{testFlavor(flavor.Platform, "INTEL", "2.0", nil), nil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(nil).Policy(tt.args.sf, tt.args.m, false)
			if err == nil {
				t.Fatalf("Policy() expected error")
			}
			if errors.Is(err, ErrUnsupportedVendor) != tt.unsupported {
				t.Errorf("Policy() error = %v, want unsupported vendor %v", err, tt.unsupported)
			}
		})
	}
}

func ruleNames(p *Policy) []string {
	names := []string{}
	for _, r := range p.Rules {
		names = append(names, r.Name())
	}
	return names
}

func TestPolicy(t *testing.T) {
	suefi := testFlavor(flavor.Platform, "INTEL", "2.0", map[int]bool{0: false, 7: false, 17: true, 18: true})
	suefi.Flavor.Hardware = &flavor.Hardware{Feature: &flavor.Feature{SUEFI: &flavor.FeatureSUEFI{Enabled: true}}}

	noTboot := testFlavor(flavor.Platform, "INTEL", "2.0", map[int]bool{0: false, 7: false, 17: false})
	noTboot.Flavor.Meta.Description.TbootInstalled = "false"

	vmwareTag := testFlavor(flavor.AssetTag, "VMWARE", "1.2", map[int]bool{22: false})
	vmwareTag.Flavor.External = &flavor.External{AssetTag: &flavor.AssetTagInfo{}}

	sw := testFlavor(flavor.Software, "", "", nil)
	sw.Flavor.Meta.Description.DigestAlgorithm = "SHA384"
	sw.Flavor.Software = &flavor.SoftwareInfo{
		Measurements:   hostmanifest.SoftwareMeasurements{{Path: "/opt", Value: make([]byte, 48)}},
		CumulativeHash: make([]byte, 48),
	}

	type args struct {
		sf            *flavor.SignedFlavor
		m             *hostmanifest.HostManifest
		skipSignature bool
	}
	tests := []struct {
		name string
		args args
		want []string
	}{
		{
			name: "Intel Platform",
			args: args{testFlavor(flavor.Platform, "INTEL", "1.2", map[int]bool{0: false, 17: true, 18: true}), host("RHEL", "1.2"), false},
			want: []string{
				rules.AikCertificateTrustedName,
				rules.PcrMatchesConstantName,
				rules.PcrMatchesConstantName,
				rules.FlavorTrustedName,
			},
		},
		{
			name: "Intel DA Platform With Secure Boot",
			args: args{suefi, host("RHEL", "2.0"), false},
			want: []string{
				rules.AikCertificateTrustedName,
				rules.PcrMatchesConstantName,
				rules.PcrMatchesConstantName,
				rules.PcrEventLogEqualsExcludingName,
				rules.PcrEventLogEqualsExcludingName,
				rules.PcrEventLogIntegrityName,
				rules.PcrEventLogIntegrityName,
				rules.FlavorTrustedName,
			},
		},
		{
			name: "Intel DA Platform Without Tboot",
			args: args{noTboot, host("RHEL", "2.0"), false},
			want: []string{
				rules.AikCertificateTrustedName,
				rules.PcrMatchesConstantName,
				rules.FlavorTrustedName,
			},
		},
		{
			name: "Intel DA OS",
			args: args{testFlavor(flavor.Os, "INTEL", "2.0", map[int]bool{17: true}), host("RHEL", "2.0"), false},
			want: []string{
				rules.AikCertificateTrustedName,
				rules.PcrEventLogIntegrityName,
				rules.PcrEventLogIncludesName,
				rules.FlavorTrustedName,
			},
		},
		{
			name: "Intel Asset Tag Without External",
			args: args{testFlavor(flavor.AssetTag, "INTEL", "2.0", nil), host("RHEL", "2.0"), false},
			want: []string{rules.FlavorTrustedName},
		},
		{
			name: "Microsoft Host Unique",
			args: args{testFlavor(flavor.HostUnique, "", "2.0", map[int]bool{19: true}), host("Windows", "2.0"), false},
			want: []string{rules.FlavorTrustedName},
		},
		{
			name: "VMware Asset Tag Skip Signature",
			args: args{vmwareTag, host("VMware ESXi", "1.2"), true},
			want: []string{rules.TagCertificateTrustedName, rules.PcrMatchesConstantName},
		},
		{
			name: "VMware DA Host Unique",
			args: args{testFlavor(flavor.HostUnique, "", "2.0", map[int]bool{20: true, 21: false}), host("VMware ESXi", "2.0"), true},
			want: []string{
				rules.PcrEventLogIncludesName,
				rules.PcrEventLogIntegrityName,
				rules.PcrEventLogIntegrityName,
			},
		},
		{
			name: "Software",
			args: args{sw, host("RHEL", "2.0"), false},
			want: []string{
				rules.XmlMeasurementsDigestEqualsName,
				rules.Pcr15EventLogIntegrityName,
				rules.XmlMeasurementLogIntegrityName,
				rules.XmlMeasurementLogEqualsName,
				rules.FlavorTrustedName,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewManager(nil).Policy(tt.args.sf, tt.args.m, tt.args.skipSignature)
			if err != nil {
				t.Fatalf("Policy() error = %v", err)
			}
			if got := ruleNames(p); !slices.Equal(got, tt.want) {
				t.Errorf("Policy() rules = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyMarkers(t *testing.T) {
	sf := testFlavor(flavor.Os, "INTEL", "1.2", map[int]bool{18: false})
	p, err := NewManager(nil).Policy(sf, host("RHEL", "1.2"), false)
	if err != nil {
		t.Fatalf("Policy() error = %v", err)
	}
	for _, r := range p.Rules {
		if !slices.Equal(r.Markers(), []rules.Marker{rules.MarkerOs}) {
			t.Errorf("rule %v has markers %v", r.Name(), r.Markers())
		}
	}
}

func TestPolicyAdd(t *testing.T) {
	pcr := func(v string) hostmanifest.Pcr {
		return hostmanifest.Pcr{Index: 17, Bank: digest.SHA256, Value: sha256Of(v)}
	}

	p := New("test",
		rules.NewPcrEventLogIntegrity(pcr("a"), rules.MarkerPlatform),
		rules.NewPcrEventLogIntegrity(pcr("b"), rules.MarkerPlatform),
		rules.NewPcrMatchesConstant(pcr("a"), rules.MarkerPlatform),
		rules.NewPcrMatchesConstant(pcr("b"), rules.MarkerPlatform),
		rules.NewPcrMatchesConstant(pcr("a"), rules.MarkerPlatform),
	)

	if len(p.Rules) != 3 {
		t.Errorf("got %v rules, want 3: %v", len(p.Rules), ruleNames(p))
	}
}
