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

package main

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/Fraunhofer-AISEC/hostverifier/internal/testpki"
	"github.com/Fraunhofer-AISEC/hostverifier/trustreport"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetLevel(logrus.TraceLevel)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	f := filepath.Join(dir, name)
	if err := os.WriteFile(f, data, 0644); err != nil {
		t.Fatalf("failed to write %v: %v", f, err)
	}
	return f
}

func writeJson(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal %v: %v", name, err)
	}
	return writeFile(t, dir, name, data)
}

func writeKey(t *testing.T, dir, name string, c *testpki.Cert) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(c.Key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return writeFile(t, dir, name, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestReadConfigFile(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "hvsctl.json", []byte(`{
		"logLevel": "debug",
		"manifest": "manifest.json",
		"flavor": "/etc/flavors.json",
		"anchors": {
			"privacyCas": "certs/privacy-ca.pem"
		}
	}`))

	c := &Config{Serialization: "json"}
	if err := readConfigFile(f, c); err != nil {
		t.Fatalf("readConfigFile() error = %v", err)
	}
	c.pathsToAbs()

	if c.Manifest != filepath.Join(dir, "manifest.json") {
		t.Errorf("Manifest = %v", c.Manifest)
	}
	if c.Flavor != "/etc/flavors.json" {
		t.Errorf("Flavor = %v", c.Flavor)
	}
	if c.Anchors.PrivacyCAs != filepath.Join(dir, "certs/privacy-ca.pem") {
		t.Errorf("PrivacyCAs = %v", c.Anchors.PrivacyCAs)
	}
	if c.Serialization != "json" || c.LogLevel != "debug" {
		t.Errorf("got %+v", c)
	}

	if err := readConfigFile(filepath.Join(dir, "missing.json"), c); err == nil {
		t.Errorf("readConfigFile() of missing file succeeded")
	}
}

func TestParseTags(t *testing.T) {
	type args struct {
		s string
	}
	tests := []struct {
		name    string
		args    args
		want    int
		wantErr bool
	}{
		{"Single", args{"Country=DE"}, 1, false},
		{"Multiple", args{"Country=DE, State = Bavaria,"}, 2, false},
		{"Missing Value Separator", args{"Country"}, 0, true},
		{"Missing Key", args{"=DE"}, 0, true},
		{"Empty", args{""}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTags(tt.args.s)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("parseTags() = %v, want %v tags", got, tt.want)
			}
		})
	}
}

func TestGenerateSchemas(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schema")
	if err := generateSchemas(dir); err != nil {
		t.Fatalf("generateSchemas() error = %v", err)
	}
	for _, name := range []string{"HostManifest", "SignedFlavor", "SignedFlavorCollection", "TrustReport"} {
		data, err := os.ReadFile(filepath.Join(dir, name+".json"))
		if err != nil {
			t.Fatalf("missing schema %v: %v", name, err)
		}
		if !json.Valid(data) {
			t.Errorf("schema %v is not valid JSON", name)
		}
	}
}

func TestSignVerify(t *testing.T) {
	dir := t.TempDir()

	privacyCA := testpki.NewCA(t, "Privacy CA", testpki.Options{})
	aik := testpki.NewLeaf(t, "AIK", privacyCA, testpki.Options{})
	flavorSigner := testpki.NewCA(t, "Flavor Signing", testpki.Options{Rsa: true})
	reportCA := testpki.NewCA(t, "Report CA", testpki.Options{})
	reportSigner := testpki.NewLeaf(t, "Report Signing", reportCA, testpki.Options{})

	pcr0 := sha256.Sum256([]byte("bios"))
	f := flavor.Flavor{
		Meta: flavor.Meta{
			ID:     uuid.MustParse("5f3c0a52-8e24-4f7f-b1a2-0d8f6c7e9a33"),
			Vendor: "INTEL",
			Description: flavor.Description{
				FlavorPart: string(flavor.Platform),
				Label:      "platform",
				TpmVersion: "2.0",
			},
		},
		Pcrs: &hostmanifest.PcrManifest{Pcrs: []hostmanifest.PcrEntry{
			{Pcr: hostmanifest.Pcr{Index: 0, Bank: digest.SHA256, Value: pcr0[:]}},
		}},
	}
	m := hostmanifest.HostManifest{
		HostInfo:       hostmanifest.HostInfo{OSName: "RHEL", TpmVersion: "2.0"},
		AikCertificate: hostmanifest.NewCertificate(aik.Cert),
		PcrManifest: &hostmanifest.PcrManifest{Pcrs: []hostmanifest.PcrEntry{
			{Pcr: hostmanifest.Pcr{Index: 0, Bank: digest.SHA256, Value: pcr0[:]}},
		}},
	}

	signed := filepath.Join(dir, "signed.json")
	err := sign(&Config{
		Flavor: writeJson(t, dir, "flavor.json", f),
		Key:    writeKey(t, dir, "flavor-key.pem", flavorSigner),
		Out:    signed,
	})
	if err != nil {
		t.Fatalf("sign() error = %v", err)
	}

	c := &Config{
		Manifest:      writeJson(t, dir, "manifest.json", m),
		Flavor:        signed,
		Serialization: "application/cbor",
		Key:           writeKey(t, dir, "report-key.pem", reportSigner),
		Chain:         writeFile(t, dir, "report-chain.pem", internal.WriteCertPem(reportSigner.Cert)),
		Out:           filepath.Join(dir, "report"),
		Anchors: anchors.Config{
			PrivacyCAs:        writeFile(t, dir, "privacy-ca.pem", internal.WriteCertPem(privacyCA.Cert)),
			FlavorSigningCert: writeFile(t, dir, "flavor-signing.pem", internal.WriteCertPem(flavorSigner.Cert)),
		},
	}
	if err := verify(c); err != nil {
		t.Fatalf("verify() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "report.cbor"))
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	payload, err := trustreport.CborSerializer{}.Verify(data, []*x509.Certificate{reportCA.Cert})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	var report trustreport.TrustReport
	if err := (trustreport.CborSerializer{}).Unmarshal(payload, &report); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !report.Trusted() || len(report.Results) != 3 {
		t.Errorf("Trusted() = %v with %v results", report.Trusted(), len(report.Results))
	}

	c.Key = ""
	c.Serialization = "json"
	c.Policies = writeFile(t, dir, "policies.js", []byte(`JSON.parse(json).fault_count > 0`))
	if err := verify(c); !errors.Is(err, errUntrusted) {
		t.Errorf("verify() with failing policies error = %v, want %v", err, errUntrusted)
	}
}

func TestOutputPath(t *testing.T) {
	type args struct {
		file string
		ext  string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{"Stdout", args{"", ".json"}, ""},
		{"No Extension", args{"out/report", ".cbor"}, "out/report.cbor"},
		{"Extension Kept", args{"out/report.bin", ".cbor"}, "out/report.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outputPath(tt.args.file, tt.args.ext); got != tt.want {
				t.Errorf("outputPath() = %v, want %v", got, tt.want)
			}
		})
	}
}
