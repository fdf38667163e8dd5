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

package anchors

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/Fraunhofer-AISEC/hostverifier/internal/testpki"
	"go.mozilla.org/pkcs7"
)

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatalf("failed to write %v: %v", name, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	root := testpki.NewCA(t, "Flavor Root CA", testpki.Options{})
	intermediate := testpki.NewCA(t, "Flavor Intermediate CA", testpki.Options{})
	signing := testpki.NewLeaf(t, "Flavor Signing", root, testpki.Options{Rsa: true})
	privacy := testpki.NewCA(t, "Privacy CA", testpki.Options{})

	p7, err := pkcs7.DegenerateCertificate(privacy.Cert.Raw)
	if err != nil {
		t.Fatalf("failed to create PKCS#7 bundle: %v", err)
	}

	writeFile(t, dir, "privacy.p7b", p7)
	writeFile(t, dir, "tag.der", intermediate.Cert.Raw)
	writeFile(t, dir, "signing.pem", internal.WriteCertPem(signing.Cert))
	writeFile(t, dir, "roots.pem", append(internal.WriteCertPem(root.Cert), internal.WriteCertPem(intermediate.Cert)...))
	writeFile(t, dir, "broken.pem", []byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"))

	type args struct {
		c *Config
	}
	tests := []struct {
		name      string
		args      args
		wantErr   bool
		wantRoots int
	}{
		{
			name: "All Bundles",
			args: args{&Config{
				PrivacyCAs:        "privacy.p7b",
				AssetTagCAs:       "tag.der",
				FlavorSigningCert: "signing.pem",
				FlavorCAs:         "roots.pem",
			}},
			wantRoots: 2,
		},
		{
			name: "Optional Bundles",
			args: args{&Config{
				PrivacyCAs: "privacy.p7b",
			}},
		},
		{
			name: "Missing File",
			args: args{&Config{
				PrivacyCAs:  "privacy.p7b",
				AssetTagCAs: "nonexistent.pem",
			}},
			wantErr: true,
		},
		{
			name: "Malformed Bundle",
			args: args{&Config{
				FlavorCAs: "broken.pem",
			}},
			wantErr: true,
		},
		{
			name:    "No Config",
			args:    args{nil},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.args.c, &dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got.PrivacyCAs) != 1 || !got.PrivacyCAs[0].Equal(privacy.Cert) {
				t.Errorf("PrivacyCAs not loaded correctly")
			}
			if len(got.FlavorCAs) != tt.wantRoots {
				t.Errorf("got %v flavor CAs, want %v", len(got.FlavorCAs), tt.wantRoots)
			}
		})
	}
}

func TestFlavorSigningCert(t *testing.T) {
	root := testpki.NewCA(t, "Flavor Root CA", testpki.Options{})
	other := testpki.NewCA(t, "Other Root CA", testpki.Options{})
	signing := testpki.NewLeaf(t, "Flavor Signing", root, testpki.Options{Rsa: true})

	tests := []struct {
		name    string
		anchors *TrustAnchors
		wantErr bool
	}{
		{
			name: "Chain Verified",
			anchors: &TrustAnchors{
				FlavorSigningChain: []*x509.Certificate{signing.Cert},
				FlavorCAs:          []*x509.Certificate{root.Cert},
			},
		},
		{
			name: "Direct Trust",
			anchors: &TrustAnchors{
				FlavorSigningChain: []*x509.Certificate{signing.Cert},
			},
		},
		{
			name: "Wrong Root",
			anchors: &TrustAnchors{
				FlavorSigningChain: []*x509.Certificate{signing.Cert},
				FlavorCAs:          []*x509.Certificate{other.Cert},
			},
			wantErr: true,
		},
		{
			name:    "Not Configured",
			anchors: &TrustAnchors{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.anchors.FlavorSigningCert()
			if (err != nil) != tt.wantErr {
				t.Fatalf("FlavorSigningCert() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(signing.Cert) {
				t.Errorf("FlavorSigningCert() returned wrong certificate")
			}
		})
	}
}
