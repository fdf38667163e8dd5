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
	"crypto/x509"
	"encoding/json"
	"testing"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/internal/testpki"
)

func signedFlavor(t *testing.T, key *testpki.Cert) *flavor.SignedFlavor {
	t.Helper()
	f := &flavor.Flavor{
		Meta: flavor.Meta{
			ID:     flavorId,
			Vendor: "INTEL",
			Description: flavor.Description{
				FlavorPart: string(flavor.Platform),
				Label:      "platform",
				TpmVersion: "2.0",
			},
		},
	}
	sf, err := flavor.Sign(f, key.Key)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return sf
}

func TestFlavorTrusted(t *testing.T) {
	ca := testpki.NewCA(t, "Flavor CA", testpki.Options{})
	otherCA := testpki.NewCA(t, "Other Flavor CA", testpki.Options{})
	signer := testpki.NewLeaf(t, "Flavor Signing", ca, testpki.Options{Rsa: true})

	valid := signedFlavor(t, signer)

	modified := signedFlavor(t, signer)
	modified.Flavor.Meta.Description.Label = "modified"

	unsigned := signedFlavor(t, signer)
	unsigned.Signature = ""

	malformed := signedFlavor(t, signer)
	malformed.Signature = "not base64!"

	type args struct {
		sf      *flavor.SignedFlavor
		anchors *anchors.TrustAnchors
	}
	tests := []struct {
		name string
		args args
		want []FaultType
	}{
		{
			name: "Signing Certificate Only",
			args: args{valid, &anchors.TrustAnchors{FlavorSigningChain: []*x509.Certificate{signer.Cert}}},
		},
		{
			name: "Signing Certificate Chained To CA",
			args: args{valid, &anchors.TrustAnchors{
				FlavorSigningChain: []*x509.Certificate{signer.Cert},
				FlavorCAs:          []*x509.Certificate{otherCA.Cert, ca.Cert},
			}},
		},
		{
			name: "Signing Certificate Not Chained",
			args: args{valid, &anchors.TrustAnchors{
				FlavorSigningChain: []*x509.Certificate{signer.Cert},
				FlavorCAs:          []*x509.Certificate{otherCA.Cert},
			}},
			want: []FaultType{FlavorSignatureNotTrusted},
		},
		{
			name: "Modified Flavor",
			args: args{modified, &anchors.TrustAnchors{FlavorSigningChain: []*x509.Certificate{signer.Cert}}},
			want: []FaultType{FlavorSignatureNotTrusted},
		},
		{
			name: "Missing Signature",
			args: args{unsigned, &anchors.TrustAnchors{FlavorSigningChain: []*x509.Certificate{signer.Cert}}},
			want: []FaultType{FlavorSignatureMissing},
		},
		{
			name: "Malformed Signature",
			args: args{malformed, &anchors.TrustAnchors{FlavorSigningChain: []*x509.Certificate{signer.Cert}}},
			want: []FaultType{FlavorSignatureVerificationFailed},
		},
		{
			name: "No Anchors",
			args: args{valid, nil},
			want: []FaultType{FlavorSignatureNotTrusted},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFlavorTrusted(tt.args.sf, tt.args.anchors, MarkerPlatform)
			got := r.Apply(&hostmanifest.HostManifest{})
			checkFaults(t, got, tt.want...)
			if got.FlavorId == nil || *got.FlavorId != flavorId {
				t.Errorf("FlavorId = %v, want %v", got.FlavorId, flavorId)
			}
		})
	}
}

func TestDefaultTrusted(t *testing.T) {
	r := NewDefaultTrusted(MarkerOs)
	got := r.Apply(&hostmanifest.HostManifest{})
	checkFaults(t, got)
	if !got.HasMarker(MarkerOs) || got.HasMarker(MarkerPlatform) {
		t.Errorf("unexpected markers %v", got.Markers())
	}
}

func TestParseMarker(t *testing.T) {
	tests := []struct {
		in      string
		want    Marker
		wantErr bool
	}{
		{"PLATFORM", MarkerPlatform, false},
		{"host_unique", MarkerHostUnique, false},
		{"Asset_Tag", MarkerAssetTag, false},
		{"SOFTWARE", MarkerSoftware, false},
		{"BIOS", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMarker(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMarker() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMarker() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRuleResultJson(t *testing.T) {
	rule := NewPcrMatchesConstant(hostmanifest.Pcr{Index: 0, Bank: digest.SHA256, Value: sha256Of("pcr0")},
		MarkerPlatform)
	result := rule.Apply(manifestWith("2.0", pcr(digest.SHA256, 0, sha256Of("other"), nil)))
	result.SetFlavorId(flavorId)

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if raw["trusted"] != false || raw["rule_name"] != PcrMatchesConstantName {
		t.Errorf("unexpected serialized result %v", string(data))
	}

	var decoded RuleResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded.Rule.Equal(rule) {
		t.Errorf("decoded rule %v does not equal %v", decoded.Rule, rule)
	}
	if decoded.Trusted() || decoded.Faults[0].Type != PcrValueMismatchSha256 {
		t.Errorf("unexpected faults %v", decoded.Faults)
	}
	if decoded.FlavorId == nil || *decoded.FlavorId != flavorId {
		t.Errorf("FlavorId = %v, want %v", decoded.FlavorId, flavorId)
	}
}

func TestRuleResultJsonUnknownRule(t *testing.T) {
	var r RuleResult
	if err := json.Unmarshal([]byte(`{"rule_name":"Unknown","rule":{}}`), &r); err == nil {
		t.Errorf("expected error for unknown rule")
	}
}
