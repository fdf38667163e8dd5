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
	"encoding/json"
	"testing"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
)

func dec(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func m(label string, value byte) Measurement {
	return Measurement{Label: label, Value: bytes.Repeat([]byte{value}, 32)}
}

func TestEventLogSubtract(t *testing.T) {
	type args struct {
		l     EventLog
		other EventLog
	}
	tests := []struct {
		name string
		args args
		want EventLog
	}{
		{
			name: "Equal Logs",
			args: args{EventLog{m("a", 1), m("b", 2)}, EventLog{m("b", 2), m("a", 1)}},
			want: EventLog{},
		},
		{
			name: "Compared By Value Only",
			args: args{EventLog{m("a", 1)}, EventLog{m("other label", 1)}},
			want: EventLog{},
		},
		{
			name: "Extra Entry",
			args: args{EventLog{m("a", 1), m("b", 2), m("c", 3)}, EventLog{m("a", 1)}},
			want: EventLog{m("b", 2), m("c", 3)},
		},
		{
			name: "Duplicates Preserved",
			args: args{EventLog{m("a", 1), m("a", 1)}, EventLog{}},
			want: EventLog{m("a", 1), m("a", 1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.args.l.Subtract(tt.args.other)
			if !got.Equal(tt.want) {
				t.Errorf("Subtract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventLogReplay(t *testing.T) {
	l := EventLog{{Label: "event", Value: dec("b8e1f80bd70ae0784c7855a451731b745fddb67749d23f637be9082b75e9575b")}}
	got, err := l.Replay(digest.SHA256)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	want := dec("12db50484c569ef2d5446a9790ee2be42a913d1c755cde998469926762f54066")
	if !bytes.Equal(got.Value, want) {
		t.Errorf("Replay() = %v, want %x", got, want)
	}
}

func TestPcrManifest(t *testing.T) {
	pm := &PcrManifest{}
	pm.Set(PcrEntry{Pcr: Pcr{Index: 0, Bank: digest.SHA256, Value: make([]byte, 32)}})
	pm.Set(PcrEntry{Pcr: Pcr{Index: 0, Bank: digest.SHA1, Value: make([]byte, 20)}})
	pm.Set(PcrEntry{
		Pcr:      Pcr{Index: 0, Bank: digest.SHA256, Value: bytes.Repeat([]byte{1}, 32)},
		EventLog: EventLog{m("a", 1)},
	})

	if len(pm.Pcrs) != 2 {
		t.Fatalf("len(Pcrs) = %v, want 2", len(pm.Pcrs))
	}
	e := pm.Get(digest.SHA256, 0)
	if e == nil || !bytes.Equal(e.Value, bytes.Repeat([]byte{1}, 32)) {
		t.Errorf("Get() = %v, want replaced entry", e)
	}
	if pm.Get(digest.SHA384, 0) != nil {
		t.Errorf("Get() returned entry for missing bank")
	}
	if _, ok := pm.EventLog(digest.SHA1, 0); ok {
		t.Errorf("EventLog() returned log for PCR without event log")
	}
	if l, ok := pm.EventLog(digest.SHA256, 0); !ok || len(l) != 1 {
		t.Errorf("EventLog() = %v, %v, want 1 entry", l, ok)
	}
	banks := pm.Banks()
	if len(banks) != 2 || banks[0] != digest.SHA1 || banks[1] != digest.SHA256 {
		t.Errorf("Banks() = %v", banks)
	}

	var nilManifest *PcrManifest
	if nilManifest.Get(digest.SHA1, 0) != nil {
		t.Errorf("Get() on nil manifest must return nil")
	}
}

const testXml = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Measurement xmlns="lib:wml:measurements:1.0" Label="ISecL_Default_Application_Flavor_v2.0_TPM2.0" Uuid="7a9ac586-40f9-43b2-976b-26667431efca" DigestAlg="SHA384">
  <Dir Exclude="" Include=".*" Path="/opt/tbootxm/bin">3519466d871c395ce1f5b073a4a3847b6b8f0b3e495337daa0474f967aeecd48f699df29a4d106288f3b0d1705ecef75</Dir>
  <File Path="/opt/tbootxm/bin/tpmextend">b936d9ec4b8c7823efb01d946a7caa074bdfffdbd11dc20108ba771b8ef65d8efc72b559cd605b1ba0d70ef99e84ba55</File>
  <Symlink Path="/opt/tbootxm/bin/link">0cbfb1e4d7f6d5fd7c44d6a3ad2c4bd0a2e4f1b0d0f3c2b2b8d2d5ad7e9d8c1a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e</Symlink>
  <CumulativeHash>be7c2c93d8fd084a6b5ba0b4641f02315bde361202b36c4b88eefefa6928a2c17ac0e65ec6aeb930220cf079e46bcb9f</CumulativeHash>
</Measurement>`

func TestParseMeasurementLog(t *testing.T) {
	tests := []struct {
		name      string
		xml       string
		wantLen   int
		wantLabel string
		wantErr   bool
	}{
		{
			name:      "Valid Log",
			xml:       testXml,
			wantLen:   3,
			wantLabel: "ISecL_Default_Application_Flavor_v2.0_TPM2.0",
		},
		{
			name:    "Invalid XML",
			xml:     "<Measurement",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMeasurementLog(tt.xml)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMeasurementLog() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if len(got.Measurements) != tt.wantLen {
				t.Errorf("len(Measurements) = %v, want %v", len(got.Measurements), tt.wantLen)
			}
			if got.Label != tt.wantLabel {
				t.Errorf("Label = %v, want %v", got.Label, tt.wantLabel)
			}
			if got.DigestAlg != "SHA384" {
				t.Errorf("DigestAlg = %v, want SHA384", got.DigestAlg)
			}
			if len(got.CumulativeHash) != 48 {
				t.Errorf("len(CumulativeHash) = %v, want 48", len(got.CumulativeHash))
			}
			if got.Measurements[0].Type != DirectoryMeasurementType ||
				got.Measurements[1].Type != FileMeasurementType ||
				got.Measurements[2].Type != SymlinkMeasurementType {
				t.Errorf("unexpected measurement types %v", got.Measurements)
			}
		})
	}
}

func TestMeasurementLogFor(t *testing.T) {
	manifest := &HostManifest{MeasurementXmls: []string{testXml}}

	tests := []struct {
		name     string
		flavorId string
		label    string
		want     bool
	}{
		{"Match By Uuid", "7a9ac586-40f9-43b2-976b-26667431efca", "custom", true},
		{"Match By Default Label", "00000000-0000-0000-0000-000000000000", "ISecL_Default_Application_Flavor_v2.0_TPM2.0", true},
		{"No Match", "00000000-0000-0000-0000-000000000000", "custom", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := manifest.MeasurementLogFor(tt.flavorId, tt.label)
			if err != nil {
				t.Fatalf("MeasurementLogFor() error = %v", err)
			}
			if (got != nil) != tt.want {
				t.Errorf("MeasurementLogFor() = %v, want match %v", got, tt.want)
			}
		})
	}
}

func TestHostManifestJson(t *testing.T) {
	data := []byte(`{
		"host_info": {"os_name": "RHEL", "tpm_version": "2.0"},
		"asset_tag_digest": "0102",
		"pcr_manifest": {"pcrs": [
			{"index": 0, "pcr_bank": "SHA1", "value": "0000000000000000000000000000000000000000",
			 "event_log": [{"label": "0x4fe", "value": "0101010101010101010101010101010101010101"}]}
		]}
	}`)

	var manifest HostManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if err := manifest.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if manifest.TpmVersion() != "2.0" {
		t.Errorf("TpmVersion() = %v", manifest.TpmVersion())
	}
	if !bytes.Equal(manifest.AssetTagDigest, []byte{1, 2}) {
		t.Errorf("AssetTagDigest = %v", manifest.AssetTagDigest)
	}
	l, ok := manifest.PcrManifest.EventLog(digest.SHA1, 0)
	if !ok || len(l) != 1 || l[0].Label != "0x4fe" {
		t.Errorf("EventLog() = %v, %v", l, ok)
	}
}
