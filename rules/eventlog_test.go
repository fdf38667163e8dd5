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
	"testing"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
)

var (
	logA = event("a", "a")
	logB = event("b", "b")
	logC = event("c", "c")
)

func TestPcrEventLogEquals(t *testing.T) {
	expected := hostmanifest.EventLog{logA, logB}

	type args struct {
		actual hostmanifest.EventLog
	}
	tests := []struct {
		name           string
		args           args
		want           []FaultType
		wantUnexpected int
		wantMissing    int
	}{
		{
			name: "Identical",
			args: args{hostmanifest.EventLog{logA, logB}},
		},
		{
			name:        "Missing Entry",
			args:        args{hostmanifest.EventLog{logA}},
			want:        []FaultType{PcrEventLogMissingExpectedEntries},
			wantMissing: 1,
		},
		{
			name:           "Unexpected Entry",
			args:           args{hostmanifest.EventLog{logA, logB, logC}},
			want:           []FaultType{PcrEventLogContainsUnexpectedEntries},
			wantUnexpected: 1,
		},
		{
			name:           "Replaced Entry",
			args:           args{hostmanifest.EventLog{logA, logC}},
			want:           []FaultType{PcrEventLogContainsUnexpectedEntries, PcrEventLogMissingExpectedEntries},
			wantUnexpected: 1,
			wantMissing:    1,
		},
		{
			name: "Ignored Label",
			args: args{hostmanifest.EventLog{logA, logB, event("0x4FE", "platform")}},
		},
		{
			name: "Empty",
			args: args{hostmanifest.EventLog{}},
			want: []FaultType{PcrEventLogMissing},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := manifestWith("2.0", pcr(digest.SHA256, 17, nil, tt.args.actual))
			got := NewPcrEventLogEquals(digest.SHA256, 17, expected, MarkerPlatform).Apply(m)
			checkFaults(t, got, tt.want...)
			for _, f := range got.Faults {
				switch f.Type {
				case PcrEventLogContainsUnexpectedEntries:
					if len(f.UnexpectedEntries) != tt.wantUnexpected {
						t.Errorf("got %v unexpected entries, want %v", len(f.UnexpectedEntries), tt.wantUnexpected)
					}
				case PcrEventLogMissingExpectedEntries:
					if len(f.MissingEntries) != tt.wantMissing {
						t.Errorf("got %v missing entries, want %v", len(f.MissingEntries), tt.wantMissing)
					}
				}
			}
		})
	}
}

func TestPcrEventLogEqualsExcluding(t *testing.T) {
	expected := hostmanifest.EventLog{logA}

	hostSpecific := event("initrd", "host specific")
	hostSpecific.Info = map[string]string{hostmanifest.InfoComponentName: "initrd"}

	dynamic := event("dynamic", "dynamic")
	dynamic.Info = map[string]string{
		hostmanifest.InfoComponentName: "dyn",
		hostmanifest.InfoPackageName:   "",
		hostmanifest.InfoPackageVendor: "",
	}

	other := event("module", "module")
	other.Info = map[string]string{hostmanifest.InfoComponentName: "module"}

	tests := []struct {
		name   string
		actual hostmanifest.EventLog
		want   []FaultType
	}{
		{"Host Specific Module", hostmanifest.EventLog{logA, hostSpecific}, nil},
		{"Dynamic Module", hostmanifest.EventLog{logA, dynamic}, nil},
		{"Other Module", hostmanifest.EventLog{logA, other}, []FaultType{PcrEventLogContainsUnexpectedEntries}},
		{"Only Excluded Modules", hostmanifest.EventLog{hostSpecific}, []FaultType{PcrEventLogMissing}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := manifestWith("2.0", pcr(digest.SHA256, 18, nil, tt.actual))
			got := NewPcrEventLogEqualsExcluding(digest.SHA256, 18, expected, MarkerPlatform).Apply(m)
			checkFaults(t, got, tt.want...)
		})
	}
}

func TestPcrEventLogIncludes(t *testing.T) {
	tests := []struct {
		name     string
		expected hostmanifest.EventLog
		actual   hostmanifest.EventLog
		want     []FaultType
	}{
		{"Subset", hostmanifest.EventLog{logA}, hostmanifest.EventLog{logA, logB}, nil},
		{"Duplicates Expected", hostmanifest.EventLog{logA, logA}, hostmanifest.EventLog{logA}, nil},
		{"Missing", hostmanifest.EventLog{logA, logC}, hostmanifest.EventLog{logA, logB}, []FaultType{PcrEventLogMissingExpectedEntries}},
		{"No Event Log", hostmanifest.EventLog{logA}, nil, []FaultType{PcrEventLogMissing}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := manifestWith("2.0", pcr(digest.SHA256, 19, nil, tt.actual))
			got := NewPcrEventLogIncludes(digest.SHA256, 19, tt.expected, MarkerHostUnique).Apply(m)
			checkFaults(t, got, tt.want...)
		})
	}
}

func TestEventLogRulesWithoutManifest(t *testing.T) {
	m := &hostmanifest.HostManifest{}
	expected := hostmanifest.EventLog{logA}

	for _, r := range []Rule{
		NewPcrEventLogIncludes(digest.SHA256, 17, expected, MarkerPlatform),
		NewPcrEventLogEquals(digest.SHA256, 17, expected, MarkerPlatform),
		NewPcrEventLogEqualsExcluding(digest.SHA256, 17, expected, MarkerPlatform),
	} {
		t.Run(r.Name(), func(t *testing.T) {
			got := r.Apply(m)
			checkFaults(t, got, PcrEventLogMissing)
			if got.Faults[0].PcrIndex != nil {
				t.Errorf("expected no PCR index in fault")
			}
		})
	}
}

func TestEventLogRulesNotBoundToPcr(t *testing.T) {
	for _, r := range []PcrRule{
		NewPcrEventLogEquals(digest.SHA256, 17, nil, MarkerPlatform),
		NewPcrEventLogEqualsExcluding(digest.SHA256, 17, nil, MarkerPlatform),
	} {
		if r.ExpectedPcr() != nil {
			t.Errorf("%v: ExpectedPcr() = %v, want nil", r.Name(), r.ExpectedPcr())
		}
	}
}
