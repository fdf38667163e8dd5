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
	"fmt"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
)

// Well-known keys of the measurement info map
const (
	InfoComponentName = "ComponentName"
	InfoPackageName   = "PackageName"
	InfoPackageVendor = "PackageVendor"
	InfoEventType     = "EventType"
	InfoEventName     = "EventName"
)

// Measurement is a single event which was extended into a PCR. Measurements
// are compared by their digest value only
type Measurement struct {
	Label string            `json:"label" cbor:"0,keyasint"`
	Value digest.HexByte    `json:"value" cbor:"1,keyasint"`
	Info  map[string]string `json:"info,omitempty" cbor:"2,keyasint,omitempty"`
}

func (m Measurement) Equal(other Measurement) bool {
	return bytes.Equal(m.Value, other.Value)
}

func (m Measurement) String() string {
	return fmt.Sprintf("%v (%v)", m.Label, m.Value)
}

// EventLog is the ordered list of measurements extended into a PCR
type EventLog []Measurement

// Contains returns true if a measurement with the same value is present
func (l EventLog) Contains(m Measurement) bool {
	for _, e := range l {
		if e.Equal(m) {
			return true
		}
	}
	return false
}

// Subtract returns all entries of l whose value is not present in other.
// Duplicates in l are preserved
func (l EventLog) Subtract(other EventLog) EventLog {
	diff := EventLog{}
	for _, m := range l {
		if !other.Contains(m) {
			diff = append(diff, m)
		}
	}
	return diff
}

// Unique drops entries with a value already seen earlier in the log
func (l EventLog) Unique() EventLog {
	u := EventLog{}
	for _, m := range l {
		if !u.Contains(m) {
			u = append(u, m)
		}
	}
	return u
}

// Filter returns the entries for which keep returns true
func (l EventLog) Filter(keep func(Measurement) bool) EventLog {
	f := EventLog{}
	for _, m := range l {
		if keep(m) {
			f = append(f, m)
		}
	}
	return f
}

// Values returns the measurement values in log order
func (l EventLog) Values() [][]byte {
	values := make([][]byte, 0, len(l))
	for _, m := range l {
		values = append(values, m.Value)
	}
	return values
}

// Replay computes the PCR value resulting from extending all
// measurements of the log in order
func (l EventLog) Replay(alg digest.Algorithm) (digest.Digest, error) {
	return digest.Fold(alg, l.Values()...)
}

// Equal compares two logs entry by entry including the order
func (l EventLog) Equal(other EventLog) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if !l[i].Equal(other[i]) || l[i].Label != other[i].Label {
			return false
		}
	}
	return true
}
