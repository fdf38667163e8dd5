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
	"sort"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
)

const (
	MaxPcrIndex = 23
)

// Pcr is the value of a single PCR of a specific bank
type Pcr struct {
	Index int              `json:"index" cbor:"0,keyasint"`
	Bank  digest.Algorithm `json:"pcr_bank" cbor:"1,keyasint"`
	Value digest.HexByte   `json:"value" cbor:"2,keyasint"`
}

// Digest returns the typed digest of the PCR value
func (p Pcr) Digest() (digest.Digest, error) {
	d, err := digest.New(p.Bank, p.Value)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("invalid value of PCR %v (%v): %w", p.Index, p.Bank, err)
	}
	return d, nil
}

func (p Pcr) Equal(other Pcr) bool {
	return p.Index == other.Index && p.Bank == other.Bank && bytes.Equal(p.Value, other.Value)
}

func (p Pcr) String() string {
	return fmt.Sprintf("PCR%v(%v)=%v", p.Index, p.Bank, p.Value)
}

// PcrEntry is a PCR value together with the event log claimed for it
type PcrEntry struct {
	Pcr
	EventLog EventLog `json:"event_log,omitempty" cbor:"3,keyasint,omitempty"`
}

func (e PcrEntry) Equal(other PcrEntry) bool {
	return e.Pcr.Equal(other.Pcr) && e.EventLog.Equal(other.EventLog)
}

// PcrManifest contains the PCR values and event logs of all banks reported by a host
type PcrManifest struct {
	Pcrs []PcrEntry `json:"pcrs" cbor:"0,keyasint"`
}

// Get returns the entry for the specified bank and index or nil
func (m *PcrManifest) Get(bank digest.Algorithm, index int) *PcrEntry {
	if m == nil {
		return nil
	}
	for i := range m.Pcrs {
		if m.Pcrs[i].Bank == bank && m.Pcrs[i].Index == index {
			return &m.Pcrs[i]
		}
	}
	return nil
}

// EventLog returns the event log of the specified PCR. The boolean is false
// if the PCR or its event log is not present
func (m *PcrManifest) EventLog(bank digest.Algorithm, index int) (EventLog, bool) {
	e := m.Get(bank, index)
	if e == nil || e.EventLog == nil {
		return nil, false
	}
	return e.EventLog, true
}

// Set inserts or replaces the entry with the same bank and index
func (m *PcrManifest) Set(entry PcrEntry) {
	for i := range m.Pcrs {
		if m.Pcrs[i].Bank == entry.Bank && m.Pcrs[i].Index == entry.Index {
			m.Pcrs[i] = entry
			return
		}
	}
	m.Pcrs = append(m.Pcrs, entry)
}

// Banks returns the sorted list of banks present in the manifest
func (m *PcrManifest) Banks() []digest.Algorithm {
	if m == nil {
		return nil
	}
	seen := map[digest.Algorithm]bool{}
	banks := []digest.Algorithm{}
	for _, p := range m.Pcrs {
		if !seen[p.Bank] {
			seen[p.Bank] = true
			banks = append(banks, p.Bank)
		}
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i] < banks[j] })
	return banks
}
