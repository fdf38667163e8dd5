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
	"fmt"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/google/go-eventlog/register"
	"github.com/google/go-eventlog/tcg"
)

const (
	DefaultBinaryBiosMeasurements = "/sys/kernel/security/tpm0/binary_bios_measurements"
)

// ImportTcgEventLog parses a binary TCG event log, e.g. from the Linux
// securityfs binary_bios_measurements, and attaches the events of the
// specified bank as event logs to the PCR manifest. Existing event logs
// of the affected PCRs are replaced, PCR values are kept
func (m *HostManifest) ImportTcgEventLog(data []byte, bank digest.Algorithm) error {

	alg, err := eventlogHash(bank)
	if err != nil {
		return err
	}

	eventlog, err := tcg.ParseEventLog(data, tcg.ParseOpts{AllowPadding: true})
	if err != nil {
		return fmt.Errorf("failed to parse TCG eventlog: %w", err)
	}

	logs := map[int]EventLog{}
	order := []int{}
	for _, event := range eventlog.Events(alg) {
		index := int(event.MRIndex())
		if _, ok := logs[index]; !ok {
			order = append(order, index)
		}
		logs[index] = append(logs[index], Measurement{
			Label: fmt.Sprintf("0x%x", uint32(event.Type)),
			Value: event.Digest,
			Info: map[string]string{
				InfoEventName: event.Type.String(),
			},
		})
	}

	if m.PcrManifest == nil {
		m.PcrManifest = &PcrManifest{}
	}

	for _, index := range order {
		entry := PcrEntry{
			Pcr: Pcr{
				Index: index,
				Bank:  bank,
			},
		}
		if existing := m.PcrManifest.Get(bank, index); existing != nil {
			entry.Pcr = existing.Pcr
		} else {
			log.Debugf("PCR%v (%v) not present in manifest, adding event log only", index, bank)
		}
		entry.EventLog = logs[index]
		m.PcrManifest.Set(entry)
	}

	log.Debugf("Imported %v event logs of bank %v", len(order), bank)

	return nil
}

func eventlogHash(bank digest.Algorithm) (register.HashAlg, error) {
	switch bank {
	case digest.SHA1:
		return register.HashSHA1, nil
	case digest.SHA256:
		return register.HashSHA256, nil
	case digest.SHA384:
		return register.HashSHA384, nil
	default:
		return 0, fmt.Errorf("%w: %q", digest.ErrUnsupportedAlgorithm, bank)
	}
}
