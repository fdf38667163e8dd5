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
	"fmt"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/rules"
)

// fromPcrs creates one rule per flavor PCR of every bank whose index is
// listed. PCRs without value are skipped, as are PCRs for which build
// returns nil
func fromPcrs(f *flavor.Flavor, indices []int, build func(e *hostmanifest.PcrEntry) rules.Rule) []rules.Rule {
	rs := []rules.Rule{}
	for _, bank := range f.Pcrs.Banks() {
		for _, index := range indices {
			e := f.Pcr(bank, index)
			if e == nil || len(e.Value) == 0 {
				continue
			}
			r := build(e)
			if r == nil {
				continue
			}
			log.Tracef("Created %v rule for PCR %v (%v)", r.Name(), index, bank)
			rs = append(rs, r)
		}
	}
	return rs
}

func pcrMatchesConstant(f *flavor.Flavor, indices []int, markers ...rules.Marker) []rules.Rule {
	return fromPcrs(f, indices, func(e *hostmanifest.PcrEntry) rules.Rule {
		return rules.NewPcrMatchesConstant(e.Pcr, markers...)
	})
}

func pcrEventLogIntegrity(f *flavor.Flavor, indices []int, markers ...rules.Marker) []rules.Rule {
	return fromPcrs(f, indices, func(e *hostmanifest.PcrEntry) rules.Rule {
		return rules.NewPcrEventLogIntegrity(e.Pcr, markers...)
	})
}

func pcrEventLogIncludes(f *flavor.Flavor, indices []int, markers ...rules.Marker) []rules.Rule {
	return fromPcrs(f, indices, func(e *hostmanifest.PcrEntry) rules.Rule {
		if len(e.EventLog) == 0 {
			return nil
		}
		return rules.NewPcrEventLogIncludes(e.Bank, e.Index, e.EventLog, markers...)
	})
}

func pcrEventLogEquals(f *flavor.Flavor, indices []int, markers ...rules.Marker) []rules.Rule {
	return fromPcrs(f, indices, func(e *hostmanifest.PcrEntry) rules.Rule {
		if len(e.EventLog) == 0 {
			return nil
		}
		return rules.NewPcrEventLogEquals(e.Bank, e.Index, e.EventLog, markers...)
	})
}

func pcrEventLogEqualsExcluding(f *flavor.Flavor, indices []int, markers ...rules.Marker) []rules.Rule {
	return fromPcrs(f, indices, func(e *hostmanifest.PcrEntry) rules.Rule {
		if len(e.EventLog) == 0 {
			return nil
		}
		return rules.NewPcrEventLogEqualsExcluding(e.Bank, e.Index, e.EventLog, markers...)
	})
}

// pcrsPresent returns the indices for which the flavor holds a PCR in any bank
func pcrsPresent(f *flavor.Flavor, indices ...int) []int {
	present := []int{}
	for _, index := range indices {
		for _, bank := range f.Pcrs.Banks() {
			if f.Pcr(bank, index) != nil {
				present = append(present, index)
				break
			}
		}
	}
	return present
}

// tboot returns the rules only if tboot is installed according to the flavor
func tboot(f *flavor.Flavor, rs []rules.Rule) []rules.Rule {
	if !f.TbootInstalled() {
		return nil
	}
	return rs
}

func aikCertificateTrusted(a *anchors.TrustAnchors, part flavor.Part) rules.Rule {
	return rules.NewAikCertificateTrusted(a.PrivacyCAs, rules.Marker(part))
}

// tagCertificateTrusted checks the flavor tag certificate or, if the flavor
// has none, the certificate reported by the host
func tagCertificateTrusted(f *flavor.Flavor, a *anchors.TrustAnchors) rules.Rule {
	return rules.NewTagCertificateTrusted(a.AssetTagCAs, f.TagCertificate(), rules.MarkerAssetTag)
}

func assetTagMatches(f *flavor.Flavor) []rules.Rule {
	if f.TagCertificate() == nil {
		return nil
	}
	return []rules.Rule{rules.NewAssetTagMatchesFromCertificate(f.TagCertificate(), rules.MarkerAssetTag)}
}

// softwareRules are created for SOFTWARE flavors of every vendor
func softwareRules(f *flavor.Flavor) ([]rules.Rule, error) {
	if f.Software == nil {
		return nil, nil
	}
	alg, err := digest.ParseAlgorithm(f.Meta.Description.DigestAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid digest algorithm of software flavor %v: %w", f.Id(), err)
	}
	id := f.Meta.ID
	label := f.Label()
	return []rules.Rule{
		rules.NewXmlMeasurementsDigestEquals(id, alg, rules.MarkerSoftware),
		rules.NewPcr15EventLogIntegrity(id, rules.MarkerSoftware),
		rules.NewXmlMeasurementLogIntegrity(id, label, f.Software.CumulativeHash, rules.MarkerSoftware),
		rules.NewXmlMeasurementLogEquals(id, label, f.Software.Measurements, rules.MarkerSoftware),
	}, nil
}
