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
	"slices"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/rules"
)

// BootGuardProfile5 is the Boot Guard profile for which PCR 7 is verified
const BootGuardProfile5 = "BTGP5"

// Reader creates the vendor specific rules for all flavor parts except
// SOFTWARE, which is verified the same way for every vendor
type Reader interface {
	// PolicyName is the name of the created policies
	PolicyName() string
	Rules(f *flavor.Flavor, part flavor.Part, a *anchors.TrustAnchors) []rules.Rule
}

type intelReader struct{}

func (intelReader) PolicyName() string {
	return "Intel Host Trust Policy"
}

func (intelReader) Rules(f *flavor.Flavor, part flavor.Part, a *anchors.TrustAnchors) []rules.Rule {
	switch part {
	case flavor.Platform:
		return slices.Concat(
			[]rules.Rule{aikCertificateTrusted(a, part)},
			pcrMatchesConstant(f, []int{0, 17}, rules.MarkerPlatform),
		)
	case flavor.Os:
		return slices.Concat(
			[]rules.Rule{aikCertificateTrusted(a, part)},
			pcrMatchesConstant(f, []int{18}, rules.MarkerOs),
		)
	case flavor.HostUnique:
		return slices.Concat(
			[]rules.Rule{aikCertificateTrusted(a, part)},
			pcrEventLogIncludes(f, []int{19}, rules.MarkerHostUnique),
			tboot(f, pcrEventLogIntegrity(f, []int{19}, rules.MarkerHostUnique)),
		)
	case flavor.AssetTag:
		return assetTagRules(f, a)
	}
	return nil
}

// intelDaReader handles Intel hosts with TPM 2.0
type intelDaReader struct {
	intelReader
}

func (intelDaReader) Rules(f *flavor.Flavor, part flavor.Part, a *anchors.TrustAnchors) []rules.Rule {
	switch part {
	case flavor.Platform:
		return slices.Concat(
			[]rules.Rule{aikCertificateTrusted(a, part)},
			pcrMatchesConstant(f, platformPcrs(f), rules.MarkerPlatform),
			pcrEventLogEqualsExcluding(f, []int{17, 18}, rules.MarkerPlatform),
			tboot(f, pcrEventLogIntegrity(f, []int{17, 18}, rules.MarkerPlatform)),
		)
	case flavor.Os:
		return slices.Concat(
			[]rules.Rule{aikCertificateTrusted(a, part)},
			tboot(f, pcrEventLogIntegrity(f, []int{17}, rules.MarkerOs)),
			pcrEventLogIncludes(f, []int{17}, rules.MarkerOs),
		)
	case flavor.HostUnique:
		return slices.Concat(
			[]rules.Rule{aikCertificateTrusted(a, part)},
			pcrEventLogIncludes(f, []int{17, 18}, rules.MarkerHostUnique),
			tboot(f, pcrEventLogIntegrity(f, []int{17, 18}, rules.MarkerHostUnique)),
		)
	case flavor.AssetTag:
		return assetTagRules(f, a)
	}
	return nil
}

// platformPcrs returns PCR 0 and, depending on the enabled platform
// features, the additional PCRs present in the flavor
func platformPcrs(f *flavor.Flavor) []int {
	indices := []int{0}
	if f.CbntEnabled(BootGuardProfile5) {
		indices = append(indices, pcrsPresent(f, 7)...)
	}
	if f.SuefiEnabled() {
		indices = append(indices, pcrsPresent(f, 0, 1, 2, 3, 4, 5, 6, 7)...)
	}
	slices.Sort(indices)
	return slices.Compact(indices)
}

// microsoftReader handles Windows hosts with TPM 1.2 and 2.0
type microsoftReader struct{}

func (microsoftReader) PolicyName() string {
	return "Microsoft Host Trust Policy"
}

func (microsoftReader) Rules(f *flavor.Flavor, part flavor.Part, a *anchors.TrustAnchors) []rules.Rule {
	switch part {
	case flavor.Platform:
		return slices.Concat(
			[]rules.Rule{aikCertificateTrusted(a, part)},
			pcrMatchesConstant(f, []int{0}, rules.MarkerPlatform),
		)
	case flavor.Os:
		return slices.Concat(
			[]rules.Rule{aikCertificateTrusted(a, part)},
			pcrMatchesConstant(f, []int{13, 14}, rules.MarkerOs),
		)
	case flavor.AssetTag:
		return assetTagRules(f, a)
	}
	return nil
}

// vmwareReader handles ESXi hosts. ESXi does not report an AIK certificate
type vmwareReader struct{}

func (vmwareReader) PolicyName() string {
	return "VMware Host Trust Policy"
}

func (vmwareReader) Rules(f *flavor.Flavor, part flavor.Part, a *anchors.TrustAnchors) []rules.Rule {
	switch part {
	case flavor.Platform:
		return pcrMatchesConstant(f, []int{0, 17}, rules.MarkerPlatform)
	case flavor.Os:
		return slices.Concat(
			pcrMatchesConstant(f, []int{18, 20}, rules.MarkerOs),
			pcrEventLogEqualsExcluding(f, []int{19}, rules.MarkerOs),
			pcrEventLogIntegrity(f, []int{19}, rules.MarkerOs),
		)
	case flavor.HostUnique:
		return slices.Concat(
			pcrEventLogIncludes(f, []int{19}, rules.MarkerHostUnique),
			pcrEventLogIntegrity(f, []int{19}, rules.MarkerHostUnique),
		)
	case flavor.AssetTag:
		return vmwareAssetTagRules(f, a)
	}
	return nil
}

type vmwareDaReader struct {
	vmwareReader
}

func (vmwareDaReader) Rules(f *flavor.Flavor, part flavor.Part, a *anchors.TrustAnchors) []rules.Rule {
	switch part {
	case flavor.Platform:
		return slices.Concat(
			pcrMatchesConstant(f, []int{0, 17, 18}, rules.MarkerPlatform),
			pcrEventLogEquals(f, []int{17, 18}, rules.MarkerPlatform),
			pcrEventLogIntegrity(f, []int{17, 18}, rules.MarkerPlatform),
		)
	case flavor.Os:
		return slices.Concat(
			pcrMatchesConstant(f, []int{19}, rules.MarkerOs),
			pcrEventLogEquals(f, []int{19}, rules.MarkerOs),
			pcrEventLogEqualsExcluding(f, []int{20, 21}, rules.MarkerOs),
			pcrEventLogIntegrity(f, []int{19, 20, 21}, rules.MarkerOs),
		)
	case flavor.HostUnique:
		return slices.Concat(
			pcrEventLogIncludes(f, []int{20, 21}, rules.MarkerHostUnique),
			pcrEventLogIntegrity(f, []int{20, 21}, rules.MarkerHostUnique),
		)
	case flavor.AssetTag:
		return vmwareAssetTagRules(f, a)
	}
	return nil
}

// assetTagRules verify the tag certificate and the digest provisioned to
// the host, if the flavor has an external section
func assetTagRules(f *flavor.Flavor, a *anchors.TrustAnchors) []rules.Rule {
	if f.External == nil {
		return nil
	}
	return slices.Concat(
		[]rules.Rule{tagCertificateTrusted(f, a)},
		assetTagMatches(f),
	)
}

// vmwareAssetTagRules verify the tag certificate and PCR 22, into which
// ESXi extends the asset tag
func vmwareAssetTagRules(f *flavor.Flavor, a *anchors.TrustAnchors) []rules.Rule {
	if f.External == nil {
		return nil
	}
	return slices.Concat(
		[]rules.Rule{tagCertificateTrusted(f, a)},
		pcrMatchesConstant(f, []int{22}, rules.MarkerAssetTag),
	)
}
