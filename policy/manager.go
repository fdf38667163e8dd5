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
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/rules"
)

var ErrUnsupportedVendor = errors.New("no policy reader registered for this flavor")

const (
	VendorIntel     = "intel"
	VendorMicrosoft = "microsoft"
	VendorVmware    = "vmware"
	VendorUnknown   = "unknown"

	// tpm2Suffix selects the reader for TPM 2.0 hosts
	tpm2Suffix = "-da"
)

var readers = map[string]Reader{
	"intel":        intelReader{},
	"intel-da":     intelDaReader{},
	"microsoft":    microsoftReader{},
	"microsoft-da": microsoftReader{},
	"vmware":       vmwareReader{},
	"vmware-da":    vmwareDaReader{},
}

// osVendors maps the host OS names to vendors for flavors without vendor
var osVendors = map[string]string{
	"RHEL":                   VendorIntel,
	"REDHATENTERPRISESERVER": VendorIntel,
	"UBUNTU":                 VendorIntel,
	"WINDOWS":                VendorMicrosoft,
	"VMWARE ESXI":            VendorVmware,

	"MICROSOFT WINDOWS SERVER 2016 DATACENTER": VendorMicrosoft,
	"MICROSOFT WINDOWS SERVER 2016 STANDARD":   VendorMicrosoft,
}

// Manager selects the vendor reader for a flavor and host and builds the
// trust policy
type Manager struct {
	anchors *anchors.TrustAnchors
}

func NewManager(a *anchors.TrustAnchors) *Manager {
	if a == nil {
		a = &anchors.TrustAnchors{}
	}
	return &Manager{anchors: a}
}

// ReaderKey returns the key of the reader responsible for the flavor. The
// vendor is taken from the flavor or, if the flavor names none, derived from
// the host OS. A flavor vendor without a reader maps to VendorUnknown. The
// TPM version is taken from the flavor or the host
func ReaderKey(f *flavor.Flavor, m *hostmanifest.HostManifest) string {
	vendor := strings.ToLower(strings.TrimSpace(f.Meta.Vendor))
	switch {
	case vendor == "":
		var ok bool
		vendor, ok = osVendors[strings.ToUpper(strings.TrimSpace(m.HostInfo.OSName))]
		if !ok {
			vendor = VendorUnknown
		}
	case !slices.Contains([]string{VendorIntel, VendorMicrosoft, VendorVmware}, vendor):
		log.Debugf("Flavor vendor %q has no policy reader", f.Meta.Vendor)
		vendor = VendorUnknown
	}

	tpmVersion := f.Meta.Description.TpmVersion
	if tpmVersion == "" {
		tpmVersion = m.TpmVersion()
	}
	if strings.EqualFold(tpmVersion, "2.0") {
		vendor += tpm2Suffix
	}

	return vendor
}

// Reader returns the vendor reader for the flavor and host
func (mgr *Manager) Reader(f *flavor.Flavor, m *hostmanifest.HostManifest) (Reader, error) {
	key := ReaderKey(f, m)
	r, ok := readers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVendor, key)
	}
	log.Debugf("Selected policy reader %v for flavor %v", key, f.Id())
	return r, nil
}

// Policy builds the policy for verifying the host against the signed flavor.
// Unless skipSignature is set, the flavor signature is verified as well
func (mgr *Manager) Policy(sf *flavor.SignedFlavor, m *hostmanifest.HostManifest, skipSignature bool) (*Policy, error) {
	if sf == nil {
		return nil, errors.New("no flavor specified")
	}
	if m == nil {
		return nil, errors.New("no host manifest specified")
	}

	f := &sf.Flavor
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flavor: %w", err)
	}
	part, err := f.Part()
	if err != nil {
		return nil, err
	}

	reader, err := mgr.Reader(f, m)
	if err != nil {
		return nil, err
	}

	p := New(reader.PolicyName())
	if part == flavor.Software {
		rs, err := softwareRules(f)
		if err != nil {
			return nil, err
		}
		p.Add(rs...)
	} else {
		p.Add(reader.Rules(f, part, mgr.anchors)...)
	}

	if !skipSignature {
		p.Add(rules.NewFlavorTrusted(sf, mgr.anchors, rules.Marker(part)))
	}

	log.Debugf("Created policy %q with %v rules for %v flavor %v", p.Name, len(p.Rules), part, f.Id())

	return p, nil
}
