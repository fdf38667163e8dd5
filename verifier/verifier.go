// Copyright (c) 2021 - 2025 Fraunhofer AISEC
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

// Package verifier verifies host manifests against signed flavors and
// assembles the trust reports
package verifier

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/policy"
	"github.com/Fraunhofer-AISEC/hostverifier/rules"
	"github.com/Fraunhofer-AISEC/hostverifier/trustreport"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "verifier")

// Verifier builds the policy for a flavor and applies it to a host manifest.
// It holds no per-verification state and can be used concurrently
type Verifier struct {
	manager *policy.Manager
	workers int
}

// New creates a verifier with the given trust anchors. The anchors must be
// fully loaded, they are shared read-only by all rules
func New(a *anchors.TrustAnchors) *Verifier {
	return &Verifier{
		manager: policy.NewManager(a),
		workers: runtime.NumCPU(),
	}
}

// Verify verifies the host manifest against the signed flavor. An error is
// returned only if no policy could be built for the flavor, trust failures
// are reported as faults within the trust report
func (v *Verifier) Verify(m *hostmanifest.HostManifest, sf *flavor.SignedFlavor, skipSignature bool) (*trustreport.TrustReport, error) {
	p, err := v.manager.Policy(sf, m, skipSignature)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}
	return ApplyPolicy(m, p, sf.Flavor.Meta.ID), nil
}

// ApplyPolicy applies all rules of the policy to the host manifest. All
// results except those of host scoped certificate rules are stamped with
// the flavor id
func ApplyPolicy(m *hostmanifest.HostManifest, p *policy.Policy, flavorId uuid.UUID) *trustreport.TrustReport {

	log.Debugf("Applying policy %q with %v rules", p.Name, len(p.Rules))

	report := trustreport.New(m, p.Name)
	for _, rule := range p.Rules {
		log.Tracef("Applying rule %v", rule.Name())
		result := rule.Apply(m)
		switch result.RuleName {
		case rules.TagCertificateTrustedName, rules.AikCertificateTrustedName:
		default:
			result.SetFlavorId(flavorId)
		}
		report.AddResult(result)
	}

	log.Debugf("Finished policy %q: trusted: %v, faults: %v", p.Name, report.Trusted(), report.FaultCount())

	return report
}

// VerifyAll verifies the host manifest against several flavors in parallel.
// The reports are returned in the order of the flavors. Flavors for which
// no policy could be built get a nil report, their errors are combined in
// the returned error
func (v *Verifier) VerifyAll(m *hostmanifest.HostManifest, flavors []*flavor.SignedFlavor, skipSignature bool) ([]*trustreport.TrustReport, error) {

	reports := make([]*trustreport.TrustReport, len(flavors))
	errs := make([]error, len(flavors))
	indexCh := make(chan int, len(flavors))

	numWorkers := min(max(v.workers, 1), len(flavors))
	log.Debugf("Verifying %v flavors using %v workers", len(flavors), numWorkers)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexCh {
				reports[idx], errs[idx] = v.Verify(m, flavors[idx], skipSignature)
			}
		}()
	}

	for i := range flavors {
		indexCh <- i
	}
	close(indexCh)
	wg.Wait()

	var result error
	for i, err := range errs {
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("flavor %v: %w", flavorId(flavors[i]), err))
		}
	}

	return reports, result
}

// Merge combines the reports of several flavors into a single host report
func Merge(policyName string, reports ...*trustreport.TrustReport) (*trustreport.TrustReport, error) {
	var merged *trustreport.TrustReport
	for _, r := range reports {
		if r == nil {
			continue
		}
		if merged == nil {
			merged = trustreport.New(r.HostManifest, policyName)
		}
		merged.Merge(r)
	}
	if merged == nil {
		return nil, errors.New("no trust reports to merge")
	}
	return merged, nil
}

func flavorId(sf *flavor.SignedFlavor) string {
	if sf == nil {
		return "<nil>"
	}
	return sf.Flavor.Id()
}
