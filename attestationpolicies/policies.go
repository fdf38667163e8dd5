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

package attestationpolicies

import (
	"encoding/json"
	"fmt"

	"github.com/Fraunhofer-AISEC/hostverifier/trustreport"
	"github.com/robertkrimen/otto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "policies")

// JavaScriptValidator evaluates custom JavaScript policies against trust
// reports
type JavaScriptValidator struct {
	policies []byte
}

// NewPolicyValidator creates a validator for the given JavaScript policies.
// The script finds the JSON encoded trust report in the variable 'json'
// and must evaluate to a boolean. Besides the report fields 'trusted',
// 'fault_count' and 'results', every result carries 'rule_name', 'trusted',
// 'flavor_id' and its 'faults' with 'fault_name'. console.log() is
// available for diagnostics. Example, accepting a host whose only faults
// are unexpected PCR17 entries:
//
//	var report = JSON.parse(json);
//	report.results.every(function (r) {
//		return r.trusted || r.faults.every(function (f) {
//			return f.fault_name == "PcrEventLogContainsUnexpectedEntries" &&
//				f.pcr_index == 17;
//		});
//	})
func NewPolicyValidator(policies []byte) *JavaScriptValidator {
	return &JavaScriptValidator{policies: policies}
}

// Validate returns true if the policies accept the trust report. A nil
// report, a failing script or a non-boolean result are rejections
func (p *JavaScriptValidator) Validate(report *trustreport.TrustReport) bool {
	if report == nil {
		log.Warn("No trust report to validate against custom policies")
		return false
	}

	ok, err := p.evaluate(report)
	if err != nil {
		log.Warnf("Custom policies rejected trust report: %v", err)
		return false
	}

	log.Debugf("Custom policies on %v report with %v faults: %v",
		report.PolicyName, report.FaultCount(), ok)

	return ok
}

func (p *JavaScriptValidator) evaluate(report *trustreport.TrustReport) (bool, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return false, fmt.Errorf("failed to marshal trust report: %w", err)
	}

	vm := otto.New()
	if err := vm.Set("json", string(data)); err != nil {
		return false, fmt.Errorf("failed to pass trust report: %w", err)
	}

	val, err := vm.Run(string(p.policies))
	if err != nil {
		return false, fmt.Errorf("failed to run policies: %w", err)
	}
	if !val.IsBoolean() {
		return false, fmt.Errorf("policies returned %q instead of a boolean", val.String())
	}
	return val.ToBoolean()
}
