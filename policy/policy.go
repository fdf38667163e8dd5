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

// Package policy builds the set of rules a host manifest is verified
// against from a flavor. The rules depend on the flavor part, the vendor of
// the host and the TPM version
package policy

import (
	"github.com/Fraunhofer-AISEC/hostverifier/rules"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "policy")

// Policy is a named set of rules. Rules which are equal to an already
// contained rule are not added again
type Policy struct {
	Name  string       `json:"name"`
	Rules []rules.Rule `json:"rules"`
}

func New(name string, rs ...rules.Rule) *Policy {
	p := &Policy{Name: name}
	p.Add(rs...)
	return p
}

// Add appends all rules which are not yet part of the policy
func (p *Policy) Add(rs ...rules.Rule) {
	for _, r := range rs {
		if p.Contains(r) {
			log.Tracef("Skipping duplicate rule %v", r.Name())
			continue
		}
		p.Rules = append(p.Rules, r)
	}
}

func (p *Policy) Contains(r rules.Rule) bool {
	for _, existing := range p.Rules {
		if existing.Equal(r) {
			return true
		}
	}
	return false
}
