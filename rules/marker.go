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
	"fmt"
	"strings"
)

// Marker classifies the aspect of trust a rule speaks to
type Marker string

const (
	MarkerPlatform   Marker = "PLATFORM"
	MarkerOs         Marker = "OS"
	MarkerHostUnique Marker = "HOST_UNIQUE"
	MarkerAssetTag   Marker = "ASSET_TAG"
	MarkerSoftware   Marker = "SOFTWARE"
)

var markers = []Marker{MarkerPlatform, MarkerOs, MarkerHostUnique, MarkerAssetTag, MarkerSoftware}

// ParseMarker parses a marker case-insensitively
func ParseMarker(s string) (Marker, error) {
	for _, m := range markers {
		if strings.EqualFold(string(m), s) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown trust marker %q", s)
}

func (m Marker) String() string {
	return string(m)
}
