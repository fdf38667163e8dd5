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

// Package anchors loads the certificates all trust decisions are rooted in
package anchors

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "anchors")

// Config contains the paths to the PEM, DER or PKCS#7 encoded certificate
// bundles. Relative paths are resolved against the base directory passed
// to Load
type Config struct {
	PrivacyCAs        string `json:"privacyCas,omitempty"`
	AssetTagCAs       string `json:"assetTagCas,omitempty"`
	FlavorSigningCert string `json:"flavorSigningCert,omitempty"`
	FlavorCAs         string `json:"flavorCas,omitempty"`
}

// TrustAnchors holds the parsed certificates. It is loaded once and shared
// read-only by all rules
type TrustAnchors struct {
	PrivacyCAs  []*x509.Certificate
	AssetTagCAs []*x509.Certificate

	// FlavorSigningChain contains the flavor signing certificate first,
	// followed by optional intermediates
	FlavorSigningChain []*x509.Certificate
	FlavorCAs          []*x509.Certificate
}

// Load reads all configured certificate bundles. All failures are collected,
// an error is returned if any bundle could not be loaded
func Load(c *Config, base *string) (*TrustAnchors, error) {
	if c == nil {
		return nil, errors.New("no trust anchor configuration provided")
	}

	var result error
	a := &TrustAnchors{}

	load := func(name, path string) []*x509.Certificate {
		if path == "" {
			log.Debugf("No %v configured", name)
			return nil
		}
		certs, err := loadBundle(path, base)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to load %v: %w", name, err))
			return nil
		}
		log.Debugf("Loaded %v %v from %v", len(certs), name, path)
		return certs
	}

	a.PrivacyCAs = load("privacy CAs", c.PrivacyCAs)
	a.AssetTagCAs = load("asset tag CAs", c.AssetTagCAs)
	a.FlavorSigningChain = load("flavor signing certificate", c.FlavorSigningCert)
	a.FlavorCAs = load("flavor CAs", c.FlavorCAs)

	if result != nil {
		return nil, result
	}
	return a, nil
}

func loadBundle(path string, base *string) ([]*x509.Certificate, error) {
	data, err := internal.GetFile(path, base)
	if err != nil {
		return nil, err
	}
	certs, err := internal.ParseCerts(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", path, err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%v does not contain any certificates", path)
	}
	return certs, nil
}

// FlavorSigningCert returns the certificate whose key signs flavors. If flavor
// CAs are configured, the signing chain must verify against them. Otherwise
// the signing certificate is trusted directly
func (a *TrustAnchors) FlavorSigningCert() (*x509.Certificate, error) {
	if a == nil || len(a.FlavorSigningChain) == 0 {
		return nil, errors.New("no flavor signing certificate configured")
	}
	if len(a.FlavorCAs) == 0 {
		return a.FlavorSigningChain[0], nil
	}
	if _, err := internal.VerifyCertChain(a.FlavorSigningChain, a.FlavorCAs); err != nil {
		return nil, fmt.Errorf("failed to verify flavor signing certificate chain: %w", err)
	}
	return a.FlavorSigningChain[0], nil
}
