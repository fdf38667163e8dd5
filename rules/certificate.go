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
	"bytes"
	"crypto/x509"
	"time"

	"github.com/Fraunhofer-AISEC/hostverifier/assettag"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
)

const (
	AikCertificateTrustedName = "AikCertificateTrusted"
	TagCertificateTrustedName = "TagCertificateTrusted"
)

// AikCertificateTrusted requires the AIK certificate of the host to be valid
// and signed by one of the privacy CAs
type AikCertificateTrusted struct {
	base
	anchors []*x509.Certificate
}

func NewAikCertificateTrusted(privacyCAs []*x509.Certificate, markers ...Marker) *AikCertificateTrusted {
	return &AikCertificateTrusted{
		base:    base{RuleMarkers: markers},
		anchors: privacyCAs,
	}
}

func (r *AikCertificateTrusted) Name() string {
	return AikCertificateTrustedName
}

func (r *AikCertificateTrusted) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)

	aik := m.Aik()
	if aik == nil {
		result.fault(aikCertificateMissing())
		return result
	}

	now := time.Now()
	if now.After(aik.NotAfter) {
		result.fault(aikCertificateExpired(aik.NotAfter))
	} else if now.Before(aik.NotBefore) {
		result.fault(aikCertificateNotYetValid(aik.NotBefore))
	}

	trusted := false
	for _, ca := range r.anchors {
		if !bytes.Equal(ca.RawSubject, aik.RawIssuer) {
			continue
		}
		log.Debugf("Found matching CA %v", ca.Subject.CommonName)

		// The CA must have been valid when it signed the AIK certificate
		if aik.NotBefore.Before(ca.NotBefore) || aik.NotBefore.After(ca.NotAfter) {
			log.Debugf("CA %v was not valid at %v", ca.Subject.CommonName, aik.NotBefore)
			continue
		}
		if err := ca.CheckSignature(aik.SignatureAlgorithm, aik.RawTBSCertificate, aik.Signature); err != nil {
			log.Debugf("Failed to verify AIK signature with CA %v: %v", ca.Subject.CommonName, err)
			continue
		}

		log.Debugf("Verified AIK signature with CA %v", ca.Subject.CommonName)
		trusted = true
		break
	}
	if !trusted {
		result.fault(aikCertificateNotTrusted())
	}

	return result
}

func (r *AikCertificateTrusted) Equal(other Rule) bool {
	o, ok := other.(*AikCertificateTrusted)
	return ok && r.sameMarkers(o) && sameCerts(r.anchors, o.anchors)
}

// TagCertificateTrusted requires the asset tag certificate to be signed by
// one of the asset tag CAs and to be valid
type TagCertificateTrusted struct {
	base
	anchors []*x509.Certificate

	// Certificate is the provisioned certificate. If nil, the certificate
	// reported by the host is checked
	Certificate *assettag.AttributeCertificate `json:"tag_certificate,omitempty" cbor:"0,keyasint,omitempty"`
}

func NewTagCertificateTrusted(assetTagCAs []*x509.Certificate, cert *assettag.AttributeCertificate, markers ...Marker) *TagCertificateTrusted {
	return &TagCertificateTrusted{
		base:        base{RuleMarkers: markers},
		anchors:     assetTagCAs,
		Certificate: cert,
	}
}

func (r *TagCertificateTrusted) Name() string {
	return TagCertificateTrustedName
}

func (r *TagCertificateTrusted) Apply(m *hostmanifest.HostManifest) *RuleResult {
	result := newResult(r)

	tag := r.Certificate
	if tag == nil {
		tag = m.TagCertificate
	}
	if tag == nil {
		result.fault(tagCertificateMissing())
		return result
	}

	trusted := false
	for _, ca := range r.anchors {
		if err := tag.CheckSignatureFrom(ca); err != nil {
			log.Debugf("Failed to verify tag certificate with CA %v: %v", ca.Subject.CommonName, err)
			continue
		}
		// The CA must be valid for the whole validity period of the tag certificate
		if !validAt(ca, tag.NotBefore) || !validAt(ca, tag.NotAfter) {
			log.Debugf("CA %v does not cover validity of tag certificate (%v - %v)",
				ca.Subject.CommonName, tag.NotBefore, tag.NotAfter)
			continue
		}
		trusted = true
		break
	}
	if !trusted {
		result.fault(tagCertificateNotTrusted())
		return result
	}

	now := time.Now()
	if now.Before(tag.NotBefore) {
		result.fault(tagCertificateNotYetValid(tag.NotBefore))
	}
	if now.After(tag.NotAfter) {
		result.fault(tagCertificateExpired(tag.NotAfter))
	}

	return result
}

func (r *TagCertificateTrusted) Equal(other Rule) bool {
	o, ok := other.(*TagCertificateTrusted)
	if !ok || !r.sameMarkers(o) || !sameCerts(r.anchors, o.anchors) {
		return false
	}
	if r.Certificate == nil || o.Certificate == nil {
		return r.Certificate == o.Certificate
	}
	return bytes.Equal(r.Certificate.Raw, o.Certificate.Raw)
}

func validAt(c *x509.Certificate, t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

func sameCerts(a, b []*x509.Certificate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
