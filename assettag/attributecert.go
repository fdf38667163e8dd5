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

// Package assettag implements the asset tag attribute certificates (RFC 5755)
// which bind name/value tags to a host.
package assettag

import (
	"bytes"
	"crypto"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/fxamacker/cbor/v2"
	"github.com/invopop/jsonschema"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "assettag")

var (
	// UTF8NameValueMicroformat: UTF8String "name=value"
	OidNameValueMicroformat = asn1.ObjectIdentifier{2, 5, 4, 789, 1}
	// UTF8NameValueSequence: SEQUENCE { name UTF8String, values SEQUENCE OF UTF8String }
	OidNameValueSequence = asn1.ObjectIdentifier{2, 5, 4, 789, 2}
)

var signatureAlgorithms = []struct {
	oid  asn1.ObjectIdentifier
	algo x509.SignatureAlgorithm
	hash crypto.Hash
}{
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}, x509.SHA256WithRSA, crypto.SHA256},
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}, x509.SHA384WithRSA, crypto.SHA384},
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}, x509.SHA512WithRSA, crypto.SHA512},
	{asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}, x509.ECDSAWithSHA256, crypto.SHA256},
	{asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}, x509.ECDSAWithSHA384, crypto.SHA384},
	{asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}, x509.ECDSAWithSHA512, crypto.SHA512},
}

// Attribute is a single asset tag
type Attribute struct {
	Name  string `json:"name" cbor:"0,keyasint"`
	Value string `json:"value" cbor:"1,keyasint"`
}

// AttributeCertificate is a parsed asset tag attribute certificate
type AttributeCertificate struct {
	Raw                []byte
	RawTBSCertificate  []byte
	RawIssuer          []byte
	Version            int
	SerialNumber       *big.Int
	Holder             pkix.Name
	Issuer             pkix.Name
	NotBefore          time.Time
	NotAfter           time.Time
	SignatureAlgorithm x509.SignatureAlgorithm
	Signature          []byte
	Attributes         []Attribute
}

type attributeCertificate struct {
	Info               asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

type attributeCertificateInfo struct {
	Version      int
	Holder       asn1.RawValue
	Issuer       asn1.RawValue
	Signature    pkix.AlgorithmIdentifier
	SerialNumber *big.Int
	Validity     validityPeriod
	Attributes   []attribute
}

type validityPeriod struct {
	NotBefore time.Time `asn1:"generalized"`
	NotAfter  time.Time `asn1:"generalized"`
}

type attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

type nameValueSequence struct {
	Name   string   `asn1:"utf8"`
	Values []string `asn1:"utf8"`
}

// ParseAttributeCertificate parses a DER or PEM encoded attribute certificate
func ParseAttributeCertificate(data []byte) (*AttributeCertificate, error) {
	input := data
	block, _ := pem.Decode(data)
	if block != nil {
		input = block.Bytes
	}

	var ac attributeCertificate
	rest, err := asn1.Unmarshal(input, &ac)
	if err != nil {
		return nil, fmt.Errorf("failed to parse attribute certificate: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after attribute certificate: %v bytes", len(rest))
	}

	var info attributeCertificateInfo
	if _, err := asn1.Unmarshal(ac.Info.FullBytes, &info); err != nil {
		return nil, fmt.Errorf("failed to parse attribute certificate info: %w", err)
	}

	c := &AttributeCertificate{
		Raw:               input,
		RawTBSCertificate: ac.Info.FullBytes,
		Version:           info.Version + 1,
		SerialNumber:      info.SerialNumber,
		NotBefore:         info.Validity.NotBefore,
		NotAfter:          info.Validity.NotAfter,
		Signature:         ac.SignatureValue.RightAlign(),
	}

	c.SignatureAlgorithm = x509.UnknownSignatureAlgorithm
	for _, a := range signatureAlgorithms {
		if a.oid.Equal(ac.SignatureAlgorithm.Algorithm) {
			c.SignatureAlgorithm = a.algo
		}
	}

	c.RawIssuer, err = parseIssuer(info.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer: %w", err)
	}
	c.Issuer, err = parseName(c.RawIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer name: %w", err)
	}

	holder, err := parseHolder(info.Holder)
	if err != nil {
		log.Debugf("Failed to parse holder: %v", err)
	} else {
		c.Holder, err = parseName(holder)
		if err != nil {
			log.Debugf("Failed to parse holder name: %v", err)
		}
	}

	for _, a := range info.Attributes {
		attrs, err := parseAttribute(a)
		if err != nil {
			return nil, fmt.Errorf("failed to parse attribute %v: %w", a.Type, err)
		}
		c.Attributes = append(c.Attributes, attrs...)
	}

	return c, nil
}

// CheckSignatureFrom verifies that the certificate was signed by the CA
func (c *AttributeCertificate) CheckSignatureFrom(ca *x509.Certificate) error {
	if ca == nil {
		return errors.New("no CA provided")
	}
	if !bytes.Equal(ca.RawSubject, c.RawIssuer) {
		return fmt.Errorf("CA subject %v does not match issuer %v", ca.Subject, c.Issuer)
	}
	if c.SignatureAlgorithm == x509.UnknownSignatureAlgorithm {
		return errors.New("unsupported signature algorithm")
	}
	return ca.CheckSignature(c.SignatureAlgorithm, c.RawTBSCertificate, c.Signature)
}

// Tags returns all name/value attributes. Later attributes with the same
// name overwrite earlier ones
func (c *AttributeCertificate) Tags() map[string]string {
	tags := map[string]string{}
	if c == nil {
		return tags
	}
	for _, a := range c.Attributes {
		tags[a.Name] = a.Value
	}
	return tags
}

// Digest returns the SHA384 digest of the encoded certificate, which is the
// value provisioned to the host as asset tag
func (c *AttributeCertificate) Digest() digest.Digest {
	d := sha512.Sum384(c.Raw)
	return digest.Digest{Algorithm: digest.SHA384, Value: d[:]}
}

// ValidAt returns true if t is within the validity period
func (c *AttributeCertificate) ValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

func (c *AttributeCertificate) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Raw)
}

func (c *AttributeCertificate) UnmarshalJSON(data []byte) error {
	var raw []byte
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal attribute certificate: %w", err)
	}
	return c.parseInto(raw)
}

func (c *AttributeCertificate) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(c.Raw)
}

func (c *AttributeCertificate) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal attribute certificate: %w", err)
	}
	return c.parseInto(raw)
}

func (AttributeCertificate) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:            "string",
		ContentEncoding: "base64",
		Description:     "DER encoded RFC 5755 attribute certificate",
	}
}

func (c *AttributeCertificate) parseInto(raw []byte) error {
	parsed, err := ParseAttributeCertificate(raw)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

// parseIssuer returns the encoded directory name of the v1Form or v2Form issuer
func parseIssuer(issuer asn1.RawValue) ([]byte, error) {
	names := issuer.Bytes
	if issuer.Class == asn1.ClassContextSpecific && issuer.Tag == 0 {
		// v2Form: issuerName GeneralNames is the first element
		var gn asn1.RawValue
		if _, err := asn1.Unmarshal(issuer.Bytes, &gn); err != nil {
			return nil, fmt.Errorf("failed to parse v2Form: %w", err)
		}
		names = gn.Bytes
	}
	return directoryName(names)
}

// parseHolder returns the encoded directory name of the holder entityName
func parseHolder(holder asn1.RawValue) ([]byte, error) {
	rest := holder.Bytes
	for len(rest) > 0 {
		var field asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &field)
		if err != nil {
			return nil, err
		}
		if field.Class == asn1.ClassContextSpecific && field.Tag == 1 {
			return directoryName(field.Bytes)
		}
	}
	return nil, errors.New("holder does not contain an entity name")
}

// directoryName returns the first directoryName [4] of the GeneralName list
func directoryName(generalNames []byte) ([]byte, error) {
	rest := generalNames
	for len(rest) > 0 {
		var name asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &name)
		if err != nil {
			return nil, err
		}
		if name.Class == asn1.ClassContextSpecific && name.Tag == 4 {
			return name.Bytes, nil
		}
	}
	return nil, errors.New("no directory name found")
}

func parseName(raw []byte) (pkix.Name, error) {
	var rdns pkix.RDNSequence
	var name pkix.Name
	if _, err := asn1.Unmarshal(raw, &rdns); err != nil {
		return name, err
	}
	name.FillFromRDNSequence(&rdns)
	return name, nil
}

func parseAttribute(a attribute) ([]Attribute, error) {
	attrs := []Attribute{}
	switch {
	case a.Type.Equal(OidNameValueMicroformat):
		for _, v := range a.Values {
			var s string
			if _, err := asn1.UnmarshalWithParams(v.FullBytes, &s, "utf8"); err != nil {
				return nil, err
			}
			name, value, ok := strings.Cut(s, "=")
			if !ok {
				return nil, fmt.Errorf("invalid name value microformat %q", s)
			}
			attrs = append(attrs, Attribute{Name: name, Value: value})
		}
	case a.Type.Equal(OidNameValueSequence):
		for _, v := range a.Values {
			var nv nameValueSequence
			if _, err := asn1.Unmarshal(v.FullBytes, &nv); err != nil {
				return nil, err
			}
			if len(nv.Values) == 0 {
				return nil, fmt.Errorf("attribute %q does not contain values", nv.Name)
			}
			attrs = append(attrs, Attribute{Name: nv.Name, Value: nv.Values[0]})
		}
	default:
		log.Tracef("Ignoring unknown attribute %v", a.Type)
	}
	return attrs, nil
}
