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

package assettag

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Template contains the values of an attribute certificate to be created
type Template struct {
	SerialNumber *big.Int
	Holder       pkix.Name
	NotBefore    time.Time
	NotAfter     time.Time
	Attributes   []Attribute
}

// CreateAttributeCertificate creates a DER encoded attribute certificate
// signed by the issuer. RSA issuers sign with SHA384, ECDSA issuers with the
// hash matching their curve
func CreateAttributeCertificate(tpl *Template, issuer *x509.Certificate, key crypto.Signer) ([]byte, error) {

	if tpl == nil || issuer == nil || key == nil {
		return nil, errors.New("template, issuer and key must be specified")
	}

	sigOid, hash, err := signatureAlgorithmFor(key.Public())
	if err != nil {
		return nil, err
	}

	serial := tpl.SerialNumber
	if serial == nil {
		serial, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
		if err != nil {
			return nil, fmt.Errorf("failed to create serial number: %w", err)
		}
	}

	holderName, err := asn1.Marshal(tpl.Holder.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal holder: %w", err)
	}
	holderEntity, err := generalNames(holderName, 1)
	if err != nil {
		return nil, err
	}
	holder := asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSequence, IsCompound: true, Bytes: holderEntity}

	issuerNames, err := generalNamesSequence(issuer.RawSubject)
	if err != nil {
		return nil, err
	}
	issuerV2 := asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: issuerNames}

	attrs := make([]attribute, 0, len(tpl.Attributes))
	for _, a := range tpl.Attributes {
		v, err := asn1.MarshalWithParams(a.Name+"="+a.Value, "utf8")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attribute %v: %w", a.Name, err)
		}
		attrs = append(attrs, attribute{
			Type:   OidNameValueMicroformat,
			Values: []asn1.RawValue{{FullBytes: v}},
		})
	}

	algId := pkix.AlgorithmIdentifier{Algorithm: sigOid}
	if _, ok := key.Public().(*rsa.PublicKey); ok {
		algId.Parameters = asn1.NullRawValue
	}

	info := attributeCertificateInfo{
		Version:      1,
		Holder:       holder,
		Issuer:       issuerV2,
		Signature:    algId,
		SerialNumber: serial,
		Validity: validityPeriod{
			NotBefore: tpl.NotBefore.UTC().Truncate(time.Second),
			NotAfter:  tpl.NotAfter.UTC().Truncate(time.Second),
		},
		Attributes: attrs,
	}

	tbs, err := asn1.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attribute certificate info: %w", err)
	}

	h := hash.New()
	h.Write(tbs)
	sig, err := key.Sign(rand.Reader, h.Sum(nil), hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign attribute certificate: %w", err)
	}

	ac := attributeCertificate{
		Info:               asn1.RawValue{FullBytes: tbs},
		SignatureAlgorithm: algId,
		SignatureValue:     asn1.BitString{Bytes: sig, BitLength: len(sig) * 8},
	}

	der, err := asn1.Marshal(ac)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attribute certificate: %w", err)
	}

	return der, nil
}

func signatureAlgorithmFor(pub crypto.PublicKey) (asn1.ObjectIdentifier, crypto.Hash, error) {
	var want x509.SignatureAlgorithm
	switch k := pub.(type) {
	case *rsa.PublicKey:
		want = x509.SHA384WithRSA
	case *ecdsa.PublicKey:
		switch k.Curve.Params().BitSize {
		case 384:
			want = x509.ECDSAWithSHA384
		case 521:
			want = x509.ECDSAWithSHA512
		default:
			want = x509.ECDSAWithSHA256
		}
	default:
		return nil, 0, fmt.Errorf("unsupported key type %T", pub)
	}
	for _, a := range signatureAlgorithms {
		if a.algo == want {
			return a.oid, a.hash, nil
		}
	}
	return nil, 0, fmt.Errorf("unsupported signature algorithm %v", want)
}

// generalNames returns the implicitly tagged GeneralNames holding a single directoryName
func generalNames(name []byte, tag int) ([]byte, error) {
	dn, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 4, IsCompound: true, Bytes: name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal directory name: %w", err)
	}
	gn, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tag, IsCompound: true, Bytes: dn})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal general names: %w", err)
	}
	return gn, nil
}

// generalNamesSequence returns the GeneralNames SEQUENCE holding a single directoryName
func generalNamesSequence(name []byte) ([]byte, error) {
	dn, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 4, IsCompound: true, Bytes: name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal directory name: %w", err)
	}
	gn, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSequence, IsCompound: true, Bytes: dn})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal general names: %w", err)
	}
	return gn, nil
}
