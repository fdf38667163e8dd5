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

package internal

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"go.mozilla.org/pkcs7"
)

// ParseCert parses a certificate from PEM or DER encoded data into an X.509 certificate
func ParseCert(data []byte) (*x509.Certificate, error) {
	input := data

	block, _ := pem.Decode(data)
	if block != nil {
		input = block.Bytes
	}

	cert, err := x509.ParseCertificate(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse x509 Certificate: %v", err)
	}

	return cert, nil
}

func parseCertsDer(data []byte) ([]*x509.Certificate, error) {
	certs, err := x509.ParseCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DER certificates: %w", err)
	}
	if len(certs) == 0 {
		return nil, errors.New("data did not contain any DER certificates")
	}

	return certs, nil
}

// ParseCertsPkcs7 extracts the certificates of a PKCS#7 bundle (.p7b), either
// PEM armored or plain DER
func ParseCertsPkcs7(data []byte) ([]*x509.Certificate, error) {
	input := data
	block, _ := pem.Decode(data)
	if block != nil {
		input = block.Bytes
	}

	p7, err := pkcs7.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#7 bundle: %w", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, errors.New("PKCS#7 bundle did not contain any certificates")
	}

	return p7.Certificates, nil
}

// ParseCerts parses a certificate bundle of unknown encoding. PEM certificate
// lists, PKCS#7 bundles and concatenated DER certificates are supported
func ParseCerts(data []byte) ([]*x509.Certificate, error) {

	block, _ := pem.Decode(data)
	if block != nil {
		switch block.Type {
		case "CERTIFICATE":
			return parseCertBlobPem(data)
		case "PKCS7":
			return ParseCertsPkcs7(data)
		default:
			return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
		}
	}

	certs, errDer := parseCertsDer(data)
	if errDer == nil {
		return certs, nil
	}
	certs, errP7 := ParseCertsPkcs7(data)
	if errP7 == nil {
		return certs, nil
	}

	return nil, fmt.Errorf("failed to parse certificates. DER: %v, PKCS#7: %v", errDer, errP7)
}

func WriteCertPem(cert *x509.Certificate) []byte {
	p := &bytes.Buffer{}
	pem.Encode(p, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	return p.Bytes()
}

// ParsePrivateKey parses a PEM or DER encoded PKCS#8, PKCS#1 or SEC1 private key
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	input := data
	block, _ := pem.Decode(data)
	if block != nil {
		input = block.Bytes
	}

	if key, err := x509.ParsePKCS8PrivateKey(input); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(input); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(input); err == nil {
		return key, nil
	}

	return nil, errors.New("failed to parse private key: unknown format")
}

// VerifyCertChain tries to verify the certificate chain certs with leaf
// certificate first up to one of the root certificates in cas
func VerifyCertChain(certs []*x509.Certificate, cas []*x509.Certificate) ([][]*x509.Certificate, error) {

	if len(certs) == 0 {
		return nil, errors.New("no certificate chain provided")
	}
	if len(cas) == 0 {
		return nil, errors.New("no CA provided")
	}

	leafCert := certs[0]

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	roots := x509.NewCertPool()
	for _, ca := range cas {
		roots.AddCert(ca)
	}

	opts := x509.VerifyOptions{
		Intermediates: intermediates,
		Roots:         roots,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	chains, err := leafCert.Verify(opts)

	return chains, err
}

func parseCertBlobPem(data []byte) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0)
	input := data

	for block, rest := pem.Decode(input); block != nil; block, rest = pem.Decode(rest) {

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse x509 Certificate: %v", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("did not find certs in provided data")
	}
	return certs, nil
}
