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

// Package testpki creates throwaway certificate hierarchies for unit tests
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"
)

var (
	rsaKey     *rsa.PrivateKey
	rsaKeyOnce sync.Once
)

// Cert is a certificate together with its private key
type Cert struct {
	Cert *x509.Certificate
	Key  crypto.Signer
}

// Options control the generated certificate. Zero values select a
// validity of one hour in the past to one year in the future
type Options struct {
	NotBefore time.Time
	NotAfter  time.Time
	Rsa       bool
}

// RsaKey returns a shared 2048 bit RSA key, generating it only once per test binary
func RsaKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	var err error
	rsaKeyOnce.Do(func() {
		rsaKey, err = rsa.GenerateKey(rand.Reader, 2048)
	})
	if err != nil || rsaKey == nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return rsaKey
}

// NewCA creates a self-signed CA certificate
func NewCA(t testing.TB, cn string, opts Options) *Cert {
	t.Helper()
	return create(t, cn, true, nil, opts)
}

// NewLeaf creates a certificate signed by the given CA
func NewLeaf(t testing.TB, cn string, ca *Cert, opts Options) *Cert {
	t.Helper()
	return create(t, cn, false, ca, opts)
}

func create(t testing.TB, cn string, isCA bool, parent *Cert, opts Options) *Cert {
	t.Helper()

	var key crypto.Signer
	if opts.Rsa {
		key = RsaKey(t)
	} else {
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		key = k
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		t.Fatalf("failed to generate serial number: %v", err)
	}

	notBefore := opts.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Hour)
	}
	notAfter := opts.NotAfter
	if notAfter.IsZero() {
		notAfter = time.Now().AddDate(1, 0, 0)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"Test"},
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	} else {
		tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	}

	issuer := tmpl
	signer := key
	if parent != nil {
		issuer = parent.Cert
		signer = parent.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, key.Public(), signer)
	if err != nil {
		t.Fatalf("failed to create certificate %v: %v", cn, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate %v: %v", cn, err)
	}

	return &Cert{Cert: cert, Key: key}
}
