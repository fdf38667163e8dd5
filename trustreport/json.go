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

package trustreport

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/go-jose/go-jose/v4"
)

var jwsAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
}

type JsonSerializer struct{}

func (s JsonSerializer) String() string {
	return "JSON"
}

func (s JsonSerializer) GetPayload(raw []byte) ([]byte, error) {
	// Extract plain payload out of base64-encoded JSON Web Signature
	jws, err := jose.ParseSigned(string(raw), jwsAlgs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jws object: %w", err)
	}
	return jws.UnsafePayloadWithoutVerification(), nil
}

func (s JsonSerializer) Marshal(v any) ([]byte, error) {
	log.Tracef("Marshalling data using %v serialization", s.String())
	return json.Marshal(v)
}

func (s JsonSerializer) Unmarshal(data []byte, v any) error {
	log.Tracef("Unmarshalling data using %v serialization", s.String())
	return json.Unmarshal(data, v)
}

// Sign signs the data as JWS with the key. The certificate chain of the
// key is embedded in the x5c header
func (s JsonSerializer) Sign(data []byte, key crypto.Signer, chain []*x509.Certificate) ([]byte, error) {

	log.Trace("Signing trust report")

	raw, err := rawChain(chain)
	if err != nil {
		return nil, err
	}
	certsb64 := make([]string, 0, len(raw))
	for _, c := range raw {
		certsb64 = append(certsb64, base64.StdEncoding.EncodeToString(c))
	}

	alg, err := algFromKeyType(key.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to get alg from key type: %w", err)
	}
	log.Tracef("Chosen signature algorithm: %v", alg)

	opaqueSigner := jose.OpaqueSigner(&hwSigner{
		pk:     &jose.JSONWebKey{Key: key.Public()},
		signer: key,
		alg:    alg,
	})

	var opt jose.SignerOptions
	joseSigner, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: opaqueSigner}, opt.WithHeader("x5c", certsb64))
	if err != nil {
		return nil, fmt.Errorf("failed to setup signer: %w", err)
	}

	obj, err := joseSigner.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign trust report: %w", err)
	}

	return []byte(obj.FullSerialize()), nil
}

// Verify verifies the signatures and certificate chains of a JWS and returns
// the payload. All signatures must be valid and sign the same payload
func (s JsonSerializer) Verify(data []byte, roots []*x509.Certificate) ([]byte, error) {

	if len(roots) == 0 {
		return nil, errors.New("no root certificates given")
	}
	rootpool := x509.NewCertPool()
	for _, cert := range roots {
		rootpool.AddCert(cert)
	}

	opts := x509.VerifyOptions{
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		Roots:     rootpool,
	}

	jwsData, err := jose.ParseSigned(string(data), jwsAlgs)
	if err != nil {
		return nil, fmt.Errorf("data could not be parsed: %w", err)
	}
	if len(jwsData.Signatures) == 0 {
		return nil, ErrNoSignatures
	}

	var payload []byte
	for i, sig := range jwsData.Signatures {
		certs, err := sig.Protected.Certificates(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to verify certificate chain of signature %v: %w", i, err)
		}

		index, _, p, err := jwsData.VerifyMulti(certs[0][0].PublicKey)
		if err != nil {
			return nil, fmt.Errorf("signature verification failed: %w", err)
		}
		if index != i {
			return nil, errors.New("order of signatures incorrect")
		}
		if payload != nil && !bytes.Equal(payload, p) {
			return nil, errors.New("payloads differ for jws with multiple signatures")
		}
		payload = p
	}

	return payload, nil
}

// Deduces jose signature algorithm from provided key type
func algFromKeyType(pub crypto.PublicKey) (jose.SignatureAlgorithm, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		switch key.Size() {
		case 256:
			return jose.RS256, nil
		case 384:
			return jose.RS384, nil
		case 512:
			return jose.RS512, nil
		default:
			return jose.RS256, fmt.Errorf("unknown RSA key size: %v", key.Size())
		}
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P224(), elliptic.P256():
			return jose.ES256, nil
		case elliptic.P384():
			return jose.ES384, nil
		case elliptic.P521():
			return jose.ES512, nil
		default:
			return jose.RS256, errors.New("unknown elliptic curve")
		}
	default:
		return jose.RS256, fmt.Errorf("unknown key type %T", pub)
	}
}

// hwSigner implements the JOSE OpaqueSigner interface. This allows signing
// with keys that do not expose their private part, such as HSM keys
type hwSigner struct {
	pk     *jose.JSONWebKey
	signer crypto.Signer
	alg    jose.SignatureAlgorithm
}

func (hws *hwSigner) Public() *jose.JSONWebKey {
	return hws.pk
}

func (hws *hwSigner) Algs() []jose.SignatureAlgorithm {
	return []jose.SignatureAlgorithm{hws.alg}
}

func (hws *hwSigner) SignPayload(payload []byte, alg jose.SignatureAlgorithm) ([]byte, error) {
	// EC-specific: key size in byte for later padding
	var keySize int
	var opts crypto.SignerOpts
	switch alg {
	case jose.RS256, jose.ES256:
		keySize = 32
		opts = crypto.SHA256
	case jose.PS256:
		opts = &rsa.PSSOptions{SaltLength: 32, Hash: crypto.SHA256}
	case jose.RS384, jose.ES384:
		keySize = 48
		opts = crypto.SHA384
	case jose.PS384:
		opts = &rsa.PSSOptions{SaltLength: 48, Hash: crypto.SHA384}
	case jose.RS512, jose.ES512:
		keySize = 66 // 521 bit + padding
		opts = crypto.SHA512
	case jose.PS512:
		opts = &rsa.PSSOptions{SaltLength: 64, Hash: crypto.SHA512}
	default:
		return nil, errors.New("could not determine appropriate hash type")
	}

	hasher := opts.HashFunc().New()
	_, _ = hasher.Write(payload)
	hashed := hasher.Sum(nil)

	switch alg {
	case jose.ES256, jose.ES384, jose.ES512:
		asn1Sig, err := hws.signer.Sign(rand.Reader, hashed, opts)
		if err != nil {
			return nil, err
		}
		// go-jose expects the concatenated and padded format
		var esig struct {
			R *big.Int
			S *big.Int
		}
		if _, err := asn1.Unmarshal(asn1Sig, &esig); err != nil {
			return nil, errors.New("ECDSA signature was not in expected format")
		}
		ret := make([]byte, 2*keySize)
		esig.R.FillBytes(ret[:keySize])
		esig.S.FillBytes(ret[keySize:])
		return ret, nil
	default:
		return hws.signer.Sign(rand.Reader, hashed, opts)
	}
}
