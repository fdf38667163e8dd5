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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

type CborSerializer struct{}

func (s CborSerializer) String() string {
	return "CBOR"
}

func (s CborSerializer) GetPayload(raw []byte) ([]byte, error) {
	var msg cose.SignMessage
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return nil, fmt.Errorf("failed to decode COSE message: %w", err)
	}
	return msg.Payload, nil
}

func (s CborSerializer) Marshal(v any) ([]byte, error) {
	log.Tracef("Marshalling data using %v serialization", s.String())
	return cbor.Marshal(v)
}

func (s CborSerializer) Unmarshal(data []byte, v any) error {
	log.Tracef("Unmarshalling data using %v serialization", s.String())
	return cbor.Unmarshal(data, v)
}

// Sign signs the data as COSE_Sign message with the key. The certificate
// chain of the key is embedded in the x5chain header
func (s CborSerializer) Sign(data []byte, key crypto.Signer, chain []*x509.Certificate) ([]byte, error) {

	log.Debugf("Signing CBOR data length %v...", len(data))

	certChainRaw, err := rawChain(chain)
	if err != nil {
		return nil, err
	}

	alg, err := coseAlgFromKeyType(key.Public())
	if err != nil {
		return nil, err
	}
	coseSigner, err := cose.NewSigner(alg, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	sigHolder := cose.NewSignature()
	sigHolder.Headers.Protected.SetAlgorithm(alg)
	sigHolder.Headers.Unprotected[cose.HeaderLabelX5Chain] = certChainRaw

	msgToSign := cose.NewSignMessage()
	msgToSign.Payload = data
	msgToSign.Signatures = append(msgToSign.Signatures, sigHolder)

	if err := msgToSign.Sign(rand.Reader, nil, coseSigner); err != nil {
		return nil, fmt.Errorf("signing failed: %w. len(data): %v", err, len(data))
	}

	coseRaw, err := msgToSign.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cbor object: %w", err)
	}

	log.Trace("Signing finished")

	return coseRaw, nil
}

// Verify verifies the signatures and certificate chains of a COSE_Sign
// message and returns the payload
func (s CborSerializer) Verify(data []byte, roots []*x509.Certificate) ([]byte, error) {

	if len(roots) == 0 {
		return nil, errors.New("no root certificates given")
	}

	var msgToVerify cose.SignMessage
	if err := msgToVerify.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("failed to decode COSE message: %w", err)
	}
	if len(msgToVerify.Signatures) == 0 {
		return nil, ErrNoSignatures
	}

	verifiers := make([]cose.Verifier, 0, len(msgToVerify.Signatures))
	for i, sig := range msgToVerify.Signatures {
		certChain, err := x5Chain(sig)
		if err != nil {
			return nil, fmt.Errorf("signature %v: %w", i, err)
		}

		if _, err := internal.VerifyCertChain(certChain, roots); err != nil {
			return nil, fmt.Errorf("failed to verify certificate chain of signature %v: %w", i, err)
		}

		alg, err := sig.Headers.Protected.Algorithm()
		if err != nil {
			return nil, fmt.Errorf("signature %v: %w", i, err)
		}
		verifier, err := cose.NewVerifier(alg, certChain[0].PublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create verifier: %w", err)
		}
		verifiers = append(verifiers, verifier)
	}

	if err := msgToVerify.Verify(nil, verifiers...); err != nil {
		return nil, fmt.Errorf("failed to verify cbor signature: %w", err)
	}

	log.Debug("Successfully verified COSE object")

	return msgToVerify.Payload, nil
}

func x5Chain(sig *cose.Signature) ([]*x509.Certificate, error) {
	var raw [][]byte
	switch v := sig.Headers.Unprotected[cose.HeaderLabelX5Chain].(type) {
	case []byte:
		raw = [][]byte{v}
	case []interface{}:
		for _, c := range v {
			b, ok := c.([]byte)
			if !ok {
				return nil, errors.New("failed to decode certificate chain")
			}
			raw = append(raw, b)
		}
	default:
		return nil, errors.New("failed to parse x5chain header")
	}
	if len(raw) == 0 {
		return nil, errors.New("empty x5chain header")
	}

	chain := make([]*x509.Certificate, 0, len(raw))
	for _, b := range raw {
		c, err := x509.ParseCertificate(b)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		chain = append(chain, c)
	}
	return chain, nil
}

func coseAlgFromKeyType(pub crypto.PublicKey) (cose.Algorithm, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return cose.AlgorithmPS256, nil
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			return cose.AlgorithmES256, nil
		case elliptic.P384():
			return cose.AlgorithmES384, nil
		case elliptic.P521():
			return cose.AlgorithmES512, nil
		default:
			return 0, errors.New("unknown elliptic curve")
		}
	default:
		return 0, fmt.Errorf("unknown key type %T", pub)
	}
}
