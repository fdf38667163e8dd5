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

package flavor

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrSignatureMissing = errors.New("flavor signature is missing")
	// ErrSignatureInvalid is returned if the signature was decoded but does
	// not verify with the signing certificate
	ErrSignatureInvalid = errors.New("flavor signature is invalid")
)

// Sign signs the canonical serialization of the flavor with SHA384withRSA
// (PKCS#1 v1.5) and returns the signed flavor
func Sign(f *Flavor, key crypto.Signer) (*SignedFlavor, error) {
	if _, ok := key.Public().(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("unsupported flavor signing key type %T", key.Public())
	}

	data, err := f.Canonical()
	if err != nil {
		return nil, err
	}
	hash := sha512.Sum384(data)

	sig, err := key.Sign(rand.Reader, hash[:], crypto.SHA384)
	if err != nil {
		return nil, fmt.Errorf("failed to sign flavor %v: %w", f.Id(), err)
	}

	log.Debugf("Signed flavor %v (%v)", f.Id(), f.Meta.Description.FlavorPart)

	return &SignedFlavor{
		Flavor:    *f,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// VerifySignature verifies the flavor signature with the public key of the
// signing certificate. The certificate chain itself is not validated
func (sf *SignedFlavor) VerifySignature(cert *x509.Certificate) error {
	if sf.Signature == "" {
		return ErrSignatureMissing
	}
	if cert == nil {
		return errors.New("flavor signing certificate not specified")
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: unsupported signing certificate key type %T", ErrSignatureInvalid, cert.PublicKey)
	}

	sig, err := base64.StdEncoding.DecodeString(sf.Signature)
	if err != nil {
		return fmt.Errorf("failed to decode flavor signature: %w", err)
	}

	data, err := sf.Flavor.Canonical()
	if err != nil {
		return err
	}
	hash := sha512.Sum384(data)

	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA384, hash[:], sig); err != nil {
		return fmt.Errorf("%w: flavor %v: %v", ErrSignatureInvalid, sf.Flavor.Id(), err)
	}
	return nil
}
