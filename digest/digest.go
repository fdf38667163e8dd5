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

// Package digest provides the fixed-length TPM digest types and the PCR
// extend operation used to replay event logs.
package digest

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/google/go-tpm/legacy/tpm2"
)

// Algorithm identifies a PCR bank / digest algorithm
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA384 Algorithm = "SHA384"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")
)

// ParseError is returned if a digest value cannot be decoded
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse digest %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseAlgorithm accepts the common spellings SHA1, SHA-1, sha256, SHA-384
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "")) {
	case "SHA1":
		return SHA1, nil
	case "SHA256":
		return SHA256, nil
	case "SHA384":
		return SHA384, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}

// AlgorithmFromTpm converts a TPM2 algorithm identifier
func AlgorithmFromTpm(alg tpm2.Algorithm) (Algorithm, error) {
	switch alg {
	case tpm2.AlgSHA1:
		return SHA1, nil
	case tpm2.AlgSHA256:
		return SHA256, nil
	case tpm2.AlgSHA384:
		return SHA384, nil
	default:
		return "", fmt.Errorf("%w: TPM algorithm %v", ErrUnsupportedAlgorithm, alg)
	}
}

func (a Algorithm) Valid() bool {
	return a == SHA1 || a == SHA256 || a == SHA384
}

// Hash returns the crypto.Hash of the algorithm or 0 if unsupported
func (a Algorithm) Hash() crypto.Hash {
	switch a {
	case SHA1:
		return crypto.SHA1
	case SHA256:
		return crypto.SHA256
	case SHA384:
		return crypto.SHA384
	default:
		return 0
	}
}

// TpmAlgorithm returns the TPM2 algorithm identifier of the bank
func (a Algorithm) TpmAlgorithm() tpm2.Algorithm {
	switch a {
	case SHA1:
		return tpm2.AlgSHA1
	case SHA256:
		return tpm2.AlgSHA256
	case SHA384:
		return tpm2.AlgSHA384
	default:
		return tpm2.AlgNull
	}
}

// Size returns the digest length in bytes
func (a Algorithm) Size() int {
	h := a.Hash()
	if h == 0 {
		return 0
	}
	return h.Size()
}

func (a Algorithm) String() string {
	return string(a)
}

// Digest is a digest value of a specific algorithm
type Digest struct {
	Algorithm Algorithm `json:"algorithm" cbor:"0,keyasint"`
	Value     HexByte   `json:"value" cbor:"1,keyasint"`
}

// New creates a digest and checks the length of the value
func New(alg Algorithm, value []byte) (Digest, error) {
	if !alg.Valid() {
		return Digest{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if len(value) != alg.Size() {
		return Digest{}, fmt.Errorf("invalid %v digest length %v, expected %v", alg, len(value), alg.Size())
	}
	v := make([]byte, len(value))
	copy(v, value)
	return Digest{Algorithm: alg, Value: v}, nil
}

// Parse decodes a hex encoded digest of the specified algorithm
func Parse(alg Algorithm, s string) (Digest, error) {
	v, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Digest{}, &ParseError{Input: s, Err: err}
	}
	d, err := New(alg, v)
	if err != nil {
		return Digest{}, &ParseError{Input: s, Err: err}
	}
	return d, nil
}

// Zero returns the all-zero initial PCR value of the algorithm
func Zero(alg Algorithm) Digest {
	return Digest{Algorithm: alg, Value: make([]byte, alg.Size())}
}

// Extend returns Hash(d || data)
func (d Digest) Extend(data []byte) (Digest, error) {
	v, err := internal.Extend(d.Algorithm.Hash(), d.Value, data)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to extend %v digest: %w", d.Algorithm, err)
	}
	return Digest{Algorithm: d.Algorithm, Value: v}, nil
}

// Fold extends the zero value of the algorithm with every value in order
func Fold(alg Algorithm, values ...[]byte) (Digest, error) {
	if !alg.Valid() {
		return Digest{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	d := Zero(alg)
	for _, v := range values {
		var err error
		d, err = d.Extend(v)
		if err != nil {
			return Digest{}, err
		}
	}
	return d, nil
}

func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && bytes.Equal(d.Value, other.Value)
}

func (d Digest) String() string {
	return hex.EncodeToString(d.Value)
}
