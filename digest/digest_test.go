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

package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-tpm/legacy/tpm2"
)

func dec(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestFold(t *testing.T) {
	type args struct {
		alg    Algorithm
		values [][]byte
	}
	tests := []struct {
		name    string
		args    args
		want    []byte
		wantErr bool
	}{
		{
			name: "Empty SHA1",
			args: args{SHA1, nil},
			want: make([]byte, 20),
		},
		{
			name: "Empty SHA256",
			args: args{SHA256, nil},
			want: make([]byte, 32),
		},
		{
			name: "Empty SHA384",
			args: args{SHA384, nil},
			want: make([]byte, 48),
		},
		{
			name: "Single SHA256 Event",
			args: args{SHA256, [][]byte{dec("b8e1f80bd70ae0784c7855a451731b745fddb67749d23f637be9082b75e9575b")}},
			want: dec("12db50484c569ef2d5446a9790ee2be42a913d1c755cde998469926762f54066"),
		},
		{
			name: "Single SHA1 Event",
			args: args{SHA1, [][]byte{dec("5006ed0248a019713b762563076292379daf07b4")}},
			want: dec("4b315ae0f42379ee38468bb4210d3b97fde8ed1e"),
		},
		{
			name:    "Unsupported Algorithm",
			args:    args{Algorithm("MD5"), nil},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fold(tt.args.alg, tt.args.values...)
			if (err != nil) != tt.wantErr {
				t.Errorf("Fold() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && !bytes.Equal(got.Value, tt.want) {
				t.Errorf("Fold() = %v, want %x", got, tt.want)
			}
		})
	}
}

func TestFoldConcatenation(t *testing.T) {
	a := [][]byte{[]byte("a1"), []byte("a2")}
	b := [][]byte{[]byte("b1"), []byte("b2"), []byte("b3")}

	for _, alg := range []Algorithm{SHA1, SHA256, SHA384} {
		t.Run(alg.String(), func(t *testing.T) {
			d, err := Fold(alg, a...)
			if err != nil {
				t.Fatalf("Fold() error = %v", err)
			}
			for _, v := range b {
				d, err = d.Extend(v)
				if err != nil {
					t.Fatalf("Extend() error = %v", err)
				}
			}

			want, err := Fold(alg, append(a, b...)...)
			if err != nil {
				t.Fatalf("Fold() error = %v", err)
			}
			if !d.Equal(want) {
				t.Errorf("sequential fold %v, want %v", d, want)
			}
		})
	}
}

func TestExtend(t *testing.T) {
	m := sha256.Sum256([]byte("event"))
	d, err := Zero(SHA256).Extend(m[:])
	if err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	want := sha256.Sum256(append(make([]byte, 32), m[:]...))
	if !bytes.Equal(d.Value, want[:]) {
		t.Errorf("Extend() = %v, want %x", d, want)
	}
}

func TestParse(t *testing.T) {
	type args struct {
		alg Algorithm
		s   string
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name: "Valid SHA256",
			args: args{SHA256, "b8e1f80bd70ae0784c7855a451731b745fddb67749d23f637be9082b75e9575b"},
		},
		{
			name:    "Invalid Hex",
			args:    args{SHA256, "zz"},
			wantErr: true,
		},
		{
			name:    "Wrong Length",
			args:    args{SHA1, "b8e1f80bd70ae0784c7855a451731b745fddb67749d23f637be9082b75e9575b"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args.alg, tt.args.s)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Errorf("Parse() error type %T, want *ParseError", err)
				}
			}
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Algorithm
		wantTpm tpm2.Algorithm
		wantErr bool
	}{
		{"SHA1", "SHA1", SHA1, tpm2.AlgSHA1, false},
		{"Dashed", "SHA-256", SHA256, tpm2.AlgSHA256, false},
		{"Lower", "sha384", SHA384, tpm2.AlgSHA384, false},
		{"Unsupported", "SHA512", "", tpm2.AlgNull, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAlgorithm() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseAlgorithm() = %v, want %v", got, tt.want)
			}
			if got.TpmAlgorithm() != tt.wantTpm {
				t.Errorf("TpmAlgorithm() = %v, want %v", got.TpmAlgorithm(), tt.wantTpm)
			}
			if err == nil {
				back, err := AlgorithmFromTpm(tt.wantTpm)
				if err != nil || back != tt.want {
					t.Errorf("AlgorithmFromTpm() = %v, %v, want %v", back, err, tt.want)
				}
			}
		})
	}
}

func TestHexByteJson(t *testing.T) {
	d := Digest{Algorithm: SHA1, Value: dec("5006ed0248a019713b762563076292379daf07b4")}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"algorithm":"SHA1","value":"5006ed0248a019713b762563076292379daf07b4"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var got Digest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !got.Equal(d) {
		t.Errorf("Unmarshal() = %v, want %v", got, d)
	}
}
