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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/Fraunhofer-AISEC/hostverifier/attestationpolicies"
	"github.com/Fraunhofer-AISEC/hostverifier/digest"
	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/Fraunhofer-AISEC/hostverifier/trustreport"
	"github.com/Fraunhofer-AISEC/hostverifier/verifier"
	"github.com/urfave/cli/v3"
)

var errUntrusted = errors.New("host is not trusted")

var verifyCommand = &cli.Command{
	Name:  "verify",
	Usage: "verifies a host manifest against one or more signed flavors",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  manifestFlag,
			Usage: "host manifest (JSON or CBOR)",
		},
		&cli.StringFlag{
			Name:  flavorFlag,
			Usage: "signed flavor or collection of signed flavors (JSON or CBOR)",
		},
		&cli.StringFlag{
			Name:  eventlogFlag,
			Usage: "optional TCG binary event log to import into the host manifest",
		},
		&cli.StringFlag{
			Name:  eventlogBankFlag,
			Usage: "PCR bank the TCG event log is imported for",
		},
		&cli.StringFlag{
			Name:  policiesFlag,
			Usage: "optional JavaScript policies the trust report must satisfy",
		},
		&cli.BoolFlag{
			Name:  skipSignatureFlag,
			Usage: "do not verify the flavor signatures",
		},
		&cli.StringFlag{
			Name:  serializationFlag,
			Usage: "serialization of the trust report (json, cbor, a media type or a CoAP content format)",
		},
		&cli.StringFlag{
			Name:  keyFlag,
			Usage: "optional private key to sign the trust report with",
		},
		&cli.StringFlag{
			Name:  chainFlag,
			Usage: "certificate chain of the trust report signing key",
		},
		&cli.StringFlag{
			Name:  outFlag,
			Usage: "output file for the trust report, stdout if not set",
		},
		&cli.StringFlag{
			Name:  privacyCasFlag,
			Usage: "privacy CA certificates the AIK must chain to",
		},
		&cli.StringFlag{
			Name:  assetTagCasFlag,
			Usage: "CA certificates the asset tag certificates must be issued by",
		},
		&cli.StringFlag{
			Name:  flavorSigningCertFlag,
			Usage: "flavor signing certificate, optionally followed by intermediates",
		},
		&cli.StringFlag{
			Name:  flavorCasFlag,
			Usage: "optional root CAs of the flavor signing certificate",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		c, err := getConfig(cmd)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return verify(c)
	},
}

func verify(c *Config) error {

	if c.Manifest == "" || c.Flavor == "" {
		return errors.New("manifest and flavor must be specified")
	}

	a, err := anchors.Load(&c.Anchors, nil)
	if err != nil {
		return fmt.Errorf("failed to load trust anchors: %w", err)
	}

	data, err := os.ReadFile(c.Manifest)
	if err != nil {
		return fmt.Errorf("failed to read host manifest: %w", err)
	}
	m, err := verifier.DecodeManifest(data)
	if err != nil {
		return err
	}

	if c.Eventlog != "" {
		bank, err := digest.ParseAlgorithm(c.EventlogBank)
		if err != nil {
			return fmt.Errorf("invalid event log bank: %w", err)
		}
		el, err := os.ReadFile(c.Eventlog)
		if err != nil {
			return fmt.Errorf("failed to read event log: %w", err)
		}
		if err := m.ImportTcgEventLog(el, bank); err != nil {
			return fmt.Errorf("failed to import event log: %w", err)
		}
	}

	data, err = os.ReadFile(c.Flavor)
	if err != nil {
		return fmt.Errorf("failed to read flavor: %w", err)
	}
	flavors, err := verifier.DecodeFlavors(data)
	if err != nil {
		return err
	}

	v := verifier.New(a)
	reports, err := v.VerifyAll(m, flavors, c.SkipSignature)
	if err != nil {
		return fmt.Errorf("failed to verify host: %w", err)
	}

	report := reports[0]
	if len(reports) > 1 {
		report, err = verifier.Merge(reports[0].PolicyName, reports...)
		if err != nil {
			return err
		}
	}

	trusted := report.Trusted()
	if c.Policies != "" {
		policies, err := os.ReadFile(c.Policies)
		if err != nil {
			return fmt.Errorf("failed to read policies: %w", err)
		}
		ok := attestationpolicies.NewPolicyValidator(policies).Validate(report)
		log.Infof("Custom policies satisfied: %v", ok)
		trusted = trusted && ok
	}

	if err := writeReport(c, report); err != nil {
		return err
	}

	log.Infof("Host trusted: %v (%v results, %v faults)", trusted, len(report.Results), report.FaultCount())
	if !trusted {
		return errUntrusted
	}
	return nil
}

func writeReport(c *Config, report *trustreport.TrustReport) error {

	s, err := trustreport.GetSerializer(c.Serialization)
	if err != nil {
		return err
	}

	data, err := s.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal trust report: %w", err)
	}

	if c.Key != "" {
		data, err = signReport(c, s, data)
		if err != nil {
			return err
		}
	}

	mt := trustreport.GetMediaType(s)
	out := outputPath(c.Out, trustreport.FileExtension(mt))
	log.Debugf("Writing trust report as %v", mt)

	return writeOutput(out, data)
}

// outputPath appends the extension of the report media type if the output
// file has none
func outputPath(file, ext string) string {
	if file == "" || filepath.Ext(file) != "" {
		return file
	}
	return file + ext
}

func signReport(c *Config, s trustreport.Serializer, data []byte) ([]byte, error) {
	keyData, err := os.ReadFile(c.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	key, err := internal.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	if c.Chain == "" {
		return nil, errors.New("certificate chain of signing key must be specified")
	}
	chainData, err := os.ReadFile(c.Chain)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate chain: %w", err)
	}
	chain, err := internal.ParseCerts(chainData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate chain: %w", err)
	}

	signed, err := s.Sign(data, key, chain)
	if err != nil {
		return nil, fmt.Errorf("failed to sign trust report: %w", err)
	}
	return signed, nil
}
