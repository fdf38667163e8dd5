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
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Fraunhofer-AISEC/hostverifier/assettag"
	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

const (
	holderFlag   = "holder"
	tagsFlag     = "tags"
	validityFlag = "validity"
)

var tagCommand = &cli.Command{
	Name:  "tag",
	Usage: "creates an asset tag attribute certificate for a host",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  holderFlag,
			Usage: "hardware UUID of the host the certificate is issued for",
		},
		&cli.StringFlag{
			Name:  tagsFlag,
			Usage: "comma-separated list of key=value asset tags",
		},
		&cli.StringFlag{
			Name:  validityFlag,
			Usage: "validity of the certificate",
			Value: "8760h",
		},
		&cli.StringFlag{
			Name:  keyFlag,
			Usage: "private key of the asset tag CA",
		},
		&cli.StringFlag{
			Name:  chainFlag,
			Usage: "certificate of the asset tag CA",
		},
		&cli.StringFlag{
			Name:  outFlag,
			Usage: "output file for the PEM encoded certificate, stdout if not set",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		c, err := getConfig(cmd)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		validity, err := time.ParseDuration(cmd.String(validityFlag))
		if err != nil {
			return fmt.Errorf("invalid validity: %w", err)
		}
		return createTag(c, cmd.String(holderFlag), cmd.String(tagsFlag), validity)
	},
}

func createTag(c *Config, holder, tags string, validity time.Duration) error {

	if _, err := uuid.Parse(holder); err != nil {
		return fmt.Errorf("invalid holder %q: %w", holder, err)
	}
	attrs, err := parseTags(tags)
	if err != nil {
		return err
	}

	if c.Key == "" || c.Chain == "" {
		return errors.New("key and certificate of the asset tag CA must be specified")
	}
	keyData, err := os.ReadFile(c.Key)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	key, err := internal.ParsePrivateKey(keyData)
	if err != nil {
		return fmt.Errorf("failed to parse key: %w", err)
	}
	certData, err := os.ReadFile(c.Chain)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}
	ca, err := internal.ParseCert(certData)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := time.Now()
	der, err := assettag.CreateAttributeCertificate(&assettag.Template{
		Holder:     pkix.Name{CommonName: holder},
		NotBefore:  now,
		NotAfter:   now.Add(validity),
		Attributes: attrs,
	}, ca, key)
	if err != nil {
		return fmt.Errorf("failed to create asset tag certificate: %w", err)
	}

	log.Infof("Created asset tag certificate for %v with %v tags", holder, len(attrs))

	return writeOutput(c.Out, pem.EncodeToMemory(&pem.Block{Type: "ATTRIBUTE CERTIFICATE", Bytes: der}))
}

func parseTags(s string) ([]assettag.Attribute, error) {
	attrs := []assettag.Attribute{}
	for _, kv := range strings.Split(s, ",") {
		if strings.TrimSpace(kv) == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid tag %q, expected key=value", kv)
		}
		attrs = append(attrs, assettag.Attribute{Name: k, Value: v})
	}
	if len(attrs) == 0 {
		return nil, errors.New("no tags specified")
	}
	return attrs, nil
}
