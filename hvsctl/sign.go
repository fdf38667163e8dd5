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
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/internal"
	"github.com/urfave/cli/v3"
)

var signCommand = &cli.Command{
	Name:  "sign",
	Usage: "signs a flavor or a JSON array of flavors with an RSA key",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  flavorFlag,
			Usage: "unsigned flavor or JSON array of flavors",
		},
		&cli.StringFlag{
			Name:  keyFlag,
			Usage: "RSA flavor signing key",
		},
		&cli.StringFlag{
			Name:  outFlag,
			Usage: "output file for the signed flavors, stdout if not set",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		c, err := getConfig(cmd)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return sign(c)
	},
}

func sign(c *Config) error {

	if c.Flavor == "" || c.Key == "" {
		return errors.New("flavor and key must be specified")
	}

	data, err := os.ReadFile(c.Flavor)
	if err != nil {
		return fmt.Errorf("failed to read flavor: %w", err)
	}
	flavors, err := decodeUnsigned(data)
	if err != nil {
		return err
	}

	keyData, err := os.ReadFile(c.Key)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}
	key, err := internal.ParsePrivateKey(keyData)
	if err != nil {
		return fmt.Errorf("failed to parse signing key: %w", err)
	}

	collection := flavor.SignedFlavorCollection{}
	for _, f := range flavors {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("invalid flavor: %w", err)
		}
		sf, err := flavor.Sign(f, key)
		if err != nil {
			return err
		}
		collection.SignedFlavors = append(collection.SignedFlavors, *sf)
	}

	var out []byte
	if len(collection.SignedFlavors) == 1 {
		out, err = json.MarshalIndent(collection.SignedFlavors[0], "", "  ")
	} else {
		out, err = json.MarshalIndent(collection, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal signed flavors: %w", err)
	}

	log.Infof("Signed %v flavors", len(collection.SignedFlavors))

	return writeOutput(c.Out, out)
}

func decodeUnsigned(data []byte) ([]*flavor.Flavor, error) {
	var list []*flavor.Flavor
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) == 0 {
			return nil, errors.New("no flavors specified")
		}
		return list, nil
	}
	f := new(flavor.Flavor)
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flavor: %w", err)
	}
	return []*flavor.Flavor{f}, nil
}

func writeOutput(file string, data []byte) error {
	if file == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(file, data, 0644); err != nil {
		return fmt.Errorf("failed to write %v: %w", file, err)
	}
	log.Infof("Wrote %v", file)
	return nil
}
