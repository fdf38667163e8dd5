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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/Fraunhofer-AISEC/hostverifier/flavor"
	"github.com/Fraunhofer-AISEC/hostverifier/hostmanifest"
	"github.com/Fraunhofer-AISEC/hostverifier/trustreport"
	"github.com/invopop/jsonschema"
	"github.com/urfave/cli/v3"
)

var schemaObjects = []any{
	hostmanifest.HostManifest{},
	flavor.SignedFlavor{},
	flavor.SignedFlavorCollection{},
	trustreport.TrustReport{},
}

var schemaCommand = &cli.Command{
	Name:  "schema",
	Usage: "generates JSON schema definitions of the host manifest, flavor and trust report",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  outFlag,
			Usage: "The directory the schema definitions shall be written to",
			Value: "schema",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		c, err := getConfig(cmd)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		dir := c.Out
		if dir == "" {
			dir = cmd.String(outFlag)
		}
		return generateSchemas(dir)
	},
}

func generateSchemas(dir string) error {

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	r := &jsonschema.Reflector{
		ExpandedStruct:            false,
		Anonymous:                 true,
		DoNotReference:            false,
		AllowAdditionalProperties: true,
	}

	for _, o := range schemaObjects {
		schema := r.Reflect(o)
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal: %w", err)
		}

		f := filepath.Join(dir, fmt.Sprintf("%v.json", getName(o)))
		if err := os.WriteFile(f, data, 0644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		log.Debugf("Wrote %v", f)
	}

	log.Infof("Generated %v schema definitions in %v", len(schemaObjects), dir)

	return nil
}

func getName(v any) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
