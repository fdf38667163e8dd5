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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Fraunhofer-AISEC/hostverifier/anchors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// Config is read from the optional JSON configuration file. Values passed
// via command line overwrite the values from the file
type Config struct {
	LogLevel      string         `json:"logLevel"`
	Manifest      string         `json:"manifest"`
	Flavor        string         `json:"flavor"`
	Eventlog      string         `json:"eventlog"`
	EventlogBank  string         `json:"eventlogBank"`
	Policies      string         `json:"policies"`
	SkipSignature bool           `json:"skipSignature"`
	Serialization string         `json:"serialization"`
	Key           string         `json:"key"`
	Chain         string         `json:"chain"`
	Out           string         `json:"out"`
	Anchors       anchors.Config `json:"anchors"`

	// base is the directory relative paths are resolved against
	base string
}

const (
	configFlag            = "config"
	logLevelFlag          = "log-level"
	manifestFlag          = "manifest"
	flavorFlag            = "flavor"
	eventlogFlag          = "eventlog"
	eventlogBankFlag      = "eventlog-bank"
	policiesFlag          = "policies"
	skipSignatureFlag     = "skip-signature"
	serializationFlag     = "serialization"
	keyFlag               = "key"
	chainFlag             = "chain"
	outFlag               = "out"
	privacyCasFlag        = "privacy-cas"
	assetTagCasFlag       = "asset-tag-cas"
	flavorSigningCertFlag = "flavor-signing-cert"
	flavorCasFlag         = "flavor-cas"
)

func getConfig(cmd *cli.Command) (*Config, error) {

	// Initialize configuration with some default values
	c := &Config{
		EventlogBank:  "SHA256",
		Serialization: "json",
	}

	if cmd.IsSet(configFlag) {
		if err := readConfigFile(cmd.String(configFlag), c); err != nil {
			return nil, err
		}
	}

	// Overwrite configuration with values passed via command line
	if cmd.IsSet(logLevelFlag) {
		c.LogLevel = cmd.String(logLevelFlag)
	}
	if cmd.IsSet(manifestFlag) {
		c.Manifest = cmd.String(manifestFlag)
	}
	if cmd.IsSet(flavorFlag) {
		c.Flavor = cmd.String(flavorFlag)
	}
	if cmd.IsSet(eventlogFlag) {
		c.Eventlog = cmd.String(eventlogFlag)
	}
	if cmd.IsSet(eventlogBankFlag) {
		c.EventlogBank = cmd.String(eventlogBankFlag)
	}
	if cmd.IsSet(policiesFlag) {
		c.Policies = cmd.String(policiesFlag)
	}
	if cmd.IsSet(skipSignatureFlag) {
		c.SkipSignature = cmd.Bool(skipSignatureFlag)
	}
	if cmd.IsSet(serializationFlag) {
		c.Serialization = cmd.String(serializationFlag)
	}
	if cmd.IsSet(keyFlag) {
		c.Key = cmd.String(keyFlag)
	}
	if cmd.IsSet(chainFlag) {
		c.Chain = cmd.String(chainFlag)
	}
	if cmd.IsSet(outFlag) {
		c.Out = cmd.String(outFlag)
	}
	if cmd.IsSet(privacyCasFlag) {
		c.Anchors.PrivacyCAs = cmd.String(privacyCasFlag)
	}
	if cmd.IsSet(assetTagCasFlag) {
		c.Anchors.AssetTagCAs = cmd.String(assetTagCasFlag)
	}
	if cmd.IsSet(flavorSigningCertFlag) {
		c.Anchors.FlavorSigningCert = cmd.String(flavorSigningCertFlag)
	}
	if cmd.IsSet(flavorCasFlag) {
		c.Anchors.FlavorCAs = cmd.String(flavorCasFlag)
	}

	setLogLevel(c.LogLevel)

	c.pathsToAbs()

	c.Print()

	return c, nil
}

// readConfigFile reads the JSON configuration. Relative paths within the
// file are resolved against the directory of the file
func readConfigFile(file string, c *Config) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read config file %v: %w", file, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %v: %w", file, err)
	}
	dir, err := filepath.Abs(filepath.Dir(file))
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	c.base = dir
	return nil
}

func setLogLevel(level string) {
	if level == "" {
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	l, ok := logLevels[strings.ToLower(level)]
	if !ok {
		log.Warnf("LogLevel %v does not exist. Default to info level", level)
		l = logrus.InfoLevel
	}
	logrus.SetLevel(l)
}

func (c *Config) pathsToAbs() {
	for _, p := range []*string{
		&c.Manifest, &c.Flavor, &c.Eventlog, &c.Policies, &c.Key, &c.Chain, &c.Out,
		&c.Anchors.PrivacyCAs, &c.Anchors.AssetTagCAs, &c.Anchors.FlavorSigningCert, &c.Anchors.FlavorCAs,
	} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		if c.base != "" {
			*p = filepath.Join(c.base, *p)
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			log.Warnf("Failed to get absolute path for %v: %v", *p, err)
			continue
		}
		*p = abs
	}
}

func (c *Config) Print() {
	log.Debugf("Using the following configuration:")
	log.Debugf("\tLogLevel          : %v", c.LogLevel)
	log.Debugf("\tManifest          : %v", c.Manifest)
	log.Debugf("\tFlavor            : %v", c.Flavor)
	log.Debugf("\tEventlog          : %v (%v)", c.Eventlog, c.EventlogBank)
	log.Debugf("\tPolicies          : %v", c.Policies)
	log.Debugf("\tSkipSignature     : %v", c.SkipSignature)
	log.Debugf("\tSerialization     : %v", c.Serialization)
	log.Debugf("\tKey               : %v", c.Key)
	log.Debugf("\tChain             : %v", c.Chain)
	log.Debugf("\tOut               : %v", c.Out)
	log.Debugf("\tPrivacyCAs        : %v", c.Anchors.PrivacyCAs)
	log.Debugf("\tAssetTagCAs       : %v", c.Anchors.AssetTagCAs)
	log.Debugf("\tFlavorSigningCert : %v", c.Anchors.FlavorSigningCert)
	log.Debugf("\tFlavorCAs         : %v", c.Anchors.FlavorCAs)
}
