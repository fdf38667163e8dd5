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

package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "internal")

// GetFile reads a file from an absolute path or from a path relative to
// the optional base directory
func GetFile(file string, base *string) ([]byte, error) {
	if file == "" {
		return nil, fmt.Errorf("empty filename passed")
	}
	f, err := GetFilePath(file, base)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %v: %w", f, err)
	}
	return data, nil
}

// GetFilePath resolves a file from an absolute path or a path relative to
// the optional base directory. Relative paths without base are resolved
// against the working directory
func GetFilePath(file string, base *string) (string, error) {

	if filepath.IsAbs(file) {
		if FileExists(file) {
			log.Tracef("Got: %v (absolute path)", file)
			return file, nil
		}
		return "", fmt.Errorf("file %v does not exist", file)
	}

	if base != nil {
		rf, err := filepath.Abs(filepath.Join(*base, file))
		if err == nil && FileExists(rf) {
			log.Tracef("Got: %v (relative to base path %v)", rf, *base)
			return rf, nil
		}
	}

	f, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path of %v: %w", file, err)
	}
	if FileExists(f) {
		log.Tracef("Got: %v (relative to working directory)", f)
		return f, nil
	}

	return "", fmt.Errorf("failed to find file %v", file)
}

func FileExists(f string) bool {
	if _, err := os.Stat(f); err == nil {
		return true
	}
	return false
}
