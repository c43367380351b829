// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional per-host engine config file.
const ConfigFileName = "scopetrace.config.yaml"

// Config holds user-provided engine overrides.
//
// Description:
//
//	Loaded from <dir>/scopetrace.config.yaml. All fields are optional.
//	A missing config file is not an error (zero-config works out of the
//	box); functional options take precedence over file values.
//
// Thread Safety: Safe for concurrent reads after construction.
type Config struct {
	// Workers is the number of files recomputed in parallel.
	// 0 means runtime.NumCPU().
	Workers int `yaml:"workers"`

	// MaxScopesPerFile bounds the scope count accepted per file.
	// 0 means unlimited. Files over the bound fail with a structural
	// error, like any other malformed input.
	MaxScopesPerFile int `yaml:"max_scopes_per_file"`
}

// LoadConfig reads scopetrace.config.yaml from the given directory.
//
// Outputs:
//
//	Config - The parsed config, or the zero config if the file is
//	missing or dir is empty.
//	error - Non-nil only if the file exists but has invalid YAML.
func LoadConfig(dir string) (Config, error) {
	if dir == "" {
		return Config{}, nil
	}

	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}
	return cfg, nil
}
