// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadLeafTypes reads <projectRoot>/stateguard.leaf-types.yaml and merges it
// with DefaultLeafTypes by set union. A missing file is not an error: the
// default configuration is returned unchanged (see errs.ErrConfigMissing
// for the caller-facing warning this implies).
//
// This loader is a convenience, not part of the core's required interface:
// the core itself accepts a pre-parsed *LeafTypes so callers with their own
// configuration source never need this function.
func LoadLeafTypes(projectRoot string) (*LeafTypes, error) {
	base := DefaultLeafTypes()
	if projectRoot == "" {
		return base, nil
	}

	data, err := os.ReadFile(filepath.Join(projectRoot, "stateguard.leaf-types.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, fmt.Errorf("reading leaf-type config: %w", err)
	}

	var override LeafTypes
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parsing leaf-type config: %w", err)
	}

	merged := base.Merge(&override)
	merged.Compile()
	return merged, nil
}

// LoadProjectRules reads <projectRoot>/stateguard.project.yaml. A missing
// file yields a zero-value ProjectRules (matching everything as included,
// nothing excluded) and no error.
func LoadProjectRules(projectRoot string) (*ProjectRules, error) {
	if projectRoot == "" {
		return &ProjectRules{}, nil
	}

	data, err := os.ReadFile(filepath.Join(projectRoot, "stateguard.project.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectRules{}, nil
		}
		return nil, fmt.Errorf("reading project config: %w", err)
	}

	var rules ProjectRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing project config: %w", err)
	}
	return &rules, nil
}
