// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report defines the Finding and ScanReport shapes produced by the
// detector framework, and the aggregation step that filters and groups
// them for the (out-of-scope) report-rendering collaborator.
package report

import (
	"regexp"
	"time"

	"github.com/mannjg/stateguard/internal/config"
)

// Risk is an ordered severity level; higher values are more severe so a
// minimum-risk threshold is a simple numeric comparison.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r Risk) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ScopeSource tags how a finding's owning class came to be scoped as a
// managed singleton.
type ScopeSource string

const (
	ScopeSourceNone        ScopeSource = ""
	ScopeSourceAnnotation  ScopeSource = "annotation"
	ScopeSourceModuleBinding ScopeSource = "module-binding"
)

// Finding is one detector result.
type Finding struct {
	ClassName       string
	SourceLine      int // 0 when unknown
	StateType       string
	Risk            Risk
	PatternLabel    string
	FieldName       string
	RawType         string
	ScopeSource     ScopeSource
	ScopeAnnotation string
	ModuleName      string
	Description     string
	Recommendation  string
	DetectorID      string
	SourceFile      string
}

// ScanReport aggregates one complete analysis run.
type ScanReport struct {
	RunID           string
	ClassesScanned  int
	ArchivesScanned int
	StartedAt       time.Time
	Duration        time.Duration
	Findings        []Finding
	EffectiveConfig *config.LeafTypes
}

// Aggregate filters raw detector output by minimum risk threshold and by a
// set of exclude-regex patterns matched against each finding's raw field
// type, per spec's finding-aggregator contract. Findings with no raw type
// are never excluded by the regex pass.
func Aggregate(findings []Finding, minRisk Risk, excludeRegex []string) []Finding {
	compiled := make([]*regexp.Regexp, 0, len(excludeRegex))
	for _, pattern := range excludeRegex {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}

	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Risk < minRisk {
			continue
		}
		if f.RawType != "" && matchesAny(compiled, f.RawType) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
