// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect runs the registry of pattern detectors over the reachable
// call graph, each emitting findings tagged with risk level, state type,
// pattern label, and remediation hint. Adding a detector never touches the
// pipeline driver: it is registered once in DefaultRegistry.
package detect

import (
	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/reachability"
	"github.com/mannjg/stateguard/internal/report"
)

// Detector is one named pattern matcher over the reachable graph. filter is
// the compiled exclude-class/exclude-method configuration; detectors that
// have no notion of a call site may ignore it.
type Detector interface {
	ID() string
	Description() string
	Detect(g *graph.Graph, cfg config.LeafTypes, reachable *reachability.Result, filter *config.CallSiteFilter) []report.Finding
}

// Registry holds the set of detectors a scan runs, in registration order so
// finding output stays deterministic across runs.
type Registry struct {
	detectors []Detector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a detector, ignoring a duplicate ID registration.
func (r *Registry) Register(d Detector) {
	for _, existing := range r.detectors {
		if existing.ID() == d.ID() {
			return
		}
	}
	r.detectors = append(r.detectors, d)
}

// Detectors returns the registered detectors in registration order.
func (r *Registry) Detectors() []Detector {
	return r.detectors
}

// RunAll executes every registered detector and concatenates their
// findings in registration order.
func (r *Registry) RunAll(g *graph.Graph, cfg config.LeafTypes, reachable *reachability.Result, filter *config.CallSiteFilter) []report.Finding {
	var findings []report.Finding
	for _, d := range r.detectors {
		findings = append(findings, d.Detect(g, cfg, reachable, filter)...)
	}
	return findings
}

// DefaultRegistry returns a registry populated with all nine built-in
// detectors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&StaticStateDetector{})
	r.Register(&SingletonDetector{})
	r.Register(&ModuleBindingDetector{})
	r.Register(&CategoryDetector{
		IDValue:        "cache",
		Category:       config.CategoryCache,
		StateType:      "cache",
		PatternLabel:   "cache-field",
		Risk:           report.RiskCritical,
		Recommendation: "Back this cache with a distributed store (e.g. Redis) shared across replicas, or scope it request-local.",
	})
	r.Register(&CategoryDetector{
		IDValue:        "thread-local",
		Category:       config.CategoryThreadLocal,
		StateType:      "thread-local",
		PatternLabel:   "thread-local-field",
		Risk:           report.RiskHigh,
		Recommendation: "Thread-local state does not survive across requests served by different replicas or threads; pass the value explicitly instead.",
	})
	r.Register(&CategoryDetector{
		IDValue:        "external-state",
		Category:       config.CategoryExternalState,
		StateType:      "external-state",
		PatternLabel:   "external-resource-handle",
		Risk:           report.RiskMedium,
		Recommendation: "Confirm this handle is acquired per-request or pooled safely for concurrent, multi-replica access.",
	})
	r.Register(&CategoryDetector{
		IDValue:        "service-client",
		Category:       config.CategoryServiceClient,
		StateType:      "service-client",
		PatternLabel:   "service-client-field",
		Risk:           report.RiskMedium,
		Recommendation: "Service clients are usually safe to share, but confirm this one has no per-request mutable state.",
	})
	r.Register(&CategoryDetector{
		IDValue:        "resilience",
		Category:       config.CategoryResilience,
		StateType:      "resilience-primitive",
		PatternLabel:   "resilience-primitive-field",
		Risk:           report.RiskMedium,
		Recommendation: "Circuit breakers, rate limiters, and retry policies hold per-instance counters; verify state is not expected to be shared across replicas.",
	})
	r.Register(&FileStateDetector{})
	return r
}
