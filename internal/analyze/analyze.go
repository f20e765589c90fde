// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyze wires the scanner, binding parser, call graph,
// reachability analyzer, path finder, and detector registry into the
// engine's single entry point: analyze(project-path, ...) -> ScanReport.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mannjg/stateguard/internal/binding"
	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/detect"
	"github.com/mannjg/stateguard/internal/errs"
	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/metrics"
	"github.com/mannjg/stateguard/internal/pathfinder"
	"github.com/mannjg/stateguard/internal/reachability"
	"github.com/mannjg/stateguard/internal/report"
	"github.com/mannjg/stateguard/internal/scanner"
	"github.com/mannjg/stateguard/internal/snapshot"
)

var tracer = otel.Tracer("stateguard.analyze")

// Options configures one analysis run. ProjectRules and LeafTypes are the
// two external configuration inputs named in the core entry-point contract;
// MinRisk and ExcludeRegex parameterize the finding aggregator.
type Options struct {
	ProjectRoot  string
	Rules        *config.ProjectRules
	LeafTypes    *config.LeafTypes
	MinRisk      report.Risk
	ExcludeRegex []string
	Logger       *slog.Logger
}

// Outcome is everything an analysis run produces: the scan report plus the
// underlying graph, reachability result, and stateful paths, for callers
// that want more than the aggregated findings (e.g. a snapshot cache, or a
// path-visualization renderer).
type Outcome struct {
	Report       *report.ScanReport
	Graph        *graph.Graph
	Reachability *reachability.Result
	Paths        []pathfinder.StatefulPath
}

// Analyze runs the full pipeline: scan, bind, build, reach, detect, find
// paths, aggregate. It implements the core's analyze(project-path,
// include-prefixes, exclude-prefixes, leaf-config, exclude-regex) contract.
func Analyze(ctx context.Context, opts Options) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "analyze.Analyze")
	defer span.End()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	leafTypes := opts.LeafTypes
	if leafTypes == nil {
		logger.Warn("no leaf-type configuration supplied, proceeding with an empty configuration", slog.Any("error", errs.ErrConfigMissing))
		leafTypes = &config.LeafTypes{}
		leafTypes.Compile()
	}

	runID := uuid.NewString()
	started := time.Now()
	span.SetAttributes(
		attribute.String("stateguard.run_id", runID),
		attribute.String("stateguard.project_root", opts.ProjectRoot),
	)
	logger = logger.With(slog.String("run_id", runID))

	scanStart := time.Now()
	scanResult, err := scanner.Scan(ctx, opts.ProjectRoot, opts.Rules, logger)
	if err != nil {
		return nil, fmt.Errorf("analyze: scanning %s: %w", opts.ProjectRoot, err)
	}
	metrics.ObservePhaseDuration("decode", time.Since(scanStart).Seconds())
	g := scanResult.Graph

	if scanResult.ClassesScanned == 0 {
		logger.Warn("project path resolved to nothing scannable, returning an empty report")
		return &Outcome{
			Report: &report.ScanReport{
				RunID:           runID,
				StartedAt:       started,
				Duration:        time.Since(started),
				EffectiveConfig: leafTypes,
			},
			Graph: g,
		}, nil
	}

	bindStart := time.Now()
	bindings, moduleOf := binding.Parse(g)
	g2 := rebuildWithBindings(g, bindings, moduleOf)
	metrics.ObservePhaseDuration("bind", time.Since(bindStart).Seconds())

	reachStart := time.Now()
	reach := reachability.Analyze(g2)
	metrics.ObservePhaseDuration("reachability", time.Since(reachStart).Seconds())
	metrics.SetReachableClasses(snapshot.ProjectHash(opts.ProjectRoot), len(reach.Names()))

	filter := config.NewCallSiteFilter(opts.Rules)

	detectStart := time.Now()
	findings := detect.DefaultRegistry().RunAll(g2, *leafTypes, reach, filter)
	for _, f := range findings {
		metrics.RecordFinding(f.DetectorID, f.Risk.String())
	}
	metrics.ObservePhaseDuration("detect", time.Since(detectStart).Seconds())

	paths := pathfinder.Find(g2, reach, leafTypes, filter)

	aggregated := report.Aggregate(findings, opts.MinRisk, append(append([]string{}, leafTypes.ExcludeRegex...), opts.ExcludeRegex...))

	scanReport := &report.ScanReport{
		RunID:           runID,
		ClassesScanned:  scanResult.ClassesScanned,
		ArchivesScanned: scanResult.ArchivesScanned,
		StartedAt:       started,
		Duration:        time.Since(started),
		Findings:        aggregated,
		EffectiveConfig: leafTypes,
	}

	logger.Info("scan complete",
		slog.Int("classes_scanned", scanReport.ClassesScanned),
		slog.Int("reachable_classes", len(reach.Names())),
		slog.Int("findings", len(aggregated)),
		slog.Duration("duration", scanReport.Duration),
	)

	return &Outcome{Report: scanReport, Graph: g2, Reachability: reach, Paths: paths}, nil
}

// rebuildWithBindings re-decodes nothing: it rebuilds a frozen graph over
// the same classes with the DI-binding map merged in, since Graph forbids
// mutation after Freeze and the binding parser needs a frozen graph's
// supertype index to run.
func rebuildWithBindings(g *graph.Graph, bindings binding.Bindings, moduleOf binding.ModuleOf) *graph.Graph {
	rebuilt := graph.NewGraph(graph.WithProjectRoot(g.ProjectRoot()))
	for _, name := range g.Classes() {
		node, _ := g.Get(name)
		_ = rebuilt.AddClass(node)
	}
	rebuilt.MergeBindings(bindings)
	rebuilt.MergeModuleAttribution(moduleOf)
	rebuilt.SetBuiltAtMilli(g.BuiltAtMilli())
	rebuilt.Freeze()
	return rebuilt
}
