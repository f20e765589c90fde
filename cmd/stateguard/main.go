// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command stateguard scans a compiled JVM project for stateful-singleton
// anti-patterns: static mutable fields, unguarded caches, thread-locals,
// and DI-bound services that leak mutable state across requests.
//
// Usage:
//
//	stateguard -project /path/to/target -min-risk MEDIUM
//	stateguard -project /path/to/target -cache ~/.stateguard/cache -metrics-addr :9400
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mannjg/stateguard/internal/analyze"
	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/report"
	"github.com/mannjg/stateguard/internal/snapshot"
)

func main() {
	projectRoot := flag.String("project", "", "Root directory of the compiled project to scan (required)")
	minRiskFlag := flag.String("min-risk", "LOW", "Minimum risk to report: LOW, MEDIUM, HIGH, CRITICAL")
	cacheDir := flag.String("cache", "", "BadgerDB directory for snapshot caching (disabled if empty)")
	forceRescan := flag.Bool("force", false, "Ignore any cached snapshot and rescan")
	metricsAddr := flag.String("metrics-addr", "", "If set, serve Prometheus metrics at this address (e.g. :9400) until the scan completes")
	jsonOut := flag.Bool("json", false, "Emit the scan report as JSON instead of a text summary")
	flag.Parse()

	if *projectRoot == "" {
		fmt.Fprintln(os.Stderr, "stateguard: -project is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	minRisk, err := parseRisk(*minRiskFlag)
	if err != nil {
		logger.Error("invalid -min-risk", slog.String("error", err.Error()))
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("stateguard: interrupted, cancelling scan")
		cancel()
	}()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			logger.Info("serving metrics", slog.String("addr", *metricsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	leafTypes, err := config.LoadLeafTypes(*projectRoot)
	if err != nil {
		logger.Error("loading leaf-type config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	rules, err := config.LoadProjectRules(*projectRoot)
	if err != nil {
		logger.Error("loading project config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var snapMgr *snapshot.Manager
	var cacheDB *badger.DB
	if *cacheDir != "" {
		abs, err := filepath.Abs(*cacheDir)
		if err != nil {
			logger.Error("resolving cache directory", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cacheDB, err = badger.Open(badger.DefaultOptions(abs).WithLogger(nil))
		if err != nil {
			logger.Warn("snapshot cache unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			defer cacheDB.Close()
			snapMgr, err = snapshot.NewManager(cacheDB, logger)
			if err != nil {
				logger.Warn("snapshot cache unavailable, continuing without it", slog.String("error", err.Error()))
				snapMgr = nil
			}
		}
	}

	absRoot, err := filepath.Abs(*projectRoot)
	if err != nil {
		logger.Error("resolving project path", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if snapMgr != nil && !*forceRescan {
		if _, cached, meta, err := snapMgr.LoadLatest(ctx, absRoot); err == nil {
			logger.Info("using cached snapshot",
				slog.String("snapshot_id", meta.SnapshotID),
				slog.Time("created_at", meta.CreatedAt))
			emitReport(cached, *jsonOut)
			return
		}
	}

	outcome, err := analyze.Analyze(ctx, analyze.Options{
		ProjectRoot: absRoot,
		Rules:       rules,
		LeafTypes:   leafTypes,
		MinRisk:     minRisk,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("scan failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if snapMgr != nil {
		if _, err := snapMgr.Save(ctx, outcome.Graph, outcome.Report); err != nil {
			logger.Warn("failed to save snapshot", slog.String("error", err.Error()))
		}
	}

	emitReport(outcome.Report, *jsonOut)

	for _, f := range outcome.Report.Findings {
		if f.Risk >= report.RiskHigh {
			os.Exit(1)
		}
	}
}

func emitReport(rpt *report.ScanReport, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rpt)
		return
	}

	fmt.Printf("stateguard scan %s: %d classes scanned, %d finding(s) in %s\n",
		rpt.RunID, rpt.ClassesScanned, len(rpt.Findings), rpt.Duration.Round(time.Millisecond))
	for _, f := range rpt.Findings {
		fmt.Printf("  [%s] %s %s.%s — %s\n", f.Risk, f.DetectorID, f.ClassName, f.FieldName, f.Description)
	}
}

func parseRisk(s string) (report.Risk, error) {
	switch s {
	case "LOW":
		return report.RiskLow, nil
	case "MEDIUM":
		return report.RiskMedium, nil
	case "HIGH":
		return report.RiskHigh, nil
	case "CRITICAL":
		return report.RiskCritical, nil
	default:
		return 0, fmt.Errorf("unknown risk level %q", s)
	}
}
