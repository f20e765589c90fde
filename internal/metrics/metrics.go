// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics registers the Prometheus instrumentation emitted by a
// scan run: classes decoded, scan duration, and findings by detector and
// risk level.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// classesDecodedTotal counts classes successfully decoded, by whether
	// they were classified as project code or a dependency.
	classesDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stateguard",
		Subsystem: "classscan",
		Name:      "classes_decoded_total",
		Help:      "Total classes decoded by project/dependency classification",
	}, []string{"origin"})

	// artifactsSkippedTotal counts unreadable artifacts skipped during a scan.
	artifactsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stateguard",
		Subsystem: "classscan",
		Name:      "artifacts_skipped_total",
		Help:      "Total class artifacts skipped because they could not be read or decoded",
	}, []string{"reason"})

	// scanDurationSeconds measures end-to-end scan duration by phase.
	scanDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stateguard",
		Subsystem: "classscan",
		Name:      "scan_duration_seconds",
		Help:      "Scan duration by phase (decode, bind, reachability, detect)",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"phase"})

	// findingsTotal counts findings emitted, by detector ID and risk level.
	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stateguard",
		Subsystem: "classscan",
		Name:      "findings_total",
		Help:      "Total findings emitted by detector and risk level",
	}, []string{"detector", "risk"})

	// reachableClassesTotal records the size of the reachable set for the
	// most recent run of a given project hash.
	reachableClassesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stateguard",
		Subsystem: "classscan",
		Name:      "reachable_classes",
		Help:      "Number of classes in the reachable set for the most recent scan",
	}, []string{"project_hash"})
)

// RecordClassDecoded records one successfully decoded class.
func RecordClassDecoded(isProject bool) {
	origin := "dependency"
	if isProject {
		origin = "project"
	}
	classesDecodedTotal.WithLabelValues(origin).Inc()
}

// RecordArtifactSkipped records one artifact that could not be decoded.
func RecordArtifactSkipped(reason string) {
	artifactsSkippedTotal.WithLabelValues(reason).Inc()
}

// ObservePhaseDuration records the wall-clock duration of one scan phase.
func ObservePhaseDuration(phase string, seconds float64) {
	scanDurationSeconds.WithLabelValues(phase).Observe(seconds)
}

// RecordFinding records one emitted finding.
func RecordFinding(detectorID, risk string) {
	findingsTotal.WithLabelValues(detectorID, risk).Inc()
}

// SetReachableClasses records the reachable-set size for a project hash.
func SetReachableClasses(projectHash string, count int) {
	reachableClassesTotal.WithLabelValues(projectHash).Set(float64(count))
}
