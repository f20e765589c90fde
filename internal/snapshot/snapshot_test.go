// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/mannjg/stateguard/internal/classfile"
	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/report"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := newTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr, err := NewManager(db, logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func buildTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.NewGraph(graph.WithProjectRoot("/test/project"))
	if err := g.AddClass(&classfile.ClassNode{Name: "com.acme.Service", IsProject: true}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	g.SetBuiltAtMilli(1000)
	g.Freeze()
	return g
}

func TestSaveAndLoadLatestRoundTrips(t *testing.T) {
	mgr := newTestManager(t)
	g := buildTestGraph(t)
	rpt := &report.ScanReport{
		RunID:          "run-1",
		ClassesScanned: 1,
		Findings: []report.Finding{
			{ClassName: "com.acme.Service", StateType: "static-field", Risk: report.RiskHigh, DetectorID: "static-state"},
		},
	}

	meta, err := mgr.Save(context.Background(), g, rpt)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.NodeCount != 1 {
		t.Errorf("meta.NodeCount = %d, want 1", meta.NodeCount)
	}

	loadedGraph, loadedReport, loadedMeta, err := mgr.LoadLatest(context.Background(), "/test/project")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if loadedMeta.SnapshotID != meta.SnapshotID {
		t.Errorf("loaded snapshot id = %q, want %q", loadedMeta.SnapshotID, meta.SnapshotID)
	}
	if loadedGraph.NodeCount() != 1 {
		t.Errorf("loadedGraph.NodeCount() = %d, want 1", loadedGraph.NodeCount())
	}
	if _, ok := loadedGraph.Get("com.acme.Service"); !ok {
		t.Error("loadedGraph missing com.acme.Service")
	}
	if len(loadedReport.Findings) != 1 {
		t.Fatalf("loadedReport.Findings = %v, want 1 entry", loadedReport.Findings)
	}
	if loadedReport.Findings[0].DetectorID != "static-state" {
		t.Errorf("loadedReport.Findings[0].DetectorID = %q, want static-state", loadedReport.Findings[0].DetectorID)
	}
}

func TestLoadLatestUnknownProjectFails(t *testing.T) {
	mgr := newTestManager(t)
	_, _, _, err := mgr.LoadLatest(context.Background(), "/never/saved")
	if err == nil {
		t.Fatal("LoadLatest on unknown project: want error, got nil")
	}
}

func TestDeleteRemovesSnapshot(t *testing.T) {
	mgr := newTestManager(t)
	g := buildTestGraph(t)
	meta, err := mgr.Save(context.Background(), g, &report.ScanReport{RunID: "run-1"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := mgr.Delete(context.Background(), meta.SnapshotID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, _, err := mgr.LoadLatest(context.Background(), "/test/project"); err == nil {
		t.Error("LoadLatest after Delete: want error, got nil")
	}
}
