// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"archive/zip"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mannjg/stateguard/internal/config"
)

func TestClassifyProjectDefaultsToIncluded(t *testing.T) {
	rules := &config.ProjectRules{}
	if !classifyProject("com.acme.Service", rules) {
		t.Error("classifyProject with zero-value rules = false, want true")
	}
}

func TestClassifyProjectHonorsIncludeExclude(t *testing.T) {
	rules := &config.ProjectRules{
		IncludePrefixes: []string{"com.acme."},
		ExcludePrefixes: []string{"com.acme.generated."},
	}
	if !classifyProject("com.acme.Service", rules) {
		t.Error("com.acme.Service should be included")
	}
	if classifyProject("com.acme.generated.Proto", rules) {
		t.Error("com.acme.generated.Proto should be excluded")
	}
	if classifyProject("org.other.Thing", rules) {
		t.Error("org.other.Thing is outside the include prefix and should not be project code")
	}
}

func TestClassifyProjectRootPrefixOverridesExclude(t *testing.T) {
	rules := &config.ProjectRules{
		ExcludePrefixes: []string{"com.acme.vendor."},
		RootPrefixes:    []string{"com.acme.vendor.plugin."},
	}
	if !classifyProject("com.acme.vendor.plugin.Hook", rules) {
		t.Error("root-prefixed class should be promoted to project even under an exclude prefix")
	}
	if classifyProject("com.acme.vendor.Other", rules) {
		t.Error("non-root vendor class should remain excluded")
	}
}

func TestClassifyProjectRejectsShadedNamespace(t *testing.T) {
	rules := &config.ProjectRules{}
	if classifyProject("com.acme.shaded.com.google.Gson", rules) {
		t.Error("shaded namespace class should never be classified as project code")
	}
}

func TestScanSkipsUnreadableArtifactsAndContinues(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Garbage.class"), []byte{0x00, 0x00, 0x00, 0x00}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	result, err := Scan(context.Background(), dir, &config.ProjectRules{}, logger)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.ClassesScanned != 0 {
		t.Errorf("ClassesScanned = %d, want 0", result.ClassesScanned)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
}

func TestScanOnEmptyProjectReturnsEmptyResultNotError(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	result, err := Scan(context.Background(), dir, &config.ProjectRules{}, logger)
	if err != nil {
		t.Fatalf("Scan on empty project: want nil error, got %v", err)
	}
	if result.ClassesScanned != 0 {
		t.Errorf("ClassesScanned = %d, want 0", result.ClassesScanned)
	}
	if result.Graph == nil || len(result.Graph.Classes()) != 0 {
		t.Errorf("Graph = %+v, want an empty frozen graph", result.Graph)
	}
}

func TestScanOnMissingProjectReturnsEmptyResultNotError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	result, err := Scan(context.Background(), "/no/such/project/root", &config.ProjectRules{}, logger)
	if err != nil {
		t.Fatalf("Scan on missing project root: want nil error, got %v", err)
	}
	if result.ClassesScanned != 0 {
		t.Errorf("ClassesScanned = %d, want 0", result.ClassesScanned)
	}
}

func TestScanReadsArchiveEntriesAndSkipsMetadata(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "app.jar")

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	zw := zip.NewWriter(f)
	writeEntry := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip.Create: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	writeEntry("META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\n"))
	writeEntry("com/acme/Garbage.class", []byte{0x00, 0x00, 0x00, 0x00})
	if err := zw.Close(); err != nil {
		t.Fatalf("zip.Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	result, err := Scan(context.Background(), dir, &config.ProjectRules{}, logger)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.ArchivesScanned != 1 {
		t.Errorf("ArchivesScanned = %d, want 1", result.ArchivesScanned)
	}
	// The META-INF entry must never reach the decoder as a class artifact,
	// and the one real entry is garbage, so nothing decodes successfully.
	if result.ClassesScanned != 0 {
		t.Errorf("ClassesScanned = %d, want 0", result.ClassesScanned)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (the garbage class entry)", result.Skipped)
	}
}
