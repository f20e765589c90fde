// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scanner walks a project root for compiled class artifacts,
// loose or archived, decodes each one, classifies it as project code or a
// dependency, and funnels the decoded classes into a single call graph.
// Decoding runs in parallel; graph construction is single-writer, per the
// engine's concurrency model.
package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mannjg/stateguard/internal/classfile"
	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/errs"
	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/metrics"
)

// archiveExtensions are the recognized compressed-archive container
// extensions scanned for nested class artifacts.
var archiveExtensions = map[string]bool{".jar": true, ".war": true, ".zip": true}

// metadataPrefix marks archive entries the scanner never treats as class
// artifacts regardless of extension.
const metadataPrefix = "META-INF/"

// Result is the outcome of one directory-tree scan.
type Result struct {
	Graph           *graph.Graph
	ClassesScanned  int
	ArchivesScanned int
	Skipped         int
}

// artifact is one undecoded class file discovered during the walk, kept in
// discovery order so parallel decoding can still be funneled back into a
// deterministic single-writer graph-construction stage.
type artifact struct {
	sourceLabel string // path, or "archive.jar!entry.class", for logging
	data        []byte
}

// Scan walks projectRoot for class artifacts, decodes them, classifies
// project-vs-dependency membership per rules, and returns the assembled
// call graph.
func Scan(ctx context.Context, projectRoot string, rules *config.ProjectRules, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		rules = &config.ProjectRules{}
	}

	artifacts, archivesScanned, err := collectArtifacts(projectRoot, logger)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		// The configured roots resolve to nothing scannable: an empty
		// report, not a failure. The caller decides whether a zero-class
		// scan warrants a distinct exit code.
		logger.Warn("no scannable class artifacts found", slog.String("project_root", projectRoot))
		g := graph.NewGraph(graph.WithProjectRoot(projectRoot))
		g.Freeze()
		return &Result{Graph: g, ClassesScanned: 0, ArchivesScanned: archivesScanned, Skipped: 0}, nil
	}

	nodes := make([]*classfile.ClassNode, len(artifacts))
	skipped := 0

	group, _ := errgroup.WithContext(ctx)
	for i, a := range artifacts {
		i, a := i, a
		group.Go(func() error {
			node, err := classfile.Decode(bytes.NewReader(a.data))
			if err != nil {
				logger.Warn("skipping unreadable class artifact", slog.String("source", a.sourceLabel), slog.Any("error", err))
				metrics.RecordArtifactSkipped("unreadable")
				return nil
			}
			nodes[i] = node
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	g := graph.NewGraph(graph.WithProjectRoot(projectRoot))
	for _, node := range nodes {
		if node == nil {
			skipped++
			continue
		}
		node.IsProject = classifyProject(node.Name, rules)
		if err := g.AddClass(node); err != nil {
			// A duplicate class name across two archives on the classpath;
			// the first one scanned wins, matching classloader precedence.
			logger.Warn("duplicate class skipped", slog.String("class", node.Name))
			skipped++
			continue
		}
		metrics.RecordClassDecoded(node.IsProject)
	}
	g.SetBuiltAtMilli(time.Now().UnixMilli())
	g.Freeze()

	return &Result{
		Graph:           g,
		ClassesScanned:  len(nodes) - skipped,
		ArchivesScanned: archivesScanned,
		Skipped:         skipped,
	}, nil
}

// collectArtifacts walks projectRoot, reading every loose .class file and
// every class entry inside a recognized archive, in a stable directory
// order.
func collectArtifacts(projectRoot string, logger *slog.Logger) ([]artifact, int, error) {
	if _, statErr := os.Stat(projectRoot); statErr != nil {
		if os.IsNotExist(statErr) {
			// A missing root resolves to nothing scannable, not a
			// catastrophic failure; Scan reports an empty result.
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: stat %s: %v", errs.ErrInvalidProjectPath, projectRoot, statErr)
	}

	var artifacts []artifact
	archivesScanned := 0

	err := filepath.WalkDir(projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == projectRoot {
				// A catastrophic failure reading the walk's own root
				// (e.g. permission denied) propagates to the caller,
				// wrapped as ErrInvalidProjectPath; per-entry failures
				// below it do not.
				return err
			}
			logger.Warn("skipping unreadable path", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case ext == ".class":
			data, readErr := readFileTolerant(path, logger)
			if readErr == nil {
				artifacts = append(artifacts, artifact{sourceLabel: path, data: data})
			}
		case archiveExtensions[ext]:
			archivesScanned++
			entries, archErr := readArchive(path, logger)
			if archErr != nil {
				logger.Warn("skipping unreadable archive", slog.String("path", path), slog.Any("error", archErr))
				return nil
			}
			artifacts = append(artifacts, entries...)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: walking %s: %v", errs.ErrInvalidProjectPath, projectRoot, err)
	}
	return artifacts, archivesScanned, nil
}

func readFileTolerant(path string, logger *slog.Logger) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("skipping unreadable class file", slog.String("path", path), slog.Any("error", err))
		return nil, err
	}
	return data, nil
}

func readArchive(path string, logger *slog.Logger) ([]artifact, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnreadableArtifact, err)
	}
	defer zr.Close()

	var entries []artifact
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasPrefix(f.Name, metadataPrefix) {
			continue
		}
		if strings.ToLower(filepath.Ext(f.Name)) != ".class" {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			logger.Warn("skipping unreadable archive entry", slog.String("archive", path), slog.String("entry", f.Name), slog.Any("error", err))
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			logger.Warn("skipping unreadable archive entry", slog.String("archive", path), slog.String("entry", f.Name), slog.Any("error", err))
			continue
		}
		entries = append(entries, artifact{sourceLabel: path + "!" + f.Name, data: data})
	}
	return entries, nil
}

// classifyProject decides project-vs-dependency membership: included
// unless excluded or shaded, plus any class under a configured root
// prefix is promoted to project-equivalent regardless of exclusion.
func classifyProject(canonicalName string, rules *config.ProjectRules) bool {
	if config.IsShaded(canonicalName) {
		return false
	}
	if hasAnyPrefix(canonicalName, rules.RootPrefixes) {
		return true
	}
	if len(rules.IncludePrefixes) > 0 && !hasAnyPrefix(canonicalName, rules.IncludePrefixes) {
		return false
	}
	if hasAnyPrefix(canonicalName, rules.ExcludePrefixes) {
		return false
	}
	return true
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
