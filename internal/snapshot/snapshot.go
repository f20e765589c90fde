// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists a scan's call graph and report in BadgerDB so a
// repeat run against an unchanged project can skip re-decoding every class
// file. Snapshots are addressed by project path and keyed so the most
// recent one for a project is always one lookup away.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/report"
)

const (
	keyPrefixSnap      = "scan:snap:"
	keyPrefixSnapIndex = "scan:snap:index:"
	keySuffixGraph     = ":graph"
	keySuffixReport    = ":report"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// Metadata describes one persisted snapshot: enough to decide whether it
// can be reused without decompressing and unmarshaling the payload.
type Metadata struct {
	SnapshotID     string    `json:"snapshot_id"`
	ProjectRoot    string    `json:"project_root"`
	ProjectHash    string    `json:"project_hash"`
	GraphHash      string    `json:"graph_hash"`
	CreatedAtMilli int64     `json:"created_at_milli"`
	NodeCount      int       `json:"node_count"`
	EdgeCount      int       `json:"edge_count"`
	FindingCount   int       `json:"finding_count"`
	SchemaVersion  string    `json:"schema_version"`
	ContentHash    string    `json:"content_hash"`
	CreatedAt      time.Time `json:"created_at"`
}

// Manager saves and loads graph+report snapshots in BadgerDB.
type Manager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewManager builds a Manager over an already-open BadgerDB instance.
func NewManager(db *badger.DB, logger *slog.Logger) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("snapshot: badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{db: db, logger: logger}, nil
}

// ProjectHash returns the stable key-prefix hash for a project root.
func ProjectHash(projectRoot string) string {
	return hashString(projectRoot)[:16]
}

// Save persists the graph and the aggregated scan report for a run, and
// updates the project's "latest" pointer.
func (m *Manager) Save(ctx context.Context, g *graph.Graph, rpt *report.ScanReport) (*Metadata, error) {
	if g == nil {
		return nil, fmt.Errorf("snapshot: graph must not be nil")
	}
	if rpt == nil {
		return nil, fmt.Errorf("snapshot: report must not be nil")
	}

	sg := g.ToSerializable()
	graphJSON, err := json.Marshal(sg)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshaling graph: %w", err)
	}
	reportJSON, err := json.Marshal(rpt)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshaling report: %w", err)
	}

	compressedGraph, err := gzipBytes(graphJSON)
	if err != nil {
		return nil, fmt.Errorf("snapshot: compressing graph: %w", err)
	}
	compressedReport, err := gzipBytes(reportJSON)
	if err != nil {
		return nil, fmt.Errorf("snapshot: compressing report: %w", err)
	}

	projectHash := ProjectHash(g.ProjectRoot())
	snapshotID := hashString(fmt.Sprintf("%s:%d", g.ProjectRoot(), g.BuiltAtMilli()))[:16]
	now := time.Now()

	meta := &Metadata{
		SnapshotID:     snapshotID,
		ProjectRoot:    g.ProjectRoot(),
		ProjectHash:    projectHash,
		GraphHash:      sg.GraphHash,
		CreatedAtMilli: now.UnixMilli(),
		CreatedAt:      now,
		NodeCount:      g.NodeCount(),
		EdgeCount:      g.EdgeCount(),
		FindingCount:   len(rpt.Findings),
		SchemaVersion:  graph.GraphSchemaVersion,
		ContentHash:    hashBytes(append(append([]byte{}, compressedGraph...), compressedReport...)),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshaling metadata: %w", err)
	}

	graphKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixGraph
	reportKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixReport
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(graphKey), compressedGraph); err != nil {
			return err
		}
		if err := txn.Set([]byte(reportKey), compressedReport); err != nil {
			return err
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return err
		}
		if err := txn.Set([]byte(latestKey), []byte(snapshotID)); err != nil {
			return err
		}
		return txn.Set([]byte(indexKey), []byte(projectHash))
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: writing to badger: %w", err)
	}

	m.logger.Info("scan snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("project_root", g.ProjectRoot()),
		slog.Int("node_count", meta.NodeCount),
		slog.Int("finding_count", meta.FindingCount),
	)
	return meta, nil
}

// LoadLatest loads the most recent snapshot for a project path, if any.
func (m *Manager) LoadLatest(ctx context.Context, projectRoot string) (*graph.Graph, *report.ScanReport, *Metadata, error) {
	projectHash := ProjectHash(projectRoot)
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest

	var snapshotID string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: no snapshot for project %s: %w", projectRoot, err)
	}

	return m.loadByKeys(projectHash, snapshotID)
}

func (m *Manager) loadByKeys(projectHash, snapshotID string) (*graph.Graph, *report.ScanReport, *Metadata, error) {
	graphKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixGraph
	reportKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixReport
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta

	var compressedGraph, compressedReport, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		if compressedGraph, err = getCopy(txn, graphKey); err != nil {
			return err
		}
		if compressedReport, err = getCopy(txn, reportKey); err != nil {
			return err
		}
		metaJSON, err = getCopy(txn, metaKey)
		return err
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: reading %s: %w", snapshotID, err)
	}

	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: unmarshaling metadata: %w", err)
	}

	graphJSON, err := gunzipBytes(compressedGraph)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: decompressing graph: %w", err)
	}
	var sg graph.SerializableGraph
	if err := json.Unmarshal(graphJSON, &sg); err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: unmarshaling graph: %w", err)
	}
	g, err := graph.FromSerializable(&sg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: reconstructing graph: %w", err)
	}

	reportBytes, err := gunzipBytes(compressedReport)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: decompressing report: %w", err)
	}
	var rpt report.ScanReport
	if err := json.Unmarshal(reportBytes, &rpt); err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: unmarshaling report: %w", err)
	}

	return g, &rpt, &meta, nil
}

// Delete removes every key belonging to one snapshot.
func (m *Manager) Delete(ctx context.Context, snapshotID string) error {
	var projectHash string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefixSnapIndex + snapshotID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			projectHash = string(val)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("snapshot: looking up %s: %w", snapshotID, err)
	}

	graphKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixGraph
	reportKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixReport
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	return m.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{graphKey, reportKey, metaKey, indexKey} {
			if err := txn.Delete([]byte(key)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		item, err := txn.Get([]byte(latestKey))
		if err == nil {
			var current string
			_ = item.Value(func(val []byte) error { current = string(val); return nil })
			if current == snapshotID {
				if err := txn.Delete([]byte(latestKey)); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
			}
		}
		return nil
	})
}

func getCopy(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
