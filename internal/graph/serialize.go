// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mannjg/stateguard/internal/classfile"
)

// GraphSchemaVersion is the version of the snapshot serialization format.
// Increment when the shape of SerializableGraph changes in a breaking way.
const GraphSchemaVersion = "1.0"

// SerializableGraph is the JSON-serializable representation of a Graph,
// used by internal/snapshot to persist and restore a scan's call graph.
type SerializableGraph struct {
	SchemaVersion string                `json:"schema_version"`
	ProjectRoot   string                `json:"project_root"`
	BuiltAtMilli  int64                 `json:"built_at_milli"`
	GraphHash     string                `json:"graph_hash"`
	Classes       []*classfile.ClassNode `json:"classes"`
	Bindings      []SerializableBinding `json:"bindings"`
	ModuleOf      []SerializableModuleAttribution `json:"module_of"`
}

// SerializableBinding is one DI-binding key plus its implementation set,
// sorted for deterministic output (BindingKey cannot be a JSON map key).
type SerializableBinding struct {
	Type            string   `json:"type"`
	Qualifier       string   `json:"qualifier,omitempty"`
	Implementations []string `json:"implementations"`
}

// SerializableModuleAttribution records which declarative module registered
// a given implementation class.
type SerializableModuleAttribution struct {
	Implementation string `json:"implementation"`
	Module         string `json:"module"`
}

// ToSerializable converts a frozen Graph to its JSON-serializable form.
// Classes, bindings, and module attributions are all emitted in sorted
// order so repeated calls on an unchanged graph produce identical bytes.
func (g *Graph) ToSerializable() *SerializableGraph {
	if g == nil {
		return &SerializableGraph{SchemaVersion: GraphSchemaVersion}
	}

	names := append([]string(nil), g.order...)
	sort.Strings(names)
	classes := make([]*classfile.ClassNode, 0, len(names))
	for _, name := range names {
		classes = append(classes, g.classes[name])
	}

	bindingKeys := make([]BindingKey, 0, len(g.bindings))
	for key := range g.bindings {
		bindingKeys = append(bindingKeys, key)
	}
	sort.Slice(bindingKeys, func(i, j int) bool {
		if bindingKeys[i].Type != bindingKeys[j].Type {
			return bindingKeys[i].Type < bindingKeys[j].Type
		}
		return bindingKeys[i].Qualifier < bindingKeys[j].Qualifier
	})
	bindings := make([]SerializableBinding, 0, len(bindingKeys))
	for _, key := range bindingKeys {
		impls := make([]string, 0, len(g.bindings[key]))
		for impl := range g.bindings[key] {
			impls = append(impls, impl)
		}
		sort.Strings(impls)
		bindings = append(bindings, SerializableBinding{Type: key.Type, Qualifier: key.Qualifier, Implementations: impls})
	}

	moduleImpls := make([]string, 0, len(g.moduleOf))
	for impl := range g.moduleOf {
		moduleImpls = append(moduleImpls, impl)
	}
	sort.Strings(moduleImpls)
	moduleOf := make([]SerializableModuleAttribution, 0, len(moduleImpls))
	for _, impl := range moduleImpls {
		moduleOf = append(moduleOf, SerializableModuleAttribution{Implementation: impl, Module: g.moduleOf[impl]})
	}

	sg := &SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		ProjectRoot:   g.options.ProjectRoot,
		BuiltAtMilli:  g.builtAtMilli,
		Classes:       classes,
		Bindings:      bindings,
		ModuleOf:      moduleOf,
	}
	sg.GraphHash = hashGraphContent(classes, bindings, moduleOf)
	return sg
}

// hashGraphContent computes a deterministic content hash over the already
// sorted classes/bindings/moduleOf slices, for snapshot integrity checks.
func hashGraphContent(classes []*classfile.ClassNode, bindings []SerializableBinding, moduleOf []SerializableModuleAttribution) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(classes)
	_ = enc.Encode(bindings)
	_ = enc.Encode(moduleOf)
	return hex.EncodeToString(h.Sum(nil))
}

// FromSerializable reconstructs a frozen Graph from its serializable form,
// reusing AddClass/MergeBindings/MergeModuleAttribution/Freeze so the
// reconstructed graph's indexes are built the same way a freshly decoded
// one would be.
func FromSerializable(sg *SerializableGraph) (*Graph, error) {
	if sg == nil {
		return nil, fmt.Errorf("graph: nil serializable graph")
	}
	if sg.SchemaVersion != GraphSchemaVersion {
		return nil, fmt.Errorf("graph: unsupported schema version %q (expected %q)", sg.SchemaVersion, GraphSchemaVersion)
	}

	g := NewGraph(WithProjectRoot(sg.ProjectRoot))
	for _, node := range sg.Classes {
		if node == nil {
			return nil, fmt.Errorf("graph: serialized class node is nil")
		}
		if err := g.AddClass(node); err != nil {
			return nil, fmt.Errorf("graph: reconstructing %s: %w", node.Name, err)
		}
	}

	bindings := make(map[BindingKey]map[string]bool, len(sg.Bindings))
	for _, b := range sg.Bindings {
		key := BindingKey{Type: b.Type, Qualifier: b.Qualifier}
		set := make(map[string]bool, len(b.Implementations))
		for _, impl := range b.Implementations {
			set[impl] = true
		}
		bindings[key] = set
	}
	g.MergeBindings(bindings)

	attribution := make(map[string]string, len(sg.ModuleOf))
	for _, m := range sg.ModuleOf {
		attribution[m.Implementation] = m.Module
	}
	g.MergeModuleAttribution(attribution)

	g.SetBuiltAtMilli(sg.BuiltAtMilli)
	g.Freeze()
	return g, nil
}
