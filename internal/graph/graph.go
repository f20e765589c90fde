// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds the immutable whole-program call graph: class
// lookup, supertype/subtype indexes, a caller index, and the merged
// DI-binding map, following a functional-options construction phase
// followed by an explicit Freeze.
package graph

import (
	"fmt"

	"github.com/mannjg/stateguard/internal/classfile"
)

// BindingKey identifies one DI binding slot: a canonical type, plus an
// optional qualifier simple-name. Unqualified keys compare equal only to
// other unqualified keys of the same type.
type BindingKey struct {
	Type      string
	Qualifier string
}

// Options configures a Graph under construction.
type Options struct {
	ProjectRoot string
}

// Option mutates Options; construction follows the functional-options
// idiom used throughout this codebase.
type Option func(*Options)

// WithProjectRoot records the project root path on the graph, used only for
// snapshot cache keying.
func WithProjectRoot(root string) Option {
	return func(o *Options) { o.ProjectRoot = root }
}

func DefaultOptions() Options {
	return Options{}
}

// Graph is the immutable whole-program call graph. It is built by
// repeated AddClass calls followed by Freeze; every query method other
// than AddClass/Freeze/MergeBindings is safe to call only after Freeze.
type Graph struct {
	options Options

	classes map[string]*classfile.ClassNode
	order   []string // decode/insertion order, for deterministic iteration

	subtypes   map[string]map[string]bool // parent -> direct children
	supertypes map[string]map[string]bool // child -> all transitive ancestors (memoized)

	callers map[classfile.MethodRef]map[classfile.MethodRef]bool

	bindings map[BindingKey]map[string]bool
	moduleOf map[string]string

	frozen       bool
	builtAtMilli int64
}

// NewGraph creates a Graph under construction.
func NewGraph(opts ...Option) *Graph {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Graph{
		options:    options,
		classes:    make(map[string]*classfile.ClassNode),
		subtypes:   make(map[string]map[string]bool),
		supertypes: make(map[string]map[string]bool),
		callers:    make(map[classfile.MethodRef]map[classfile.MethodRef]bool),
		bindings:   make(map[BindingKey]map[string]bool),
		moduleOf:   make(map[string]string),
	}
}

// AddClass ingests one decoded class. Must be called before Freeze.
func (g *Graph) AddClass(node *classfile.ClassNode) error {
	if g.frozen {
		return fmt.Errorf("graph: cannot add class %s after Freeze", node.Name)
	}
	if node == nil {
		return fmt.Errorf("graph: nil class node")
	}
	if _, exists := g.classes[node.Name]; exists {
		return fmt.Errorf("graph: duplicate class %s", node.Name)
	}
	g.classes[node.Name] = node
	g.order = append(g.order, node.Name)
	return nil
}

// MergeBindings merges a DI-binding map (produced by internal/binding) into
// the graph under construction by set union per key. Must be called before
// Freeze.
func (g *Graph) MergeBindings(bindings map[BindingKey]map[string]bool) {
	for key, impls := range bindings {
		set := g.bindings[key]
		if set == nil {
			set = make(map[string]bool, len(impls))
			g.bindings[key] = set
		}
		for impl := range impls {
			set[impl] = true
		}
	}
}

// MergeModuleAttribution merges an implementation-class-to-module-class
// attribution map, produced by internal/binding alongside its bindings, used
// only by the module-binding detector. Must be called before Freeze.
func (g *Graph) MergeModuleAttribution(attribution map[string]string) {
	for impl, module := range attribution {
		g.moduleOf[impl] = module
	}
}

// ModuleOf returns the declarative-module class that registered impl as a
// binding implementation, if any.
func (g *Graph) ModuleOf(impl string) (string, bool) {
	m, ok := g.moduleOf[impl]
	return m, ok
}

// Freeze finalizes the graph: builds the subtype index, the memoized
// supertype closures, and the caller index, then forbids further mutation.
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}

	for _, name := range g.order {
		node := g.classes[name]
		for _, parent := range g.ancestorEdges(node) {
			if _, ok := g.classes[parent]; !ok {
				continue // unresolved reference: not in this graph
			}
			if g.subtypes[parent] == nil {
				g.subtypes[parent] = make(map[string]bool)
			}
			g.subtypes[parent][name] = true
		}
	}

	for _, name := range g.order {
		g.computeSupertypes(name, make(map[string]bool))
	}

	for _, name := range g.order {
		node := g.classes[name]
		for _, m := range node.Methods {
			caller := classfile.MethodRef{Owner: node.Name, Name: m.Name, Descriptor: m.Descriptor}
			for _, inv := range m.Invocations {
				if g.callers[inv.Target] == nil {
					g.callers[inv.Target] = make(map[classfile.MethodRef]bool)
				}
				g.callers[inv.Target][caller] = true
			}
		}
	}

	g.frozen = true
}

func (g *Graph) ancestorEdges(node *classfile.ClassNode) []string {
	edges := make([]string, 0, 1+len(node.Interfaces))
	if node.Super != "" {
		edges = append(edges, node.Super)
	}
	edges = append(edges, node.Interfaces...)
	return edges
}

// computeSupertypes memoizes the transitive closure of ancestors for name,
// bailing on a revisit to tolerate cyclic interface/superclass references
// from malformed or adversarial input.
func (g *Graph) computeSupertypes(name string, visiting map[string]bool) map[string]bool {
	if existing, ok := g.supertypes[name]; ok {
		return existing
	}
	if visiting[name] {
		return map[string]bool{}
	}
	visiting[name] = true

	node, ok := g.classes[name]
	if !ok {
		return map[string]bool{}
	}

	result := make(map[string]bool)
	for _, parent := range g.ancestorEdges(node) {
		if _, ok := g.classes[parent]; !ok {
			continue
		}
		result[parent] = true
		for anc := range g.computeSupertypes(parent, visiting) {
			result[anc] = true
		}
	}
	g.supertypes[name] = result
	return result
}

// Get returns the decoded class node for a canonical name.
func (g *Graph) Get(name string) (*classfile.ClassNode, bool) {
	n, ok := g.classes[name]
	return n, ok
}

// Classes returns every class name in decode order, for deterministic
// iteration by detectors and the reachability analyzer.
func (g *Graph) Classes() []string {
	return g.order
}

// DirectSubtypes returns the immediate children of a class.
func (g *Graph) DirectSubtypes(name string) []string {
	children := g.subtypes[name]
	if children == nil {
		return nil
	}
	result := make([]string, 0, len(children))
	for c := range children {
		result = append(result, c)
	}
	return result
}

// AllSubtypes returns every transitive descendant of a class, computed
// on-demand via DFS (subtype closures are not memoized since no consumer in
// this engine needs them repeatedly).
func (g *Graph) AllSubtypes(name string) []string {
	visited := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for child := range g.subtypes[n] {
			if visited[child] {
				continue
			}
			visited[child] = true
			walk(child)
		}
	}
	walk(name)
	result := make([]string, 0, len(visited))
	for c := range visited {
		result = append(result, c)
	}
	return result
}

// AllSupertypes returns the precomputed transitive closure of ancestors.
func (g *Graph) AllSupertypes(name string) []string {
	set := g.supertypes[name]
	result := make([]string, 0, len(set))
	for s := range set {
		result = append(result, s)
	}
	return result
}

// IsSubtypeOf reports whether child descends from parent (directly or
// transitively), or child == parent.
func (g *Graph) IsSubtypeOf(child, parent string) bool {
	if child == parent {
		return true
	}
	return g.supertypes[child][parent]
}

// CallersOf returns every method known to invoke the given target.
func (g *Graph) CallersOf(target classfile.MethodRef) []classfile.MethodRef {
	callers := g.callers[target]
	result := make([]classfile.MethodRef, 0, len(callers))
	for c := range callers {
		result = append(result, c)
	}
	return result
}

// Implementations returns the implementation classes registered for a
// binding key.
func (g *Graph) Implementations(key BindingKey) []string {
	impls := g.bindings[key]
	result := make([]string, 0, len(impls))
	for i := range impls {
		result = append(result, i)
	}
	return result
}

// Bindings exposes the full binding map for callers that need to iterate
// every registered key (the reachability analyzer's DI-binding expansion).
func (g *Graph) Bindings() map[BindingKey]map[string]bool {
	return g.bindings
}

// ProjectRoot returns the project root path recorded at construction.
func (g *Graph) ProjectRoot() string { return g.options.ProjectRoot }

// SetBuiltAtMilli records when this graph was built, in Unix milliseconds.
// Callers outside this package (the scan orchestrator) call it once before
// Freeze; it has no effect afterward.
func (g *Graph) SetBuiltAtMilli(ms int64) {
	if g.frozen {
		return
	}
	g.builtAtMilli = ms
}

// BuiltAtMilli returns the build timestamp recorded by SetBuiltAtMilli.
func (g *Graph) BuiltAtMilli() int64 { return g.builtAtMilli }

// NodeCount returns the number of decoded classes.
func (g *Graph) NodeCount() int { return len(g.classes) }

// EdgeCount returns the total number of subtype, caller, and binding edges,
// used only as a coarse snapshot-metadata statistic.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.subtypes {
		count += len(children)
	}
	for _, callers := range g.callers {
		count += len(callers)
	}
	for _, impls := range g.bindings {
		count += len(impls)
	}
	return count
}

// FilterTo returns a new, independently frozen graph whose maps are
// restricted to the given class set, including restricting the caller
// index's edges to intra-set edges. Filtered graphs share ClassNode
// storage by reference with the original graph.
func (g *Graph) FilterTo(set map[string]bool) *Graph {
	filtered := NewGraph(WithProjectRoot(g.options.ProjectRoot))

	for _, name := range g.order {
		if !set[name] {
			continue
		}
		filtered.classes[name] = g.classes[name]
		filtered.order = append(filtered.order, name)
	}

	for parent, children := range g.subtypes {
		if !set[parent] {
			continue
		}
		for child := range children {
			if !set[child] {
				continue
			}
			if filtered.subtypes[parent] == nil {
				filtered.subtypes[parent] = make(map[string]bool)
			}
			filtered.subtypes[parent][child] = true
		}
	}

	for target, callers := range g.callers {
		if !set[target.Owner] {
			continue
		}
		for caller := range callers {
			if !set[caller.Owner] {
				continue
			}
			if filtered.callers[target] == nil {
				filtered.callers[target] = make(map[classfile.MethodRef]bool)
			}
			filtered.callers[target][caller] = true
		}
	}

	for key, impls := range g.bindings {
		kept := make(map[string]bool)
		for impl := range impls {
			if set[impl] {
				kept[impl] = true
			}
		}
		if len(kept) > 0 {
			filtered.bindings[key] = kept
		}
	}

	for impl, module := range g.moduleOf {
		if set[impl] {
			filtered.moduleOf[impl] = module
		}
	}

	for _, name := range filtered.order {
		filtered.computeSupertypes(name, make(map[string]bool))
	}

	filtered.frozen = true
	return filtered
}
