// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reachability computes the set of classes reachable from the
// project's own classes by breadth-first expansion over the type
// hierarchy, call sites, field accesses, and DI bindings, stopping at the
// managed runtime's own standard namespaces.
package reachability

import (
	"sort"

	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/graph"
)

// Reason names why a class entered the reachable set, for diagnostics and
// for detectors that care about how a leaf was reached.
type Reason string

const (
	ReasonProjectRoot Reason = "project-root"
	ReasonSuperclass   Reason = "superclass"
	ReasonInterface    Reason = "interface"
	ReasonInvocation   Reason = "invocation"
	ReasonFieldAccess  Reason = "field-access"
	ReasonFieldType    Reason = "field-type"
	ReasonDIBinding    Reason = "di-binding"
)

// Info records how and from where one class was reached.
type Info struct {
	Name   string
	Reason Reason
	Via    string // first predecessor that discovered this class, empty for roots
	Depth  int
}

// Result is the outcome of a reachability analysis: every class judged
// reachable, plus a filtered graph restricted to that set.
type Result struct {
	Reachable map[string]*Info
	Filtered  *graph.Graph
}

// Analyze runs breadth-first expansion from every project class in g.
func Analyze(g *graph.Graph) *Result {
	reachable := make(map[string]*Info)

	type queued struct {
		name  string
		depth int
	}
	var queue []queued

	names := g.Classes()
	sort.Strings(names) // deterministic root enqueue order
	for _, name := range names {
		node, ok := g.Get(name)
		if !ok || !node.IsProject {
			continue
		}
		reachable[name] = &Info{Name: name, Reason: ReasonProjectRoot, Depth: 0}
		queue = append(queue, queued{name: name, depth: 0})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, edge := range neighbors(g, cur.name) {
			if config.IsStandardRuntime(edge.name) {
				continue
			}
			if _, seen := reachable[edge.name]; seen {
				continue
			}
			reachable[edge.name] = &Info{
				Name:   edge.name,
				Reason: edge.reason,
				Via:    cur.name,
				Depth:  cur.depth + 1,
			}
			queue = append(queue, queued{name: edge.name, depth: cur.depth + 1})
		}
	}

	set := make(map[string]bool, len(reachable))
	for name := range reachable {
		set[name] = true
	}

	return &Result{Reachable: reachable, Filtered: g.FilterTo(set)}
}

type edge struct {
	name   string
	reason Reason
}

// neighbors enumerates every class the engine considers "adjacent" to name:
// its place in the type hierarchy, the owners of every call site and field
// access in its methods, the declared types of its fields, the DI
// implementations registered under an injection-point field's type and
// qualifier, and the implementations registered under the class's own name
// with no qualifier.
func neighbors(g *graph.Graph, name string) []edge {
	node, ok := g.Get(name)
	if !ok {
		return nil
	}

	var edges []edge
	if node.Super != "" {
		edges = append(edges, edge{node.Super, ReasonSuperclass})
	}
	for _, iface := range node.Interfaces {
		edges = append(edges, edge{iface, ReasonInterface})
	}

	for _, m := range node.Methods {
		for _, inv := range m.Invocations {
			if inv.Target.Owner != "" {
				edges = append(edges, edge{inv.Target.Owner, ReasonInvocation})
			}
		}
		for _, fa := range m.FieldAccesses {
			if fa.Target.Owner != "" {
				edges = append(edges, edge{fa.Target.Owner, ReasonFieldAccess})
			}
		}
	}

	for _, f := range node.Fields {
		canon, ok := f.CanonicalType()
		if !ok {
			continue
		}
		edges = append(edges, edge{canon, ReasonFieldType})
		if !config.IsInjectionPoint(f.Annotations) {
			continue
		}
		key := graph.BindingKey{Type: canon, Qualifier: config.QualifierOf(f.Annotations)}
		for _, impl := range g.Implementations(key) {
			edges = append(edges, edge{impl, ReasonDIBinding})
		}
	}

	for _, impl := range g.Implementations(graph.BindingKey{Type: name}) {
		edges = append(edges, edge{impl, ReasonDIBinding})
	}

	return edges
}

// IsReachable reports whether a class name is in the reachable set.
func (r *Result) IsReachable(name string) bool {
	_, ok := r.Reachable[name]
	return ok
}

// Names returns every reachable class name, sorted for deterministic
// iteration by detectors and reports.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Reachable))
	for name := range r.Reachable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
