// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathfinder enumerates root-to-leaf stateful paths: sequences of
// field, invocation, inheritance, and DI-binding edges from a project
// entry-point class down to a field whose type belongs to one of the
// configured leaf categories (caches, thread-locals, service clients, and
// the like). Traversal alternates between a class context (exploring
// instance state and the type hierarchy) and a method context (following a
// specific call chain), since a field reachable from any method of a class
// is state that survives across every one of that class's entry points.
package pathfinder

import (
	"fmt"
	"sort"

	"github.com/mannjg/stateguard/internal/classfile"
	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/reachability"
)

// EdgeKind names why one step follows from the previous one.
type EdgeKind string

const (
	EdgeField       EdgeKind = "FIELD"
	EdgeInvocation  EdgeKind = "INVOCATION"
	EdgeInheritance EdgeKind = "INHERITANCE"
	EdgeDIBinding   EdgeKind = "DI_BINDING"
)

// PathStep is one hop in a StatefulPath.
type PathStep struct {
	ClassName  string
	MemberName string // method name for INVOCATION steps, field name for the terminal FIELD step
	EdgeKind   EdgeKind
}

// StatefulPath is one complete root-to-leaf trace: a project entry-point
// class reaching a field whose type falls in a configured leaf category.
type StatefulPath struct {
	Root         string
	Steps        []PathStep
	LeafClass    string
	LeafField    string
	LeafCategory config.Category
}

// frontier is one node of the traversal: either a class context
// (MethodName == "") or a specific method context.
type frontier struct {
	className  string
	methodName string
	steps      []PathStep
}

func (f frontier) key() string {
	return f.className + "#" + f.methodName
}

// Find enumerates every StatefulPath reachable from project root classes in
// g, restricted to classes reachability.Analyze judged reachable, with
// leaf fields classified by leafTypes. filter's exclude-class patterns keep
// matching classes out of the traversal entirely; its exclude-method
// patterns keep matching invocation edges from being followed.
func Find(g *graph.Graph, reach *reachability.Result, leafTypes *config.LeafTypes, filter *config.CallSiteFilter) []StatefulPath {
	var paths []StatefulPath

	roots := g.Classes()
	sort.Strings(roots)
	for _, root := range roots {
		node, ok := g.Get(root)
		if !ok || !node.IsProject || filter.ClassExcluded(root) {
			continue
		}
		paths = append(paths, findFromRoot(g, reach, leafTypes, filter, root)...)
	}
	return dedupe(paths)
}

func findFromRoot(g *graph.Graph, reach *reachability.Result, leafTypes *config.LeafTypes, filter *config.CallSiteFilter, root string) []StatefulPath {
	var out []StatefulPath
	visited := make(map[string]bool)

	queue := []frontier{{className: root}}
	visited[frontier{className: root}.key()] = true

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		node, ok := g.Get(cur.className)
		if !ok {
			continue
		}

		if cur.methodName == "" {
			out = append(out, classContextSteps(g, reach, leafTypes, filter, root, node, cur, &queue, visited)...)
		} else {
			out = append(out, methodContextSteps(g, reach, leafTypes, filter, root, node, cur, &queue, visited)...)
		}
	}
	return out
}

// classContextSteps explores a class's declared fields (instance state) and
// its position in the type hierarchy, and enqueues a method context for
// every declared method so call chains get explored too.
func classContextSteps(
	g *graph.Graph,
	reach *reachability.Result,
	leafTypes *config.LeafTypes,
	filter *config.CallSiteFilter,
	root string,
	node *classfile.ClassNode,
	cur frontier,
	queue *[]frontier,
	visited map[string]bool,
) []StatefulPath {
	var paths []StatefulPath

	for _, f := range node.Fields {
		if p, ok := leafPath(g, leafTypes, root, cur.steps, node.Name, f); ok {
			paths = append(paths, p)
			continue
		}
		enqueueFieldTarget(g, reach, filter, root, cur, f, queue, visited)
	}

	for _, parent := range ancestorsOf(node) {
		if filter.ClassExcluded(parent) {
			continue
		}
		next := frontier{
			className: parent,
			steps:     append(copySteps(cur.steps), PathStep{ClassName: parent, EdgeKind: EdgeInheritance}),
		}
		enqueue(reach, next, queue, visited)
	}

	for _, m := range node.Methods {
		if m.IsAbstract {
			continue
		}
		next := frontier{
			className:  node.Name,
			methodName: m.Name,
			steps:      append(copySteps(cur.steps), PathStep{ClassName: node.Name, MemberName: m.Name, EdgeKind: EdgeInvocation}),
		}
		enqueue(reach, next, queue, visited)
	}

	return paths
}

// methodContextSteps follows the invocation and field-access edges of one
// specific method, propagating the method context of each call target to
// the next hop.
func methodContextSteps(
	g *graph.Graph,
	reach *reachability.Result,
	leafTypes *config.LeafTypes,
	filter *config.CallSiteFilter,
	root string,
	node *classfile.ClassNode,
	cur frontier,
	queue *[]frontier,
	visited map[string]bool,
) []StatefulPath {
	var paths []StatefulPath

	var method *classfile.MethodNode
	for _, m := range node.Methods {
		if m.Name == cur.methodName {
			method = m
			break
		}
	}
	if method == nil {
		return nil
	}

	for _, fa := range method.FieldAccesses {
		owner, ok := g.Get(fa.Target.Owner)
		if !ok {
			continue
		}
		field := findField(owner, fa.Target.Name)
		if field == nil {
			continue
		}
		if p, ok := leafPath(g, leafTypes, root, cur.steps, owner.Name, field); ok {
			paths = append(paths, p)
		}
	}

	for _, inv := range method.Invocations {
		if _, ok := g.Get(inv.Target.Owner); !ok {
			continue
		}
		if filter.ClassExcluded(inv.Target.Owner) || filter.CallExcluded(inv.Target.Owner, inv.Target.Name) {
			continue
		}
		next := frontier{
			className:  inv.Target.Owner,
			methodName: inv.Target.Name,
			steps:      append(copySteps(cur.steps), PathStep{ClassName: inv.Target.Owner, MemberName: inv.Target.Name, EdgeKind: EdgeInvocation}),
		}
		enqueue(reach, next, queue, visited)
	}

	return paths
}

// enqueueFieldTarget follows a non-leaf field's declared type into the
// class context of that type, and into every DI implementation registered
// for it, when the type is itself known to the graph.
func enqueueFieldTarget(
	g *graph.Graph,
	reach *reachability.Result,
	filter *config.CallSiteFilter,
	root string,
	cur frontier,
	f *classfile.FieldNode,
	queue *[]frontier,
	visited map[string]bool,
) {
	canon, ok := f.CanonicalType()
	if !ok || filter.ClassExcluded(canon) {
		return
	}

	if _, inGraph := g.Get(canon); inGraph {
		next := frontier{
			className: canon,
			steps:     append(copySteps(cur.steps), PathStep{ClassName: canon, MemberName: f.Name, EdgeKind: EdgeField}),
		}
		enqueue(reach, next, queue, visited)
	}

	for _, impl := range g.Implementations(graph.BindingKey{Type: canon}) {
		if filter.ClassExcluded(impl) {
			continue
		}
		next := frontier{
			className: impl,
			steps:     append(copySteps(cur.steps), PathStep{ClassName: impl, MemberName: f.Name, EdgeKind: EdgeDIBinding}),
		}
		enqueue(reach, next, queue, visited)
	}
}

// leafPath builds a terminal StatefulPath if f's declared type, or the
// first matching class in its supertype closure, classifies into a
// configured leaf category, rewriting the last step to name the field
// itself.
func leafPath(g *graph.Graph, leafTypes *config.LeafTypes, root string, prefix []PathStep, ownerClass string, f *classfile.FieldNode) (StatefulPath, bool) {
	canon, ok := f.CanonicalType()
	if !ok {
		return StatefulPath{}, false
	}
	cat, isLeaf := leafTypes.ClassifyWithSupertypes(canon, g.AllSupertypes(canon))
	if !isLeaf || leafTypes.IsExcluded(canon) {
		return StatefulPath{}, false
	}

	steps := append(copySteps(prefix), PathStep{ClassName: ownerClass, MemberName: f.Name, EdgeKind: EdgeField})
	return StatefulPath{
		Root:         root,
		Steps:        steps,
		LeafClass:    canon,
		LeafField:    f.Name,
		LeafCategory: cat,
	}, true
}

func ancestorsOf(node *classfile.ClassNode) []string {
	edges := make([]string, 0, 1+len(node.Interfaces))
	if node.Super != "" {
		edges = append(edges, node.Super)
	}
	edges = append(edges, node.Interfaces...)
	return edges
}

func findField(node *classfile.ClassNode, name string) *classfile.FieldNode {
	for _, f := range node.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func copySteps(steps []PathStep) []PathStep {
	out := make([]PathStep, len(steps))
	copy(out, steps)
	return out
}

func enqueue(reach *reachability.Result, next frontier, queue *[]frontier, visited map[string]bool) {
	if reach != nil && !reach.IsReachable(next.className) {
		return
	}
	key := next.key()
	if visited[key] {
		return
	}
	visited[key] = true
	*queue = append(*queue, next)
}

// dedupe removes duplicate paths sharing the same root, step sequence, and
// leaf, since DI-binding fan-out and repeated field references can produce
// the same logical trace more than once.
func dedupe(paths []StatefulPath) []StatefulPath {
	seen := make(map[string]bool, len(paths))
	out := make([]StatefulPath, 0, len(paths))
	for _, p := range paths {
		sig := signature(p)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, p)
	}
	return out
}

func signature(p StatefulPath) string {
	sig := p.Root + "|"
	for _, s := range p.Steps {
		sig += fmt.Sprintf("%s#%s(%s)|", s.ClassName, s.MemberName, s.EdgeKind)
	}
	return sig + p.LeafClass
}
