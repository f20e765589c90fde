// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathfinder

import (
	"testing"

	"github.com/mannjg/stateguard/internal/classfile"
	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/reachability"
)

func TestFindDirectFieldLeaf(t *testing.T) {
	g := graph.NewGraph()
	must := func(err error) {
		if err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}
	must(g.AddClass(&classfile.ClassNode{
		Name:      "com.acme.SessionCache",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "cache", Descriptor: "Lcom/google/common/cache/Cache;", IsFinal: true},
		},
	}))
	g.Freeze()

	reach := reachability.Analyze(g)
	leafTypes := config.DefaultLeafTypes()

	paths := Find(g, reach, leafTypes, nil)
	if len(paths) != 1 {
		t.Fatalf("Find() = %d paths, want 1", len(paths))
	}
	p := paths[0]
	if p.Root != "com.acme.SessionCache" || p.LeafField != "cache" || p.LeafCategory != config.CategoryCache {
		t.Errorf("path = %+v, unexpected shape", p)
	}
	if len(p.Steps) != 1 || p.Steps[0].EdgeKind != EdgeField {
		t.Errorf("Steps = %+v, want single FIELD step", p.Steps)
	}
}

func TestFindThroughMethodInvocation(t *testing.T) {
	g := graph.NewGraph()
	must := func(err error) {
		if err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}
	must(g.AddClass(&classfile.ClassNode{
		Name:      "com.acme.Controller",
		IsProject: true,
		Methods: []*classfile.MethodNode{
			{
				Name:       "handle",
				Descriptor: "()V",
				Invocations: []classfile.MethodInvocation{
					{Target: classfile.MethodRef{Owner: "com.acme.Service", Name: "run", Descriptor: "()V"}},
				},
			},
		},
	}))
	must(g.AddClass(&classfile.ClassNode{
		Name:      "com.acme.Service",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "local", Descriptor: "Ljava/lang/ThreadLocal;", IsFinal: true},
		},
		Methods: []*classfile.MethodNode{
			{
				Name:       "run",
				Descriptor: "()V",
				FieldAccesses: []classfile.FieldAccess{
					{Target: classfile.FieldRef{Owner: "com.acme.Service", Name: "local", Descriptor: "Ljava/lang/ThreadLocal;"}},
				},
			},
		},
	}))
	g.Freeze()

	reach := reachability.Analyze(g)
	leafTypes := config.DefaultLeafTypes()

	paths := Find(g, reach, leafTypes, nil)

	found := false
	for _, p := range paths {
		if p.Root == "com.acme.Controller" && p.LeafField == "local" && p.LeafCategory == config.CategoryThreadLocal {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a path from Controller to Service.local, got %+v", paths)
	}
}
