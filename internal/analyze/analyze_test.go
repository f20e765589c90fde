// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyze

import (
	"context"
	"testing"

	"github.com/mannjg/stateguard/internal/binding"
	"github.com/mannjg/stateguard/internal/classfile"
	"github.com/mannjg/stateguard/internal/graph"
)

func TestAnalyzeOnEmptyProjectReturnsEmptyReportNotError(t *testing.T) {
	dir := t.TempDir()

	outcome, err := Analyze(context.Background(), Options{ProjectRoot: dir})
	if err != nil {
		t.Fatalf("Analyze on empty project: want nil error, got %v", err)
	}
	if outcome.Report.ClassesScanned != 0 {
		t.Errorf("ClassesScanned = %d, want 0", outcome.Report.ClassesScanned)
	}
	if len(outcome.Report.Findings) != 0 {
		t.Errorf("Findings = %v, want empty", outcome.Report.Findings)
	}
}

func TestRebuildWithBindingsPreservesClassesAndMergesBindings(t *testing.T) {
	g := graph.NewGraph(graph.WithProjectRoot("/acme/project"))
	if err := g.AddClass(&classfile.ClassNode{Name: "com.acme.Widget", IsProject: true}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if err := g.AddClass(&classfile.ClassNode{Name: "com.acme.WidgetImpl", IsProject: true}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	g.SetBuiltAtMilli(42)
	g.Freeze()

	key := graph.BindingKey{Type: "com.acme.Widget", Qualifier: ""}
	bindings := binding.Bindings{key: {"com.acme.WidgetImpl": true}}
	moduleOf := binding.ModuleOf{"com.acme.WidgetImpl": "com.acme.AppModule"}

	rebuilt := rebuildWithBindings(g, bindings, moduleOf)

	if rebuilt.ProjectRoot() != "/acme/project" {
		t.Errorf("ProjectRoot() = %q, want /acme/project", rebuilt.ProjectRoot())
	}
	if rebuilt.BuiltAtMilli() != 42 {
		t.Errorf("BuiltAtMilli() = %d, want 42", rebuilt.BuiltAtMilli())
	}
	if _, ok := rebuilt.Get("com.acme.Widget"); !ok {
		t.Error("rebuilt graph missing com.acme.Widget")
	}
	if _, ok := rebuilt.Get("com.acme.WidgetImpl"); !ok {
		t.Error("rebuilt graph missing com.acme.WidgetImpl")
	}

	impls := rebuilt.Implementations(key)
	if len(impls) != 1 || impls[0] != "com.acme.WidgetImpl" {
		t.Errorf("Implementations(%v) = %v, want [com.acme.WidgetImpl]", key, impls)
	}
	module, ok := rebuilt.ModuleOf("com.acme.WidgetImpl")
	if !ok || module != "com.acme.AppModule" {
		t.Errorf("ModuleOf(WidgetImpl) = (%q, %v), want (com.acme.AppModule, true)", module, ok)
	}
}

func TestRebuildWithBindingsOnEmptyGraph(t *testing.T) {
	g := graph.NewGraph(graph.WithProjectRoot("/empty"))
	g.Freeze()

	rebuilt := rebuildWithBindings(g, binding.Bindings{}, binding.ModuleOf{})
	if len(rebuilt.Classes()) != 0 {
		t.Errorf("Classes() = %v, want empty", rebuilt.Classes())
	}
}
