// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"testing"

	"github.com/mannjg/stateguard/internal/classfile"
	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/reachability"
	"github.com/mannjg/stateguard/internal/report"
)

func mustAdd(t *testing.T, g *graph.Graph, node *classfile.ClassNode) {
	t.Helper()
	if err := g.AddClass(node); err != nil {
		t.Fatalf("AddClass(%s): %v", node.Name, err)
	}
}

func findByDetector(findings []report.Finding, detectorID string) []report.Finding {
	var out []report.Finding
	for _, f := range findings {
		if f.DetectorID == detectorID {
			out = append(out, f)
		}
	}
	return out
}

func TestStaticStateDetectorFlagsNonFinalStaticAsCritical(t *testing.T) {
	g := graph.NewGraph()
	mustAdd(t, g, &classfile.ClassNode{
		Name:      "com.acme.Counter",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "hits", Descriptor: "I", IsStatic: true, IsFinal: false},
		},
	})
	g.Freeze()
	reach := reachability.Analyze(g)

	findings := (&StaticStateDetector{}).Detect(g, *config.DefaultLeafTypes(), reach, nil)
	if len(findings) != 1 {
		t.Fatalf("Detect() = %d findings, want 1: %+v", len(findings), findings)
	}
	if findings[0].Risk != report.RiskCritical {
		t.Errorf("Risk = %v, want CRITICAL for non-final static field", findings[0].Risk)
	}
}

func TestStaticStateDetectorSkipsLoggersAndConstants(t *testing.T) {
	g := graph.NewGraph()
	mustAdd(t, g, &classfile.ClassNode{
		Name:      "com.acme.Service",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "log", Descriptor: "Lorg/slf4j/Logger;", IsStatic: true, IsFinal: true},
			{Name: "NAME", Descriptor: "Ljava/lang/String;", IsStatic: true, IsFinal: true},
		},
	})
	g.Freeze()
	reach := reachability.Analyze(g)

	findings := (&StaticStateDetector{}).Detect(g, *config.DefaultLeafTypes(), reach, nil)
	if len(findings) != 0 {
		t.Errorf("Detect() = %+v, want no findings for logger/constant fields", findings)
	}
}

func TestSingletonDetectorRequiresScopeAnnotation(t *testing.T) {
	leafTypes := config.DefaultLeafTypes()

	unscoped := graph.NewGraph()
	mustAdd(t, unscoped, &classfile.ClassNode{
		Name:      "com.acme.PlainBean",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "cache", Descriptor: "Ljava/util/HashMap;", IsFinal: true},
		},
	})
	unscoped.Freeze()
	if findings := (&SingletonDetector{}).Detect(unscoped, *leafTypes, reachability.Analyze(unscoped), nil); len(findings) != 0 {
		t.Errorf("unscoped class: Detect() = %+v, want no findings", findings)
	}

	scoped := graph.NewGraph()
	mustAdd(t, scoped, &classfile.ClassNode{
		Name:        "com.acme.CachingBean",
		IsProject:   true,
		Annotations: []string{"javax.inject.Singleton"},
		Fields: []*classfile.FieldNode{
			{Name: "cache", Descriptor: "Ljava/util/HashMap;", IsFinal: true},
		},
	})
	scoped.Freeze()
	findings := (&SingletonDetector{}).Detect(scoped, *leafTypes, reachability.Analyze(scoped), nil)
	if len(findings) != 1 {
		t.Fatalf("scoped class: Detect() = %d findings, want 1", len(findings))
	}
	if findings[0].ScopeSource != report.ScopeSourceAnnotation || findings[0].ScopeAnnotation != "javax.inject.Singleton" {
		t.Errorf("finding = %+v, want annotation scope source", findings[0])
	}
	if findings[0].Risk != report.RiskCritical {
		t.Errorf("Risk = %v, want CRITICAL for a known mutable collection", findings[0].Risk)
	}
}

func TestModuleBindingDetectorSkipsClassesWithScopeAnnotation(t *testing.T) {
	g := graph.NewGraph()
	mustAdd(t, g, &classfile.ClassNode{
		Name:        "com.acme.WidgetImpl",
		IsProject:   true,
		Annotations: []string{"javax.inject.Singleton"},
		Fields: []*classfile.FieldNode{
			{Name: "state", Descriptor: "Ljava/util/ArrayList;", IsFinal: true},
		},
	})
	g.MergeModuleAttribution(map[string]string{"com.acme.WidgetImpl": "com.acme.AppModule"})
	g.Freeze()

	findings := (&ModuleBindingDetector{}).Detect(g, *config.DefaultLeafTypes(), reachability.Analyze(g), nil)
	if len(findings) != 0 {
		t.Errorf("Detect() = %+v, want no findings (singleton detector already covers this class)", findings)
	}
}

func TestModuleBindingDetectorFlagsUnannotatedBoundImplementation(t *testing.T) {
	g := graph.NewGraph()
	mustAdd(t, g, &classfile.ClassNode{
		Name:      "com.acme.WidgetImpl",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "state", Descriptor: "Ljava/util/ArrayList;", IsFinal: true},
		},
	})
	g.MergeModuleAttribution(map[string]string{"com.acme.WidgetImpl": "com.acme.AppModule"})
	g.Freeze()

	findings := (&ModuleBindingDetector{}).Detect(g, *config.DefaultLeafTypes(), reachability.Analyze(g), nil)
	if len(findings) != 1 {
		t.Fatalf("Detect() = %d findings, want 1", len(findings))
	}
	if findings[0].ScopeSource != report.ScopeSourceModuleBinding || findings[0].ModuleName != "com.acme.AppModule" {
		t.Errorf("finding = %+v, want module-binding scope source", findings[0])
	}
}

func TestCategoryDetectorMatchesDirectAndInheritedType(t *testing.T) {
	g := graph.NewGraph()
	// The supertype closure only walks through classes actually present in
	// the graph, so the ancestor itself must be decoded too (as a
	// dependency class would be, off the classpath).
	mustAdd(t, g, &classfile.ClassNode{
		Name: "com.google.common.cache.Cache",
	})
	mustAdd(t, g, &classfile.ClassNode{
		Name:  "com.acme.CustomCache",
		Super: "com.google.common.cache.Cache",
	})
	mustAdd(t, g, &classfile.ClassNode{
		Name:      "com.acme.Repository",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "cache", Descriptor: "Lcom/acme/CustomCache;", IsFinal: true},
		},
	})
	g.Freeze()

	var cacheDetector Detector
	for _, d := range DefaultRegistry().Detectors() {
		if d.ID() == "cache" {
			cacheDetector = d
		}
	}
	if cacheDetector == nil {
		t.Fatal("DefaultRegistry() has no \"cache\" detector")
	}
	findings := cacheDetector.Detect(g, *config.DefaultLeafTypes(), reachability.Analyze(g), nil)
	if len(findings) != 1 {
		t.Fatalf("Detect() = %d findings, want 1 (inherited cache classification): %+v", len(findings), findings)
	}
	if findings[0].RawType != "com.acme.CustomCache" {
		t.Errorf("RawType = %q, want com.acme.CustomCache", findings[0].RawType)
	}
}

func TestFileStateDetectorFlagsFieldsAndMutatingCalls(t *testing.T) {
	g := graph.NewGraph()
	mustAdd(t, g, &classfile.ClassNode{
		Name:      "com.acme.ReportWriter",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "outDir", Descriptor: "Ljava/io/File;", IsFinal: true},
		},
		Methods: []*classfile.MethodNode{
			{
				Name:       "write",
				Descriptor: "()V",
				Invocations: []classfile.MethodInvocation{
					{Target: classfile.MethodRef{Owner: "java.io.File", Name: "mkdirs", Descriptor: "()Z"}},
				},
			},
		},
	})
	g.Freeze()

	findings := (&FileStateDetector{}).Detect(g, *config.DefaultLeafTypes(), reachability.Analyze(g), nil)
	if len(findings) != 2 {
		t.Fatalf("Detect() = %d findings, want 2 (field + mutating call): %+v", len(findings), findings)
	}
	fieldFindings := 0
	callFindings := 0
	for _, f := range findings {
		switch f.StateType {
		case "file-state":
			fieldFindings++
		case "file-mutation":
			callFindings++
			if f.Risk != report.RiskHigh {
				t.Errorf("file-mutation Risk = %v, want HIGH", f.Risk)
			}
		}
	}
	if fieldFindings != 1 || callFindings != 1 {
		t.Errorf("got %d field findings and %d call findings, want 1 each", fieldFindings, callFindings)
	}
}

func TestDefaultRegistryRegistersAllNineDetectors(t *testing.T) {
	r := DefaultRegistry()
	if got := len(r.Detectors()); got != 9 {
		t.Fatalf("DefaultRegistry() registered %d detectors, want 9", got)
	}
	seen := map[string]bool{}
	for _, d := range r.Detectors() {
		if seen[d.ID()] {
			t.Errorf("duplicate detector ID %q", d.ID())
		}
		seen[d.ID()] = true
	}
	for _, id := range []string{
		"static-state", "singleton", "module-binding", "cache",
		"thread-local", "external-state", "service-client", "resilience", "file-state",
	} {
		if !seen[id] {
			t.Errorf("DefaultRegistry() missing detector %q", id)
		}
	}
}

func TestRunAllConcatenatesInRegistrationOrder(t *testing.T) {
	g := graph.NewGraph()
	mustAdd(t, g, &classfile.ClassNode{
		Name:      "com.acme.Mixed",
		IsProject: true,
		Fields: []*classfile.FieldNode{
			{Name: "counter", Descriptor: "I", IsStatic: true, IsFinal: false},
		},
	})
	g.Freeze()
	reach := reachability.Analyze(g)

	findings := DefaultRegistry().RunAll(g, *config.DefaultLeafTypes(), reach, nil)
	staticFindings := findByDetector(findings, "static-state")
	if len(staticFindings) != 1 {
		t.Fatalf("RunAll() found %d static-state findings, want 1: %+v", len(staticFindings), findings)
	}
}
