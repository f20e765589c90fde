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
	"fmt"

	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/graph"
	"github.com/mannjg/stateguard/internal/reachability"
	"github.com/mannjg/stateguard/internal/report"
)

// fileNamespaceOwners are the standard-library file-handle types whose
// method names fileMutatingCalls is allowed to match against; a same-named
// method on any other owner (e.g. a cache's own "delete") is not a file
// mutation.
var fileNamespaceOwners = map[string]bool{
	"java.io.File":             true,
	"java.nio.file.Files":      true,
	"java.io.RandomAccessFile": true,
	"java.io.FileOutputStream": true,
	"java.io.FileWriter":       true,
}

// fileMutatingCalls are the fixed set of mutating file-namespace operations
// the file-state detector scans method invocation streams for.
var fileMutatingCalls = map[string]bool{
	"write":           true,
	"createNewFile":   true,
	"delete":          true,
	"mkdir":           true,
	"mkdirs":          true,
	"renameTo":        true,
	"setLastModified": true,
}

// StaticStateDetector flags static fields holding mutable shared state.
type StaticStateDetector struct{}

func (d *StaticStateDetector) ID() string          { return "static-state" }
func (d *StaticStateDetector) Description() string  { return "static fields holding mutable shared state that does not survive multiple replicas" }

func (d *StaticStateDetector) Detect(g *graph.Graph, cfg config.LeafTypes, reachable *reachability.Result, filter *config.CallSiteFilter) []report.Finding {
	var findings []report.Finding
	for _, name := range reachable.Names() {
		if filter.ClassExcluded(name) {
			continue
		}
		node, ok := g.Get(name)
		if !ok {
			continue
		}
		for _, f := range node.Fields {
			if !f.IsStatic || f.Name == "$VALUES" {
				continue
			}
			if node.IsEnum {
				if canon, ok := f.CanonicalType(); ok && canon == node.Name {
					continue
				}
			}
			if f.IsLogger() || f.IsConstant() {
				continue
			}
			canon, _ := f.CanonicalType()
			if !f.IsPotentiallyMutable(cfg.MutableFamily) {
				continue
			}
			typeName := canon
			if typeName == "" {
				typeName = f.Descriptor // primitive field: no canonical type
			}

			risk := report.RiskMedium
			switch {
			case !f.IsFinal:
				risk = report.RiskCritical
			default:
				if cat, ok := cfg.Classify(canon); ok && cat == config.CategoryCache {
					risk = report.RiskCritical
				} else if (ok && cat == config.CategoryThreadLocal) || config.IsKnownMutableCollection(canon) {
					risk = report.RiskHigh
				}
			}

			findings = append(findings, report.Finding{
				ClassName:      node.Name,
				StateType:      "static-field",
				Risk:           risk,
				PatternLabel:   "static-mutable-state",
				FieldName:      f.Name,
				RawType:        canon,
				Description:    fmt.Sprintf("%s.%s is a static field of type %s, shared across every request on this instance.", node.Name, f.Name, typeName),
				Recommendation: "Move this state into a per-request scope or an externally shared store reachable from every replica.",
				DetectorID:     d.ID(),
				SourceFile:     node.SourceFile,
			})
		}
	}
	return findings
}

// SingletonDetector flags mutable instance fields on annotation-scoped
// singletons.
type SingletonDetector struct{}

func (d *SingletonDetector) ID() string         { return "singleton" }
func (d *SingletonDetector) Description() string { return "singleton-scoped components holding mutable instance state" }

func (d *SingletonDetector) Detect(g *graph.Graph, cfg config.LeafTypes, reachable *reachability.Result, filter *config.CallSiteFilter) []report.Finding {
	var findings []report.Finding
	for _, name := range reachable.Names() {
		node, ok := g.Get(name)
		if !ok || !config.HasScopeAnnotation(node.Annotations) {
			continue
		}
		scopeAnnotation := firstScopeAnnotation(node.Annotations)

		for _, f := range node.Fields {
			if f.IsStatic || f.IsLogger() {
				continue
			}
			canon, ok := f.CanonicalType()
			if !ok {
				continue
			}
			if !f.IsPotentiallyMutable(cfg.MutableFamily) {
				continue
			}

			risk := report.RiskMedium
			cat, hasCat := cfg.Classify(canon)
			switch {
			case (hasCat && cat == config.CategoryCache) || config.IsKnownMutableCollection(canon):
				risk = report.RiskCritical
			case (hasCat && cat == config.CategoryResilience) || !f.IsFinal:
				risk = report.RiskHigh
			}

			findings = append(findings, report.Finding{
				ClassName:       node.Name,
				StateType:       "instance-field",
				Risk:            risk,
				PatternLabel:    "singleton-mutable-field",
				FieldName:       f.Name,
				RawType:         canon,
				ScopeSource:     report.ScopeSourceAnnotation,
				ScopeAnnotation: scopeAnnotation,
				Description:     fmt.Sprintf("%s is scoped %s and holds mutable field %s of type %s.", node.Name, scopeAnnotation, f.Name, canon),
				Recommendation:  "Replace in-memory mutable state on a singleton with a distributed cache or externalized store so every replica observes the same value.",
				DetectorID:      d.ID(),
				SourceFile:      node.SourceFile,
			})
		}
	}
	return findings
}

func firstScopeAnnotation(annotations []string) string {
	for _, a := range annotations {
		if config.ScopeAnnotations[a] {
			return a
		}
	}
	return ""
}

// ModuleBindingDetector flags mutable instance fields on classes that are
// singletons only by virtue of a DI module binding (not an explicit
// annotation, which the singleton detector already covers).
type ModuleBindingDetector struct{}

func (d *ModuleBindingDetector) ID() string         { return "module-binding" }
func (d *ModuleBindingDetector) Description() string { return "module-bound implementations holding mutable instance state" }

func (d *ModuleBindingDetector) Detect(g *graph.Graph, cfg config.LeafTypes, reachable *reachability.Result, filter *config.CallSiteFilter) []report.Finding {
	var findings []report.Finding
	for _, name := range reachable.Names() {
		node, ok := g.Get(name)
		if !ok {
			continue
		}
		module, isModuleBound := g.ModuleOf(node.Name)
		if !isModuleBound || config.HasScopeAnnotation(node.Annotations) {
			continue
		}

		for _, f := range node.Fields {
			if f.IsStatic || f.IsLogger() {
				continue
			}
			canon, ok := f.CanonicalType()
			if !ok {
				continue
			}
			if !f.IsPotentiallyMutable(cfg.MutableFamily) {
				continue
			}

			findings = append(findings, report.Finding{
				ClassName:      node.Name,
				StateType:      "instance-field",
				Risk:           report.RiskHigh,
				PatternLabel:   "module-bound-mutable-field",
				FieldName:      f.Name,
				RawType:        canon,
				ScopeSource:    report.ScopeSourceModuleBinding,
				ModuleName:     module,
				Description:    fmt.Sprintf("%s is bound as a singleton by module %s and holds mutable field %s.", node.Name, module, f.Name),
				Recommendation: "Module-bound singletons outlive individual requests; move mutable instance state to a distributed store.",
				DetectorID:     d.ID(),
				SourceFile:     node.SourceFile,
			})
		}
	}
	return findings
}

// CategoryDetector is a generic, table-driven detector for a single leaf
// category (cache, thread-local, external-state, service-client,
// resilience): any field whose declared type, or whose first matching
// supertype, classifies into Category is reported at the fixed Risk level.
type CategoryDetector struct {
	IDValue        string
	Category       config.Category
	StateType      string
	PatternLabel   string
	Risk           report.Risk
	Recommendation string
}

func (d *CategoryDetector) ID() string          { return d.IDValue }
func (d *CategoryDetector) Description() string { return fmt.Sprintf("fields of a declared %s type", d.Category) }

func (d *CategoryDetector) Detect(g *graph.Graph, cfg config.LeafTypes, reachable *reachability.Result, filter *config.CallSiteFilter) []report.Finding {
	var findings []report.Finding
	for _, name := range reachable.Names() {
		node, ok := g.Get(name)
		if !ok {
			continue
		}
		for _, f := range node.Fields {
			canon, ok := f.CanonicalType()
			if !ok {
				continue
			}
			if !classifiesAs(g, cfg, canon, d.Category) {
				continue
			}

			findings = append(findings, report.Finding{
				ClassName:      node.Name,
				StateType:      d.StateType,
				Risk:           d.Risk,
				PatternLabel:   d.PatternLabel,
				FieldName:      f.Name,
				RawType:        canon,
				Description:    fmt.Sprintf("%s.%s is a %s (%s).", node.Name, f.Name, d.Category, canon),
				Recommendation: d.Recommendation,
				DetectorID:     d.ID(),
				SourceFile:     node.SourceFile,
			})
		}
	}
	return findings
}

// classifiesAs reports whether canon, or the first matching class in its
// supertype closure, is classified under category.
func classifiesAs(g *graph.Graph, cfg config.LeafTypes, canon string, category config.Category) bool {
	cat, ok := cfg.ClassifyWithSupertypes(canon, g.AllSupertypes(canon))
	return ok && cat == category
}

// FileStateDetector flags fields of a file-state type and methods that
// call known mutating file-namespace operations.
type FileStateDetector struct{}

func (d *FileStateDetector) ID() string          { return "file-state" }
func (d *FileStateDetector) Description() string { return "file-system handles and mutating file operations" }

func (d *FileStateDetector) Detect(g *graph.Graph, cfg config.LeafTypes, reachable *reachability.Result, filter *config.CallSiteFilter) []report.Finding {
	var findings []report.Finding
	for _, name := range reachable.Names() {
		node, ok := g.Get(name)
		if !ok {
			continue
		}

		for _, f := range node.Fields {
			canon, ok := f.CanonicalType()
			if !ok {
				continue
			}
			if !classifiesAs(g, cfg, canon, config.CategoryFileState) {
				continue
			}
			findings = append(findings, report.Finding{
				ClassName:      node.Name,
				StateType:      "file-state",
				Risk:           report.RiskMedium,
				PatternLabel:   "file-state-field",
				FieldName:      f.Name,
				RawType:        canon,
				Description:    fmt.Sprintf("%s.%s holds a file-system handle (%s).", node.Name, f.Name, canon),
				Recommendation: "File-system state is local to a replica's disk; use shared object storage for anything that must be visible to every replica.",
				DetectorID:     d.ID(),
				SourceFile:     node.SourceFile,
			})
		}

		for _, m := range node.Methods {
			for _, inv := range m.Invocations {
				if !fileNamespaceOwners[inv.Target.Owner] || !fileMutatingCalls[inv.Target.Name] {
					continue
				}
				findings = append(findings, report.Finding{
					ClassName:      node.Name,
					StateType:      "file-mutation",
					Risk:           report.RiskHigh,
					PatternLabel:   "file-mutation-call",
					FieldName:      m.Name,
					RawType:        inv.Target.Owner,
					Description:    fmt.Sprintf("%s.%s calls %s.%s, a mutating file-system operation.", node.Name, m.Name, inv.Target.Owner, inv.Target.Name),
					Recommendation: "Writes to local disk are not visible to other replicas; route this through shared or object storage.",
					DetectorID:     d.ID(),
					SourceFile:     node.SourceFile,
				})
			}
		}
	}
	return findings
}
