// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package binding recovers dependency-injection bindings from decoded
// classes: declarative module bodies (bind/to/toInstance DSLs) and
// annotation-driven bean discovery (scoped components and producer
// methods). The result is a map from graph.BindingKey to the set of
// implementation classes registered under that key, ready for
// graph.Graph.MergeBindings.
package binding

import (
	"strings"

	"github.com/mannjg/stateguard/internal/classfile"
	"github.com/mannjg/stateguard/internal/config"
	"github.com/mannjg/stateguard/internal/descriptor"
	"github.com/mannjg/stateguard/internal/graph"
)

// moduleBaseNames are the declarative-module base types whose configure
// routine this parser scans for bind/to pairs.
var moduleBaseNames = map[string]bool{
	"com.google.inject.AbstractModule": true,
	"com.google.inject.Module":         true,
}

// providerAnnotations mark a method as a declarative producer: its return
// type is bound under a key derived from the method's qualifier annotation,
// if any.
var providerAnnotations = map[string]bool{
	"com.google.inject.Provides":       true,
	"javax.enterprise.inject.Produces": true,
	"org.springframework.context.annotation.Bean": true,
}

// Bindings is the accumulated result: binding key to set of implementation
// class names.
type Bindings map[graph.BindingKey]map[string]bool

func (b Bindings) add(key graph.BindingKey, impl string) {
	set := b[key]
	if set == nil {
		set = make(map[string]bool)
		b[key] = set
	}
	set[impl] = true
}

// ModuleOf maps an implementation class to the declarative-module class
// whose configure routine registered it, for detectors that need to report
// the originating module of a module-bound singleton.
type ModuleOf map[string]string

// Parse scans every class known to g (which must already be frozen, since
// this parser uses supertype/interface lookups) and returns the merged
// DI-binding map plus the module-attribution map for declarative bindings.
func Parse(g *graph.Graph) (Bindings, ModuleOf) {
	result := make(Bindings)
	moduleOf := make(ModuleOf)
	for _, name := range g.Classes() {
		node, ok := g.Get(name)
		if !ok {
			continue
		}
		if isDeclarativeModule(g, node) {
			parseModuleBody(g, node, result, moduleOf, make(map[string]bool))
		}
		parseBeanDiscovery(g, node, result)
	}
	return result, moduleOf
}

func isDeclarativeModule(g *graph.Graph, node *classfile.ClassNode) bool {
	if moduleBaseNames[node.Super] {
		return true
	}
	for _, anc := range g.AllSupertypes(node.Name) {
		if moduleBaseNames[anc] {
			return true
		}
	}
	return false
}

// parseModuleBody walks a module's configure() routine, pairing bind/to
// class constants into bindings, and recurses into install()ed submodules.
// visited guards against install() cycles between modules.
func parseModuleBody(g *graph.Graph, node *classfile.ClassNode, result Bindings, moduleOf ModuleOf, visited map[string]bool) {
	if visited[node.Name] {
		return
	}
	visited[node.Name] = true

	for _, m := range node.Methods {
		if !m.IsConfigureMethod() {
			continue
		}
		walkConfigureInvocations(g, node.Name, m, result, moduleOf, visited)
	}
}

// bindToken is one recognized fluent-DSL call site inside a configure()
// routine, carrying the class-literal argument it was invoked with, if any.
type bindToken struct {
	verb     string
	classArg string
}

func walkConfigureInvocations(g *graph.Graph, moduleName string, m *classfile.MethodNode, result Bindings, moduleOf ModuleOf, visited map[string]bool) {
	tokens := make([]bindToken, 0, len(m.Invocations))
	for _, inv := range m.Invocations {
		switch inv.Target.Name {
		case "bind", "to", "toInstance", "toProvider", "annotatedWith", "install":
			tokens = append(tokens, bindToken{verb: inv.Target.Name, classArg: firstClassArg(inv)})
		}
	}

	recorded := 0
	var pendingType, pendingQualifier string
	for _, tok := range tokens {
		switch tok.verb {
		case "bind":
			pendingType = tok.classArg
			pendingQualifier = ""
		case "annotatedWith":
			if tok.classArg != "" {
				pendingQualifier = simpleName(tok.classArg)
			}
		case "to", "toInstance", "toProvider":
			if pendingType != "" && tok.classArg != "" {
				result.add(graph.BindingKey{Type: pendingType, Qualifier: pendingQualifier}, tok.classArg)
				moduleOf[tok.classArg] = moduleName
				recorded++
			}
			pendingType = ""
			pendingQualifier = ""
		case "install":
			if tok.classArg != "" {
				if sub, ok := g.Get(tok.classArg); ok {
					parseModuleBody(g, sub, result, moduleOf, visited)
				}
			}
		}
	}

	// Fallback for bind/to pairs the call-site walk above could not align
	// (e.g. the binder DSL's fluent chain was broken across basic blocks):
	// pair remaining class constants positionally after dropping the
	// module's own type and any framework infrastructure class.
	if recorded == 0 && len(m.ClassConstants) >= 2 {
		pairClassConstants(moduleName, m.ClassConstants, result, moduleOf)
	}
}

func pairClassConstants(moduleName string, constants []string, result Bindings, moduleOf ModuleOf) {
	filtered := make([]string, 0, len(constants))
	for _, c := range constants {
		if c == moduleName || isInfrastructureClass(c) {
			continue
		}
		filtered = append(filtered, c)
	}
	for i := 0; i+1 < len(filtered); i += 2 {
		result.add(graph.BindingKey{Type: filtered[i]}, filtered[i+1])
		moduleOf[filtered[i+1]] = moduleName
	}
}

func isInfrastructureClass(name string) bool {
	return moduleBaseNames[name] ||
		strings.HasPrefix(name, "com.google.inject.") ||
		strings.HasPrefix(name, "javax.inject.") ||
		strings.HasPrefix(name, "jakarta.inject.")
}

func firstClassArg(inv classfile.MethodInvocation) string {
	for _, arg := range inv.Arguments {
		if arg.Kind == classfile.KindLiteral && arg.Type != "" {
			if s, ok := arg.Literal.(string); ok {
				return s
			}
			return arg.Type
		}
	}
	return ""
}

func simpleName(canonical string) string {
	if i := strings.LastIndexByte(canonical, '.'); i >= 0 {
		return canonical[i+1:]
	}
	return canonical
}

// parseBeanDiscovery registers a scoped concrete class under every
// interface and abstract superclass it implements, and registers every
// declarative producer method's return type.
func parseBeanDiscovery(g *graph.Graph, node *classfile.ClassNode, result Bindings) {
	if !node.IsInterface && !node.IsAbstract && config.HasScopeAnnotation(node.Annotations) {
		for _, anc := range g.AllSupertypes(node.Name) {
			ancNode, ok := g.Get(anc)
			if !ok {
				continue
			}
			if ancNode.IsInterface || ancNode.IsAbstract {
				result.add(graph.BindingKey{Type: anc}, node.Name)
			}
		}
	}

	for _, m := range node.Methods {
		if !m.IsProviderMethod(providerAnnotations) {
			continue
		}
		retType, ok := returnClassOf(m)
		if !ok {
			continue
		}
		key := graph.BindingKey{Type: retType, Qualifier: qualifierOf(m)}
		result.add(key, node.Name)
		for _, impl := range referencedImplementations(retType, m.ClassConstants) {
			result.add(key, impl)
		}
	}
}

// referencedImplementations returns the class constants a provider method
// body references, other than its own return type and DI infrastructure
// classes, as additional implementations of that provider's binding key: a
// producer that builds its result via a concrete class literal (e.g.
// `return new RedisSessionCache()`) registers that concrete class as an
// implementation alongside the producer's own owning class.
func referencedImplementations(retType string, constants []string) []string {
	var impls []string
	for _, c := range constants {
		if c == retType || isInfrastructureClass(c) {
			continue
		}
		impls = append(impls, c)
	}
	return impls
}

func qualifierOf(m *classfile.MethodNode) string {
	return config.QualifierOf(m.Annotations)
}

// returnClassOf extracts the canonical return type of a provider method,
// if it returns a reference type.
func returnClassOf(m *classfile.MethodNode) (string, bool) {
	return descriptor.ReturnType(m.Descriptor)
}
