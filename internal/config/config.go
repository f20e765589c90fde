// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the plain Go shapes that the (out-of-scope) YAML
// loader populates: leaf-type category membership and per-project
// inclusion/exclusion rules. Loading from disk is an external collaborator;
// this package only defines the shapes and a usable in-code default so the
// engine runs standalone in tests.
package config

import (
	"regexp"
	"strings"
)

// Category identifies one of the fixed leaf-type families a detector or the
// path finder classifies types into.
type Category string

const (
	CategoryExternalState Category = "external-state"
	CategoryServiceClient Category = "service-client"
	CategoryCache         Category = "cache"
	CategoryGRPC          Category = "grpc"
	CategoryResilience    Category = "resilience"
	CategoryFileState     Category = "file-state"
	CategoryThreadLocal   Category = "thread-local"
)

// allCategories enumerates every recognized category in a fixed order, used
// wherever deterministic iteration over categories is required.
var allCategories = []Category{
	CategoryExternalState,
	CategoryServiceClient,
	CategoryCache,
	CategoryGRPC,
	CategoryResilience,
	CategoryFileState,
	CategoryThreadLocal,
}

// LeafTypes is a mapping from category to the set of fully qualified type
// names that belong to it, plus a set of exclude regex patterns over
// canonical type names. Layered configurations are merged by set union per
// category (see Merge).
type LeafTypes struct {
	Categories    map[Category][]string `yaml:"categories"`
	ExcludeRegex  []string              `yaml:"exclude_regex"`

	byCategory map[Category]map[string]bool
	excludeRE  []*regexp.Regexp
}

// Compile builds the internal lookup indexes. Must be called once after
// construction (including after Merge) and before any Classify/IsExcluded
// call; mirrors the decoder/graph convention of an explicit finalization
// step over a plain data shape.
func (lt *LeafTypes) Compile() {
	lt.byCategory = make(map[Category]map[string]bool, len(lt.Categories))
	for cat, names := range lt.Categories {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		lt.byCategory[cat] = set
	}
	lt.excludeRE = nil
	for _, pattern := range lt.ExcludeRegex {
		if re, err := regexp.Compile(pattern); err == nil {
			lt.excludeRE = append(lt.excludeRE, re)
		}
	}
}

// Classify returns the category a canonical type name belongs to, and
// whether it matched any configured category at all.
func (lt *LeafTypes) Classify(canonicalType string) (Category, bool) {
	for _, cat := range allCategories {
		if lt.byCategory[cat][canonicalType] {
			return cat, true
		}
	}
	return "", false
}

// ClassifyWithSupertypes returns the leaf category for canon, like
// Classify, falling back to the first matching class in supertypes (the
// precomputed transitive supertype closure of canon) when canon itself is
// not directly classified — "if a class is not directly classified, its
// entire supertype closure is checked, and the containing category of the
// first matching supertype is used."
func (lt *LeafTypes) ClassifyWithSupertypes(canon string, supertypes []string) (Category, bool) {
	if cat, ok := lt.Classify(canon); ok {
		return cat, true
	}
	for _, anc := range supertypes {
		if cat, ok := lt.Classify(anc); ok {
			return cat, true
		}
	}
	return "", false
}

// IsExcluded reports whether a canonical type matches any configured
// exclude-regex pattern.
func (lt *LeafTypes) IsExcluded(canonicalType string) bool {
	for _, re := range lt.excludeRE {
		if re.MatchString(canonicalType) {
			return true
		}
	}
	return false
}

// TypesIn returns the configured member set for one category, for
// detectors that need direct membership checks rather than full
// classification (e.g. cache/thread-local/resilience detectors).
func (lt *LeafTypes) TypesIn(cat Category) map[string]bool {
	return lt.byCategory[cat]
}

// Merge layers an override configuration onto a base configuration by set
// union per category, and by concatenation of exclude patterns. The
// receiver is not modified; the returned configuration is uncompiled, so
// call Compile on it after merging.
func (lt *LeafTypes) Merge(override *LeafTypes) *LeafTypes {
	merged := &LeafTypes{Categories: make(map[Category][]string)}
	for cat, names := range lt.Categories {
		merged.Categories[cat] = append(merged.Categories[cat], names...)
	}
	if override != nil {
		for cat, names := range override.Categories {
			merged.Categories[cat] = append(merged.Categories[cat], names...)
		}
		merged.ExcludeRegex = append(append([]string{}, lt.ExcludeRegex...), override.ExcludeRegex...)
	} else {
		merged.ExcludeRegex = append([]string{}, lt.ExcludeRegex...)
	}
	return merged
}

// DefaultLeafTypes returns an in-code baseline configuration covering the
// common cache, thread-local, resilience, and service-client families, so
// the engine produces useful findings with zero project configuration.
func DefaultLeafTypes() *LeafTypes {
	lt := &LeafTypes{
		Categories: map[Category][]string{
			CategoryCache: {
				"com.google.common.cache.Cache",
				"com.github.benmanes.caffeine.cache.Cache",
				"org.springframework.cache.Cache",
				"net.sf.ehcache.Ehcache",
			},
			CategoryThreadLocal: {
				"java.lang.ThreadLocal",
				"java.lang.InheritableThreadLocal",
			},
			CategoryResilience: {
				"io.github.resilience4j.circuitbreaker.CircuitBreaker",
				"io.github.resilience4j.ratelimiter.RateLimiter",
				"io.github.resilience4j.retry.Retry",
				"io.github.resilience4j.bulkhead.Bulkhead",
				"com.netflix.hystrix.HystrixCommand",
			},
			CategoryServiceClient: {
				"okhttp3.OkHttpClient",
				"org.apache.http.client.HttpClient",
				"java.net.http.HttpClient",
				"software.amazon.awssdk.core.SdkClient",
				"com.amazonaws.AmazonWebServiceClient",
			},
			CategoryExternalState: {
				"javax.sql.DataSource",
				"java.sql.Connection",
				"redis.clients.jedis.Jedis",
				"redis.clients.jedis.JedisPool",
				"org.apache.kafka.clients.producer.KafkaProducer",
				"org.apache.kafka.clients.consumer.KafkaConsumer",
			},
			CategoryGRPC: {
				"io.grpc.Channel",
				"io.grpc.ManagedChannel",
				"io.grpc.Server",
			},
			CategoryFileState: {
				"java.io.File",
				"java.nio.file.Path",
			},
		},
	}
	lt.Compile()
	return lt
}

// MethodPattern matches an exclude-method pattern of the forms named in the
// project-exclusion configuration: "method", "class#method", "class#",
// "#method", with a trailing "." on either half denoting a prefix match.
type MethodPattern struct {
	classPart  string
	classPrefix bool
	methodPart string
	methodPrefix bool
}

// ParseMethodPattern parses one exclude-method pattern string.
func ParseMethodPattern(pattern string) MethodPattern {
	class, method, hasHash := strings.Cut(pattern, "#")
	if !hasHash {
		method = class
		class = ""
	}

	p := MethodPattern{}
	p.classPart, p.classPrefix = trimTrailingDot(class)
	p.methodPart, p.methodPrefix = trimTrailingDot(method)
	return p
}

func trimTrailingDot(s string) (string, bool) {
	if strings.HasSuffix(s, ".") {
		return strings.TrimSuffix(s, "."), true
	}
	return s, false
}

// Matches reports whether a given (class, method) call-site pair is
// excluded by this pattern.
func (p MethodPattern) Matches(class, method string) bool {
	if p.classPart != "" {
		if p.classPrefix {
			if !strings.HasPrefix(class, p.classPart) {
				return false
			}
		} else if class != p.classPart {
			return false
		}
	}
	if p.methodPart != "" {
		if p.methodPrefix {
			if !strings.HasPrefix(method, p.methodPart) {
				return false
			}
		} else if method != p.methodPart {
			return false
		}
	}
	return true
}

// ProjectRules configures project-vs-dependency classification and call-site
// exclusions for the path finder and static-state detector.
type ProjectRules struct {
	IncludePrefixes []string `yaml:"include_prefixes"`
	ExcludePrefixes []string `yaml:"exclude_prefixes"`
	RootPrefixes    []string `yaml:"root_prefixes"`
	ExcludeClassPatterns  []string `yaml:"exclude_class_patterns"`
	ExcludeMethodPatterns []string `yaml:"exclude_method_patterns"`
}

// CompiledExcludeMethods parses every configured exclude-method pattern.
func (pr *ProjectRules) CompiledExcludeMethods() []MethodPattern {
	patterns := make([]MethodPattern, 0, len(pr.ExcludeMethodPatterns))
	for _, raw := range pr.ExcludeMethodPatterns {
		patterns = append(patterns, ParseMethodPattern(raw))
	}
	return patterns
}

// CallSiteFilter is the compiled form of a ProjectRules' exclude-class and
// exclude-method patterns, built once per scan and queried once per
// candidate class or call site thereafter, the same compile-then-query
// shape as LeafTypes.Compile/Classify.
type CallSiteFilter struct {
	classPatterns  []MethodPattern
	methodPatterns []MethodPattern
}

// NewCallSiteFilter compiles rules' exclude-class and exclude-method
// patterns. A nil rules compiles to a filter that excludes nothing.
func NewCallSiteFilter(rules *ProjectRules) *CallSiteFilter {
	f := &CallSiteFilter{}
	if rules == nil {
		return f
	}
	for _, raw := range rules.ExcludeClassPatterns {
		part, prefix := trimTrailingDot(raw)
		f.classPatterns = append(f.classPatterns, MethodPattern{classPart: part, classPrefix: prefix})
	}
	f.methodPatterns = rules.CompiledExcludeMethods()
	return f
}

// ClassExcluded reports whether a canonical class name matches any
// configured exclude-class pattern.
func (f *CallSiteFilter) ClassExcluded(canonical string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.classPatterns {
		if p.Matches(canonical, "") {
			return true
		}
	}
	return false
}

// CallExcluded reports whether a (class, method) call site matches any
// configured exclude-method pattern.
func (f *CallSiteFilter) CallExcluded(class, method string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.methodPatterns {
		if p.Matches(class, method) {
			return true
		}
	}
	return false
}

// ScopeAnnotations are the recognized bean-scope annotations marking a class
// as a managed, container-scoped instance — shared by the DI binding
// parser's bean-discovery pass and the singleton detector.
var ScopeAnnotations = map[string]bool{
	"javax.inject.Singleton":                      true,
	"jakarta.inject.Singleton":                     true,
	"com.google.inject.Singleton":                  true,
	"javax.enterprise.context.ApplicationScoped":   true,
	"org.springframework.stereotype.Component":     true,
	"org.springframework.stereotype.Service":       true,
	"org.springframework.stereotype.Repository":    true,
}

// HasScopeAnnotation reports whether an annotation list carries any
// recognized bean-scope annotation.
func HasScopeAnnotation(annotations []string) bool {
	for _, a := range annotations {
		if ScopeAnnotations[a] {
			return true
		}
	}
	return false
}

// InjectAnnotations are the recognized field injection-point annotations:
// a field the DI container populates from a registered binding, rather
// than state the class initializes on its own.
var InjectAnnotations = map[string]bool{
	"javax.inject.Inject":      true,
	"jakarta.inject.Inject":    true,
	"com.google.inject.Inject": true,
	"org.springframework.beans.factory.annotation.Autowired": true,
}

// IsInjectionPoint reports whether an annotation list carries any
// recognized injection-point annotation.
func IsInjectionPoint(annotations []string) bool {
	for _, a := range annotations {
		if InjectAnnotations[a] {
			return true
		}
	}
	return false
}

// QualifierAnnotations identify a field, parameter, or method annotation as
// a DI qualifier rather than an ordinary marker; its simple name becomes
// the BindingKey.Qualifier.
var QualifierAnnotations = map[string]bool{
	"javax.inject.Named":           true,
	"jakarta.inject.Named":         true,
	"com.google.inject.name.Named": true,
}

// QualifierOf returns the simple name of the first recognized qualifier
// annotation in the list, or "" if none is present.
func QualifierOf(annotations []string) string {
	for _, a := range annotations {
		if QualifierAnnotations[a] {
			if i := strings.LastIndexByte(a, '.'); i >= 0 {
				return a[i+1:]
			}
			return a
		}
	}
	return ""
}

// mutableCollectionTypes are the standard-library and common third-party
// collection/atomic types treated as inherently mutable regardless of the
// field's own final/volatile flags.
var mutableCollectionTypes = map[string]bool{
	"java.util.HashMap":                         true,
	"java.util.ArrayList":                       true,
	"java.util.HashSet":                         true,
	"java.util.LinkedList":                      true,
	"java.util.LinkedHashMap":                   true,
	"java.util.TreeMap":                         true,
	"java.util.TreeSet":                         true,
	"java.util.Hashtable":                       true,
	"java.util.Vector":                          true,
	"java.util.concurrent.ConcurrentHashMap":    true,
	"java.util.concurrent.CopyOnWriteArrayList": true,
	"java.util.concurrent.CopyOnWriteArraySet":  true,
	"java.util.concurrent.atomic.AtomicInteger": true,
	"java.util.concurrent.atomic.AtomicLong":    true,
	"java.util.concurrent.atomic.AtomicBoolean": true,
	"java.util.concurrent.atomic.AtomicReference": true,
}

// IsKnownMutableCollection reports whether a canonical type name is one of
// the standard inherently-mutable collection or atomic types.
func IsKnownMutableCollection(canonical string) bool {
	return mutableCollectionTypes[canonical]
}

// MutableFamily reports whether a canonical type belongs to one of the
// families the static-state and singleton detectors treat as mutable
// shared state even when the declaring field is final: known mutable
// collections/atomics, plus the cache and thread-local leaf categories.
func (lt *LeafTypes) MutableFamily(canonical string) bool {
	if IsKnownMutableCollection(canonical) {
		return true
	}
	cat, ok := lt.Classify(canonical)
	return ok && (cat == CategoryCache || cat == CategoryThreadLocal)
}

// shadedNamespaceMarkers are the vendored/relocated sub-namespace markers
// the project scanner excludes from project-class classification even when
// the fully qualified name otherwise matches an included prefix.
var shadedNamespaceMarkers = []string{".shade.", ".shaded.", ".relocated.", ".repackaged."}

// IsShaded reports whether a canonical class name contains a vendored or
// relocated sub-namespace marker.
func IsShaded(canonicalName string) bool {
	for _, marker := range shadedNamespaceMarkers {
		if strings.Contains(canonicalName, marker) {
			return true
		}
	}
	return false
}

// StandardRuntimeNamespaces are the managed-runtime's own standard
// namespace roots, excluded from reachability expansion per the
// reachability analyzer's contract.
var StandardRuntimeNamespaces = []string{"java.", "javax.", "sun.", "jdk."}

// IsStandardRuntime reports whether a canonical class name falls under one
// of the managed runtime's own standard namespaces.
func IsStandardRuntime(canonicalName string) bool {
	for _, ns := range StandardRuntimeNamespaces {
		if strings.HasPrefix(canonicalName, ns) {
			return true
		}
	}
	return false
}
