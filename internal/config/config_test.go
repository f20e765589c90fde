// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "testing"

func TestMethodPatternMatches(t *testing.T) {
	tests := []struct {
		pattern string
		class   string
		method  string
		want    bool
	}{
		{"save", "com.acme.Repo", "save", true},
		{"save", "com.acme.Repo", "delete", false},
		{"com.acme.Repo#save", "com.acme.Repo", "save", true},
		{"com.acme.Repo#save", "com.acme.Other", "save", false},
		{"com.acme.Repo#", "com.acme.Repo", "anything", true},
		{"com.acme.Repo#", "com.acme.Other", "anything", false},
		{"#save", "com.acme.Repo", "save", true},
		{"#save", "com.acme.Repo", "other", false},
		{"com.acme.#save", "com.acme.Sub.Repo", "save", true},
	}
	for _, tt := range tests {
		p := ParseMethodPattern(tt.pattern)
		got := p.Matches(tt.class, tt.method)
		if got != tt.want {
			t.Errorf("ParseMethodPattern(%q).Matches(%q, %q) = %v, want %v", tt.pattern, tt.class, tt.method, got, tt.want)
		}
	}
}

func TestLeafTypesClassifyAndExclude(t *testing.T) {
	lt := DefaultLeafTypes()

	cat, ok := lt.Classify("java.lang.ThreadLocal")
	if !ok || cat != CategoryThreadLocal {
		t.Errorf("Classify(ThreadLocal) = (%v, %v), want (%v, true)", cat, ok, CategoryThreadLocal)
	}

	if _, ok := lt.Classify("com.acme.NotALeaf"); ok {
		t.Errorf("Classify(NotALeaf) unexpectedly matched a category")
	}

	lt.ExcludeRegex = []string{"^com\\.acme\\.internal\\..*"}
	lt.Compile()
	if !lt.IsExcluded("com.acme.internal.Foo") {
		t.Errorf("IsExcluded(com.acme.internal.Foo) = false, want true")
	}
	if lt.IsExcluded("com.acme.Foo") {
		t.Errorf("IsExcluded(com.acme.Foo) = true, want false")
	}
}

func TestLeafTypesMergeUnion(t *testing.T) {
	base := &LeafTypes{Categories: map[Category][]string{CategoryCache: {"A"}}}
	override := &LeafTypes{Categories: map[Category][]string{CategoryCache: {"B"}, CategoryThreadLocal: {"C"}}}

	merged := base.Merge(override)
	merged.Compile()

	for _, want := range []string{"A", "B"} {
		if _, ok := merged.Classify(want); !ok {
			t.Errorf("merged config missing cache member %q", want)
		}
	}
	if _, ok := merged.Classify("C"); !ok {
		t.Errorf("merged config missing thread-local member from override")
	}
}

func TestIsShadedAndStandardRuntime(t *testing.T) {
	if !IsShaded("com.acme.shaded.guava.Lists") {
		t.Error("IsShaded() = false, want true for .shaded. marker")
	}
	if IsShaded("com.acme.Service") {
		t.Error("IsShaded() = true, want false")
	}
	if !IsStandardRuntime("java.util.List") {
		t.Error("IsStandardRuntime(java.util.List) = false, want true")
	}
	if IsStandardRuntime("com.acme.Service") {
		t.Error("IsStandardRuntime(com.acme.Service) = true, want false")
	}
}
