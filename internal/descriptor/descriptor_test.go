// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package descriptor

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		name     string
		desc     string
		wantName string
		wantOK   bool
	}{
		{"plain reference", "Lcom/acme/Service;", "com.acme.Service", true},
		{"nested reference", "Lcom/acme/Service$Inner;", "com.acme.Service$Inner", true},
		{"array of reference", "[Lcom/acme/Service;", "com.acme.Service[]", true},
		{"two-dim array", "[[Lcom/acme/Service;", "com.acme.Service[][]", true},
		{"primitive int", "I", "", false},
		{"void", "V", "", false},
		{"array of primitive", "[I", "int[]", true},
		{"malformed unterminated", "Lcom/acme/Service", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Canonical(tt.desc)
			if ok != tt.wantOK || got != tt.wantName {
				t.Errorf("Canonical(%q) = (%q, %v), want (%q, %v)", tt.desc, got, ok, tt.wantName, tt.wantOK)
			}
		})
	}
}

func TestReturnType(t *testing.T) {
	tests := []struct {
		methodDesc string
		wantName   string
		wantOK     bool
	}{
		{"()Lcom/acme/Service;", "com.acme.Service", true},
		{"(I)V", "", false},
		{"(Ljava/lang/String;I)[Lcom/acme/Entry;", "com.acme.Entry[]", true},
		{"malformed", "", false},
	}
	for _, tt := range tests {
		got, ok := ReturnType(tt.methodDesc)
		if ok != tt.wantOK || got != tt.wantName {
			t.Errorf("ReturnType(%q) = (%q, %v), want (%q, %v)", tt.methodDesc, got, ok, tt.wantName, tt.wantOK)
		}
	}
}

func TestParameterTypes(t *testing.T) {
	tests := []struct {
		methodDesc string
		want       []string
	}{
		{"()V", nil},
		{"(I)V", []string{""}},
		{"(Ljava/lang/String;I)V", []string{"java.lang.String", ""}},
		{"([Lcom/acme/Entry;[I)V", []string{"com.acme.Entry[]", "int[]"}},
		{"not-a-descriptor", nil},
	}
	for _, tt := range tests {
		got := ParameterTypes(tt.methodDesc)
		if len(got) != len(tt.want) {
			t.Errorf("ParameterTypes(%q) = %v, want %v", tt.methodDesc, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ParameterTypes(%q)[%d] = %q, want %q", tt.methodDesc, i, got[i], tt.want[i])
			}
		}
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	descs := []string{
		"Lcom/acme/Service;",
		"[Lcom/acme/Service;",
		"[[Lcom/acme/Entry;",
		"Lcom/acme/Outer$Inner;",
	}
	for _, d := range descs {
		canon, ok := Canonical(d)
		if !ok {
			t.Fatalf("Canonical(%q) unexpectedly failed", d)
		}
		back := ToDescriptor(canon)
		if back != d {
			t.Errorf("round trip: ToDescriptor(Canonical(%q)) = %q, want %q", d, back, d)
		}
	}
}

func TestInternalToCanonical(t *testing.T) {
	got := InternalToCanonical("com/acme/Service")
	want := "com.acme.Service"
	if got != want {
		t.Errorf("InternalToCanonical() = %q, want %q", got, want)
	}
}
