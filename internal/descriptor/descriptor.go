// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package descriptor converts wire-form type descriptors to and from the
// canonical dotted class names used everywhere else in the engine.
//
// A wire descriptor is a sequence of array markers '[' followed by either a
// single-character primitive sigil or an 'L<slash/name>;' reference form.
// Conversion never panics on malformed input; it reports failure through a
// boolean so callers can keep analyzing a partially readable artifact.
package descriptor

import "strings"

// primitiveSigils maps the fixed primitive/void wire sigils to true. 'V'
// (void) is included because it shares the same "has no canonical name"
// treatment as the primitives.
var primitiveSigils = map[byte]bool{
	'B': true, 'C': true, 'D': true, 'F': true,
	'I': true, 'J': true, 'S': true, 'Z': true, 'V': true,
}

// InternalToCanonical converts a slash-separated internal class name (as
// stored in the constant pool) to its dotted canonical form.
func InternalToCanonical(slashForm string) string {
	return strings.ReplaceAll(slashForm, "/", ".")
}

// Canonical returns the dotted, bracket-suffixed canonical name for a single
// reference or array-of-reference descriptor. It returns ok=false for
// primitive and void descriptors (which have no canonical class name) and
// for malformed input.
func Canonical(desc string) (name string, ok bool) {
	name, _, ok = parseType(desc, 0)
	return name, ok
}

// ReturnType extracts and canonicalizes the return type of a method
// descriptor of the form "(<params>)<return>". Returns ok=false if the
// return type is primitive/void or the descriptor is malformed.
func ReturnType(methodDesc string) (name string, ok bool) {
	idx := strings.IndexByte(methodDesc, ')')
	if idx < 0 || idx+1 > len(methodDesc) {
		return "", false
	}
	return Canonical(methodDesc[idx+1:])
}

// ParameterTypes splits the parenthesized parameter region of a method
// descriptor into successive canonical type names, in order. Primitive
// parameters are represented as an empty string at their position so the
// caller can still count arity; a malformed descriptor yields nil.
func ParameterTypes(methodDesc string) []string {
	if len(methodDesc) == 0 || methodDesc[0] != '(' {
		return nil
	}
	end := strings.IndexByte(methodDesc, ')')
	if end < 0 {
		return nil
	}
	body := methodDesc[1:end]

	var result []string
	i := 0
	for i < len(body) {
		name, next, ok := parseType(body, i)
		if !ok && next == i {
			// parseType made no progress: malformed, bail out.
			return nil
		}
		result = append(result, name)
		i = next
	}
	return result
}

// parseType parses a single type token (with any leading array markers)
// starting at offset i in s. It returns the canonical name (empty for
// primitives), the index just past the token, and whether a well-formed
// token was found at all. For primitives ok is still false (no canonical
// name exists) even though parsing succeeded and advanced i; callers that
// need to distinguish "no canonical name" from "malformed" should check
// whether the returned index advanced.
func parseType(s string, i int) (name string, next int, ok bool) {
	dims := 0
	for i < len(s) && s[i] == '[' {
		dims++
		i++
	}
	if i >= len(s) {
		return "", i, false
	}

	suffix := strings.Repeat("[]", dims)

	switch s[i] {
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			return "", i, false
		}
		internal := s[i+1 : i+end]
		return InternalToCanonical(internal) + suffix, i + end + 1, true
	default:
		if primitiveSigils[s[i]] {
			// Primitive or void: well-formed token, but no canonical name.
			// Arrays of primitives DO have a canonical element name, e.g. int[].
			if dims > 0 {
				return primitiveName(s[i]) + suffix, i + 1, true
			}
			return "", i + 1, false
		}
		return "", i, false
	}
}

// ToDescriptor converts a canonical dotted (optionally array-suffixed) class
// name back to its wire-form reference descriptor. It is the inverse of
// Canonical for valid reference descriptors: ToDescriptor(Canonical(d)) == d.
// Primitive canonical names (e.g. "int", "int[]") are also accepted so array
// element types round-trip through ParameterTypes/Canonical symmetrically.
func ToDescriptor(canonicalName string) string {
	dims := 0
	for strings.HasSuffix(canonicalName, "[]") {
		dims++
		canonicalName = canonicalName[:len(canonicalName)-2]
	}

	var base string
	if sigil, isPrim := primitiveSigilFor(canonicalName); isPrim {
		base = string(sigil)
	} else {
		base = "L" + strings.ReplaceAll(canonicalName, ".", "/") + ";"
	}

	return strings.Repeat("[", dims) + base
}

func primitiveSigilFor(name string) (byte, bool) {
	switch name {
	case "byte":
		return 'B', true
	case "char":
		return 'C', true
	case "double":
		return 'D', true
	case "float":
		return 'F', true
	case "int":
		return 'I', true
	case "long":
		return 'J', true
	case "short":
		return 'S', true
	case "boolean":
		return 'Z', true
	case "void":
		return 'V', true
	default:
		return 0, false
	}
}

func primitiveName(sigil byte) string {
	switch sigil {
	case 'B':
		return "byte"
	case 'C':
		return "char"
	case 'D':
		return "double"
	case 'F':
		return "float"
	case 'I':
		return "int"
	case 'J':
		return "long"
	case 'S':
		return "short"
	case 'Z':
		return "boolean"
	case 'V':
		return "void"
	default:
		return ""
	}
}
