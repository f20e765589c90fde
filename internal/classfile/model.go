// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classfile decodes a single compiled class artifact into a
// ClassNode and runs the bounded operand-stack simulator over each method
// body to tag invocation receivers and arguments.
package classfile

import "github.com/mannjg/stateguard/internal/descriptor"

// mutableCollectionTypes and friends live in internal/config; ClassNode's
// derived predicates accept the caller's configured sets so the decoder
// itself stays free of any particular framework's type names.

// MethodRef identifies a call target: the owning class, member name, and
// wire descriptor. Equality is structural.
type MethodRef struct {
	Owner      string
	Name       string
	Descriptor string
}

// FieldRef identifies a field access: the owning class, member name, and
// wire descriptor.
type FieldRef struct {
	Owner      string
	Name       string
	Descriptor string
}

// ReceiverKind tags the provenance of an invocation's receiver or an
// argument value, as produced by the operand-stack simulator.
type ReceiverKind int

const (
	// KindThis is the current instance (aload_0 in an instance method).
	KindThis ReceiverKind = iota
	// KindField is a value loaded from a field access.
	KindField
	// KindParam is a value loaded from a method parameter slot.
	KindParam
	// KindLocal is a value loaded from a local variable slot.
	KindLocal
	// KindNewObject is the yet-uninitialized result of a `new`.
	KindNewObject
	// KindLiteral is a constant-pool literal (including a class literal).
	KindLiteral
	// KindComputed is any value whose provenance the simulator did not
	// track precisely (method return values, arithmetic, casts of same).
	KindComputed
)

func (k ReceiverKind) String() string {
	switch k {
	case KindThis:
		return "THIS"
	case KindField:
		return "FIELD"
	case KindParam:
		return "PARAM"
	case KindLocal:
		return "LOCAL"
	case KindNewObject:
		return "NEW_OBJECT"
	case KindLiteral:
		return "LITERAL"
	case KindComputed:
		return "COMPUTED"
	default:
		return "UNKNOWN"
	}
}

// StackValue is a single tagged operand-stack entry. Not every field is
// populated for every Kind: Name is set for FIELD/PARAM/LOCAL, Index for
// PARAM/LOCAL, Literal for LITERAL.
type StackValue struct {
	Kind    ReceiverKind
	Type    string // canonical type name, when known
	Name    string
	Index   int
	Literal any
}

// InvokeKind distinguishes the four invocation bytecodes.
type InvokeKind int

const (
	InvokeVirtual InvokeKind = iota
	InvokeSpecial
	InvokeStatic
	InvokeInterface
)

// MethodInvocation is one call site discovered by the operand-stack
// simulator, tagging both the call target and how its receiver and
// arguments were produced.
type MethodInvocation struct {
	Target      MethodRef
	InvokeKind  InvokeKind
	Receiver    *StackValue // nil for invokestatic
	Arguments   []StackValue
	BytecodeOff int
}

// FieldAccess is one field read or write discovered in a method body.
type FieldAccess struct {
	Target      FieldRef
	IsWrite     bool
	BytecodeOff int
}

// FieldNode describes a single declared field.
type FieldNode struct {
	Name       string
	Descriptor string
	IsStatic   bool
	IsFinal    bool
	IsPrivate  bool
	IsVolatile bool
	Annotations []string
}

// CanonicalType returns the field's canonical reference type, or ("", false)
// for primitive fields.
func (f *FieldNode) CanonicalType() (string, bool) {
	return descriptor.Canonical(f.Descriptor)
}

// IsPotentiallyMutable reports whether the field could hold mutable shared
// state: any non-final field, or a final field whose canonical type falls
// in one of the caller-supplied mutable type families (collections,
// atomics, caches, thread-locals).
func (f *FieldNode) IsPotentiallyMutable(mutableTypeFamilies func(canonicalType string) bool) bool {
	if !f.IsFinal {
		return true
	}
	canon, ok := f.CanonicalType()
	if !ok {
		return false
	}
	return mutableTypeFamilies != nil && mutableTypeFamilies(canon)
}

// IsStaticMutable reports whether this is a static field that is also
// potentially mutable.
func (f *FieldNode) IsStaticMutable(mutableTypeFamilies func(string) bool) bool {
	return f.IsStatic && f.IsPotentiallyMutable(mutableTypeFamilies)
}

// IsConstant reports the common "static final primitive-or-String" shape
// (of any visibility) that detectors should never flag.
func (f *FieldNode) IsConstant() bool {
	if !f.IsStatic || !f.IsFinal {
		return false
	}
	canon, ok := f.CanonicalType()
	return !ok || canon == "java.lang.String"
}

// IsLogger reports whether the field's declared type looks like a logging
// handle, the one conventionally-safe mutable-looking static field.
func (f *FieldNode) IsLogger() bool {
	canon, ok := f.CanonicalType()
	if !ok {
		return false
	}
	return canon == "org.slf4j.Logger" ||
		canon == "java.util.logging.Logger" ||
		canon == "org.apache.logging.log4j.Logger"
}

// MethodNode describes a single declared method, including everything the
// operand-stack simulator discovered about its body.
type MethodNode struct {
	Name           string
	Descriptor     string
	IsStatic       bool
	IsPrivate      bool
	IsAbstract     bool
	Annotations    []string
	Invocations    []MethodInvocation
	FieldAccesses  []FieldAccess
	// ClassConstants records every Class constant loaded by this method's
	// body (e.g. via `Foo.class` / ldc of a CONSTANT_Class entry), in
	// bytecode order. Order matters to the DI binding parser's heuristic
	// bind/to pairing even though duplicates are kept.
	ClassConstants []string
}

// IsConstructor reports whether this is an instance initializer.
func (m *MethodNode) IsConstructor() bool { return m.Name == "<init>" }

// IsStaticInitializer reports whether this is a class initializer.
func (m *MethodNode) IsStaticInitializer() bool { return m.Name == "<clinit>" }

// IsProviderMethod reports whether the method carries any of the caller's
// configured provider-method annotations (e.g. @Provides, @Bean).
func (m *MethodNode) IsProviderMethod(providerAnnotations map[string]bool) bool {
	for _, a := range m.Annotations {
		if providerAnnotations[a] {
			return true
		}
	}
	return false
}

// IsConfigureMethod reports the declarative-module configure-routine shape:
// a no-argument void method literally named "configure".
func (m *MethodNode) IsConfigureMethod() bool {
	return m.Name == "configure" && m.Descriptor == "()V"
}

// ClassNode is the fully decoded, immutable-after-construction model of one
// class artifact.
type ClassNode struct {
	Name        string
	Super       string // empty for java.lang.Object itself
	Interfaces  []string
	Annotations []string
	Fields      []*FieldNode
	Methods     []*MethodNode
	IsInterface bool
	IsAbstract  bool
	IsEnum      bool
	IsProject   bool
	SourceFile  string
}
