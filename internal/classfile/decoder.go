// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classfile

import (
	"fmt"
	"io"

	"github.com/mannjg/stateguard/internal/errs"
)

// errUnreadable is the local alias used throughout constant-pool and
// instruction decoding so those files don't each import internal/errs.
var errUnreadable = errs.ErrUnreadableArtifact

const classMagic = 0xCAFEBABE

// Access flag bits, standard compiled-class binary layout.
const (
	accPublic    = 0x0001
	accPrivate   = 0x0002
	accStatic    = 0x0008
	accFinal     = 0x0010
	accVolatile  = 0x0040
	accInterface = 0x0200
	accAbstract  = 0x0400
	accAnnotation = 0x2000
	accEnum      = 0x4000
)

// Decode reads one compiled class artifact from r and returns its decoded
// model. It never panics: malformed bytes are reported as an error wrapping
// errs.ErrUnreadableArtifact so the project scanner can skip the artifact
// and continue.
func Decode(r io.Reader) (*ClassNode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading artifact bytes: %v", errUnreadable, err)
	}
	return decodeBytes(data)
}

func decodeBytes(data []byte) (node *ClassNode, err error) {
	// The instruction decoder deliberately bails out with partial results on
	// any unrecognized opcode rather than guessing a byte length; guard the
	// rest of the decode against any latent slice-bounds mistake so a single
	// malformed artifact can never take down a whole project scan.
	defer func() {
		if r := recover(); r != nil {
			node = nil
			err = fmt.Errorf("%w: panic decoding class: %v", errUnreadable, r)
		}
	}()

	r := &byteReader{buf: data}

	magic, err := r.u4()
	if err != nil || magic != classMagic {
		return nil, fmt.Errorf("%w: bad magic number", errUnreadable)
	}
	if err := r.skip(4); err != nil { // minor_version, major_version
		return nil, fmt.Errorf("%w: %v", errUnreadable, err)
	}

	cp, err := readConstantPool(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnreadable, err)
	}

	accessFlags, err := r.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnreadable, err)
	}
	thisClassIdx, err := r.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnreadable, err)
	}
	superClassIdx, err := r.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnreadable, err)
	}

	name, ok := cp.canonicalClassName(thisClassIdx)
	if !ok {
		return nil, fmt.Errorf("%w: unresolved this_class", errUnreadable)
	}
	super := ""
	if superClassIdx != 0 {
		super, _ = cp.canonicalClassName(superClassIdx)
	}

	node = &ClassNode{
		Name:        name,
		Super:       super,
		IsInterface: accessFlags&accInterface != 0,
		IsAbstract:  accessFlags&accAbstract != 0,
		IsEnum:      accessFlags&accEnum != 0,
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnreadable, err)
	}
	for i := 0; i < int(ifaceCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUnreadable, err)
		}
		if iface, ok := cp.canonicalClassName(idx); ok {
			node.Interfaces = append(node.Interfaces, iface)
		}
	}

	if node.Fields, err = readFields(r, cp); err != nil {
		return nil, fmt.Errorf("%w: reading fields of %s: %v", errUnreadable, name, err)
	}
	if node.Methods, err = readMethods(r, cp); err != nil {
		return nil, fmt.Errorf("%w: reading methods of %s: %v", errUnreadable, name, err)
	}

	node.Annotations, node.SourceFile, err = readClassAttributes(r, cp)
	if err != nil {
		return nil, fmt.Errorf("%w: reading attributes of %s: %v", errUnreadable, name, err)
	}

	return node, nil
}

func readFields(r *byteReader, cp *constantPool) ([]*FieldNode, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	fields := make([]*FieldNode, 0, count)
	for i := 0; i < int(count); i++ {
		flags, err := r.u2()
		if err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, _ := cp.utf8At(nameIdx)
		desc, _ := cp.utf8At(descIdx)

		f := &FieldNode{
			Name:       name,
			Descriptor: desc,
			IsStatic:   flags&accStatic != 0,
			IsFinal:    flags&accFinal != 0,
			IsPrivate:  flags&accPrivate != 0,
			IsVolatile: flags&accVolatile != 0,
		}

		annotations, _, _, err := readMemberAttributes(r, cp)
		if err != nil {
			return nil, err
		}
		f.Annotations = annotations
		fields = append(fields, f)
	}
	return fields, nil
}

func readMethods(r *byteReader, cp *constantPool) ([]*MethodNode, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	methods := make([]*MethodNode, 0, count)
	for i := 0; i < int(count); i++ {
		flags, err := r.u2()
		if err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, _ := cp.utf8At(nameIdx)
		desc, _ := cp.utf8At(descIdx)

		m := &MethodNode{
			Name:       name,
			Descriptor: desc,
			IsStatic:   flags&accStatic != 0,
			IsPrivate:  flags&accPrivate != 0,
			IsAbstract: flags&accAbstract != 0,
		}

		annotations, codeAttr, _, err := readMemberAttributes(r, cp)
		if err != nil {
			return nil, err
		}
		m.Annotations = annotations

		if codeAttr != nil {
			simulateMethodBody(m, cp, codeAttr)
		}

		methods = append(methods, m)
	}
	return methods, nil
}

// readMemberAttributes reads the attribute table shared by field_info and
// method_info, returning any RuntimeVisibleAnnotations type names and the
// raw bytes of a Code attribute, if present.
func readMemberAttributes(r *byteReader, cp *constantPool) (annotations []string, code []byte, sourceFile string, err error) {
	count, err := r.u2()
	if err != nil {
		return nil, nil, "", err
	}
	for i := 0; i < int(count); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return nil, nil, "", err
		}
		length, err := r.u4()
		if err != nil {
			return nil, nil, "", err
		}
		raw, err := r.bytes(int(length))
		if err != nil {
			return nil, nil, "", err
		}

		attrName, _ := cp.utf8At(nameIdx)
		switch attrName {
		case "RuntimeVisibleAnnotations":
			annotations = append(annotations, parseAnnotations(raw, cp)...)
		case "Code":
			code = raw
		}
	}
	return annotations, code, sourceFile, nil
}

func readClassAttributes(r *byteReader, cp *constantPool) (annotations []string, sourceFile string, err error) {
	count, err := r.u2()
	if err != nil {
		return nil, "", err
	}
	for i := 0; i < int(count); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return nil, "", err
		}
		length, err := r.u4()
		if err != nil {
			return nil, "", err
		}
		raw, err := r.bytes(int(length))
		if err != nil {
			return nil, "", err
		}

		attrName, _ := cp.utf8At(nameIdx)
		switch attrName {
		case "RuntimeVisibleAnnotations":
			annotations = append(annotations, parseAnnotations(raw, cp)...)
		case "SourceFile":
			if len(raw) >= 2 {
				idx := uint16(raw[0])<<8 | uint16(raw[1])
				sourceFile, _ = cp.utf8At(idx)
			}
		}
	}
	return annotations, sourceFile, nil
}

// parseAnnotations decodes the body of a RuntimeVisibleAnnotations
// attribute into its constituent annotation type canonical names, skipping
// over element_value_pairs since no detector needs annotation arguments.
func parseAnnotations(raw []byte, cp *constantPool) []string {
	br := &byteReader{buf: raw}
	numAnnotations, err := br.u2()
	if err != nil {
		return nil
	}
	var names []string
	for i := 0; i < int(numAnnotations); i++ {
		name, ok := skipAnnotation(br, cp)
		if !ok {
			return names
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// skipAnnotation reads one `annotation` structure (type_index,
// num_element_value_pairs, then that many element_value_pairs) and returns
// its resolved type name.
func skipAnnotation(br *byteReader, cp *constantPool) (string, bool) {
	typeIdx, err := br.u2()
	if err != nil {
		return "", false
	}
	descriptor, _ := cp.utf8At(typeIdx)
	name := descriptorToAnnotationName(descriptor)

	numPairs, err := br.u2()
	if err != nil {
		return "", false
	}
	for i := 0; i < int(numPairs); i++ {
		if _, err := br.u2(); err != nil { // element_name_index
			return "", false
		}
		if !skipElementValue(br, cp) {
			return "", false
		}
	}
	return name, true
}

func skipElementValue(br *byteReader, cp *constantPool) bool {
	tag, err := br.u1()
	if err != nil {
		return false
	}
	switch tag {
	case 'e': // enum_const_value
		if _, err := br.u2(); err != nil {
			return false
		}
		if _, err := br.u2(); err != nil {
			return false
		}
	case 'c': // class_info_index
		if _, err := br.u2(); err != nil {
			return false
		}
	case '@': // nested annotation
		if _, ok := skipAnnotation(br, cp); !ok {
			return false
		}
	case '[': // array_value
		count, err := br.u2()
		if err != nil {
			return false
		}
		for i := 0; i < int(count); i++ {
			if !skipElementValue(br, cp) {
				return false
			}
		}
	default: // const_value_index (B,C,D,F,I,J,S,Z,s)
		if _, err := br.u2(); err != nil {
			return false
		}
	}
	return true
}

func descriptorToAnnotationName(desc string) string {
	if len(desc) < 2 || desc[0] != 'L' {
		return ""
	}
	internal := desc[1 : len(desc)-1]
	return dottedFromInternal(internal)
}
