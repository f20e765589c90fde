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
	"encoding/binary"
	"fmt"
)

// Constant pool tag values, standard compiled-class binary layout.
const (
	tagUTF8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// cpEntry is one raw constant-pool slot prior to resolution. Long and
// Double entries occupy two consecutive indices per the binary format;
// the second index is left as a zero-value entry.
type cpEntry struct {
	tag              byte
	utf8             string
	classNameIdx     uint16 // tagClass: index of the UTF8 name
	nameIdx, typeIdx uint16 // tagNameAndType
	classIdx, ntIdx  uint16 // tagFieldref/Methodref/InterfaceMethodref
}

// constantPool resolves raw entries into usable strings and refs on demand.
type constantPool struct {
	entries []cpEntry // 1-indexed; entries[0] is unused
}

func (cp *constantPool) utf8At(idx uint16) (string, bool) {
	if int(idx) >= len(cp.entries) {
		return "", false
	}
	e := cp.entries[idx]
	if e.tag != tagUTF8 {
		return "", false
	}
	return e.utf8, true
}

// className resolves a CONSTANT_Class entry to its internal (slash) name.
func (cp *constantPool) className(idx uint16) (string, bool) {
	if int(idx) >= len(cp.entries) {
		return "", false
	}
	e := cp.entries[idx]
	if e.tag != tagClass {
		return "", false
	}
	return cp.utf8At(e.classNameIdx)
}

// canonicalClassName resolves a CONSTANT_Class entry straight to its
// canonical dotted name.
func (cp *constantPool) canonicalClassName(idx uint16) (string, bool) {
	internal, ok := cp.className(idx)
	if !ok {
		return "", false
	}
	return dottedFromInternal(internal), true
}

// nameAndType resolves a CONSTANT_NameAndType entry to (name, descriptor).
func (cp *constantPool) nameAndType(idx uint16) (name, desc string, ok bool) {
	if int(idx) >= len(cp.entries) {
		return "", "", false
	}
	e := cp.entries[idx]
	if e.tag != tagNameAndType {
		return "", "", false
	}
	name, ok1 := cp.utf8At(e.nameIdx)
	desc, ok2 := cp.utf8At(e.typeIdx)
	return name, desc, ok1 && ok2
}

// memberRef resolves a Fieldref/Methodref/InterfaceMethodref entry to
// (owner canonical class name, member name, descriptor).
func (cp *constantPool) memberRef(idx uint16) (owner, name, desc string, ok bool) {
	if int(idx) >= len(cp.entries) {
		return "", "", "", false
	}
	e := cp.entries[idx]
	switch e.tag {
	case tagFieldref, tagMethodref, tagInterfaceMethodref:
	default:
		return "", "", "", false
	}
	owner, ok1 := cp.canonicalClassName(e.classIdx)
	name, desc, ok2 := cp.nameAndType(e.ntIdx)
	return owner, name, desc, ok1 && ok2
}

func dottedFromInternal(internal string) string {
	out := make([]byte, len(internal))
	for i := 0; i < len(internal); i++ {
		if internal[i] == '/' {
			out[i] = '.'
		} else {
			out[i] = internal[i]
		}
	}
	return string(out)
}

// readConstantPool parses the constant_pool_count and constant_pool[]
// sections from r, per the standard compiled-class binary layout.
func readConstantPool(r *byteReader) (*constantPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}

	cp := &constantPool{entries: make([]cpEntry, count)}

	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, fmt.Errorf("reading constant pool tag %d: %w", i, err)
		}
		e := cpEntry{tag: tag}

		switch tag {
		case tagUTF8:
			length, err := r.u2()
			if err != nil {
				return nil, err
			}
			raw, err := r.bytes(int(length))
			if err != nil {
				return nil, err
			}
			e.utf8 = string(raw)
		case tagInteger, tagFloat:
			if _, err := r.bytes(4); err != nil {
				return nil, err
			}
		case tagLong, tagDouble:
			if _, err := r.bytes(8); err != nil {
				return nil, err
			}
		case tagClass, tagMethodType, tagModule, tagPackage:
			idx, err := r.u2()
			if err != nil {
				return nil, err
			}
			e.classNameIdx = idx
		case tagString:
			if _, err := r.u2(); err != nil {
				return nil, err
			}
		case tagFieldref, tagMethodref, tagInterfaceMethodref:
			classIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			ntIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			e.classIdx, e.ntIdx = classIdx, ntIdx
		case tagNameAndType:
			nameIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			typeIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			e.nameIdx, e.typeIdx = nameIdx, typeIdx
		case tagMethodHandle:
			if _, err := r.u1(); err != nil {
				return nil, err
			}
			if _, err := r.u2(); err != nil {
				return nil, err
			}
		case tagDynamic, tagInvokeDynamic:
			if _, err := r.u2(); err != nil {
				return nil, err
			}
			if _, err := r.u2(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unknown constant pool tag %d at index %d", errUnreadable, tag, i)
		}

		cp.entries[i] = e

		// Long and Double entries occupy two consecutive constant pool
		// indices; the second is an unusable placeholder.
		if tag == tagLong || tag == tagDouble {
			i++
		}
	}

	return cp, nil
}

// byteReader is a small big-endian cursor over an in-memory class file.
// The standard compiled-class binary layout is big-endian throughout.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) u1() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, errUnreadable
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) u2() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, errUnreadable
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) u4() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errUnreadable
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errUnreadable
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) skip(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return errUnreadable
	}
	r.pos += n
	return nil
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.pos
}
