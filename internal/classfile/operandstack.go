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

import "github.com/mannjg/stateguard/internal/descriptor"

// localSlot is one entry of the simulator's slot-indexed local table,
// pre-seeded with parameter entries from the method descriptor.
type localSlot struct {
	kind ReceiverKind // KindThis, KindParam, or KindLocal
	name string
	typ  string
	index int
}

// stackSim is the per-method operand-stack simulator state. It runs
// single-pass over the instruction stream with no control-flow joins, per
// the contract in the engine's component design for method bodies.
type stackSim struct {
	stack  []StackValue
	locals map[int]localSlot
	cp     *constantPool
	method *MethodNode

	// pendingNew holds the NEW_OBJECT tag of the most recent `new`
	// instruction; the same tag is also pushed onto the stack at once.
	pendingNew *StackValue
}

func (s *stackSim) push(v StackValue) { s.stack = append(s.stack, v) }

func (s *stackSim) pop() StackValue {
	if len(s.stack) == 0 {
		return StackValue{Kind: KindComputed}
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

func (s *stackSim) peek() *StackValue {
	if len(s.stack) == 0 {
		return nil
	}
	return &s.stack[len(s.stack)-1]
}

func (s *stackSim) clear() { s.stack = s.stack[:0] }

// simulateMethodBody decodes the Code attribute's instruction stream and
// populates m.Invocations, m.FieldAccesses, and m.ClassConstants.
func simulateMethodBody(m *MethodNode, cp *constantPool, codeAttr []byte) {
	br := &byteReader{buf: codeAttr}
	if _, err := br.u2(); err != nil { // max_stack
		return
	}
	maxLocals, err := br.u2()
	if err != nil {
		return
	}
	codeLength, err := br.u4()
	if err != nil {
		return
	}
	code, err := br.bytes(int(codeLength))
	if err != nil {
		return
	}
	_ = maxLocals
	// Exception table and remaining attributes (e.g. LocalVariableTable)
	// are intentionally not consulted: the simulator names locals only by
	// slot index, which is sufficient for every detector and binding
	// pattern this engine recognizes.

	sim := &stackSim{
		locals: seedLocals(m),
		cp:     cp,
		method: m,
	}

	cr := &byteReader{buf: code}
	for cr.remaining() > 0 {
		offset := cr.pos
		opcode, err := cr.u1()
		if err != nil {
			return
		}
		if !sim.step(cr, int(opcode), offset) {
			// Unknown/unsupported opcode with no known operand length: the
			// simulator is not flow-sensitive and cannot safely continue
			// scanning this method body. Everything decoded so far stands.
			return
		}
	}
}

// seedLocals builds the initial local-variable table: slot 0 is `this` for
// instance methods, followed by one slot per declared parameter (two slots
// for long/double parameters).
func seedLocals(m *MethodNode) map[int]localSlot {
	locals := make(map[int]localSlot)
	slot := 0
	if !m.IsStatic {
		locals[slot] = localSlot{kind: KindThis, name: "this", index: slot}
		slot++
	}
	params := descriptor.ParameterTypes(m.Descriptor)
	// ParameterTypes reports every primitive as "", so the two-slot
	// long/double parameters are found from their J/D sigils instead.
	var wide []bool
	for i := 1; i < len(m.Descriptor) && m.Descriptor[i] != ')'; i++ {
		isArray := false
		for i < len(m.Descriptor) && m.Descriptor[i] == '[' {
			isArray = true
			i++
		}
		if i < len(m.Descriptor) && m.Descriptor[i] == 'L' {
			for i < len(m.Descriptor) && m.Descriptor[i] != ';' {
				i++
			}
		}
		wide = append(wide, !isArray && i < len(m.Descriptor) && (m.Descriptor[i] == 'J' || m.Descriptor[i] == 'D'))
	}
	for i, p := range params {
		locals[slot] = localSlot{kind: KindParam, name: "", typ: p, index: i}
		if i < len(wide) && wide[i] {
			slot += 2
		} else {
			slot++
		}
	}
	return locals
}

// step executes one instruction. It returns false if the opcode (or its
// operand encoding) is unrecognized and the instruction stream cannot be
// safely advanced past it.
func (s *stackSim) step(cr *byteReader, opcode int, offset int) bool {
	switch opcode {
	// --- constants ---
	case opAconstNull:
		s.push(StackValue{Kind: KindLiteral, Literal: nil})
	case opIconstM1, opIconst0, opIconst1, opIconst2, opIconst3, opIconst4, opIconst5,
		opLconst0, opLconst1, opFconst0, opFconst1, opFconst2, opDconst0, opDconst1:
		s.push(StackValue{Kind: KindLiteral, Type: "int"})
	case opBipush:
		if _, err := cr.u1(); err != nil {
			return false
		}
		s.push(StackValue{Kind: KindLiteral, Type: "int"})
	case opSipush:
		if _, err := cr.u2(); err != nil {
			return false
		}
		s.push(StackValue{Kind: KindLiteral, Type: "int"})
	case opLdc:
		idx, err := cr.u1()
		if err != nil {
			return false
		}
		s.pushLdc(uint16(idx))
	case opLdcW, opLdc2W:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		s.pushLdc(idx)

	// --- loads ---
	case opIload, opLload, opFload, opDload, opAload:
		idx, err := cr.u1()
		if err != nil {
			return false
		}
		s.pushLocal(int(idx))
	case opIload0, opLload0, opFload0, opDload0, opAload0:
		s.pushLocal(0)
	case opIload1, opLload1, opFload1, opDload1, opAload1:
		s.pushLocal(1)
	case opIload2, opLload2, opFload2, opDload2, opAload2:
		s.pushLocal(2)
	case opIload3, opLload3, opFload3, opDload3, opAload3:
		s.pushLocal(3)
	case opIaload, opLaload, opFaload, opDaload, opAaload, opBaload, opCaload, opSaload:
		s.pop() // index
		s.pop() // arrayref
		s.push(StackValue{Kind: KindComputed})

	// --- stores ---
	case opIstore, opLstore, opFstore, opDstore, opAstore:
		if _, err := cr.u1(); err != nil {
			return false
		}
		s.pop()
	case opIstore0, opLstore0, opFstore0, opDstore0, opAstore0,
		opIstore1, opLstore1, opFstore1, opDstore1, opAstore1,
		opIstore2, opLstore2, opFstore2, opDstore2, opAstore2,
		opIstore3, opLstore3, opFstore3, opDstore3, opAstore3:
		s.pop()
	case opIastore, opLastore, opFastore, opDastore, opAastore, opBastore, opCastore, opSastore:
		s.pop() // value
		s.pop() // index
		s.pop() // arrayref

	// --- stack manipulation ---
	case opPop:
		s.pop()
	case opPop2:
		s.pop()
		s.pop()
	case opDup:
		if v := s.peek(); v != nil {
			s.push(*v)
		}
	case opDupX1:
		a := s.pop()
		b := s.pop()
		s.push(a)
		s.push(b)
		s.push(a)
	case opDupX2:
		a := s.pop()
		b := s.pop()
		c := s.pop()
		s.push(a)
		s.push(c)
		s.push(b)
		s.push(a)
	case opDup2:
		a := s.pop()
		b := s.pop()
		s.push(b)
		s.push(a)
		s.push(b)
		s.push(a)
	case opDup2X1:
		a := s.pop()
		b := s.pop()
		c := s.pop()
		s.push(b)
		s.push(a)
		s.push(c)
		s.push(b)
		s.push(a)
	case opDup2X2:
		a := s.pop()
		b := s.pop()
		c := s.pop()
		d := s.pop()
		s.push(b)
		s.push(a)
		s.push(d)
		s.push(c)
		s.push(b)
		s.push(a)
	case opSwap:
		a := s.pop()
		b := s.pop()
		s.push(a)
		s.push(b)

	// --- arithmetic / logic / conversions: leave a generic computed value ---
	case opIadd, opLadd, opFadd, opDadd, opIsub, opLsub, opFsub, opDsub,
		opImul, opLmul, opFmul, opDmul, opIdiv, opLdiv, opFdiv, opDdiv,
		opIrem, opLrem, opFrem, opDrem, opIand, opLand, opIor, opLor,
		opIxor, opLxor, opIshl, opLshl, opIshr, opLshr, opIushr, opLushr,
		opLcmp, opFcmpl, opFcmpg, opDcmpl, opDcmpg:
		s.pop()
		s.pop()
		s.push(StackValue{Kind: KindComputed})
	case opIneg, opLneg, opFneg, opDneg,
		opI2l, opI2f, opI2d, opL2i, opL2f, opL2d, opF2i, opF2l, opF2d,
		opD2i, opD2l, opD2f, opI2b, opI2c, opI2s:
		s.pop()
		s.push(StackValue{Kind: KindComputed})
	case opIinc:
		if _, err := cr.u1(); err != nil {
			return false
		}
		if _, err := cr.u1(); err != nil {
			return false
		}

	// --- control flow: not flow-sensitive; branch operands are popped and the stack is not reset at branch targets ---
	case opIfeq, opIfne, opIflt, opIfge, opIfgt, opIfle,
		opIfnull, opIfnonnull:
		s.pop()
		if _, err := cr.u2(); err != nil {
			return false
		}
	case opIfIcmpeq, opIfIcmpne, opIfIcmplt, opIfIcmpge, opIfIcmpgt, opIfIcmple,
		opIfAcmpeq, opIfAcmpne:
		s.pop()
		s.pop()
		if _, err := cr.u2(); err != nil {
			return false
		}
	case opGoto:
		if _, err := cr.u2(); err != nil {
			return false
		}
	case opGotoW:
		if _, err := cr.u4(); err != nil {
			return false
		}
	case opTableswitch:
		return s.skipTableswitch(cr, offset)
	case opLookupswitch:
		return s.skipLookupswitch(cr, offset)

	// --- returns / throw: operand stack is cleared (not flow-sensitive) ---
	case opIreturn, opLreturn, opFreturn, opDreturn, opAreturn, opReturn:
		s.clear()
	case opAthrow:
		s.clear()

	// --- object model ---
	case opGetstatic:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		owner, name, desc, ok := s.cp.memberRef(idx)
		if ok {
			s.method.FieldAccesses = append(s.method.FieldAccesses, FieldAccess{
				Target:      FieldRef{Owner: owner, Name: name, Descriptor: desc},
				BytecodeOff: offset,
			})
		}
		typ, _ := descriptor.Canonical(desc)
		s.push(StackValue{Kind: KindField, Name: name, Type: typ})
	case opPutstatic:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		owner, name, desc, ok := s.cp.memberRef(idx)
		if ok {
			s.method.FieldAccesses = append(s.method.FieldAccesses, FieldAccess{
				Target:      FieldRef{Owner: owner, Name: name, Descriptor: desc},
				IsWrite:     true,
				BytecodeOff: offset,
			})
		}
		s.pop()
	case opGetfield:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		owner, name, desc, ok := s.cp.memberRef(idx)
		s.pop() // objectref
		if ok {
			s.method.FieldAccesses = append(s.method.FieldAccesses, FieldAccess{
				Target:      FieldRef{Owner: owner, Name: name, Descriptor: desc},
				BytecodeOff: offset,
			})
		}
		typ, _ := descriptor.Canonical(desc)
		s.push(StackValue{Kind: KindField, Name: name, Type: typ})
	case opPutfield:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		owner, name, desc, ok := s.cp.memberRef(idx)
		s.pop() // value
		s.pop() // objectref
		if ok {
			s.method.FieldAccesses = append(s.method.FieldAccesses, FieldAccess{
				Target:      FieldRef{Owner: owner, Name: name, Descriptor: desc},
				IsWrite:     true,
				BytecodeOff: offset,
			})
		}

	case opInvokevirtual, opInvokespecial, opInvokeinterface:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		if opcode == opInvokeinterface {
			if _, err := cr.u1(); err != nil { // count
				return false
			}
			if _, err := cr.u1(); err != nil { // reserved, must be 0
				return false
			}
		}
		kind := InvokeVirtual
		if opcode == opInvokespecial {
			kind = InvokeSpecial
		} else if opcode == opInvokeinterface {
			kind = InvokeInterface
		}
		s.invoke(idx, kind, true, offset)
	case opInvokestatic:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		s.invoke(idx, InvokeStatic, false, offset)
	case opInvokedynamic:
		if _, err := cr.u2(); err != nil {
			return false
		}
		if _, err := cr.u2(); err != nil { // two reserved bytes
			return false
		}
		// A call-site produced by invokedynamic (e.g. a lambda) has no
		// resolvable static target; leave a generic computed value.
		s.push(StackValue{Kind: KindComputed})

	case opNew:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		typ, _ := s.cp.canonicalClassName(idx)
		// The NEW_OBJECT entry is pushed immediately; the usual following
		// `dup` copies it, and the constructor call pops one copy as its
		// receiver.
		s.pendingNew = &StackValue{Kind: KindNewObject, Type: typ}
		s.push(*s.pendingNew)
	case opAnewarray:
		if _, err := cr.u2(); err != nil {
			return false
		}
		s.pop()
		s.push(StackValue{Kind: KindComputed})
	case opNewarray:
		if _, err := cr.u1(); err != nil {
			return false
		}
		s.pop()
		s.push(StackValue{Kind: KindComputed})
	case opMultianewarray:
		if _, err := cr.u2(); err != nil {
			return false
		}
		dims, err := cr.u1()
		if err != nil {
			return false
		}
		for i := 0; i < int(dims); i++ {
			s.pop()
		}
		s.push(StackValue{Kind: KindComputed})
	case opArraylength:
		s.pop()
		s.push(StackValue{Kind: KindComputed})
	case opCheckcast:
		idx, err := cr.u2()
		if err != nil {
			return false
		}
		typ, _ := s.cp.canonicalClassName(idx)
		v := s.pop()
		v.Type = typ
		s.push(v)
	case opInstanceof:
		if _, err := cr.u2(); err != nil {
			return false
		}
		s.pop()
		s.push(StackValue{Kind: KindComputed, Type: "boolean"})
	case opMonitorenter, opMonitorexit:
		s.pop()
	case opNop:
		// no stack effect

	default:
		return false
	}
	return true
}

// pushLdc pushes a literal for an ldc/ldc_w/ldc2_w whose constant-pool
// entry is a Class constant (e.g. `Foo.class`), recording it in the
// method's ClassConstants list for the DI binding parser; any other
// constant kind is pushed as an opaque literal.
func (s *stackSim) pushLdc(idx uint16) {
	if typ, ok := s.cp.canonicalClassName(idx); ok {
		s.method.ClassConstants = append(s.method.ClassConstants, typ)
		s.push(StackValue{Kind: KindLiteral, Type: typ, Literal: typ})
		return
	}
	s.push(StackValue{Kind: KindLiteral})
}

func (s *stackSim) pushLocal(index int) {
	slot, ok := s.locals[index]
	if !ok {
		s.push(StackValue{Kind: KindLocal, Index: index})
		return
	}
	switch slot.kind {
	case KindThis:
		s.push(StackValue{Kind: KindThis, Type: slot.typ})
	case KindParam:
		s.push(StackValue{Kind: KindParam, Index: slot.index, Type: slot.typ, Name: slot.name})
	default:
		s.push(StackValue{Kind: KindLocal, Index: index, Type: slot.typ, Name: slot.name})
	}
}

// invoke pops the descriptor-implied argument count, then (unless static)
// the receiver, and records the call site.
func (s *stackSim) invoke(cpIdx uint16, kind InvokeKind, hasReceiver bool, offset int) {
	owner, name, desc, ok := s.cp.memberRef(cpIdx)

	params := descriptor.ParameterTypes(desc)
	args := make([]StackValue, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		args[i] = s.pop()
	}

	var receiver *StackValue
	if hasReceiver {
		v := s.pop()
		receiver = &v
	}

	if ok {
		s.method.Invocations = append(s.method.Invocations, MethodInvocation{
			Target:     MethodRef{Owner: owner, Name: name, Descriptor: desc},
			InvokeKind: kind,
			Receiver:   receiver,
			Arguments:  args,
			BytecodeOff: offset,
		})
	}

	if retType, hasRet := descriptor.ReturnType(desc); hasRet {
		s.push(StackValue{Kind: KindComputed, Type: retType})
	} else if isVoidReturn(desc) {
		// no push
	} else {
		s.push(StackValue{Kind: KindComputed})
	}
}

func isVoidReturn(desc string) bool {
	for i := len(desc) - 1; i >= 0; i-- {
		if desc[i] == ')' {
			return i+1 < len(desc) && desc[i+1] == 'V'
		}
	}
	return false
}

func (s *stackSim) skipTableswitch(cr *byteReader, offset int) bool {
	// Align to next multiple of 4 relative to the start of the code array.
	pad := (4 - (cr.pos % 4)) % 4
	if err := cr.skip(pad); err != nil {
		return false
	}
	if _, err := cr.u4(); err != nil { // default
		return false
	}
	low, err := cr.u4()
	if err != nil {
		return false
	}
	high, err := cr.u4()
	if err != nil {
		return false
	}
	n := int(int32(high)) - int(int32(low)) + 1
	if n < 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if _, err := cr.u4(); err != nil {
			return false
		}
	}
	s.pop()
	return true
}

func (s *stackSim) skipLookupswitch(cr *byteReader, offset int) bool {
	pad := (4 - (cr.pos % 4)) % 4
	if err := cr.skip(pad); err != nil {
		return false
	}
	if _, err := cr.u4(); err != nil { // default
		return false
	}
	npairs, err := cr.u4()
	if err != nil {
		return false
	}
	for i := 0; i < int(npairs); i++ {
		if _, err := cr.u4(); err != nil { // match
			return false
		}
		if _, err := cr.u4(); err != nil { // offset
			return false
		}
	}
	s.pop()
	return true
}
