// Copyright (C) 1994-2024 Lua.org, PUC-Rio.
// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import "fmt"

// Verify checks that f's bytecode only references indexes that exist:
// every constant, nested-prototype, and upvalue index an instruction
// addresses must fall within the corresponding table, and every jump
// target must land on an instruction within f.Code. It is the single
// gate every [Prototype] passes through before it can be executed,
// whether it was just produced by [Parse] or deserialized from an
// untrusted binary chunk by [Prototype.UnmarshalBinary].
//
// Verify only checks the operand positions that unconditionally name an
// index (Bx for LOADK and CLOSURE, B for GETUPVAL/SETUPVAL, the J offset
// for JMP). It does not attempt to track which ABC operands are constant
// references flagged by [Instruction.K], since that requires replaying
// the same register/constant bookkeeping the parser already did; a
// corrupt K-flagged operand is instead caught at run time when the
// value is fetched.
func (f *Prototype) Verify() error {
	if f.LineInfo.Len() != len(f.Code) {
		return fmt.Errorf("line info has %d entries for %d instructions", f.LineInfo.Len(), len(f.Code))
	}

	for pc, instr := range f.Code {
		switch instr.OpCode() {
		case OpLoadK:
			if k := int(instr.ArgBx()); k < 0 || k >= len(f.Constants) {
				return fmt.Errorf("pc %d: %v: constant index %d out of range (%d constants)", pc, instr.OpCode(), k, len(f.Constants))
			}
		case OpClosure:
			if p := int(instr.ArgBx()); p < 0 || p >= len(f.Functions) {
				return fmt.Errorf("pc %d: %v: prototype index %d out of range (%d nested prototypes)", pc, instr.OpCode(), p, len(f.Functions))
			}
		case OpGetUpval, OpSetUpval:
			if u := int(instr.ArgB()); u >= len(f.Upvalues) {
				return fmt.Errorf("pc %d: %v: upvalue index %d out of range (%d upvalues)", pc, instr.OpCode(), u, len(f.Upvalues))
			}
		case OpJMP:
			target := pc + 1 + int(instr.J())
			if target < 0 || target >= len(f.Code) {
				return fmt.Errorf("pc %d: %v: jump target %d out of range (%d instructions)", pc, instr.OpCode(), target, len(f.Code))
			}
		}
	}

	for _, p := range f.Functions {
		if err := p.Verify(); err != nil {
			return err
		}
	}

	return nil
}
