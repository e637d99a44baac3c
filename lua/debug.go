// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"fmt"

	"github.com/lucore-lang/lucore/internal/luacode"
)

// sourceLocation formats the chunk name and source line for the instruction
// at pc in proto, in the "chunk:line" form used as the prefix of a runtime
// error message (spec: "<chunk_id>:<line>: <msg>").
func sourceLocation(proto *luacode.Prototype, pc int) string {
	line := 0
	if pc >= 0 && pc < proto.LineInfo.Len() {
		line = proto.LineInfo.At(pc)
	}
	return fmt.Sprintf("%v:%d", proto.Source, line)
}

// functionLocation formats the chunk name and the line a function was
// defined on, for errors that are about the function itself rather than
// about a specific instruction.
func functionLocation(proto *luacode.Prototype) string {
	return fmt.Sprintf("%v:%d", proto.Source, proto.LineDefined)
}

// Debug holds debugging information about a single call-stack level,
// returned by [State.Info]. It mirrors the handful of fields the auxiliary
// library's [Where] and [NewArgError] need out of a C Lua lua_Debug.
type Debug struct {
	// Source is the chunk the function was defined in, or "=[Go]" for a
	// Go function.
	Source luacode.Source
	// CurrentLine is the line currently executing in the function, or -1
	// if the function is a Go function (which carries no line-level
	// debug information).
	CurrentLine int
	// Name is the name the function was called by, if it could be
	// determined.
	Name string
	// NameWhat describes how Name was resolved: "global", "local",
	// "method", "field", "upvalue", or "" if it could not be determined.
	NameWhat string
}

// Info returns debugging information about the function running at the
// given level of the call stack. Level 0 is the function currently
// running (typically the Go function that called Info indirectly through
// [Where] or [NewArgError]); level 1 is its caller, and so on. Info
// returns nil if level does not address a frame on the call stack.
func (l *State) Info(level int) *Debug {
	if level < 0 || level >= len(l.callStack) {
		return nil
	}
	frame := &l.callStack[len(l.callStack)-1-level]
	fn, ok := l.stack[frame.functionIndex].(function)
	if !ok {
		return nil
	}
	source, lineDefined, isLua := describeFunction(fn)
	ar := &Debug{
		Source:      source,
		CurrentLine: -1,
	}
	if lf, ok := fn.(luaFunction); ok {
		pc := frame.pc - 1
		if pc >= 0 && pc < lf.proto.LineInfo.Len() {
			ar.CurrentLine = lf.proto.LineInfo.At(pc)
		} else if isLua {
			ar.CurrentLine = lineDefined
		}
	}
	return ar
}

func (l *State) localVariableName(frame *callFrame, i int) string {
	if start, end := frame.extraArgumentsRange(); start <= i && i < end {
		return "(vararg)"
	}
	registerStart := frame.registerStart()
	if i < registerStart {
		return ""
	}
	f, isLua := l.stack[frame.functionIndex].(luaFunction)
	if !isLua {
		return "(Go temporary)"
	}
	if i >= int(f.proto.MaxStackSize) {
		return ""
	}
	name := f.proto.LocalName(uint8(i), frame.pc)
	if name == "" {
		name = "(temporary)"
	}
	return name
}
