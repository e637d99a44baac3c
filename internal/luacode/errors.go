// Copyright (C) 1994-2024 Lua.org, PUC-Rio.
// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

// SyntaxError is the error kind produced by [Parse] (and by
// [Prototype.UnmarshalBinary] when a binary chunk fails [Prototype.Verify])
// for any failure that prevents source from reaching a well-formed
// [Prototype]: lexical errors, unexpected tokens, and the various
// "too many locals/upvalues/constants" limits. It is distinguished from a
// runtime error so that a host embedding this package can tell a malformed
// chunk apart from a chunk that failed while running.
type SyntaxError struct {
	msg string
}

func (e *SyntaxError) Error() string {
	return e.msg
}
