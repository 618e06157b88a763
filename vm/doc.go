/*
Package vm executes compiled grammars.

A Parser interprets the bytecode of a Program (see package bytecode) over an input
string. Matching is recursive descent with backtracking and ordered choice. The
parser keeps track of the furthest position any match failed at, together with
the set of expectations at that position, and reports them as a *SyntaxError if
the input does not match.

User code blocks (actions, semantic predicates, repetition boundaries and the
per-parse initializer) are bound as Go functions, either by the code generator
(for generated source) or from an Actions registry keyed by code text.

Parsing is single-threaded and fully re-entrant: a Parser holds no state
between calls to Parse, and may be used concurrently by multiple goroutines.

Memoization (packrat parsing) and rule tracing are opt-in, see options Memoize
and WithTracer.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package vm

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.vm'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.vm")
}
