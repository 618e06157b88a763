/*
Package bytecode defines the intermediate instruction form of compiled grammars.

Every rule is compiled into a flat []int of instructions, operating on a value
stack and an input cursor. Each expression pushes exactly one value: its match
result, or the failure marker. Conditional instructions carry the lengths of
their then- and else-branches; the branches follow the instruction inline.
Stack operands p are offsets from the top of the stack (0 = top).

Literals, character classes, expectation descriptors, code blocks and locations
are shared between rules through the constant tables of a Program.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package bytecode

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.codegen'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.codegen")
}
