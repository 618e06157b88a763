/*
Package scope implements scope trees for grammar labels.

Labels of a grammar are visible in the sequence they are bound in, and in all
expressions nested below that sequence. Constructs like groups, choices and
actions open a new scope, which inherits the bindings of its parent scope and
may shadow them. Compiler passes treat a ScopeTree as a stack while walking
the AST: they push a scope when entering such a construct and pop it on exit.

Labels are stored as tags. A tag carries the label's source location and a
slot, which the code generator uses to remember the stack position of the
labeled value.

For a thorough discussion of scope trees, refer to
"Language Implementation Patterns" by Terence Parr.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package scope

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.scope'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.scope")
}
