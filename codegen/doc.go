/*
Package codegen compiles grammar ASTs into bytecode and renders Go source.

GenerateBytecode compiles every rule of a checked and transformed grammar into
the instruction form of package bytecode, collecting literals, classes,
expectations and code blocks into shared constant pools. Labels are tracked
through a scope tree; the generator maps each label to the stack slot holding
its value, so code blocks receive the values of all labels in scope.

RenderGo turns a program into a stand-alone Go source file, with user code
blocks as Go functions and the program tables as Go literals. Source positions
of user code, and of rule entries, can be recorded with a sourcemap.Builder.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package codegen

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.codegen'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.codegen")
}
