/*
Package compiler runs grammars through the pass pipeline.

A compile takes a grammar AST through three stages. The check stage
validates the grammar and annotates it, the transform stage rewrites it
without changing its meaning, and the generate stage compiles it to
bytecode and produces the requested output: an executable parser, Go
source (optionally with a source map) or the AST itself.

	out, err := compiler.Generate(`start = "a"+`, &compiler.Options{})
	if err != nil {
		...
	}
	result, err := out.Parser.Parse("aaa")

Every compile uses a fresh Session, holding the options and a diagnostics
sink. Passes report problems to the sink; the pipeline stops after a pass
which recorded an error. Pipelines may be extended with custom passes, see
type Passes.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package compiler

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.compiler'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.compiler")
}
