/*
Package passes contains the check and transform passes of the compiler.

Check passes validate a grammar and annotate it with inferred match
results; they never change the tree. Transform passes rewrite the tree in
place without changing the language it describes. All passes report
problems to a diagnostics sink; a returned error signals a fault of the pass
itself, not of the grammar.

Passes are listed in the order they are run by CheckPasses and
TransformPasses. Package compiler wraps them into its pipeline.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package passes

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.passes'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.passes")
}
