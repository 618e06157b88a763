/*
Package grammar reads grammar text into an AST.

The syntax is the one of peggy grammars:

	{{ top-level code }}
	{ per-parse code }

	start "greeting" = greeting:word _ name:$[a-z]i+ { return name, nil }
	word = "hello"i / 'hi'
	_    = [ \t]*
	list = @item|1.., ","|
	item = (!"," .)+

Rules are written as `name "display name"? = expression ;?`. Expressions
are, by decreasing precedence: primaries (literals with an optional `i`
suffix, character classes, `.`, rule references, `(…)` groups, `&{…}` and
`!{…}` semantic predicates), suffixed expressions (`?`, `*`, `+` and
`|min..max, delimiter|` repetitions), prefixed expressions (`$`, `&`, `!`),
labeled expressions (`label:e`, `@e`, `@label:e`), sequences, actions
(a sequence followed by a code block) and choices separated by `/`.
Comments are line comments starting with `//` and C-style block comments.

Code blocks are Go. They are kept as text and compiled later, either into
functions of a generated source file or bound to functions at runtime.

Lexing is done with lexmachine. Errors are of type *Error.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package grammar

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.grammar'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.grammar")
}
