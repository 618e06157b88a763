/*
Command pegc compiles parsing expression grammars.

Usage:

	pegc generate [flags] grammar.peg     write Go source, a source map or the AST
	pegc check [flags] grammar.peg        report diagnostics and list the rules
	pegc parse [flags] grammar.peg [file] parse input with a grammar
	pegc repl [grammar.peg]               interactive grammar sandbox

Code blocks of a grammar are not executed by check, parse and repl. They
are replaced by stubs returning the labeled values of their sequence or
the matched text.

Settings may be loaded from a YAML or TOML file with --config. Flags given
on the command line override settings from the file:

	output: source
	package: calc
	allowed-start-rules: [expr, term]
	cache: true
	trace-level: Info
	debug:
	  gopeg.recover-panics: true

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package main

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.pegc'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.pegc")
}
