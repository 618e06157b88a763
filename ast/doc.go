/*
Package ast defines the abstract syntax tree for parsing expression grammars.

A grammar is a list of rules, optionally preceded by two code blocks: a top-level
initializer (emitted once into generated code) and a per-parse initializer (run at
the start of every parse). Every rule has a body expression, which is a tree of
expression nodes. Expression nodes form a closed set of variants, each tagged
with a Kind:

	named          "display name" = e
	choice         e1 / e2 / …
	action         e { code }
	sequence       e1 e2 …
	labeled        x:e   @e   @x:e
	text           $e
	simple_and     &e
	simple_not     !e
	optional       e?
	zero_or_more   e*
	one_or_more    e+
	repeated       e|min..max, delimiter|
	group          ( e )
	semantic_and   &{ code }
	semantic_not   !{ code }
	rule_ref       name
	literal        "abc"  "abc"i
	class          [a-z]  [^0-9]i
	any            .

Trees are built once by the grammar parser and are annotated and rewritten in
place by compiler passes. Rule references resolve through the grammar's rule
index, never through node identity, so rules may reference each other
recursively.

Passes walk the tree using a Visitor, built from a map of per-kind handlers
(see Build). The visitor does not recurse on its own; handlers call back into
the visitor for the children they want to visit.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package ast

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.ast'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.ast")
}
