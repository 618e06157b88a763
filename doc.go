/*
Package gopeg is a compiler for parsing expression grammars (PEGs).

GoPEG reads a grammar in a peggy-like notation, checks and transforms it through
an ordered pipeline of passes, and produces either a ready-to-use parser value or
Go source code for a stand-alone parser. Package structure is as follows:

■ ast: Package ast defines the grammar AST and a visitor builder used by all passes.

■ grammar: Package grammar parses grammar text into an AST.

■ compiler: Package compiler runs the pass pipeline (check → transform → generate).
Sub-package passes contains the check and transform passes.

■ bytecode, codegen: The intermediate instruction form and its generation and
rendering to Go source (with optional source maps, package sourcemap).

■ vm: Package vm is the runtime executing generated parsers.

■ diag, scope: Supporting packages for diagnostics and label scoping.

The base package contains position and location types which are used throughout
all the other packages.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package gopeg
