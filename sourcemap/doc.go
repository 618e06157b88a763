/*
Package sourcemap builds source maps (revision 3) for generated parsers.

A Builder collects mappings from positions in generated code to positions in
grammar sources. Generator is the standard Builder; it encodes mappings with
base64 VLQs and serializes to JSON. Maps may be written to a separate file or
be inlined into generated code as a data URL.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package sourcemap

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.codegen'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.codegen")
}
