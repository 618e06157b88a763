/*
Package diag collects compile-time diagnostics.

A Sink is created for every compile and passed (as part of the compile session)
to every pass. Passes record errors, warnings and infos, each tagged with the
pipeline stage producing it, an optional source location and optional notes
pointing to related locations. The pipeline inspects the error count after every
pass and stops compiling once an error has been recorded.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>
*/
package diag

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'gopeg.diag'.
func tracer() tracing.Trace {
	return tracing.Select("gopeg.diag")
}
