package diag

import (
	"fmt"
	"strings"

	"github.com/npillmayer/gopeg"
	"golang.org/x/exp/slices"
)

// Stage identifies a stage of the compiler pipeline.
type Stage int

// Pipeline stages, in the order they are run.
const (
	StageCheck Stage = iota
	StageTransform
	StageGenerate
)

func (s Stage) String() string {
	switch s {
	case StageCheck:
		return "check"
	case StageTransform:
		return "transform"
	case StageGenerate:
		return "generate"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Severity orders diagnostics by importance.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Note is a secondary message attached to a diagnostic.
type Note struct {
	Message  string
	Location *gopeg.Location
}

// NoteAt creates a note for a location.
func NoteAt(loc gopeg.Location, msg string) Note {
	return Note{Message: msg, Location: &loc}
}

// Diagnostic is a single message produced by a pass.
type Diagnostic struct {
	Stage    Stage
	Severity Severity
	Message  string
	Location *gopeg.Location
	Notes    []Note
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Location != nil {
		b.WriteString(d.Location.String())
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s: %s", d.Severity, d.Message)
	for _, n := range d.Notes {
		b.WriteString("\n  note: ")
		if n.Location != nil {
			b.WriteString(n.Location.String())
			b.WriteString(": ")
		}
		b.WriteString(n.Message)
	}
	return b.String()
}

// Callback receives diagnostics as they are reported.
type Callback func(Diagnostic)

// Sink accumulates the diagnostics of one compile.
type Sink struct {
	diags     []Diagnostic
	errors    int
	OnError   Callback // called for every error, if set
	OnWarning Callback // called for every warning, if set
	OnInfo    Callback // called for every info, if set
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Error records an error.
func (s *Sink) Error(stage Stage, msg string, loc *gopeg.Location, notes ...Note) {
	s.Add(Diagnostic{Stage: stage, Severity: SevError, Message: msg, Location: loc, Notes: notes})
}

// Warning records a warning.
func (s *Sink) Warning(stage Stage, msg string, loc *gopeg.Location, notes ...Note) {
	s.Add(Diagnostic{Stage: stage, Severity: SevWarning, Message: msg, Location: loc, Notes: notes})
}

// Info records an informational message.
func (s *Sink) Info(stage Stage, msg string, loc *gopeg.Location, notes ...Note) {
	s.Add(Diagnostic{Stage: stage, Severity: SevInfo, Message: msg, Location: loc, Notes: notes})
}

// Add records a diagnostic and calls the callback for its severity.
func (s *Sink) Add(d Diagnostic) {
	s.diags = append(s.diags, d)
	var cb Callback
	switch d.Severity {
	case SevError:
		s.errors++
		cb = s.OnError
		tracer().P("stage", d.Stage.String()).Errorf("%s", d.Message)
	case SevWarning:
		cb = s.OnWarning
		tracer().P("stage", d.Stage.String()).Infof("warning: %s", d.Message)
	default:
		cb = s.OnInfo
		tracer().P("stage", d.Stage.String()).Debugf("info: %s", d.Message)
	}
	if cb != nil {
		cb(d)
	}
}

// ErrorCount returns the number of errors recorded so far.
func (s *Sink) ErrorCount() int {
	return s.errors
}

// HasErrors is true if at least one error has been recorded.
func (s *Sink) HasErrors() bool {
	return s.errors > 0
}

// Len returns the number of diagnostics recorded.
func (s *Sink) Len() int {
	return len(s.diags)
}

// Diagnostics returns all diagnostics in the order they were recorded.
func (s *Sink) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), s.diags...)
}

// Filter returns the diagnostics of a given severity.
func (s *Sink) Filter(sev Severity) []Diagnostic {
	var ds []Diagnostic
	for _, d := range s.diags {
		if d.Severity == sev {
			ds = append(ds, d)
		}
	}
	return ds
}

// Sorted returns all diagnostics ordered by stage, then location, then
// descending severity.
func (s *Sink) Sorted() []Diagnostic {
	ds := s.Diagnostics()
	slices.SortStableFunc(ds, func(a, b Diagnostic) int {
		if a.Stage != b.Stage {
			return int(a.Stage) - int(b.Stage)
		}
		ao, bo := offset(a.Location), offset(b.Location)
		if ao != bo {
			return ao - bo
		}
		return int(b.Severity) - int(a.Severity)
	})
	return ds
}

func offset(l *gopeg.Location) int {
	if l == nil {
		return -1
	}
	return l.Start.Offset
}

// Err returns a *CompileError if errors have been recorded, nil otherwise.
func (s *Sink) Err(stage Stage) error {
	if s.errors == 0 {
		return nil
	}
	return &CompileError{Stage: stage, Diagnostics: s.Filter(SevError)}
}

// --- Builder ---------------------------------------------------------------

// ReportBuilder accumulates details of a diagnostic before it is recorded.
type ReportBuilder struct {
	sink    *Sink
	diag    Diagnostic
	emitted bool
}

// Report starts a diagnostic with a given severity.
func (s *Sink) Report(sev Severity, stage Stage, msg string, loc *gopeg.Location) *ReportBuilder {
	return &ReportBuilder{
		sink: s,
		diag: Diagnostic{Stage: stage, Severity: sev, Message: msg, Location: loc},
	}
}

// WithNote appends a note.
func (b *ReportBuilder) WithNote(loc gopeg.Location, msg string) *ReportBuilder {
	b.diag.Notes = append(b.diag.Notes, NoteAt(loc, msg))
	return b
}

// Emit records the diagnostic exactly once.
func (b *ReportBuilder) Emit() {
	if b.emitted {
		return
	}
	b.emitted = true
	b.sink.Add(b.diag)
}

// --- Errors ----------------------------------------------------------------

// CompileError is returned if a compile was stopped because of errors.
type CompileError struct {
	Stage       Stage
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("compile failed in stage %s", e.Stage)
	}
	first := e.Diagnostics[0].String()
	if n := len(e.Diagnostics); n > 1 {
		return fmt.Sprintf("%s (and %d more errors)", first, n-1)
	}
	return first
}
