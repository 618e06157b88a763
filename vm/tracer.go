package vm

import (
	"fmt"
	"strings"

	"github.com/npillmayer/gopeg"
)

// EventType is the type of a trace event.
type EventType string

// Trace events, emitted for every rule call in call order.
const (
	RuleEnter EventType = "rule.enter"
	RuleFail  EventType = "rule.fail"
	RuleMatch EventType = "rule.match"
)

// Event is a trace event.
type Event struct {
	Type     EventType
	Rule     string
	Result   any // for rule.match only
	Location gopeg.Location
	Depth    int // nesting level of the rule call, 0 for the start rule
}

func (ev Event) String() string {
	s := fmt.Sprintf("%d:%d-%d:%d %-10s %s%s", ev.Location.Start.Line, ev.Location.Start.Column,
		ev.Location.End.Line, ev.Location.End.Column, ev.Type, strings.Repeat("  ", ev.Depth), ev.Rule)
	if ev.Type == RuleMatch {
		s += fmt.Sprintf(" → %v", ev.Result)
	}
	return s
}

// Tracer receives trace events. Tracing happens only if the program has
// been compiled with tracing enabled.
type Tracer interface {
	Trace(Event)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(Event)

// Trace calls f.
func (f TracerFunc) Trace(ev Event) {
	f(ev)
}

// DefaultTracer logs events with level Debug to the 'gopeg.vm' tracer,
// indenting them by rule nesting.
type DefaultTracer struct{}

// Trace logs an event.
func (DefaultTracer) Trace(ev Event) {
	tracer().Debugf("%s", ev.String())
}

// RecordingTracer collects all events.
type RecordingTracer struct {
	Events []Event
}

// Trace appends an event.
func (r *RecordingTracer) Trace(ev Event) {
	r.Events = append(r.Events, ev)
}

// Types returns the sequence of event types and rule names, e.g.
// "rule.enter start".
func (r *RecordingTracer) Types() []string {
	ts := make([]string, len(r.Events))
	for i, ev := range r.Events {
		ts[i] = string(ev.Type) + " " + ev.Rule
	}
	return ts
}
