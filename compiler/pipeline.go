package compiler

import (
	"fmt"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/compiler/passes"
	"github.com/npillmayer/gopeg/diag"
)

// Session is the state of a single compile. It is created when a compile
// starts and dropped when it returns.
type Session struct {
	Options *Options
	Sink    *diag.Sink
	text    string // grammar text, if known
	output  *Output
}

func newSession(opts *Options) *Session {
	sink := diag.NewSink()
	sink.OnError = opts.OnError
	sink.OnWarning = opts.OnWarning
	sink.OnInfo = opts.OnInfo
	return &Session{
		Options: opts,
		Sink:    sink,
		output:  &Output{Kind: opts.Output},
	}
}

// Pass is a named step of the pipeline. A pass returning an error aborts the
// compile; problems with the grammar are reported to the session's sink.
type Pass struct {
	Name string
	Run  func(g *ast.Grammar, s *Session) error
}

// wrap adapts a pass of package passes.
func wrap(p passes.Named) Pass {
	run := p.Run
	return Pass{
		Name: p.Name,
		Run: func(g *ast.Grammar, s *Session) error {
			return run(g, s.Options.passConfig(), s.Sink)
		},
	}
}

// Passes holds the passes of the three stages. Stages always run in the
// order check, transform, generate.
type Passes struct {
	Check     []Pass
	Transform []Pass
	Generate  []Pass
}

// DefaultPasses returns a new copy of the standard pipeline.
func DefaultPasses() *Passes {
	ps := &Passes{}
	for _, p := range passes.CheckPasses() {
		ps.Check = append(ps.Check, wrap(p))
	}
	for _, p := range passes.TransformPasses() {
		ps.Transform = append(ps.Transform, wrap(p))
	}
	ps.Generate = []Pass{
		{Name: "generateBytecode", Run: generateBytecode},
		{Name: "generateOutput", Run: generateOutput},
	}
	return ps
}

func (ps *Passes) stage(stage diag.Stage) *[]Pass {
	switch stage {
	case diag.StageCheck:
		return &ps.Check
	case diag.StageTransform:
		return &ps.Transform
	case diag.StageGenerate:
		return &ps.Generate
	}
	panic(fmt.Sprintf("compiler: unknown stage %v", stage))
}

func (ps *Passes) find(stage diag.Stage, name string) (int, error) {
	for i, p := range *ps.stage(stage) {
		if p.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("compiler: no pass %q in stage %s", name, stage)
}

// Add appends a pass to a stage.
func (ps *Passes) Add(stage diag.Stage, p Pass) {
	list := ps.stage(stage)
	*list = append(*list, p)
}

// Replace substitutes the pass with the given name.
func (ps *Passes) Replace(stage diag.Stage, name string, p Pass) error {
	i, err := ps.find(stage, name)
	if err != nil {
		return err
	}
	(*ps.stage(stage))[i] = p
	return nil
}

// Remove deletes the pass with the given name.
func (ps *Passes) Remove(stage diag.Stage, name string) error {
	i, err := ps.find(stage, name)
	if err != nil {
		return err
	}
	list := ps.stage(stage)
	*list = append((*list)[:i], (*list)[i+1:]...)
	return nil
}

// InsertBefore inserts a pass in front of the pass with the given name.
func (ps *Passes) InsertBefore(stage diag.Stage, name string, p Pass) error {
	i, err := ps.find(stage, name)
	if err != nil {
		return err
	}
	list := ps.stage(stage)
	*list = append(*list, Pass{})
	copy((*list)[i+1:], (*list)[i:])
	(*list)[i] = p
	return nil
}

// Names lists the names of the passes of a stage, in order.
func (ps *Passes) Names(stage diag.Stage) []string {
	var names []string
	for _, p := range *ps.stage(stage) {
		names = append(names, p.Name)
	}
	return names
}
