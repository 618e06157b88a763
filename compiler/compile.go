package compiler

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/codegen"
	"github.com/npillmayer/gopeg/diag"
	"github.com/npillmayer/gopeg/grammar"
	"github.com/npillmayer/gopeg/sourcemap"
	"github.com/npillmayer/gopeg/vm"
	"github.com/npillmayer/schuko/gconf"
)

// Output is the result of a successful compile. Which fields are set
// depends on Kind: Parser for OutputParser, Source for the source outputs
// and SourceMap for OutputSourceAndMap. Grammar is always set.
type Output struct {
	Kind        OutputKind
	Parser      *vm.Parser
	Source      []byte
	SourceMap   *sourcemap.Map
	Grammar     *ast.Grammar
	Diagnostics []diag.Diagnostic // warnings and infos, sorted
}

// Compile runs a grammar through a pipeline. If ps is nil, the default
// pipeline is used.
//
// Invalid options are reported as *ConfigError before any pass runs. If a
// stage records errors, the compile stops at the end of the stage with a
// *diag.CompileError; passes of the generate stage never see an invalid
// grammar.
func Compile(g *ast.Grammar, ps *Passes, opts *Options) (*Output, error) {
	return compile(g, ps, opts, "")
}

// Generate parses grammar text and compiles it with the default pipeline.
// Syntax errors in the grammar are returned as *grammar.Error.
func Generate(text string, opts *Options) (*Output, error) {
	if opts == nil {
		opts = &Options{}
	}
	g, err := grammar.Parse(text, opts.GrammarSource)
	if err != nil {
		return nil, err
	}
	return compile(g, nil, opts, text)
}

func compile(g *ast.Grammar, ps *Passes, opts *Options, text string) (out *Output, err error) {
	if opts == nil {
		opts = &Options{}
	}
	if ps == nil {
		ps = DefaultPasses()
	}
	if err = opts.validate(g); err != nil {
		return nil, err
	}
	s := newSession(opts)
	s.text = text
	defer func() {
		if r := recover(); r != nil {
			if uk, ok := r.(*ast.UnknownKindError); ok {
				out, err = nil, fmt.Errorf("compiler: %w", uk)
				return
			}
			if gconf.GetBool("gopeg.recover-panics") {
				tracer().Errorf("compiler panic: %v", r)
				out, err = nil, fmt.Errorf("compiler: internal error: %v", r)
				return
			}
			panic(r)
		}
	}()
	for _, stage := range []diag.Stage{diag.StageCheck, diag.StageTransform, diag.StageGenerate} {
		for _, p := range *ps.stage(stage) {
			tracer().P("stage", stage.String()).Debugf("running pass %s", p.Name)
			if err = p.Run(g, s); err != nil {
				return nil, fmt.Errorf("compiler: pass %s: %w", p.Name, err)
			}
			if stage == diag.StageGenerate && s.Sink.HasErrors() {
				return nil, s.Sink.Err(stage)
			}
		}
		if s.Sink.HasErrors() {
			tracer().Infof("compile stopped after stage %s with %d errors", stage, s.Sink.ErrorCount())
			return nil, s.Sink.Err(stage)
		}
	}
	s.output.Grammar = g
	s.output.Diagnostics = s.Sink.Sorted()
	return s.output, nil
}

// generateBytecode compiles the grammar into g.Program.
func generateBytecode(g *ast.Grammar, s *Session) error {
	opts := s.Options
	_, err := codegen.GenerateBytecode(g, codegen.Options{
		StartRules: opts.AllowedStartRules,
		Trace:      opts.Trace,
		Cache:      opts.Cache,
		SourceMap:  opts.Output.hasMap(),
	})
	if err != nil {
		s.Sink.Error(diag.StageGenerate, err.Error(), nil)
	}
	return nil
}

// generateOutput produces the output requested by the options. It is the
// last pass of the generate stage.
func generateOutput(g *ast.Grammar, s *Session) error {
	prog, err := g.Tables()
	if err != nil {
		return err
	}
	opts := s.Options
	switch opts.Output {
	case OutputParser:
		p, err := vm.Bind(prog, opts.Actions, opts.StubActions)
		var berr *vm.BindError
		if errors.As(err, &berr) {
			for _, f := range berr.Missing {
				loc := f.Location
				s.Sink.Error(diag.StageGenerate,
					fmt.Sprintf("No implementation for %s code block", f.Kind), &loc)
			}
			return nil
		} else if err != nil {
			return err
		}
		s.output.Parser = p
	case OutputAST:
	default:
		ro := codegen.RenderOptions{
			Package:       opts.Package,
			File:          outputFile(opts),
			GrammarSource: sourceName(opts.GrammarSource),
			GrammarText:   s.text,
		}
		var smap *sourcemap.Generator
		if opts.Output.hasMap() {
			smap = sourcemap.New(outputFile(opts))
			ro.SourceMap = smap
		}
		src, err := codegen.RenderGo(prog, ro)
		if err != nil {
			s.Sink.Error(diag.StageGenerate, err.Error(), nil)
			return nil
		}
		switch opts.Output {
		case OutputSourceAndMap:
			s.output.SourceMap = smap.Map()
		case OutputSourceWithInlineMap:
			comment, err := smap.Map().InlineComment()
			if err != nil {
				return err
			}
			var b bytes.Buffer
			b.Write(src)
			b.WriteString(comment)
			b.WriteString("\n")
			src = b.Bytes()
		}
		s.output.Source = src
	}
	return nil
}

func outputFile(opts *Options) string {
	if opts.OutputFile == "" {
		return "parser.go"
	}
	return opts.OutputFile
}
