package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/npillmayer/gopeg/compiler"
	"github.com/npillmayer/gopeg/diag"
	"github.com/npillmayer/gopeg/vm"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

var replCmd = &cobra.Command{
	Use:   "repl [grammar.peg]",
	Short: "Try a grammar interactively",
	Long: `Repl starts an interactive session. Lines starting with a colon are
commands, every other line is parsed with the current grammar.
Enter :help for a list of commands, quit with :quit or <ctrl>D.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepl,
}

func runRepl(cmd *cobra.Command, args []string) error {
	pterm.Info.Println("Welcome to the gopeg REPL")
	s := newSession(cmd.OutOrStdout())
	if len(args) > 0 {
		if err := s.load(args[0]); err != nil {
			s.fail(err)
		}
	}
	rl, err := readline.New("peg> ")
	if err != nil {
		return err
	}
	defer rl.Close()
	tracer().Infof("Quit with <ctrl>D")
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF
			break
		}
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		quit, err := s.eval(line)
		if err != nil {
			s.fail(err)
			continue
		}
		if quit {
			break
		}
	}
	fmt.Fprintln(s.out, "Good bye!")
	return nil
}

// session is the state of a REPL: the current grammar and the settings for
// parsing input with it.
type session struct {
	out        io.Writer
	cache      *compiler.Cache
	grammar    string
	source     string
	start      string
	trace      bool
	parser     *vm.Parser
	lastResult any
}

func newSession(out io.Writer) *session {
	return &session{
		out:   out,
		cache: compiler.NewCache(0),
	}
}

const replHelp = `:load file      load a grammar from a file
:grammar text   use text as grammar
:start rule     parse input starting at rule
:trace          toggle printing of rule trace events
:rules          list the rules of the grammar
:help           print this help
:quit           leave the REPL`

// eval executes a command or parses a line of input.
func (s *session) eval(line string) (bool, error) {
	if !strings.HasPrefix(line, ":") {
		return false, s.parse(line)
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case ":quit", ":q":
		return true, nil
	case ":help":
		fmt.Fprintln(s.out, replHelp)
	case ":load":
		return false, s.load(arg)
	case ":grammar":
		return false, s.compile(arg, "<repl>")
	case ":start":
		if s.parser != nil && arg != "" && !slices.Contains(s.parser.StartRules(), arg) {
			return false, fmt.Errorf("no rule %q in grammar", arg)
		}
		s.start = arg
	case ":trace":
		s.trace = !s.trace
		if err := s.recompile(); err != nil {
			return false, err
		}
		pterm.Info.Println(fmt.Sprintf("tracing is %v", onOff(s.trace)))
	case ":rules":
		if s.parser == nil {
			return false, fmt.Errorf("no grammar loaded")
		}
		out, err := s.generate(compiler.OutputAST)
		if err != nil {
			return false, err
		}
		writeRuleTable(s.out, out.Grammar)
	default:
		return false, fmt.Errorf("unknown command %s, try :help", cmd)
	}
	return false, nil
}

func (s *session) load(path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.compile(string(text), path)
}

// compile makes text the current grammar if it compiles.
func (s *session) compile(text, source string) error {
	old, oldSource := s.grammar, s.source
	s.grammar, s.source = text, source
	if err := s.recompile(); err != nil {
		s.grammar, s.source = old, oldSource
		return &sourceError{err: err, src: diag.SourceText{Source: source, Text: text}}
	}
	s.start = ""
	pterm.Info.Println(fmt.Sprintf("grammar with start rules %s", strings.Join(s.parser.StartRules(), ", ")))
	return nil
}

func (s *session) recompile() error {
	if s.grammar == "" {
		return nil
	}
	out, err := s.generate(compiler.OutputParser)
	if err != nil {
		return err
	}
	s.parser = out.Parser
	return nil
}

func (s *session) generate(kind compiler.OutputKind) (*compiler.Output, error) {
	return s.cache.Generate(s.grammar, &compiler.Options{
		Output:            kind,
		GrammarSource:     s.source,
		AllowedStartRules: []string{"*"},
		Trace:             s.trace,
		StubActions:       true,
	})
}

func (s *session) parse(input string) error {
	if s.parser == nil {
		return fmt.Errorf("no grammar loaded, use :load or :grammar")
	}
	opts := []vm.Option{vm.Source("<input>")}
	if s.start != "" {
		opts = append(opts, vm.StartRule(s.start))
	}
	var rec *vm.RecordingTracer
	if s.trace {
		rec = &vm.RecordingTracer{}
		opts = append(opts, vm.WithTracer(rec))
	}
	result, err := s.parser.Parse(input, opts...)
	if rec != nil {
		printEvents(rec.Events)
	}
	if err != nil {
		return &sourceError{err: err, src: diag.SourceText{Source: "<input>", Text: input}}
	}
	s.lastResult = result
	printValue(result)
	return nil
}

// sourceError is an error located in a grammar or in a line of input.
type sourceError struct {
	err error
	src diag.SourceText
}

func (e *sourceError) Error() string {
	return e.err.Error()
}

func (e *sourceError) Unwrap() error {
	return e.err
}

// fail prints an error of the session.
func (s *session) fail(err error) {
	var serr *sourceError
	if errors.As(err, &serr) {
		report(serr.err, []diag.SourceText{serr.src})
		return
	}
	report(err, []diag.SourceText{{Source: s.source, Text: s.grammar}})
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
