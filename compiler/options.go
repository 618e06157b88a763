package compiler

import (
	"fmt"
	"strings"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/compiler/passes"
	"github.com/npillmayer/gopeg/diag"
	"github.com/npillmayer/gopeg/vm"
)

// OutputKind selects what a compile produces.
type OutputKind int

const (
	OutputParser              OutputKind = iota // executable *vm.Parser
	OutputAST                                   // the annotated grammar
	OutputSource                                // Go source
	OutputSourceAndMap                          // Go source and a separate source map
	OutputSourceWithInlineMap                   // Go source with an inline source map comment
)

var outputNames = []string{"parser", "ast", "source", "source-and-map", "source-with-inline-map"}

func (k OutputKind) String() string {
	if k < 0 || int(k) >= len(outputNames) {
		return fmt.Sprintf("output(%d)", int(k))
	}
	return outputNames[k]
}

// ParseOutputKind converts a name as returned by String to an OutputKind.
func ParseOutputKind(name string) (OutputKind, error) {
	for i, n := range outputNames {
		if strings.EqualFold(n, name) {
			return OutputKind(i), nil
		}
	}
	return 0, &ConfigError{Option: "output", Message: fmt.Sprintf("unknown output %q", name)}
}

// IsSource is true for the kinds producing Go source.
func (k OutputKind) IsSource() bool {
	return k >= OutputSource && k <= OutputSourceWithInlineMap
}

func (k OutputKind) hasMap() bool {
	return k == OutputSourceAndMap || k == OutputSourceWithInlineMap
}

// Options configures a compile. The zero value compiles an executable
// parser starting at the first rule.
type Options struct {
	Output            OutputKind
	GrammarSource     any      // attached to all locations; required for source maps
	AllowedStartRules []string // empty means the first rule, "*" all rules
	Trace             bool     // generated parsers emit trace events
	Cache             bool     // generated parsers memoize rule results
	OnError           diag.Callback
	OnWarning         diag.Callback
	OnInfo            diag.Callback
	ReservedWords     []string // words not allowed as labels; nil for the default list
	RemoveUnusedRules bool
	Package           string     // package of generated source, default "parser"
	OutputFile        string     // name of the generated file, default "parser.go"
	Actions           vm.Actions // implementations of code blocks for OutputParser
	StubActions       bool       // replace code blocks missing from Actions by stubs
	Extra             map[string]any
}

// ConfigError is returned for invalid option combinations. It is raised
// before any pass runs.
type ConfigError struct {
	Option  string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid option %s: %s", e.Option, e.Message)
}

// validate checks the options against a grammar.
func (opts *Options) validate(g *ast.Grammar) error {
	if opts.Output < OutputParser || opts.Output > OutputSourceWithInlineMap {
		return &ConfigError{Option: "output", Message: fmt.Sprintf("unknown output %s", opts.Output)}
	}
	if opts.Output.hasMap() && sourceName(opts.GrammarSource) == "" {
		return &ConfigError{
			Option:  "grammarSource",
			Message: fmt.Sprintf("must be set for output %s", opts.Output),
		}
	}
	for _, name := range opts.AllowedStartRules {
		if name == "*" {
			continue
		}
		if _, ok := g.RuleIndex(name); !ok {
			return &ConfigError{
				Option:  "allowedStartRules",
				Message: fmt.Sprintf("unknown start rule %q", name),
			}
		}
	}
	return nil
}

// passConfig is the view of the options passes work with.
func (opts *Options) passConfig() *passes.Config {
	return &passes.Config{
		AllowedStartRules: opts.AllowedStartRules,
		ReservedWords:     opts.ReservedWords,
		RemoveUnusedRules: opts.RemoveUnusedRules,
	}
}

func sourceName(src any) string {
	if src == nil {
		return ""
	}
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", src)
}
