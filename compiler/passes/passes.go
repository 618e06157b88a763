package passes

import (
	"fmt"

	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/diag"
)

// Config carries the compile options passes depend on.
type Config struct {
	AllowedStartRules []string // empty means the first rule, "*" all rules
	ReservedWords     []string // nil means DefaultReservedWords
	RemoveUnusedRules bool
}

// Func is the signature of a pass.
type Func func(g *ast.Grammar, cfg *Config, sink *diag.Sink) error

// Named is a pass with its name.
type Named struct {
	Name string
	Run  Func
}

// CheckPasses returns the passes of the check stage, in order.
func CheckPasses() []Named {
	return []Named{
		{"reportUndefinedRules", ReportUndefinedRules},
		{"reportDuplicateRules", ReportDuplicateRules},
		{"reportDuplicateLabels", ReportDuplicateLabels},
		{"reportReservedWords", ReportReservedWords},
		{"reportInvalidRepeated", ReportInvalidRepeated},
		{"reportIncorrectPlucking", ReportIncorrectPlucking},
		{"reportInfiniteRecursion", ReportInfiniteRecursion},
		{"reportInfiniteRepetition", ReportInfiniteRepetition},
		{"inferenceMatchResult", InferenceMatchResult},
		{"reportUselessPredicates", ReportUselessPredicates},
		{"reportUnusedRules", ReportUnusedRules},
	}
}

// TransformPasses returns the passes of the transform stage, in order.
func TransformPasses() []Named {
	return []Named{
		{"removeProxyRules", RemoveProxyRules},
		{"removeUnusedRules", RemoveUnusedRules},
		{"inlineTrivialGroups", InlineTrivialGroups},
		{"normalizeNamed", NormalizeNamed},
		{"mergeCharacterClasses", MergeCharacterClasses},
	}
}

// DefaultReservedWords are the words which may not be used as labels:
// labels become Go variables in generated code, which also declares c.
var DefaultReservedWords = []string{
	"break", "case", "chan", "const", "continue", "default", "defer", "else",
	"fallthrough", "for", "func", "go", "goto", "if", "import", "interface",
	"map", "package", "range", "return", "select", "struct", "switch", "type",
	"var",
	"c", "nil", "true", "false", "_",
}

func (cfg *Config) reservedWords() []string {
	if cfg == nil || cfg.ReservedWords == nil {
		return DefaultReservedWords
	}
	return cfg.ReservedWords
}

// StartRules returns the rules a parse may start with.
func StartRules(g *ast.Grammar, cfg *Config) []*ast.Rule {
	if len(g.Rules) == 0 {
		return nil
	}
	if cfg == nil || len(cfg.AllowedStartRules) == 0 {
		return g.Rules[:1]
	}
	var rules []*ast.Rule
	for _, name := range cfg.AllowedStartRules {
		if name == "*" {
			return g.Rules
		}
		if r := g.Rule(name); r != nil {
			rules = append(rules, r)
		}
	}
	return rules
}

func locp(l gopeg.Location) *gopeg.Location {
	return &l
}

func quoted(name string) string {
	return fmt.Sprintf("%q", name)
}

// expressionKinds lists the kinds which may appear within rule bodies.
var expressionKinds = []ast.Kind{
	ast.KindNamed, ast.KindChoice, ast.KindAction, ast.KindSequence,
	ast.KindLabeled, ast.KindText, ast.KindSimpleAnd, ast.KindSimpleNot,
	ast.KindOptional, ast.KindZeroOrMore, ast.KindOneOrMore, ast.KindRepeated,
	ast.KindGroup, ast.KindSemanticAnd, ast.KindSemanticNot, ast.KindRuleRef,
	ast.KindLiteral, ast.KindClass, ast.KindAny,
}

// forAllRules calls f for every rule.
func forAllRules(g *ast.Grammar, f func(r *ast.Rule)) {
	for _, r := range g.Rules {
		f(r)
	}
}
