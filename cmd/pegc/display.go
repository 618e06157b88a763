package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/compiler"
	"github.com/npillmayer/gopeg/diag"
	"github.com/npillmayer/gopeg/grammar"
	"github.com/npillmayer/gopeg/vm"
	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"golang.org/x/exp/slices"
)

// We use pterm for moderately fancy output.
func initDisplay() {
	pterm.EnableDebugMessages()
	pterm.Info.Prefix = pterm.Prefix{
		Text:  "  >>",
		Style: pterm.NewStyle(pterm.BgCyan, pterm.FgBlack),
	}
	pterm.Error.Prefix = pterm.Prefix{
		Text:  "  Error",
		Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack),
	}
}

// printDiagnostic prints a diagnostic with an excerpt of the grammar.
func printDiagnostic(d diag.Diagnostic, sources []diag.SourceText) {
	text := d.Format(sources...)
	switch d.Severity {
	case diag.SevError:
		pterm.Error.Println(text)
	case diag.SevWarning:
		pterm.Warning.Println(text)
	default:
		pterm.Info.Println(text)
	}
}

// diagnosticCallbacks sets the compiler callbacks to print diagnostics as
// they are reported. Errors are printed by report.
func diagnosticCallbacks(opts *compiler.Options, sources []diag.SourceText) {
	show := func(d diag.Diagnostic) {
		printDiagnostic(d, sources)
	}
	opts.OnWarning = show
	opts.OnInfo = show
}

// report prints an error. Errors knowing their source location are printed
// with an excerpt.
func report(err error, sources []diag.SourceText) {
	var cerr *diag.CompileError
	var gerr *grammar.Error
	var serr *vm.SyntaxError
	var oerr *compiler.ConfigError
	switch {
	case errors.As(err, &cerr):
		for _, d := range cerr.Diagnostics {
			printDiagnostic(d, sources)
		}
		pterm.Error.Println(fmt.Sprintf("compile stopped in stage %s", cerr.Stage))
	case errors.As(err, &gerr):
		pterm.Error.Println(gerr.Format(sources...))
	case errors.As(err, &serr):
		pterm.Error.Println(serr.Format(sources...))
	case errors.As(err, &oerr):
		pterm.Error.Println(oerr.Error())
	default:
		pterm.Error.Println(err.Error())
	}
}

// valueTree flattens a parse result into a leveled list for pterm's tree
// printer.
func valueTree(v any, ll pterm.LeveledList, level int) pterm.LeveledList {
	switch x := v.(type) {
	case nil:
		return append(ll, pterm.LeveledListItem{Level: level, Text: "nil"})
	case string:
		return append(ll, pterm.LeveledListItem{Level: level, Text: strconv.Quote(x)})
	case []any:
		ll = append(ll, pterm.LeveledListItem{Level: level, Text: fmt.Sprintf("[%d]", len(x))})
		for _, e := range x {
			ll = valueTree(e, ll, level+1)
		}
		return ll
	case map[string]any:
		ll = append(ll, pterm.LeveledListItem{Level: level, Text: fmt.Sprintf("{%d}", len(x))})
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			ll = append(ll, pterm.LeveledListItem{Level: level + 1, Text: k + ":"})
			ll = valueTree(x[k], ll, level+2)
		}
		return ll
	}
	return append(ll, pterm.LeveledListItem{Level: level, Text: fmt.Sprintf("%v", v)})
}

func printValue(v any) {
	ll := valueTree(v, pterm.LeveledList{}, 0)
	tracer().Debugf("|ll| = %d", len(ll))
	root := pterm.NewTreeFromLeveledList(ll)
	pterm.DefaultTree.WithRoot(root).Render()
}

// writeRuleTable lists the rules of a compiled grammar.
func writeRuleTable(w io.Writer, g *ast.Grammar) {
	refs := map[string]int{}
	ast.Walk(g, func(n ast.Node) bool {
		if r, ok := n.(*ast.RuleRef); ok {
			refs[r.Name]++
		}
		return true
	})
	prog, _ := g.Tables()
	start := map[int]bool{}
	if prog != nil {
		for _, i := range prog.StartRules {
			start[i] = true
		}
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rule", "Display name", "Match", "Start", "References", "Code units"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, r := range g.Rules {
		display := ""
		if named, ok := r.Expression.(*ast.Named); ok {
			display = named.Name
		}
		match := "-"
		if m, ok := r.Match(); ok {
			match = m.String()
		}
		isStart := ""
		if start[i] {
			isStart = "yes"
		}
		units := "-"
		if prog != nil && i < len(prog.Rules) {
			units = strconv.Itoa(len(prog.Rules[i].Code))
		}
		table.Append([]string{r.Name, display, match, isStart, strconv.Itoa(refs[r.Name]), units})
	}
	table.Render()
}
