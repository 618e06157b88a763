package main

import (
	"fmt"
	"os"

	"github.com/npillmayer/gopeg/bytecode"
	"github.com/npillmayer/gopeg/compiler"
	"github.com/npillmayer/gopeg/diag"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	checkFlags    compileFlags
	checkBytecode bool
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] grammar.peg",
	Short: "Check a grammar and list its rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkFlags.register(checkCmd.Flags())
	checkCmd.Flags().BoolVar(&checkBytecode, "bytecode", false, "print the bytecode of all rules")
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	opts, err := config.options(cmd.Flags(), &checkFlags, compiler.OutputAST)
	if err != nil {
		return err
	}
	opts.Output = compiler.OutputAST
	opts.GrammarSource = path
	sources := []diag.SourceText{{Source: path, Text: string(text)}}
	diagnosticCallbacks(opts, sources)
	result, err := compiler.Generate(string(text), opts)
	if err != nil {
		report(err, sources)
		return errFailed
	}
	out := cmd.OutOrStdout()
	writeRuleTable(out, result.Grammar)
	if checkBytecode {
		prog, err := result.Grammar.Tables()
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		if err := bytecode.Disassemble(out, prog); err != nil {
			return err
		}
	}
	pterm.Success.Println(fmt.Sprintf("%s: %d rules, %d warnings", path,
		len(result.Grammar.Rules), countSeverity(result.Diagnostics, diag.SevWarning)))
	return nil
}

func countSeverity(ds []diag.Diagnostic, sev diag.Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == sev {
			n++
		}
	}
	return n
}
