package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/npillmayer/gopeg/compiler"
	"github.com/npillmayer/gopeg/diag"
	"github.com/npillmayer/gopeg/vm"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	parseFlags  compileFlags
	parseStart  string
	parseInput  string
	parseJSON   bool
	parseEvents bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [flags] grammar.peg [input-file]",
	Short: "Parse input with a grammar",
	Long: `Parse compiles a grammar to an executable parser and runs it on input
given with --input, read from an input file or from stdin. Code blocks
are replaced by stubs.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runParse,
}

func init() {
	parseFlags.register(parseCmd.Flags())
	parseCmd.Flags().StringVar(&parseStart, "start", "", "start rule")
	parseCmd.Flags().StringVar(&parseInput, "input", "", "input text")
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "print the result as JSON")
	parseCmd.Flags().BoolVar(&parseEvents, "events", false, "print the rule trace events")
}

func runParse(cmd *cobra.Command, args []string) error {
	path := args[0]
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	input, inputName, err := readInput(cmd, args[1:])
	if err != nil {
		return err
	}
	opts, err := config.options(cmd.Flags(), &parseFlags, compiler.OutputParser)
	if err != nil {
		return err
	}
	opts.Output = compiler.OutputParser
	opts.GrammarSource = path
	opts.StubActions = true
	if parseEvents {
		opts.Trace = true
	}
	if parseStart != "" && !cmd.Flags().Changed("start-rules") && len(opts.AllowedStartRules) == 0 {
		opts.AllowedStartRules = []string{parseStart}
	}
	sources := []diag.SourceText{{Source: path, Text: string(text)}}
	diagnosticCallbacks(opts, sources)
	out, err := compiler.Generate(string(text), opts)
	if err != nil {
		report(err, sources)
		return errFailed
	}
	popts := []vm.Option{vm.Source(inputName)}
	if parseStart != "" {
		popts = append(popts, vm.StartRule(parseStart))
	}
	var rec *vm.RecordingTracer
	if parseEvents {
		rec = &vm.RecordingTracer{}
		popts = append(popts, vm.WithTracer(rec))
	}
	result, err := out.Parser.Parse(input, popts...)
	if rec != nil {
		printEvents(rec.Events)
	}
	if err != nil {
		report(err, []diag.SourceText{{Source: inputName, Text: input}})
		return errFailed
	}
	if parseJSON {
		js, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(js))
		return nil
	}
	printValue(result)
	return nil
}

// readInput returns the input text and a name for it.
func readInput(cmd *cobra.Command, args []string) (string, string, error) {
	if cmd.Flags().Changed("input") {
		return parseInput, "<input>", nil
	}
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		return string(data), args[0], err
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	return strings.TrimSuffix(string(data), "\n"), "<stdin>", err
}

// printEvents prints rule trace events as a tree, nested by rule calls.
func printEvents(events []vm.Event) {
	if len(events) == 0 {
		pterm.Info.Println("no trace events")
		return
	}
	ll := pterm.LeveledList{}
	for _, ev := range events {
		ll = append(ll, pterm.LeveledListItem{Level: ev.Depth, Text: ev.String()})
	}
	root := pterm.NewTreeFromLeveledList(ll)
	pterm.DefaultTree.WithRoot(root).Render()
}
