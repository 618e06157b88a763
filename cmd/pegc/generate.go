package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/compiler"
	"github.com/npillmayer/gopeg/diag"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var generateFlags compileFlags

var generateCmd = &cobra.Command{
	Use:   "generate [flags] grammar.peg",
	Short: "Generate a Go parser from a grammar",
	Long: `Generate compiles a grammar to Go source. With format source-and-map
a source map is written next to the source, with extension .map.
Format ast writes the annotated grammar in its binary wire format.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateFlags.register(generateCmd.Flags())
}

func runGenerate(cmd *cobra.Command, args []string) error {
	path := args[0]
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	opts, err := config.options(cmd.Flags(), &generateFlags, compiler.OutputSource)
	if err != nil {
		return err
	}
	if opts.Output == compiler.OutputParser {
		return fmt.Errorf("output %s cannot be written to a file, use 'pegc parse'", opts.Output)
	}
	out := generateFlags.outFile
	if out == "" {
		out = defaultOutputFile(path, opts.Output)
	}
	opts.GrammarSource = path
	opts.OutputFile = filepath.Base(out)
	sources := []diag.SourceText{{Source: path, Text: string(text)}}
	diagnosticCallbacks(opts, sources)
	result, err := compiler.Generate(string(text), opts)
	if err != nil {
		report(err, sources)
		return errFailed
	}
	if err := writeOutput(out, result); err != nil {
		return err
	}
	pterm.Success.Println(fmt.Sprintf("%s written", out))
	return nil
}

// defaultOutputFile derives the output file from the grammar file.
func defaultOutputFile(grammarPath string, kind compiler.OutputKind) string {
	base := strings.TrimSuffix(grammarPath, filepath.Ext(grammarPath))
	if kind == compiler.OutputAST {
		return base + ".ast"
	}
	return base + ".go"
}

// writeOutput writes the result of a compile to path. A source map is
// written to path with extension .map.
func writeOutput(path string, result *compiler.Output) error {
	var data []byte
	switch {
	case result.Kind == compiler.OutputAST:
		b, err := ast.Marshal(result.Grammar)
		if err != nil {
			return err
		}
		data = b
	case result.Kind.IsSource():
		data = result.Source
	default:
		return fmt.Errorf("nothing to write for output %s", result.Kind)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	if result.SourceMap == nil {
		return nil
	}
	js, err := result.SourceMap.JSON()
	if err != nil {
		return err
	}
	mapFile := path + ".map"
	tracer().Infof("writing source map to %s", mapFile)
	return os.WriteFile(mapFile, js, 0o644)
}
