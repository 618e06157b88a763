package main

import (
	"errors"
	"os"

	"github.com/npillmayer/schuko/gconf"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// errFailed is returned by commands which already reported their errors.
var errFailed = errors.New("pegc: failed")

var (
	configFile string
	traceLevel string
	config     = &settings{}
)

var rootCmd = &cobra.Command{
	Use:   "pegc",
	Short: "pegc compiles parsing expression grammars",
	Long: `pegc compiles parsing expression grammars to Go parsers.
It checks grammars, generates Go source and lets users try
grammars on input, either from files or interactively.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&traceLevel, "trace", "Error", "trace level [Debug|Info|Error]")
	rootCmd.AddCommand(generateCmd, checkCmd, parseCmd, replCmd)
}

func main() {
	initDisplay()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			pterm.Error.Println(err.Error())
		}
		os.Exit(1)
	}
}

// setup initializes tracing and the global configuration before any
// command runs.
func setup(cmd *cobra.Command, args []string) error {
	tracing.RegisterTraceAdapter("go", gologadapter.GetAdapter(), false)
	tracing.SetTraceSelector(tracing.SelectorForAdapter(gologadapter.GetAdapter()))
	s, err := loadSettings(configFile)
	if err != nil {
		return err
	}
	config = s
	config.interactive = cmd == replCmd
	gconf.Initialize(config)
	level := traceLevel
	if !cmd.Flags().Changed("trace") && config.TraceLevel != "" {
		level = config.TraceLevel
	}
	tracer().SetTraceLevel(tracing.TraceLevelFromString(level))
	tracer().Debugf("trace level is %s", level)
	return nil
}
