package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/npillmayer/gopeg/compiler"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// settings are the defaults for compiles, read from a configuration file.
// They serve as the global configuration of package gconf as well.
type settings struct {
	Output            string          `yaml:"output" toml:"output"`
	Package           string          `yaml:"package" toml:"package"`
	AllowedStartRules []string        `yaml:"allowed-start-rules" toml:"allowed-start-rules"`
	Trace             bool            `yaml:"trace" toml:"trace"`
	Cache             bool            `yaml:"cache" toml:"cache"`
	ReservedWords     []string        `yaml:"reserved-words" toml:"reserved-words"`
	RemoveUnusedRules bool            `yaml:"remove-unused-rules" toml:"remove-unused-rules"`
	TraceLevel        string          `yaml:"trace-level" toml:"trace-level"`
	Debug             map[string]bool `yaml:"debug" toml:"debug"`

	values      map[string]string
	interactive bool
}

// loadSettings reads settings from a YAML or TOML file. An empty path
// yields empty settings.
func loadSettings(path string) (*settings, error) {
	s := &settings{}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, s)
	case ".toml":
		_, err = toml.Decode(string(data), s)
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", path, err)
	}
	tracer().Debugf("loaded settings from %s", path)
	return s, nil
}

// InitDefaults is part of interface schuko.Configuration.
func (s *settings) InitDefaults() {
	s.values = map[string]string{
		"tracing.adapter": "nop",
		"output":          s.Output,
		"package":         s.Package,
		"trace-level":     s.TraceLevel,
	}
	for key, on := range s.Debug {
		s.values[key] = strconv.FormatBool(on)
	}
}

// IsSet is part of interface schuko.Configuration.
func (s *settings) IsSet(key string) bool {
	_, ok := s.values[key]
	return ok
}

// GetString is part of interface schuko.Configuration.
func (s *settings) GetString(key string) string {
	return s.values[key]
}

// GetInt is part of interface schuko.Configuration.
func (s *settings) GetInt(key string) int {
	n, _ := strconv.Atoi(s.values[key])
	return n
}

// GetBool is part of interface schuko.Configuration.
func (s *settings) GetBool(key string) bool {
	b, _ := strconv.ParseBool(s.values[key])
	return b
}

// IsInteractive is part of interface schuko.Configuration.
func (s *settings) IsInteractive() bool {
	return s.interactive
}

// compileFlags are the command line flags shared by all commands which
// compile a grammar.
type compileFlags struct {
	output       string
	outFile      string
	pkg          string
	startRules   []string
	emitTrace    bool
	cache        bool
	reserved     []string
	removeUnused bool
}

func (f *compileFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.output, "format", "f", "", "output kind [source|source-and-map|source-with-inline-map|ast]")
	fs.StringVarP(&f.outFile, "out", "o", "", "output file, default derived from the grammar file")
	fs.StringVar(&f.pkg, "package", "", "package name of generated source")
	fs.StringSliceVar(&f.startRules, "start-rules", nil, "allowed start rules, '*' for all")
	fs.BoolVar(&f.emitTrace, "emit-trace", false, "generated parser emits trace events")
	fs.BoolVar(&f.cache, "cache", false, "generated parser memoizes rule results")
	fs.StringSliceVar(&f.reserved, "reserved", nil, "words not allowed as labels")
	fs.BoolVar(&f.removeUnused, "remove-unused", false, "remove rules not reachable from a start rule")
}

// options merges the settings with the flags changed on the command line.
func (s *settings) options(fs *pflag.FlagSet, f *compileFlags, kind compiler.OutputKind) (*compiler.Options, error) {
	opts := &compiler.Options{
		Output:            kind,
		Package:           s.Package,
		AllowedStartRules: s.AllowedStartRules,
		Trace:             s.Trace,
		Cache:             s.Cache,
		ReservedWords:     s.ReservedWords,
		RemoveUnusedRules: s.RemoveUnusedRules,
	}
	output := s.Output
	if fs.Changed("format") {
		output = f.output
	}
	if output != "" {
		k, err := compiler.ParseOutputKind(output)
		if err != nil {
			return nil, err
		}
		opts.Output = k
	}
	if fs.Changed("package") {
		opts.Package = f.pkg
	}
	if fs.Changed("start-rules") {
		opts.AllowedStartRules = f.startRules
	}
	if fs.Changed("emit-trace") {
		opts.Trace = f.emitTrace
	}
	if fs.Changed("cache") {
		opts.Cache = f.cache
	}
	if fs.Changed("reserved") {
		opts.ReservedWords = f.reserved
	}
	if fs.Changed("remove-unused") {
		opts.RemoveUnusedRules = f.removeUnused
	}
	return opts, nil
}
