package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/gopeg/compiler"
	"github.com/npillmayer/gopeg/vm"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/pterm/pterm"
	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSettingsYAML(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.pegc")
	defer teardown()
	//
	path := writeFile(t, "pegc.yaml", `output: source
package: calc
allowed-start-rules: [expr, term]
cache: true
trace-level: Debug
debug:
  gopeg.recover-panics: true
`)
	s, err := loadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Output != "source" || s.Package != "calc" || !s.Cache || s.TraceLevel != "Debug" {
		t.Errorf("unexpected settings %+v", s)
	}
	if diff := cmp.Diff([]string{"expr", "term"}, s.AllowedStartRules); diff != "" {
		t.Errorf("unexpected start rules:\n%s", diff)
	}
	s.InitDefaults()
	if !s.GetBool("gopeg.recover-panics") || !s.IsSet("gopeg.recover-panics") {
		t.Errorf("expected debug flag to be set")
	}
	if s.GetString("tracing.adapter") != "nop" || s.GetString("package") != "calc" {
		t.Errorf("unexpected configuration values %v", s.values)
	}
	if s.IsSet("nothing") || s.GetInt("nothing") != 0 {
		t.Errorf("expected unset keys to be reported as unset")
	}
}

func TestSettingsTOML(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.pegc")
	defer teardown()
	//
	path := writeFile(t, "pegc.toml", `output = "ast"
reserved-words = ["if", "else"]
remove-unused-rules = true

[debug]
"gopeg.recover-panics" = false
`)
	s, err := loadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Output != "ast" || !s.RemoveUnusedRules {
		t.Errorf("unexpected settings %+v", s)
	}
	if diff := cmp.Diff([]string{"if", "else"}, s.ReservedWords); diff != "" {
		t.Errorf("unexpected reserved words:\n%s", diff)
	}
	s.InitDefaults()
	if !s.IsSet("gopeg.recover-panics") || s.GetBool("gopeg.recover-panics") {
		t.Errorf("expected debug flag to be set to false")
	}
}

func TestSettingsErrors(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.pegc")
	defer teardown()
	//
	if _, err := loadSettings(writeFile(t, "pegc.json", "{}")); err == nil {
		t.Errorf("expected unsupported format to be rejected")
	}
	if _, err := loadSettings(writeFile(t, "pegc.yaml", "output: [")); err == nil {
		t.Errorf("expected malformed YAML to be rejected")
	}
	if _, err := loadSettings(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("expected missing file to be reported")
	}
	s, err := loadSettings("")
	if err != nil || s.Output != "" {
		t.Errorf("expected empty settings without a file, have %+v (%v)", s, err)
	}
}

func TestOptionsMerge(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.pegc")
	defer teardown()
	//
	s := &settings{Output: "ast", Package: "calc", Cache: true, ReservedWords: []string{"x"}}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var f compileFlags
	f.register(fs)
	if err := fs.Parse([]string{"--format", "source-and-map", "--cache=false", "--start-rules", "a,b"}); err != nil {
		t.Fatal(err)
	}
	opts, err := s.options(fs, &f, compiler.OutputParser)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Output != compiler.OutputSourceAndMap || opts.Cache || opts.Package != "calc" {
		t.Errorf("unexpected options %+v", opts)
	}
	if diff := cmp.Diff([]string{"a", "b"}, opts.AllowedStartRules); diff != "" {
		t.Errorf("unexpected start rules:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x"}, opts.ReservedWords); diff != "" {
		t.Errorf("expected reserved words from settings:\n%s", diff)
	}
	//
	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	f = compileFlags{}
	f.register(fs)
	if err := fs.Parse([]string{"-f", "python"}); err != nil {
		t.Fatal(err)
	}
	var cerr *compiler.ConfigError
	if _, err := s.options(fs, &f, compiler.OutputParser); !errors.As(err, &cerr) {
		t.Errorf("expected unknown output kind to be rejected, have %v", err)
	}
	empty := pflag.NewFlagSet("empty", pflag.ContinueOnError)
	if opts, err := (&settings{}).options(empty, &compileFlags{}, compiler.OutputSource); err != nil || opts.Output != compiler.OutputSource {
		t.Errorf("expected default output kind without format, have %v (%v)", opts, err)
	}
}

func TestValueTree(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.pegc")
	defer teardown()
	//
	v := []any{"a", nil, []any{1}, map[string]any{"k": "v", "b": 2}}
	ll := valueTree(v, pterm.LeveledList{}, 0)
	want := pterm.LeveledList{
		{Level: 0, Text: "[4]"},
		{Level: 1, Text: `"a"`},
		{Level: 1, Text: "nil"},
		{Level: 1, Text: "[1]"},
		{Level: 2, Text: "1"},
		{Level: 1, Text: "{2}"},
		{Level: 2, Text: "b:"},
		{Level: 3, Text: "2"},
		{Level: 2, Text: "k:"},
		{Level: 3, Text: `"v"`},
	}
	if diff := cmp.Diff(want, ll); diff != "" {
		t.Errorf("unexpected leveled list (-want +got):\n%s", diff)
	}
}

func TestRuleTable(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.pegc")
	defer teardown()
	//
	out, err := compiler.Generate("start \"Start\" = word+\nword = [a-z]", &compiler.Options{
		Output: compiler.OutputAST,
	})
	if err != nil {
		t.Fatal(err)
	}
	var b bytes.Buffer
	writeRuleTable(&b, out.Grammar)
	table := b.String()
	for _, want := range []string{"Display name", "start", "Start", "word", "yes", "sometimes"} {
		if !strings.Contains(table, want) {
			t.Errorf("expected %q in rule table\n%s", want, table)
		}
	}
}

func TestReplSession(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.pegc")
	defer teardown()
	//
	var b bytes.Buffer
	s := newSession(&b)
	if _, err := s.eval("aa"); err == nil {
		t.Errorf("expected input without grammar to be rejected")
	}
	if _, err := s.eval(":load " + writeFile(t, "g.peg", `start = "a"+`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.eval("aa"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{"a", "a"}, s.lastResult); diff != "" {
		t.Errorf("unexpected result:\n%s", diff)
	}
	_, err := s.eval("ab")
	var serr *vm.SyntaxError
	if !errors.As(err, &serr) {
		t.Errorf("expected syntax error for bad input, have %v", err)
	}
	if _, err := s.eval(":grammar start = "); err == nil {
		t.Errorf("expected broken grammar to be rejected")
	}
	if _, err := s.eval("a"); err != nil {
		t.Errorf("expected previous grammar to survive a broken one, have %v", err)
	}
	if _, err := s.eval(":start nope"); err == nil {
		t.Errorf("expected unknown start rule to be rejected")
	}
	if _, err := s.eval(":bogus"); err == nil {
		t.Errorf("expected unknown command to be rejected")
	}
	if _, err := s.eval(":help"); err != nil || !strings.Contains(b.String(), ":load file") {
		t.Errorf("expected help text, have %q (%v)", b.String(), err)
	}
	if quit, err := s.eval(":quit"); !quit || err != nil {
		t.Errorf("expected :quit to end the session")
	}
}
