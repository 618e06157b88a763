package sourcemap

import (
	"encoding/base64"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/exp/slices"
)

// Mapping maps a position in generated code to a position in a source.
// Lines and columns are zero-based.
type Mapping struct {
	GenLine   int
	GenColumn int
	Source    string
	Line      int
	Column    int
	Name      string // optional symbol name
}

// Builder receives mappings while code is generated.
type Builder interface {
	// AddSource registers a source with its content. Content may be empty.
	AddSource(name, content string)
	// AddMapping adds a single mapping.
	AddMapping(m Mapping)
}

// Map is a serialized source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// JSON serializes a map.
func (m *Map) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// InlineComment returns a comment line which embeds the map as a data URL.
func (m *Map) InlineComment() (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", err
	}
	return "//# sourceMappingURL=data:application/json;charset=utf-8;base64," +
		base64.StdEncoding.EncodeToString(data), nil
}

// Parse reads a serialized map.
func Parse(data []byte) (*Map, error) {
	m := &Map{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("sourcemap: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("sourcemap: unsupported version %d", m.Version)
	}
	return m, nil
}

// Decode returns the mappings of a map.
func (m *Map) Decode() ([]Mapping, error) {
	var mappings []Mapping
	var src, line, col, name int
	for genLine, group := range strings.Split(m.Mappings, ";") {
		genCol := 0
		if group == "" {
			continue
		}
		for _, seg := range strings.Split(group, ",") {
			fields, err := decodeVLQs(seg)
			if err != nil {
				return nil, err
			}
			if len(fields) != 1 && len(fields) != 4 && len(fields) != 5 {
				return nil, fmt.Errorf("sourcemap: segment %q has %d fields", seg, len(fields))
			}
			genCol += fields[0]
			if len(fields) == 1 {
				continue
			}
			src += fields[1]
			line += fields[2]
			col += fields[3]
			if src < 0 || src >= len(m.Sources) {
				return nil, fmt.Errorf("sourcemap: source index %d out of range", src)
			}
			mp := Mapping{GenLine: genLine, GenColumn: genCol, Source: m.Sources[src], Line: line, Column: col}
			if len(fields) == 5 {
				name += fields[4]
				if name < 0 || name >= len(m.Names) {
					return nil, fmt.Errorf("sourcemap: name index %d out of range", name)
				}
				mp.Name = m.Names[name]
			}
			mappings = append(mappings, mp)
		}
	}
	return mappings, nil
}

// --- Generator -------------------------------------------------------------

// Generator is a Builder producing revision 3 source maps.
type Generator struct {
	file     string
	sources  []string
	contents []string
	srcIndex map[string]int
	names    []string
	nameIdx  map[string]int
	mappings []Mapping
}

var _ Builder = (*Generator)(nil)

// New creates a generator for the generated file named file.
func New(file string) *Generator {
	return &Generator{
		file:     file,
		srcIndex: make(map[string]int),
		nameIdx:  make(map[string]int),
	}
}

// AddSource registers a source. Registering a source twice updates its content.
func (g *Generator) AddSource(name, content string) {
	if i, ok := g.srcIndex[name]; ok {
		g.contents[i] = content
		return
	}
	g.srcIndex[name] = len(g.sources)
	g.sources = append(g.sources, name)
	g.contents = append(g.contents, content)
}

// AddMapping adds a mapping. Unknown sources are registered without content.
func (g *Generator) AddMapping(m Mapping) {
	if _, ok := g.srcIndex[m.Source]; !ok {
		g.AddSource(m.Source, "")
	}
	if m.Name != "" {
		if _, ok := g.nameIdx[m.Name]; !ok {
			g.nameIdx[m.Name] = len(g.names)
			g.names = append(g.names, m.Name)
		}
	}
	g.mappings = append(g.mappings, m)
}

// Len returns the number of mappings added.
func (g *Generator) Len() int {
	return len(g.mappings)
}

// Map encodes all mappings into a source map.
func (g *Generator) Map() *Map {
	ms := make([]Mapping, len(g.mappings))
	copy(ms, g.mappings)
	slices.SortStableFunc(ms, func(a, b Mapping) int {
		if a.GenLine != b.GenLine {
			return a.GenLine - b.GenLine
		}
		return a.GenColumn - b.GenColumn
	})
	var b strings.Builder
	var prevSrc, prevLine, prevCol, prevName int
	genLine := 0
	for i, m := range ms {
		prevGenCol := 0
		if i > 0 && ms[i-1].GenLine == m.GenLine {
			prevGenCol = ms[i-1].GenColumn
			b.WriteByte(',')
		}
		for ; genLine < m.GenLine; genLine++ {
			b.WriteByte(';')
		}
		src := g.srcIndex[m.Source]
		encodeVLQ(&b, m.GenColumn-prevGenCol)
		encodeVLQ(&b, src-prevSrc)
		encodeVLQ(&b, m.Line-prevLine)
		encodeVLQ(&b, m.Column-prevCol)
		prevSrc, prevLine, prevCol = src, m.Line, m.Column
		if m.Name != "" {
			n := g.nameIdx[m.Name]
			encodeVLQ(&b, n-prevName)
			prevName = n
		}
	}
	tracer().Debugf("source map for %s: %d mappings", g.file, len(ms))
	mp := &Map{
		Version:  3,
		File:     g.file,
		Sources:  append([]string{}, g.sources...),
		Names:    append([]string{}, g.names...),
		Mappings: b.String(),
	}
	for _, c := range g.contents {
		if c != "" {
			mp.SourcesContent = append([]string{}, g.contents...)
			break
		}
	}
	if mp.Names == nil {
		mp.Names = []string{}
	}
	return mp
}

// --- VLQ -------------------------------------------------------------------

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqShift    = 5
	vlqBase     = 1 << vlqShift
	vlqMask     = vlqBase - 1
	vlqContinue = vlqBase
)

func encodeVLQ(b *strings.Builder, n int) {
	v := n << 1
	if n < 0 {
		v = (-n << 1) | 1
	}
	for {
		digit := v & vlqMask
		v >>= vlqShift
		if v > 0 {
			digit |= vlqContinue
		}
		b.WriteByte(base64Digits[digit])
		if v == 0 {
			return
		}
	}
}

func decodeVLQs(seg string) ([]int, error) {
	var fields []int
	v, shift := 0, 0
	for i := 0; i < len(seg); i++ {
		digit := strings.IndexByte(base64Digits, seg[i])
		if digit < 0 {
			return nil, fmt.Errorf("sourcemap: invalid base64 digit %q", seg[i])
		}
		v += (digit & vlqMask) << shift
		if digit&vlqContinue != 0 {
			shift += vlqShift
			continue
		}
		n := v >> 1
		if v&1 != 0 {
			n = -n
		}
		fields = append(fields, n)
		v, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("sourcemap: truncated segment %q", seg)
	}
	return fields, nil
}
