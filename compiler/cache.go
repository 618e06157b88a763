package compiler

import (
	"github.com/cespare/xxhash/v2"
	"github.com/cnf/structhash"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/slices"
)

// DefaultCacheSize is the capacity of a cache created with size 0.
const DefaultCacheSize = 32

// Cache keeps the outputs of recent compiles. Outputs are keyed by the
// grammar text and the options influencing code generation. Callbacks are
// not part of the key, and cached compiles do not invoke them again.
// Action implementations are identified by their code keys only.
//
// A Cache is safe for concurrent use.
type Cache struct {
	outputs *lru.Cache[uint64, *Output]
}

// NewCache creates a cache holding up to size outputs.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	outputs, err := lru.New[uint64, *Output](size)
	if err != nil {
		panic(err) // size is positive
	}
	return &Cache{outputs: outputs}
}

// Generate returns the cached output for text and opts, or calls Generate
// and caches its result. Failed compiles are not cached.
func (c *Cache) Generate(text string, opts *Options) (*Output, error) {
	if opts == nil {
		opts = &Options{}
	}
	key, err := cacheKey(text, opts)
	if err != nil {
		return nil, err
	}
	if out, ok := c.outputs.Get(key); ok {
		tracer().Debugf("cache hit for grammar %x", key)
		return out, nil
	}
	out, err := Generate(text, opts)
	if err != nil {
		return nil, err
	}
	c.outputs.Add(key, out)
	return out, nil
}

// Len returns the number of cached outputs.
func (c *Cache) Len() int {
	return c.outputs.Len()
}

// Purge removes all outputs.
func (c *Cache) Purge() {
	c.outputs.Purge()
}

// fingerprint holds the options which change the output of a compile.
type fingerprint struct {
	Output            int
	GrammarSource     string
	AllowedStartRules []string
	Trace             bool
	Cache             bool
	ReservedWords     []string
	RemoveUnusedRules bool
	Package           string
	OutputFile        string
	Actions           []string
	StubActions       bool
}

func cacheKey(text string, opts *Options) (uint64, error) {
	fp := fingerprint{
		Output:            int(opts.Output),
		GrammarSource:     sourceName(opts.GrammarSource),
		AllowedStartRules: opts.AllowedStartRules,
		Trace:             opts.Trace,
		Cache:             opts.Cache,
		ReservedWords:     opts.ReservedWords,
		RemoveUnusedRules: opts.RemoveUnusedRules,
		Package:           opts.Package,
		OutputFile:        opts.OutputFile,
		StubActions:       opts.StubActions,
	}
	for key := range opts.Actions {
		fp.Actions = append(fp.Actions, key)
	}
	slices.Sort(fp.Actions)
	h, err := structhash.Hash(fp, 1)
	if err != nil {
		return 0, err
	}
	d := xxhash.New()
	d.WriteString(text)
	d.WriteString("\x00")
	d.WriteString(h)
	return d.Sum64(), nil
}
