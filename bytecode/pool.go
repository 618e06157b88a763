package bytecode

import (
	"fmt"

	"github.com/cnf/structhash"
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/npillmayer/gopeg"
)

// Pools collects the constants of a program while rules are compiled.
// Identical constants are stored once; indices follow insertion order.
type Pools struct {
	literals     *pool
	classes      *pool
	expectations *pool
	functions    *pool
	locations    *pool
}

// NewPools creates empty constant pools.
func NewPools() *Pools {
	return &Pools{
		literals:     newPool(),
		classes:      newPool(),
		expectations: newPool(),
		functions:    newPool(),
		locations:    newPool(),
	}
}

type pool struct {
	entries *linkedhashmap.Map // hash key → poolEntry
}

type poolEntry struct {
	index int
	value interface{}
}

func newPool() *pool {
	return &pool{entries: linkedhashmap.New()}
}

func (p *pool) add(key string, value interface{}) int {
	if e, found := p.entries.Get(key); found {
		return e.(poolEntry).index
	}
	index := p.entries.Size()
	p.entries.Put(key, poolEntry{index: index, value: value})
	return index
}

func (p *pool) values() []interface{} {
	vs := make([]interface{}, 0, p.entries.Size())
	for _, e := range p.entries.Values() {
		vs = append(vs, e.(poolEntry).value)
	}
	return vs
}

// hashKey computes a structural key for a constant.
func hashKey(kind string, v interface{}) string {
	h, err := structhash.Hash(v, 1)
	if err != nil {
		// structhash fails only for unsupported types, which we never hand in
		panic(fmt.Sprintf("bytecode: cannot hash %s constant: %v", kind, err))
	}
	return kind + ":" + h
}

type classKey struct {
	Parts      string
	Inverted   bool
	IgnoreCase bool
}

type expectationKey struct {
	Type        string
	Text        string
	IgnoreCase  bool
	Parts       string
	Inverted    bool
	Description string
}

type functionKey struct {
	Kind   int
	Params []string
	Code   string
}

type locationKey struct {
	Source string
	Start  int
	End    int
}

func partsKey(parts [][2]rune) string {
	return fmt.Sprintf("%v", parts)
}

// Literal adds a literal string and returns its index.
func (p *Pools) Literal(s string) int {
	return p.literals.add(s, s)
}

// Class adds a character class and returns its index.
func (p *Pools) Class(c Class) int {
	key := hashKey("class", classKey{partsKey(c.Parts), c.Inverted, c.IgnoreCase})
	return p.classes.add(key, c)
}

// Expectation adds an expectation descriptor and returns its index.
func (p *Pools) Expectation(e Expectation) int {
	key := hashKey("exp", expectationKey{string(e.Type), e.Text, e.IgnoreCase,
		partsKey(e.Parts), e.Inverted, e.Description})
	return p.expectations.add(key, e)
}

// Function adds a code block and returns its index. Functions with equal
// kind, parameters and code share an index.
func (p *Pools) Function(f Function) int {
	params := f.Params
	if params == nil {
		params = []string{}
	}
	key := hashKey("fn", functionKey{int(f.Kind), params, f.Code})
	return p.functions.add(key, f)
}

// Location adds a source location and returns its index.
func (p *Pools) Location(l gopeg.Location) int {
	key := hashKey("loc", locationKey{fmt.Sprint(l.Source), l.Start.Offset, l.End.Offset})
	return p.locations.add(key, l)
}

// Fill copies the pooled constants into a program.
func (p *Pools) Fill(prog *Program) {
	prog.Literals = prog.Literals[:0]
	for _, v := range p.literals.values() {
		prog.Literals = append(prog.Literals, v.(string))
	}
	prog.Classes = prog.Classes[:0]
	for _, v := range p.classes.values() {
		prog.Classes = append(prog.Classes, v.(Class))
	}
	prog.Expectations = prog.Expectations[:0]
	for _, v := range p.expectations.values() {
		prog.Expectations = append(prog.Expectations, v.(Expectation))
	}
	prog.Functions = prog.Functions[:0]
	for _, v := range p.functions.values() {
		prog.Functions = append(prog.Functions, v.(Function))
	}
	prog.Locations = prog.Locations[:0]
	for _, v := range p.locations.values() {
		prog.Locations = append(prog.Locations, v.(gopeg.Location))
	}
	tracer().Debugf("constant pools: %d literals, %d classes, %d expectations, %d functions",
		len(prog.Literals), len(prog.Classes), len(prog.Expectations), len(prog.Functions))
}
