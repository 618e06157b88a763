package scope

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/npillmayer/gopeg"
	"golang.org/x/exp/slices"
)

// Tag is the binding of a label.
type Tag struct {
	name     string
	seq      int            // binding order within a scope tree
	Location gopeg.Location // location of the label
	Slot     int            // stack slot of the labeled value, -1 if unused
}

// NewTag creates a tag without a slot.
func NewTag(name string) *Tag {
	return &Tag{name: name, Slot: -1}
}

// At sets the location of a tag and returns it, for chaining.
func (t *Tag) At(loc gopeg.Location) *Tag {
	t.Location = loc
	return t
}

// Name returns the label name.
func (t *Tag) Name() string {
	return t.name
}

func (t *Tag) String() string {
	return fmt.Sprintf("<tag '%s':%d>", t.name, t.Slot)
}

// --- Scopes ----------------------------------------------------------------

// Scope holds the labels bound in one construct of a rule. Scopes link
// to their parent scope; lookups search outwards.
type Scope struct {
	Name   string
	Parent *Scope
	tags   *linkedhashmap.Map // label name → *Tag, in binding order
	tree   *ScopeTree
}

// NewScope creates a scope below parent, which may be nil.
func NewScope(name string, parent *Scope) *Scope {
	sc := &Scope{Name: name, Parent: parent, tags: linkedhashmap.New()}
	if parent != nil {
		sc.tree = parent.tree
	}
	return sc
}

func (s *Scope) String() string {
	return fmt.Sprintf("<scope %s>", s.Name)
}

// Len is the number of labels bound in this scope.
func (s *Scope) Len() int {
	return s.tags.Size()
}

// DefineTag binds a label in this scope. It returns the new tag and a tag
// previously bound to the same name in this scope, if any. An empty name
// binds nothing. Tags of outer scopes are shadowed, not replaced.
func (s *Scope) DefineTag(name string) (*Tag, *Tag) {
	if name == "" {
		return nil, nil
	}
	old := s.ResolveLocal(name)
	tag := NewTag(name)
	if s.tree != nil {
		s.tree.serial++
		tag.seq = s.tree.serial
	}
	s.tags.Put(name, tag)
	return tag, old
}

// ResolveLocal finds a label bound in this scope only.
func (s *Scope) ResolveLocal(name string) *Tag {
	if t, ok := s.tags.Get(name); ok {
		return t.(*Tag)
	}
	return nil
}

// ResolveTag finds a label in this scope or an outer one. It returns the
// tag and the scope binding it, or nil for both.
func (s *Scope) ResolveTag(name string) (*Tag, *Scope) {
	for sc := s; sc != nil; sc = sc.Parent {
		if tag := sc.ResolveLocal(name); tag != nil {
			return tag, sc
		}
	}
	return nil, nil
}

// Visible returns all labels resolvable from this scope, without shadowed
// ones, in binding order.
func (s *Scope) Visible() []*Tag {
	seen := make(map[string]bool)
	var tags []*Tag
	for sc := s; sc != nil; sc = sc.Parent {
		it := sc.tags.Iterator()
		for it.Next() {
			name := it.Key().(string)
			if !seen[name] {
				seen[name] = true
				tags = append(tags, it.Value().(*Tag))
			}
		}
	}
	slices.SortFunc(tags, func(a, b *Tag) int {
		return a.seq - b.seq
	})
	return tags
}

// --- Scope trees -----------------------------------------------------------

// ScopeTree is used as a stack of scopes while walking a rule: a scope is
// pushed when entering a construct and popped on exit. All scopes of a tree
// share one binding counter, which orders labels across scopes.
type ScopeTree struct {
	root   *Scope
	top    *Scope
	serial int
}

// NewScopeTree creates a scope tree for a rule, with a root scope on
// the stack.
func NewScopeTree(rootName string) *ScopeTree {
	st := &ScopeTree{}
	st.Push(rootName)
	return st
}

// Root returns the outermost scope.
func (st *ScopeTree) Root() *Scope {
	return st.root
}

// Current returns the scope on top of the stack.
func (st *ScopeTree) Current() *Scope {
	if st.top == nil {
		panic("attempt to access scope from empty stack")
	}
	return st.top
}

// Push opens a new scope below the current one.
func (st *ScopeTree) Push(name string) *Scope {
	sc := NewScope(name, st.top)
	sc.tree = st
	if st.top == nil {
		st.root = sc
	}
	st.top = sc
	tracer().P("scope", name).Debugf("push")
	return sc
}

// Pop closes the current scope and returns it.
func (st *ScopeTree) Pop() *Scope {
	if st.top == nil {
		panic("attempt to pop scope from empty stack")
	}
	sc := st.top
	st.top = sc.Parent
	tracer().P("scope", sc.Name).Debugf("pop")
	return sc
}

// Within pushes a new scope, calls f with it and pops the scope again.
func (st *ScopeTree) Within(name string, f func(*Scope)) {
	sc := st.Push(name)
	defer st.Pop()
	f(sc)
}
