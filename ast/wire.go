package ast

import (
	"bytes"
	"fmt"

	"github.com/npillmayer/gopeg"
	"github.com/vmihailenco/msgpack/v5"
)

// The wire form of an AST is a tree of generic records, each carrying the
// kind tag in field "type" and the location in field "location". Decoders
// ignore fields they do not know.

type wireNode struct {
	Type          Kind            `msgpack:"type"`
	Location      gopeg.Location  `msgpack:"location"`
	Match         *MatchResult    `msgpack:"match,omitempty"`
	Name          string          `msgpack:"name,omitempty"`
	NameLocation  *gopeg.Location `msgpack:"nameLocation,omitempty"`
	Label         string          `msgpack:"label,omitempty"`
	LabelLocation *gopeg.Location `msgpack:"labelLocation,omitempty"`
	Pick          bool            `msgpack:"pick,omitempty"`
	Code          string          `msgpack:"code,omitempty"`
	CodeLocation  *gopeg.Location `msgpack:"codeLocation,omitempty"`
	Value         string          `msgpack:"value,omitempty"`
	IgnoreCase    bool            `msgpack:"ignoreCase,omitempty"`
	Inverted      bool            `msgpack:"inverted,omitempty"`
	Parts         [][2]rune       `msgpack:"parts,omitempty"`
	Min           *wireBoundary   `msgpack:"min,omitempty"`
	Max           *wireBoundary   `msgpack:"max,omitempty"`
	Delimiter     *wireNode       `msgpack:"delimiter,omitempty"`
	Expression    *wireNode       `msgpack:"expression,omitempty"`
	Elements      []*wireNode     `msgpack:"elements,omitempty"`
	TopLevel      *wireNode       `msgpack:"topLevelInitializer,omitempty"`
	Initializer   *wireNode       `msgpack:"initializer,omitempty"`
	Rules         []*wireNode     `msgpack:"rules,omitempty"`
}

type wireBoundary struct {
	Type     BoundaryType   `msgpack:"type"`
	Value    int            `msgpack:"value"`
	Name     string         `msgpack:"name,omitempty"`
	Code     string         `msgpack:"code,omitempty"`
	Location gopeg.Location `msgpack:"location"`
}

// Marshal serializes a grammar (including inferred match results, but not
// generated tables) with msgpack.
func Marshal(g *Grammar) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("msgpack")
	if err := enc.Encode(toWire(g)); err != nil {
		return nil, fmt.Errorf("ast: encoding grammar: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a grammar produced by Marshal.
func Unmarshal(data []byte) (*Grammar, error) {
	w := &wireNode{}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(w); err != nil {
		return nil, fmt.Errorf("ast: decoding grammar: %w", err)
	}
	node, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	g, ok := node.(*Grammar)
	if !ok {
		return nil, fmt.Errorf("ast: decoded node is of kind %s, not a grammar", node.Kind())
	}
	tracer().Debugf("decoded grammar with %d rules", len(g.Rules))
	return g, nil
}

func locPtr(l gopeg.Location) *gopeg.Location {
	if l.IsZero() && l.Source == nil {
		return nil
	}
	return &l
}

func locVal(l *gopeg.Location) gopeg.Location {
	if l == nil {
		return gopeg.Location{}
	}
	return *l
}

func toWire(node Node) *wireNode {
	if node == nil {
		return nil
	}
	w := &wireNode{Type: node.Kind(), Location: node.Loc()}
	if m, ok := node.Match(); ok {
		w.Match = &m
	}
	switch n := node.(type) {
	case *Grammar:
		if n.TopLevelInitializer != nil {
			w.TopLevel = toWire(n.TopLevelInitializer)
		}
		if n.Initializer != nil {
			w.Initializer = toWire(n.Initializer)
		}
		for _, r := range n.Rules {
			w.Rules = append(w.Rules, toWire(r))
		}
	case *CodeBlock:
		w.Code, w.CodeLocation = n.Code, locPtr(n.CodeLocation)
	case *Rule:
		w.Name, w.NameLocation = n.Name, locPtr(n.NameLocation)
		w.Expression = toWire(n.Expression)
	case *Named:
		w.Name = n.Name
		w.Expression = toWire(n.Expression)
	case *Choice:
		w.Elements = wireList(n.Alternatives)
	case *Action:
		w.Code, w.CodeLocation = n.Code, locPtr(n.CodeLocation)
		w.Expression = toWire(n.Expression)
	case *Sequence:
		w.Elements = wireList(n.Elements)
	case *Labeled:
		w.Label, w.LabelLocation, w.Pick = n.Label, locPtr(n.LabelLocation), n.Pick
		w.Expression = toWire(n.Expression)
	case *Prefixed:
		w.Expression = toWire(n.Expression)
	case *Suffixed:
		w.Expression = toWire(n.Expression)
	case *Repeated:
		if n.Min != nil {
			w.Min = wireBound(n.Min)
		}
		w.Max = wireBound(&n.Max)
		if n.Delimiter != nil {
			w.Delimiter = toWire(n.Delimiter)
		}
		w.Expression = toWire(n.Expression)
	case *Group:
		w.Expression = toWire(n.Expression)
	case *SemanticPredicate:
		w.Code, w.CodeLocation = n.Code, locPtr(n.CodeLocation)
	case *RuleRef:
		w.Name = n.Name
	case *Literal:
		w.Value, w.IgnoreCase = n.Value, n.IgnoreCase
	case *Class:
		w.Inverted, w.IgnoreCase = n.Inverted, n.IgnoreCase
		for _, p := range n.Parts {
			w.Parts = append(w.Parts, [2]rune{p.Low, p.High})
		}
	}
	return w
}

func wireList(es []Expression) []*wireNode {
	ws := make([]*wireNode, len(es))
	for i, e := range es {
		ws[i] = toWire(e)
	}
	return ws
}

func wireBound(b *Boundary) *wireBoundary {
	return &wireBoundary{Type: b.Type, Value: b.Value, Name: b.Name, Code: b.Code, Location: b.Location}
}

func unwireBound(w *wireBoundary) Boundary {
	return Boundary{Type: w.Type, Value: w.Value, Name: w.Name, Code: w.Code, Location: w.Location}
}

func fromWire(w *wireNode) (Node, error) {
	if w == nil {
		return nil, nil
	}
	base := Base{Location: w.Location}
	if w.Match != nil {
		base.SetMatch(*w.Match)
	}
	var node Node
	switch w.Type {
	case KindGrammar:
		g := &Grammar{Base: base}
		if w.TopLevel != nil {
			tl, err := fromWire(w.TopLevel)
			if err != nil {
				return nil, err
			}
			g.TopLevelInitializer = tl.(*CodeBlock)
		}
		if w.Initializer != nil {
			in, err := fromWire(w.Initializer)
			if err != nil {
				return nil, err
			}
			g.Initializer = in.(*CodeBlock)
		}
		for _, wr := range w.Rules {
			r, err := fromWire(wr)
			if err != nil {
				return nil, err
			}
			rule, ok := r.(*Rule)
			if !ok {
				return nil, fmt.Errorf("ast: grammar contains %s where a rule is expected", r.Kind())
			}
			g.Rules = append(g.Rules, rule)
		}
		node = g
	case KindTopLevelInitializer, KindInitializer:
		node = &CodeBlock{Base: base, TopLevel: w.Type == KindTopLevelInitializer,
			Code: w.Code, CodeLocation: locVal(w.CodeLocation)}
	case KindRule:
		e, err := exprFromWire(w.Expression)
		if err != nil {
			return nil, err
		}
		node = &Rule{Base: base, Name: w.Name, NameLocation: locVal(w.NameLocation), Expression: e}
	case KindNamed:
		e, err := exprFromWire(w.Expression)
		if err != nil {
			return nil, err
		}
		node = &Named{Base: base, Name: w.Name, Expression: e}
	case KindChoice:
		alts, err := exprsFromWire(w.Elements)
		if err != nil {
			return nil, err
		}
		node = &Choice{Base: base, Alternatives: alts}
	case KindAction:
		e, err := exprFromWire(w.Expression)
		if err != nil {
			return nil, err
		}
		node = &Action{Base: base, Expression: e, Code: w.Code, CodeLocation: locVal(w.CodeLocation)}
	case KindSequence:
		els, err := exprsFromWire(w.Elements)
		if err != nil {
			return nil, err
		}
		node = &Sequence{Base: base, Elements: els}
	case KindLabeled:
		e, err := exprFromWire(w.Expression)
		if err != nil {
			return nil, err
		}
		node = &Labeled{Base: base, Label: w.Label, LabelLocation: locVal(w.LabelLocation),
			Pick: w.Pick, Expression: e}
	case KindText, KindSimpleAnd, KindSimpleNot:
		e, err := exprFromWire(w.Expression)
		if err != nil {
			return nil, err
		}
		node = &Prefixed{Base: base, Op: w.Type, Expression: e}
	case KindOptional, KindZeroOrMore, KindOneOrMore:
		e, err := exprFromWire(w.Expression)
		if err != nil {
			return nil, err
		}
		node = &Suffixed{Base: base, Op: w.Type, Expression: e}
	case KindRepeated:
		e, err := exprFromWire(w.Expression)
		if err != nil {
			return nil, err
		}
		r := &Repeated{Base: base, Expression: e}
		if w.Max == nil {
			return nil, fmt.Errorf("ast: repeated node at %s without maximum", w.Location)
		}
		r.Max = unwireBound(w.Max)
		if w.Min != nil {
			min := unwireBound(w.Min)
			r.Min = &min
		}
		if w.Delimiter != nil {
			if r.Delimiter, err = exprFromWire(w.Delimiter); err != nil {
				return nil, err
			}
		}
		node = r
	case KindGroup:
		e, err := exprFromWire(w.Expression)
		if err != nil {
			return nil, err
		}
		node = &Group{Base: base, Expression: e}
	case KindSemanticAnd, KindSemanticNot:
		node = &SemanticPredicate{Base: base, Op: w.Type, Code: w.Code, CodeLocation: locVal(w.CodeLocation)}
	case KindRuleRef:
		node = &RuleRef{Base: base, Name: w.Name}
	case KindLiteral:
		node = &Literal{Base: base, Value: w.Value, IgnoreCase: w.IgnoreCase}
	case KindClass:
		c := &Class{Base: base, Inverted: w.Inverted, IgnoreCase: w.IgnoreCase}
		for _, p := range w.Parts {
			c.Parts = append(c.Parts, ClassPart{Low: p[0], High: p[1]})
		}
		node = c
	case KindAny:
		node = &Any{Base: base}
	default:
		return nil, &UnknownKindError{Kind: w.Type}
	}
	return node, nil
}

func exprFromWire(w *wireNode) (Expression, error) {
	if w == nil {
		return nil, nil
	}
	n, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	e, ok := n.(Expression)
	if !ok {
		return nil, fmt.Errorf("ast: node of kind %s is not an expression", n.Kind())
	}
	return e, nil
}

func exprsFromWire(ws []*wireNode) ([]Expression, error) {
	es := make([]Expression, 0, len(ws))
	for _, w := range ws {
		e, err := exprFromWire(w)
		if err != nil {
			return nil, err
		}
		es = append(es, e)
	}
	return es, nil
}
