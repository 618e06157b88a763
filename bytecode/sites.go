package bytecode

import (
	"fmt"

	"github.com/npillmayer/gopeg"
)

// CallSite is a call of a user code block within a source range.
type CallSite struct {
	Function int            // index into Program.Functions
	Range    gopeg.Location // source range opened around the call
	Labels   []LabelSite    // labels named at the call, innermost last
}

// LabelSite is a stack slot named by SOURCE_MAP_LABEL_PUSH.
type LabelSite struct {
	Name     string
	Slot     int
	Location gopeg.Location
}

// Label returns the innermost label site for name.
func (cs CallSite) Label(name string) (LabelSite, bool) {
	for i := len(cs.Labels) - 1; i >= 0; i-- {
		if cs.Labels[i].Name == name {
			return cs.Labels[i], true
		}
	}
	return LabelSite{}, false
}

// CallSites collects the calls of user code within source ranges, in code
// order. Source ranges and label names must nest within every rule and
// within both branches of every conditional.
func CallSites(p *Program) ([]CallSite, error) {
	var sites []CallSite
	for _, r := range p.Rules {
		w := siteWalker{prog: p, rule: r.Name}
		if err := w.walk(r.Code); err != nil {
			return nil, err
		}
		if len(w.ranges) > 0 || len(w.labels) > 0 {
			return nil, w.errorf("%d source ranges and %d labels left open", len(w.ranges), len(w.labels))
		}
		sites = append(sites, w.sites...)
	}
	return sites, nil
}

type siteWalker struct {
	prog   *Program
	rule   string
	ranges []int
	labels []LabelSite
	sites  []CallSite
}

func (w *siteWalker) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("bytecode: rule %q: %s", w.rule, fmt.Sprintf(format, args...))
}

func (w *siteWalker) location(i int) (gopeg.Location, error) {
	if i < 0 || i >= len(w.prog.Locations) {
		return gopeg.Location{}, w.errorf("location #%d out of range", i)
	}
	return w.prog.Locations[i], nil
}

func (w *siteWalker) walk(code []int) error {
	for ip := 0; ip < len(code); {
		in, err := Decode(code, ip)
		if err != nil {
			return err
		}
		if err := w.step(in); err != nil {
			return err
		}
		ip += in.Len
	}
	return nil
}

func (w *siteWalker) step(in Instr) error {
	switch in.Op {
	case SourceMapPush:
		if _, err := w.location(in.Args[0]); err != nil {
			return err
		}
		w.ranges = append(w.ranges, in.Args[0])
	case SourceMapPop:
		if len(w.ranges) == 0 {
			return w.errorf("SOURCE_MAP_POP without open source range")
		}
		w.ranges = w.ranges[:len(w.ranges)-1]
	case SourceMapLabelPush:
		slot, name := in.Args[0], in.Args[1]
		if name < 0 || name >= len(w.prog.Literals) {
			return w.errorf("label name #%d out of range", name)
		}
		loc, err := w.location(in.Args[2])
		if err != nil {
			return err
		}
		w.labels = append(w.labels, LabelSite{Name: w.prog.Literals[name], Slot: slot, Location: loc})
	case SourceMapLabelPop:
		n := len(w.labels)
		if n == 0 || w.labels[n-1].Slot != in.Args[0] {
			return w.errorf("SOURCE_MAP_LABEL_POP %d does not match innermost label", in.Args[0])
		}
		w.labels = w.labels[:n-1]
	case Call:
		if len(w.ranges) > 0 {
			loc, _ := w.location(w.ranges[len(w.ranges)-1])
			w.sites = append(w.sites, CallSite{
				Function: in.Args[0],
				Range:    loc,
				Labels:   append([]LabelSite(nil), w.labels...),
			})
		}
	}
	if in.Then == nil && in.Else == nil {
		return nil
	}
	r, l := len(w.ranges), len(w.labels)
	for _, branch := range [][]int{in.Then, in.Else} {
		if err := w.walk(branch); err != nil {
			return err
		}
		if len(w.ranges) != r || len(w.labels) != l {
			return w.errorf("unbalanced source map instructions in branch of %s", in.Op)
		}
	}
	return nil
}
