package material

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/gekko3d/deferred/rt/shaders"
)

// Program is a pre-processed shader program shared by every material built
// from the same table entry and define set. GPU contexts compile it once per
// Key.
type Program struct {
	entry   shaders.Entry
	defines map[string]bool
	source  string
	key     string
	refs    atomic.Int32
	// free runs when the last reference is released.
	free    func(*Program)
}

func newProgram(entry shaders.Entry, defines map[string]bool) (*Program, error) {
	src, err := shaders.Preprocess(entry.Source, defines)
	if err != nil {
		return nil, err
	}
	d := make(map[string]bool, len(defines))
	for k, v := range defines {
		if v {
			d[k] = true
		}
	}
	return &Program{
		entry:   entry,
		defines: d,
		source:  src,
		key:     programKey(entry.Name, d),
	}, nil
}

func programKey(name string, defines map[string]bool) string {
	if len(defines) == 0 {
		return name
	}
	on := make([]string, 0, len(defines))
	for k, v := range defines {
		if v {
			on = append(on, k)
		}
	}
	sort.Strings(on)
	if len(on) == 0 {
		return name
	}
	return name + "+" + strings.Join(on, "+")
}

func (p *Program) Name() string { return p.entry.Name }

// Key identifies the program variant: the table name plus enabled defines.
func (p *Program) Key() string { return p.key }

// Source is the WGSL after include and define resolution.
func (p *Program) Source() string { return p.source }

func (p *Program) Entry() shaders.Entry { return p.entry }

func (p *Program) Defined(name string) bool { return p.defines[name] }

func (p *Program) Retain() *Program {
	p.refs.Add(1)
	return p
}

// Release drops one reference and reports the remaining count. Dropping the
// last one hands the program back to its factory.
func (p *Program) Release() int {
	n := int(p.refs.Add(-1))
	if n == 0 && p.free != nil {
		p.free(p)
	}
	return n
}

func (p *Program) Refs() int { return int(p.refs.Load()) }
