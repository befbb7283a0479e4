// Package gen is the backend independent generation framework. A backend
// supplies a Factory creating one Elem per node of the validated model; the
// Generator then runs Prepare over the whole tree, children first, and only
// when every node prepared successfully runs Write, parents first.
package gen

import (
	"fmt"

	"github.com/boynton/commsdsl"
)

// Elem is the backend view of one model node.
type Elem interface {
	Prepare() bool
	Write() bool
}

// Factory creates the backend view of each model node. Returning nil means the
// backend has no view for that node; its children are still created.
type Factory interface {
	CreateSchema(g *Generator, s *commsdsl.Schema) Elem
	CreateNamespace(g *Generator, ns *commsdsl.Namespace) Elem
	CreateInterface(g *Generator, i *commsdsl.Interface) Elem
	CreateMessage(g *Generator, m *commsdsl.Message) Elem
	CreateFrame(g *Generator, f *commsdsl.Frame) Elem
	CreateField(g *Generator, f commsdsl.Field) Elem
	CreateLayer(g *Generator, l *commsdsl.Layer) Elem
}

type node struct {
	model    commsdsl.Elem
	elem     Elem
	children []*node
}

type Generator struct {
	Protocol *commsdsl.Protocol
	Factory  Factory
	Config   *commsdsl.Data
	OutDir   string
	Logger   *commsdsl.Logger

	roots    []*node
	registry map[commsdsl.Elem]Elem
	created  int
	prepared bool
}

func NewGenerator(p *commsdsl.Protocol, factory Factory, config *commsdsl.Data, outDir string) *Generator {
	if config == nil {
		config = commsdsl.NewData()
	}
	return &Generator{
		Protocol: p,
		Factory:  factory,
		Config:   config,
		OutDir:   outDir,
		Logger:   p.Logger(),
		registry: make(map[commsdsl.Elem]Elem),
	}
}

// ElemOf returns the backend view created for a model node, or nil.
func (g *Generator) ElemOf(m commsdsl.Elem) Elem {
	return g.registry[m]
}

// Count returns the number of backend views created.
func (g *Generator) Count() int {
	return g.created
}

// Generate runs the create, prepare and write phases in turn. A failure in
// one phase stops the run before the next one starts.
func (g *Generator) Generate() error {
	if err := g.Logger.Err(); err != nil {
		return err
	}
	g.create()
	if !g.prepareAll() {
		g.fail("preparation failed")
		return g.Logger.Err()
	}
	if !g.writeAll() {
		g.fail("writing output failed")
	}
	return g.Logger.Err()
}

func (g *Generator) fail(msg string) {
	if !g.Logger.HadErrors() {
		g.Logger.ErrorAt(commsdsl.GenerationError, commsdsl.Location{}, "", msg)
	}
}

// Errorf reports a generation error about a model node.
func (g *Generator) Errorf(m commsdsl.Elem, format string, args ...interface{}) bool {
	g.Logger.ErrorAt(commsdsl.GenerationError, commsdsl.Location{}, commsdsl.ExternalRef(m), fmt.Sprintf(format, args...))
	return false
}

func (g *Generator) create() {
	g.roots = nil
	for _, s := range g.Protocol.Schemas {
		root := g.add(s, g.Factory.CreateSchema(g, s))
		root.children = append(root.children, g.createNamespace(s.Root))
		g.roots = append(g.roots, root)
	}
}

func (g *Generator) add(m commsdsl.Elem, e Elem) *node {
	if e != nil {
		g.registry[m] = e
		g.created++
	}
	return &node{model: m, elem: e}
}

func (g *Generator) createNamespace(ns *commsdsl.Namespace) *node {
	n := g.add(ns, g.Factory.CreateNamespace(g, ns))
	for _, f := range ns.Fields {
		n.children = append(n.children, g.createField(f))
	}
	for _, i := range ns.Interfaces {
		in := g.add(i, g.Factory.CreateInterface(g, i))
		for _, f := range i.Fields {
			in.children = append(in.children, g.createField(f))
		}
		n.children = append(n.children, in)
	}
	for _, m := range ns.Messages {
		mn := g.add(m, g.Factory.CreateMessage(g, m))
		for _, f := range m.Fields {
			mn.children = append(mn.children, g.createField(f))
		}
		n.children = append(n.children, mn)
	}
	for _, fr := range ns.Frames {
		fn := g.add(fr, g.Factory.CreateFrame(g, fr))
		for _, l := range fr.Layers {
			ln := g.add(l, g.Factory.CreateLayer(g, l))
			if l.Field != nil {
				ln.children = append(ln.children, g.createField(l.Field))
			}
			fn.children = append(fn.children, ln)
		}
		n.children = append(n.children, fn)
	}
	for _, c := range ns.Namespaces {
		n.children = append(n.children, g.createNamespace(c))
	}
	return n
}

func (g *Generator) createField(f commsdsl.Field) *node {
	n := g.add(f, g.Factory.CreateField(g, f))
	for _, m := range commsdsl.OwnedFields(f) {
		n.children = append(n.children, g.createField(m))
	}
	return n
}

func (g *Generator) prepareAll() bool {
	ok := true
	for _, r := range g.roots {
		ok = prepare(r) && ok
	}
	g.prepared = ok
	return ok
}

// prepare runs children before their parent so a parent may use the
// results of its members.
func prepare(n *node) bool {
	for _, c := range n.children {
		if !prepare(c) {
			return false
		}
	}
	if n.elem == nil {
		return true
	}
	return n.elem.Prepare()
}

func (g *Generator) writeAll() bool {
	if !g.prepared {
		return false
	}
	for _, r := range g.roots {
		if !write(r) {
			return false
		}
	}
	return true
}

func write(n *node) bool {
	if n.elem != nil && !n.elem.Write() {
		return false
	}
	for _, c := range n.children {
		if !write(c) {
			return false
		}
	}
	return true
}
