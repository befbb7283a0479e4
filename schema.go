package commsdsl

import (
	"fmt"
	"strings"
)

type Endian int

const (
	EndianLittle Endian = iota
	EndianBig
)

func (e Endian) String() string {
	if e == EndianBig {
		return "big"
	}
	return "little"
}

func (e Endian) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func parseEndian(s string) (Endian, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little":
		return EndianLittle, true
	case "big":
		return EndianBig, true
	}
	return EndianLittle, false
}

// parseEndianProp sets the endian of a field, inheriting the scope's endian
// for fresh definitions.
func parseEndianProp(fp *fieldParser, dst *Endian, reused bool) bool {
	if fp.has("endian") {
		e, ok := parseEndian(fp.get("endian"))
		if !ok {
			return fp.errorf("invalid endian %q", fp.get("endian"))
		}
		*dst = e
		return true
	}
	if !reused {
		*dst = fp.scope.endian
	}
	return true
}

// Schema is one named protocol definition. Documents declaring the same schema
// name are merged into it.
type Schema struct {
	Name                  string            `json:"name"`
	Description           string            `json:"description,omitempty"`
	Endian                Endian            `json:"endian"`
	Version               uint              `json:"version"`
	DslVersion            uint              `json:"dslVersion,omitempty"`
	NonUniqueMsgIdAllowed bool              `json:"nonUniqueMsgIdAllowed,omitempty"`
	Platforms             []string          `json:"platforms,omitempty"`
	Root                  *Namespace        `json:"namespace"`
	ExtraAttrs            map[string]string `json:"extraAttrs,omitempty"`
	ExtraElems            []*Node           `json:"-"`

	docs int
}

func (s *Schema) ElemName() string   { return s.Name }
func (s *Schema) ElemKind() ElemKind { return ElemSchema }
func (s *Schema) ElemParent() Elem   { return nil }

var schemaProps = []string{"name", "description", "endian", "version", "dslVersion", "nonUniqueMsgIdAllowed", "id"}

var nsContentChildren = append([]string{"fields", "messages", "interfaces", "frames", "ns", "message", "interface", "frame"},
	fieldKindNames...)

var schemaSchema = &elemSchema{
	props:    schemaProps,
	required: []string{"name"},
	children: append([]string{"platforms"}, nsContentChildren...),
}

var platformsSchema = &elemSchema{children: []string{"platform"}}
var platformSchema = &elemSchema{props: []string{"name", "description"}, required: []string{"name"}}

// parseSchemaNode merges one document's <schema> element into the protocol.
func (p *Protocol) parseSchemaNode(root *Node) bool {
	if root.Name != "schema" {
		p.logger.ErrorAt(StructuralParseError, root.Loc, "", fmt.Sprintf("expected <schema> root element, got <%s>", root.Name))
		return false
	}
	ep := p.newElemParser(root, schemaSchema)
	if !ep.ok {
		return false
	}
	name := ep.get("name")
	if !IsValidName(name) {
		ep.semanticError("name", fmt.Sprintf("invalid schema name %q", name))
		return false
	}
	s := p.findSchema(name)
	if s == nil {
		s = &Schema{Name: name}
		s.Root = &Namespace{parent: s}
		p.Schemas = append(p.Schemas, s)
	} else {
		// The schema becomes the last one again: the protocol schema is the one
		// defined by the last document.
		p.moveSchemaLast(s)
	}
	s.docs++
	first := s.docs == 1
	fail := func(prop, msg string) bool {
		ep.semanticError(prop, msg)
		return false
	}
	if ep.has("endian") {
		e, ok := parseEndian(ep.get("endian"))
		if !ok {
			return fail("endian", fmt.Sprintf("invalid endian %q", ep.get("endian")))
		}
		if !first && e != s.Endian {
			return fail("endian", fmt.Sprintf("schema %q is already defined with %s endian", name, s.Endian))
		}
		s.Endian = e
	}
	if ep.has("version") {
		v, ok := ep.uintProp("version", 0)
		if !ok {
			return false
		}
		if !first && v != s.Version {
			return fail("version", fmt.Sprintf("schema %q is already defined with version %d", name, s.Version))
		}
		s.Version = v
	}
	var ok bool
	if s.DslVersion, ok = ep.uintProp("dslVersion", s.DslVersion); !ok {
		return false
	}
	if s.NonUniqueMsgIdAllowed, ok = ep.boolProp("nonUniqueMsgIdAllowed", s.NonUniqueMsgIdAllowed); !ok {
		return false
	}
	if ep.has("description") {
		s.Description = ep.get("description")
	}
	for k, v := range ep.extraAttrs {
		if s.ExtraAttrs == nil {
			s.ExtraAttrs = make(map[string]string)
		}
		s.ExtraAttrs[k] = v
	}
	s.ExtraElems = append(s.ExtraElems, ep.extraElems...)
	for _, pn := range ep.childrenNamed("platforms") {
		if !p.parsePlatforms(s, pn) {
			return false
		}
	}
	sc := &scope{schema: s, ns: s.Root, endian: s.Endian, parent: s.Root, deprecated: NotYetDeprecated}
	return p.parseNamespaceContent(s.Root, ep.childrenNamed(nsContentChildren...), sc)
}

func (p *Protocol) parsePlatforms(s *Schema, node *Node) bool {
	ep := p.newElemParser(node, platformsSchema)
	if !ep.ok {
		return false
	}
	for _, n := range ep.childrenNamed("platform") {
		pep := p.newElemParser(n, platformSchema)
		if !pep.ok {
			return false
		}
		name := pep.get("name")
		if !IsValidName(name) {
			pep.semanticError("name", fmt.Sprintf("invalid platform name %q", name))
			return false
		}
		if contains(s.Platforms, name) {
			pep.semanticError("name", fmt.Sprintf("platform %q is defined more than once", name))
			return false
		}
		s.Platforms = append(s.Platforms, name)
	}
	return true
}

func (p *Protocol) findSchema(name string) *Schema {
	for _, s := range p.Schemas {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (p *Protocol) moveSchemaLast(s *Schema) {
	for i, cur := range p.Schemas {
		if cur == s {
			p.Schemas = append(append(p.Schemas[:i:i], p.Schemas[i+1:]...), s)
			return
		}
	}
}

// Namespace is a recursive container of fields, interfaces, messages and
// frames. The root namespace of a schema has an empty name.
type Namespace struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Namespaces  []*Namespace      `json:"namespaces,omitempty"`
	Fields      []Field           `json:"fields,omitempty"`
	Interfaces  []*Interface      `json:"interfaces,omitempty"`
	Messages    []*Message        `json:"messages,omitempty"`
	Frames      []*Frame          `json:"frames,omitempty"`
	ExtraAttrs  map[string]string `json:"extraAttrs,omitempty"`
	ExtraElems  []*Node           `json:"-"`

	parent Elem
	node   *Node
}

func (ns *Namespace) ElemName() string   { return ns.Name }
func (ns *Namespace) ElemKind() ElemKind { return ElemNamespace }
func (ns *Namespace) ElemParent() Elem   { return ns.parent }

func (ns *Namespace) ExternalRef() string { return ExternalRef(ns) }

func (ns *Namespace) FindNamespace(name string) *Namespace {
	for _, c := range ns.Namespaces {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (ns *Namespace) FindField(name string) Field {
	f, _ := findByName(ns.Fields, name)
	return f
}

func (ns *Namespace) FindInterface(name string) *Interface {
	for _, i := range ns.Interfaces {
		if i.Name == name {
			return i
		}
	}
	return nil
}

func (ns *Namespace) FindMessage(name string) *Message {
	for _, m := range ns.Messages {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (ns *Namespace) FindFrame(name string) *Frame {
	for _, f := range ns.Frames {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// parentNamespace returns the enclosing namespace, nil for a schema root.
func (ns *Namespace) parentNamespace() *Namespace {
	parent, _ := ns.parent.(*Namespace)
	return parent
}

var nsSchema = &elemSchema{
	props:    []string{"name", "description", "endian"},
	required: []string{"name"},
	children: nsContentChildren,
}

var groupSchemas = map[string]*elemSchema{
	"fields":     {children: fieldKindNames},
	"messages":   {children: []string{"message"}},
	"interfaces": {children: []string{"interface"}},
	"frames":     {children: []string{"frame"}},
}

func (p *Protocol) parseNamespaceContent(ns *Namespace, nodes []*Node, sc *scope) bool {
	ok := true
	for _, n := range nodes {
		switch {
		case n.Name == "ns":
			ok = p.parseNamespace(ns, n, sc) && ok
		case groupSchemas[n.Name] != nil:
			ep := p.newElemParser(n, groupSchemas[n.Name])
			if !ep.ok {
				ok = false
				continue
			}
			ok = p.parseNamespaceContent(ns, ep.children, sc) && ok
		case n.Name == "message":
			ok = p.parseMessage(ns, n, sc) && ok
		case n.Name == "interface":
			ok = p.parseInterface(ns, n, sc) && ok
		case n.Name == "frame":
			ok = p.parseFrame(ns, n, sc) && ok
		case isFieldElem(n.Name):
			ok = p.addNamespaceField(ns, n, sc) && ok
		}
	}
	return ok
}

func (p *Protocol) parseNamespace(parent *Namespace, node *Node, sc *scope) bool {
	ep := p.newElemParser(node, nsSchema)
	if !ep.ok {
		return false
	}
	name := ep.get("name")
	if !IsValidName(name) {
		ep.semanticError("name", fmt.Sprintf("invalid namespace name %q", name))
		return false
	}
	ns := parent.FindNamespace(name)
	if ns == nil {
		ns = &Namespace{Name: name, parent: parent, node: node}
		parent.Namespaces = append(parent.Namespaces, ns)
	}
	if ep.has("description") {
		ns.Description = ep.get("description")
	}
	for k, v := range ep.extraAttrs {
		if ns.ExtraAttrs == nil {
			ns.ExtraAttrs = make(map[string]string)
		}
		ns.ExtraAttrs[k] = v
	}
	ns.ExtraElems = append(ns.ExtraElems, ep.extraElems...)
	nsc := *sc
	nsc.ns = ns
	nsc.parent = ns
	if ep.has("endian") {
		e, ok := parseEndian(ep.get("endian"))
		if !ok {
			ep.semanticError("endian", fmt.Sprintf("invalid endian %q", ep.get("endian")))
			return false
		}
		nsc.endian = e
	}
	return p.parseNamespaceContent(ns, ep.childrenNamed(nsContentChildren...), &nsc)
}

// addNamespaceField parses a namespace level field, honouring replace="true"
// for fields previously marked reusable.
func (p *Protocol) addNamespaceField(ns *Namespace, node *Node, sc *scope) bool {
	f, ok := p.parseField(node, sc)
	if !ok {
		return false
	}
	name := f.Common().Name
	prev, idx := findByName(ns.Fields, name)
	if prev == nil {
		ns.Fields = append(ns.Fields, f)
		return true
	}
	rv, _ := node.Attr("replace")
	replace, _ := strToBool(rv)
	if !replace {
		p.logger.ErrorAt(SemanticValidationError, node.Loc, ExternalRef(ns),
			fmt.Sprintf("field %q is already defined at %s", name, prev.Common().Loc()))
		return false
	}
	if !prev.Common().Reusable {
		p.logger.ErrorAt(SemanticValidationError, node.Loc, ExternalRef(ns),
			fmt.Sprintf("field %q cannot be replaced, it is not marked reusable", name))
		return false
	}
	ns.Fields[idx] = f
	return true
}
