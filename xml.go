package commsdsl

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Node is one element of a parsed schema document.
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
	Text     string
	Loc      Location
}

type Attr struct {
	Name  string
	Value string
}

func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// ParseDocument reads a schema document into a parse tree. Only well-formedness
// is checked here; per-construct checks happen in newElemParser.
func ParseDocument(doc string, r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, _ := dec.InputPos()
			return nil, fmt.Errorf("%s:%d: malformed document: %v", doc, line, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := dec.InputPos()
			n := &Node{Name: qualifiedName(t.Name), Loc: Location{Doc: doc, Line: line}}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Name: qualifiedName(a.Name), Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%s:%d: multiple root elements", doc, line)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			n := stack[len(stack)-1]
			n.Text = strings.TrimSpace(n.Text)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%s: empty document", doc)
	}
	return root, nil
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	// The decoder reports the namespace URI, not the prefix; unbound prefixes
	// come through verbatim, which is how extra prefixed attributes arrive.
	if strings.Contains(name.Space, "/") || strings.Contains(name.Space, ":") {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// elemSchema declares the properties and child elements allowed for one
// construct. Properties may be given as attributes or as child elements.
type elemSchema struct {
	props    []string
	required []string
	children []string
}

func (s *elemSchema) extend(props, children []string) *elemSchema {
	return &elemSchema{
		props:    append(append([]string{}, s.props...), props...),
		required: s.required,
		children: append(append([]string{}, s.children...), children...),
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// elemParser is the structural view of one element: its properties,
// its recognised children and anything extra.
type elemParser struct {
	proto      *Protocol
	node       *Node
	props      map[string]string
	propLocs   map[string]*Node
	children   []*Node
	extraAttrs map[string]string
	extraElems []*Node
	ok         bool
}

func (p *Protocol) newElemParser(node *Node, schema *elemSchema) *elemParser {
	ep := &elemParser{
		proto:    p,
		node:     node,
		props:    make(map[string]string),
		propLocs: make(map[string]*Node),
		ok:       true,
	}
	for _, a := range node.Attrs {
		switch {
		case contains(schema.props, a.Name):
			ep.props[a.Name] = a.Value
		case p.isExtraName(a.Name):
			if ep.extraAttrs == nil {
				ep.extraAttrs = make(map[string]string)
			}
			ep.extraAttrs[a.Name] = a.Value
		default:
			ep.unexpected(node, fmt.Sprintf("unexpected attribute %q of <%s>", a.Name, node.Name))
		}
	}
	for _, c := range node.Children {
		switch {
		case contains(schema.children, c.Name) && (len(c.Children) > 0 || !contains(schema.props, c.Name)):
			// Elements that may also wrap an inline field definition.
			ep.children = append(ep.children, c)
		case contains(schema.props, c.Name):
			if _, dup := ep.props[c.Name]; dup {
				ep.structureError(c, fmt.Sprintf("property %q of <%s> is defined more than once", c.Name, node.Name))
				continue
			}
			v, ok := c.Attr("value")
			if !ok {
				v = c.Text
			}
			ep.props[c.Name] = v
			ep.propLocs[c.Name] = c
		case p.isExtraName(c.Name):
			ep.extraElems = append(ep.extraElems, c)
		default:
			ep.unexpected(c, fmt.Sprintf("unexpected element <%s> in <%s>", c.Name, node.Name))
		}
	}
	for _, req := range schema.required {
		if _, ok := ep.props[req]; !ok {
			ep.structureError(node, fmt.Sprintf("missing required property %q of <%s>", req, node.Name))
		}
	}
	return ep
}

func (ep *elemParser) unexpected(n *Node, msg string) {
	if ep.proto.Strict {
		ep.structureError(n, msg)
		return
	}
	ep.proto.logger.WarningAt(n.Loc, "", msg)
}

func (ep *elemParser) structureError(n *Node, msg string) {
	ep.ok = false
	ep.proto.logger.ErrorAt(StructuralParseError, n.Loc, "", msg)
}

func (ep *elemParser) has(name string) bool {
	_, ok := ep.props[name]
	return ok
}

func (ep *elemParser) get(name string) string {
	return ep.props[name]
}

func (ep *elemParser) locOf(name string) Location {
	if n, ok := ep.propLocs[name]; ok {
		return n.Loc
	}
	return ep.node.Loc
}

// boolProp reads an optional boolean property, keeping def when absent.
func (ep *elemParser) boolProp(name string, def bool) (bool, bool) {
	v, ok := ep.props[name]
	if !ok {
		return def, true
	}
	b, valid := strToBool(v)
	if !valid {
		ep.semanticError(name, fmt.Sprintf("invalid boolean value %q of property %q", v, name))
		return def, false
	}
	return b, true
}

func (ep *elemParser) uintProp(name string, def uint) (uint, bool) {
	v, ok := ep.props[name]
	if !ok {
		return def, true
	}
	n, err := strToInt(v)
	if err != nil || n < 0 {
		ep.semanticError(name, fmt.Sprintf("invalid unsigned value %q of property %q", v, name))
		return def, false
	}
	return uint(n), true
}

func (ep *elemParser) semanticError(prop, msg string) {
	ep.ok = false
	ep.proto.logger.ErrorAt(SemanticValidationError, ep.locOf(prop), "", msg)
}

func (ep *elemParser) childrenNamed(names ...string) []*Node {
	var result []*Node
	for _, c := range ep.children {
		if contains(names, c.Name) {
			result = append(result, c)
		}
	}
	return result
}
