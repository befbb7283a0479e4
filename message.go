package commsdsl

import (
	"fmt"
	"strings"
)

type Sender int

const (
	SenderBoth Sender = iota
	SenderClient
	SenderServer
)

func (s Sender) String() string {
	switch s {
	case SenderClient:
		return "client"
	case SenderServer:
		return "server"
	}
	return "both"
}

func (s Sender) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Message struct {
	Name              string            `json:"name"`
	DisplayName       string            `json:"displayName,omitempty"`
	Description       string            `json:"description,omitempty"`
	ID                int64             `json:"id"`
	IDRef             string            `json:"-"`
	Order             uint              `json:"order,omitempty"`
	SinceVersion      uint              `json:"sinceVersion,omitempty"`
	DeprecatedSince   uint              `json:"deprecated,omitempty"`
	Removed           bool              `json:"removed,omitempty"`
	Platforms         []string          `json:"platforms,omitempty"`
	Sender            Sender            `json:"sender"`
	Fields            []Field           `json:"fields,omitempty"`
	Aliases           []*Alias          `json:"aliases,omitempty"`
	Customizable      bool              `json:"customizable,omitempty"`
	Reusable          bool              `json:"reusable,omitempty"`
	ValidateMinLength int               `json:"validateMinLength,omitempty"`
	ExtraAttrs        map[string]string `json:"extraAttrs,omitempty"`
	ExtraElems        []*Node           `json:"-"`

	parent     Elem
	node       *Node
	referenced bool
}

func (m *Message) ElemName() string    { return m.Name }
func (m *Message) ElemKind() ElemKind  { return ElemMessage }
func (m *Message) ElemParent() Elem    { return m.parent }
func (m *Message) ExternalRef() string { return ExternalRef(m) }
func (m *Message) Referenced() bool    { return m.referenced }
func (m *Message) Node() *Node         { return m.node }

func (m *Message) Loc() Location {
	if m.node == nil {
		return Location{}
	}
	return m.node.Loc
}

func (m *Message) MinLength() int { return sumMinLength(m.Fields) }
func (m *Message) MaxLength() int { return sumMaxLength(m.Fields) }

var messageChildren = append([]string{"fields", "members", "alias"}, fieldKindNames...)

var messageSchema = &elemSchema{
	props: []string{"name", "id", "displayName", "description", "order", "sinceVersion", "deprecated", "removed",
		"platforms", "sender", "copyFieldsFrom", "copyFieldsAliases", "customizable", "reusable", "extend",
		"replace", "validateMinLength", "reuseAliases"},
	required: []string{"name"},
	children: messageChildren,
}

func (p *Protocol) parseMessage(ns *Namespace, node *Node, sc *scope) bool {
	ep := p.newElemParser(node, messageSchema)
	if !ep.ok {
		return false
	}
	name := ep.get("name")
	path := joinPath(ExternalRef(ns), name)
	fail := func(msg string) bool {
		p.logger.ErrorAt(SemanticValidationError, node.Loc, path, msg)
		return false
	}
	if !IsValidName(name) {
		return fail(fmt.Sprintf("invalid message name %q", name))
	}
	extend, ok := ep.boolProp("extend", false)
	if !ok {
		return false
	}
	replace, ok := ep.boolProp("replace", false)
	if !ok {
		return false
	}
	prev := ns.FindMessage(name)
	switch {
	case prev != nil && extend:
		return p.extendMessage(prev, ep, sc)
	case prev != nil && replace && !prev.Reusable:
		return fail(fmt.Sprintf("message %q cannot be replaced, it is not marked reusable", name))
	case prev != nil && !replace:
		return fail(fmt.Sprintf("message %q is already defined at %s", name, prev.Loc()))
	case prev == nil && extend:
		return fail(fmt.Sprintf("message %q to extend is not defined", name))
	}
	m := &Message{
		Name:            name,
		DisplayName:     ep.get("displayName"),
		Description:     ep.get("description"),
		DeprecatedSince: NotYetDeprecated,
		ExtraAttrs:      ep.extraAttrs,
		ExtraElems:      ep.extraElems,
		parent:          ns,
		node:            node,
	}
	if !ep.has("id") {
		return fail("message requires the \"id\" property")
	}
	if v, err := strToInt(ep.get("id")); err == nil {
		m.ID = v
	} else if v, found := p.lookupValue(ns, ep.get("id")); found {
		m.ID = v
	} else if IsValidRefName(ep.get("id")) {
		// Defined in a later document; bound by the resolver.
		m.IDRef = ep.get("id")
	} else {
		return fail(fmt.Sprintf("invalid message id %q", ep.get("id")))
	}
	if m.Order, ok = ep.uintProp("order", 0); !ok {
		return false
	}
	if !p.parseVersions(ep, path, sc, &m.SinceVersion, &m.DeprecatedSince, &m.Removed) {
		return false
	}
	if ep.has("sender") {
		switch strings.ToLower(ep.get("sender")) {
		case "both":
			m.Sender = SenderBoth
		case "client":
			m.Sender = SenderClient
		case "server":
			m.Sender = SenderServer
		default:
			return fail(fmt.Sprintf("invalid sender %q", ep.get("sender")))
		}
	}
	if ep.has("platforms") {
		m.Platforms = splitList(ep.get("platforms"))
		for _, pl := range m.Platforms {
			if !contains(sc.schema.Platforms, pl) {
				return fail(fmt.Sprintf("platform %q is not declared by schema %q", pl, sc.schema.Name))
			}
		}
	}
	if m.Customizable, ok = ep.boolProp("customizable", false); !ok {
		return false
	}
	if m.Reusable, ok = ep.boolProp("reusable", false); !ok {
		return false
	}
	if ep.has("validateMinLength") {
		n, err := strToInt(ep.get("validateMinLength"))
		if err != nil || n < 0 {
			return fail(fmt.Sprintf("invalid validateMinLength %q", ep.get("validateMinLength")))
		}
		m.ValidateMinLength = int(n)
	}
	msc := sc.child(m, m.SinceVersion, m.DeprecatedSince)
	if ep.has("copyFieldsFrom") {
		fields, aliases, ok := p.copyFieldsFrom(ns, ep, path)
		if !ok {
			return false
		}
		m.Fields = cloneFields(fields)
		copyAliases, ok := ep.boolProp("copyFieldsAliases", true)
		if !ok {
			return false
		}
		if copyAliases {
			m.Aliases = cloneAliases(aliases, m)
		}
		for _, f := range m.Fields {
			f.Common().parent = m
			reparent(f)
		}
	}
	if !p.parseContainerContent(m, &m.Fields, &m.Aliases, ep, msc, path) {
		return false
	}
	if prev != nil {
		for i, cur := range ns.Messages {
			if cur == prev {
				ns.Messages[i] = m
			}
		}
		return true
	}
	ns.Messages = append(ns.Messages, m)
	return true
}

// extendMessage appends the fields and aliases of a later definition to an
// existing message.
func (p *Protocol) extendMessage(m *Message, ep *elemParser, sc *scope) bool {
	msc := sc.child(m, m.SinceVersion, m.DeprecatedSince)
	return p.parseContainerContent(m, &m.Fields, &m.Aliases, ep, msc, ExternalRef(m))
}

// parseContainerContent parses the member fields and aliases of a message or
// an interface, appending them to the existing ones.
func (p *Protocol) parseContainerContent(owner Elem, fields *[]Field, aliases *[]*Alias, ep *elemParser, sc *scope, path string) bool {
	members, ok := p.parseMembers(ep.childrenNamed(append([]string{"fields", "members"}, fieldKindNames...)...), sc)
	if !ok {
		return false
	}
	*fields = append(*fields, members...)
	if !p.checkUniqueNames(*fields, path) {
		return false
	}
	*aliases, ok = p.parseAliases(ep.childrenNamed("alias"), owner, *aliases)
	return ok
}

// copyFieldsFrom finds the message, interface or bundle whose fields are the
// starting point of a new definition.
func (p *Protocol) copyFieldsFrom(ns *Namespace, ep *elemParser, path string) ([]Field, []*Alias, bool) {
	ref := ep.get("copyFieldsFrom")
	if m := p.lookupMessage(ns, ref); m != nil {
		return m.Fields, m.Aliases, true
	}
	if i := p.lookupInterface(ns, ref); i != nil {
		return i.Fields, i.Aliases, true
	}
	if f := p.lookupField(ns, ref); f != nil {
		d, _ := p.derefBound(f, newRefState())
		if b, ok := d.(*BundleField); ok {
			return b.Members, b.Aliases, true
		}
		p.logger.ErrorAt(SemanticValidationError, ep.locOf("copyFieldsFrom"), path,
			fmt.Sprintf("cannot copy fields from %s field %q", f.Kind(), ref))
		return nil, nil, false
	}
	p.logger.ErrorAt(ResolutionError, ep.locOf("copyFieldsFrom"), path,
		fmt.Sprintf("element %q to copy fields from is not defined", ref))
	return nil, nil, false
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// Interface describes the fields common to every message of a frame.
type Interface struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Fields      []Field           `json:"fields,omitempty"`
	Aliases     []*Alias          `json:"aliases,omitempty"`
	Reusable    bool              `json:"reusable,omitempty"`
	Synthesized bool              `json:"synthesized,omitempty"`
	ExtraAttrs  map[string]string `json:"extraAttrs,omitempty"`
	ExtraElems  []*Node           `json:"-"`

	parent     Elem
	node       *Node
	referenced bool
}

func (i *Interface) ElemName() string    { return i.Name }
func (i *Interface) ElemKind() ElemKind  { return ElemInterface }
func (i *Interface) ElemParent() Elem    { return i.parent }
func (i *Interface) ExternalRef() string { return ExternalRef(i) }
func (i *Interface) Referenced() bool    { return i.referenced }

func (i *Interface) Loc() Location {
	if i.node == nil {
		return Location{}
	}
	return i.node.Loc
}

var interfaceSchema = &elemSchema{
	props: []string{"name", "description", "copyFieldsFrom", "copyFieldsAliases", "reusable", "extend",
		"replace", "reuseAliases"},
	required: []string{"name"},
	children: messageChildren,
}

func (p *Protocol) parseInterface(ns *Namespace, node *Node, sc *scope) bool {
	ep := p.newElemParser(node, interfaceSchema)
	if !ep.ok {
		return false
	}
	name := ep.get("name")
	path := joinPath(ExternalRef(ns), name)
	fail := func(msg string) bool {
		p.logger.ErrorAt(SemanticValidationError, node.Loc, path, msg)
		return false
	}
	if !IsValidName(name) {
		return fail(fmt.Sprintf("invalid interface name %q", name))
	}
	extend, ok := ep.boolProp("extend", false)
	if !ok {
		return false
	}
	replace, ok := ep.boolProp("replace", false)
	if !ok {
		return false
	}
	prev := ns.FindInterface(name)
	switch {
	case prev != nil && extend:
		isc := sc.child(prev, sc.since, sc.deprecated)
		return p.parseContainerContent(prev, &prev.Fields, &prev.Aliases, ep, isc, path)
	case prev != nil && replace && !prev.Reusable:
		return fail(fmt.Sprintf("interface %q cannot be replaced, it is not marked reusable", name))
	case prev != nil && !replace:
		return fail(fmt.Sprintf("interface %q is already defined at %s", name, prev.Loc()))
	case prev == nil && extend:
		return fail(fmt.Sprintf("interface %q to extend is not defined", name))
	}
	iface := &Interface{
		Name:        name,
		Description: ep.get("description"),
		ExtraAttrs:  ep.extraAttrs,
		ExtraElems:  ep.extraElems,
		parent:      ns,
		node:        node,
	}
	if iface.Reusable, ok = ep.boolProp("reusable", false); !ok {
		return false
	}
	if ep.has("copyFieldsFrom") {
		fields, aliases, ok := p.copyFieldsFrom(ns, ep, path)
		if !ok {
			return false
		}
		iface.Fields = cloneFields(fields)
		copyAliases, ok := ep.boolProp("copyFieldsAliases", true)
		if !ok {
			return false
		}
		if copyAliases {
			iface.Aliases = cloneAliases(aliases, iface)
		}
		for _, f := range iface.Fields {
			f.Common().parent = iface
			reparent(f)
		}
	}
	isc := sc.child(iface, sc.since, sc.deprecated)
	if !p.parseContainerContent(iface, &iface.Fields, &iface.Aliases, ep, isc, path) {
		return false
	}
	if prev != nil {
		for i, cur := range ns.Interfaces {
			if cur == prev {
				ns.Interfaces[i] = iface
			}
		}
		return true
	}
	ns.Interfaces = append(ns.Interfaces, iface)
	return true
}
