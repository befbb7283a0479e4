package commsdsl

import (
	"fmt"
	"sort"
	"strings"
)

// walkField visits f and every field it owns, depth first in declaration order.
func walkField(f Field, visit func(Field)) {
	visit(f)
	for _, m := range f.owned() {
		walkField(m, visit)
	}
}

func walkNamespaces(ns *Namespace, visit func(*Namespace)) {
	visit(ns)
	for _, c := range ns.Namespaces {
		walkNamespaces(c, visit)
	}
}

// topFields returns every field list directly held by a namespace, message,
// interface or layer of the protocol.
func (p *Protocol) topFields() []Field {
	var result []Field
	for _, s := range p.Schemas {
		walkNamespaces(s.Root, func(ns *Namespace) {
			result = append(result, ns.Fields...)
			for _, i := range ns.Interfaces {
				result = append(result, i.Fields...)
			}
			for _, m := range ns.Messages {
				result = append(result, m.Fields...)
			}
			for _, fr := range ns.Frames {
				for _, l := range fr.Layers {
					if l.Field != nil {
						result = append(result, l.Field)
					}
				}
			}
		})
	}
	return result
}

func (p *Protocol) allFields() []Field {
	var result []Field
	for _, f := range p.topFields() {
		walkField(f, func(f Field) { result = append(result, f) })
	}
	return result
}

// refState is one binding pass over ref fields. A ref whose path runs
// through other refs binds those first, so the outcome does not depend on
// declaration order.
type refState struct {
	bound    map[*RefField]error
	visiting map[*RefField]bool
}

func newRefState() *refState {
	return &refState{bound: make(map[*RefField]error), visiting: make(map[*RefField]bool)}
}

// bindRef sets the target of r, at most once per pass.
func (p *Protocol) bindRef(r *RefField, st *refState) error {
	if err, done := st.bound[r]; done {
		return err
	}
	if st.visiting[r] {
		return fmt.Errorf("reference cycle detected through %s -> %s", r.ExternalRef(), r.FieldRef)
	}
	st.visiting[r] = true
	target, err := p.resolveFieldRef(r.ns, r.FieldRef, st)
	delete(st.visiting, r)
	if err == nil && target == Field(r) {
		err = fmt.Errorf("reference cycle detected: %s -> %s", r.ExternalRef(), r.FieldRef)
	}
	r.Target = target
	if err != nil {
		r.Target = nil
	}
	st.bound[r] = err
	return err
}

// derefBound follows f through refs, binding each of them in st.
func (p *Protocol) derefBound(f Field, st *refState) (Field, error) {
	start := f
	for i := 0; i < 64; i++ {
		r, isRef := f.(*RefField)
		if !isRef {
			return f, nil
		}
		if err := p.bindRef(r, st); err != nil {
			return nil, fmt.Errorf("field %q is not resolved: %v", r.Name, err)
		}
		f = r.Target
	}
	return nil, fmt.Errorf("reference cycle detected through %s", start.ExternalRef())
}

// resolve binds ref fields, message id references and aliases. Every failure
// is reported before returning so that all resolution errors surface together.
func (p *Protocol) resolve() bool {
	ok := true
	fields := p.allFields()
	st := newRefState()
	for _, f := range fields {
		r, isRef := f.(*RefField)
		if !isRef {
			continue
		}
		if err := p.bindRef(r, st); err != nil {
			p.logger.ErrorAt(ResolutionError, r.Loc(), r.ExternalRef(), err.Error())
			ok = false
		}
	}
	for _, s := range p.Schemas {
		walkNamespaces(s.Root, func(ns *Namespace) {
			for _, m := range ns.Messages {
				if m.IDRef == "" {
					continue
				}
				v, found := p.lookupValue(ns, m.IDRef)
				if !found {
					p.logger.ErrorAt(ResolutionError, m.Loc(), m.ExternalRef(),
						fmt.Sprintf("message id %q does not name a known value", m.IDRef))
					ok = false
					continue
				}
				m.ID = v
			}
		})
	}
	if !p.detectCycles(fields) {
		return false
	}
	p.forEachContainer(func(owner Elem, members []Field, aliases []*Alias) {
		if len(aliases) > 0 && !p.resolveAliases(members, aliases) {
			ok = false
		}
	})
	return ok
}

// detectCycles walks ownership and reference edges from every ref field and
// reports each reference cycle once.
func (p *Protocol) detectCycles(fields []Field) bool {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[Field]int)
	var stack []Field
	var visit func(f Field) int
	visit = func(f Field) int {
		switch state[f] {
		case visiting:
			for i := range stack {
				if stack[i] == f {
					return i
				}
			}
		case done:
			return -1
		}
		state[f] = visiting
		stack = append(stack, f)
		next := f.owned()
		if r, ok := f.(*RefField); ok && r.Target != nil {
			next = append(next[:len(next):len(next)], r.Target)
		}
		for _, n := range next {
			if start := visit(n); start >= 0 {
				return start
			}
		}
		stack = stack[:len(stack)-1]
		state[f] = done
		return -1
	}
	ok := true
	for _, f := range fields {
		if _, isRef := f.(*RefField); !isRef || state[f] == done {
			continue
		}
		stack = stack[:0]
		start := visit(f)
		if start < 0 {
			continue
		}
		var chain []string
		for _, s := range stack[start:] {
			if r, isRef := s.(*RefField); isRef {
				chain = append(chain, r.ExternalRef()+" -> "+r.FieldRef)
			}
		}
		closing := stack[start]
		p.logger.ErrorAt(ResolutionError, closing.Common().Loc(), closing.ExternalRef(),
			"reference cycle detected: "+strings.Join(chain, ", "))
		for _, s := range stack {
			state[s] = done
		}
		ok = false
	}
	return ok
}

// forEachContainer visits every ordered member list: messages, interfaces,
// bundles, bitfields and variants wherever they are defined. Fields owned by
// any other kind, such as list elements and prefixes or the field wrapped by
// an optional, are visited as lists of their own since they have no siblings.
func (p *Protocol) forEachContainer(visit func(owner Elem, members []Field, aliases []*Alias)) {
	var visitField func(f Field)
	visitField = func(f Field) {
		switch ff := f.(type) {
		case *BundleField:
			visit(ff, ff.Members, ff.Aliases)
		case *BitfieldField:
			visit(ff, ff.Members, nil)
		case *VariantField:
			visit(ff, ff.Members, nil)
		default:
			for _, m := range f.owned() {
				visit(f, []Field{m}, nil)
			}
		}
		for _, m := range f.owned() {
			visitField(m)
		}
	}
	for _, s := range p.Schemas {
		walkNamespaces(s.Root, func(ns *Namespace) {
			for _, f := range ns.Fields {
				visitField(f)
			}
			for _, i := range ns.Interfaces {
				visit(i, i.Fields, i.Aliases)
				for _, f := range i.Fields {
					visitField(f)
				}
			}
			for _, m := range ns.Messages {
				visit(m, m.Fields, m.Aliases)
				for _, f := range m.Fields {
					visitField(f)
				}
			}
			for _, fr := range ns.Frames {
				for _, l := range fr.Layers {
					if l.Field != nil {
						visitField(l.Field)
					}
				}
			}
		})
	}
}

type resolvedChecker interface {
	checkResolved(p *Protocol) bool
}

// crossValidate runs the checks that need resolved references.
func (p *Protocol) crossValidate() bool {
	ok := true
	for _, f := range p.allFields() {
		if c, is := f.(resolvedChecker); is && !c.checkResolved(p) {
			ok = false
		}
		if b, is := f.(*BundleField); is && b.ValidateMinLength > 0 && b.MinLength() != b.ValidateMinLength {
			p.logger.ErrorAt(SemanticValidationError, b.Loc(), b.ExternalRef(),
				fmt.Sprintf("minimal length is %d, expected %d", b.MinLength(), b.ValidateMinLength))
			ok = false
		}
	}
	p.forEachContainer(func(owner Elem, members []Field, _ []*Alias) {
		if !p.checkSiblings(members) {
			ok = false
		}
	})
	for _, s := range p.Schemas {
		ok = p.checkMessages(s) && ok
		walkNamespaces(s.Root, func(ns *Namespace) {
			for _, fr := range ns.Frames {
				ok = p.checkFrameFields(s, fr) && ok
			}
		})
	}
	return ok
}

// checkSiblings verifies optional conditions and detached prefixes against
// the fields preceding them.
func (p *Protocol) checkSiblings(members []Field) bool {
	ok := true
	for i, m := range members {
		path := m.ExternalRef()
		if opt, is := Deref(m).(*OptionalField); is && opt.Cond != nil {
			if !p.verifyCond(opt.Cond, members, i, m.Common().Loc(), path) {
				ok = false
			}
		}
		var detached []string
		switch f := m.(type) {
		case *StringField:
			detached = append(detached, f.DetachedPrefix)
		case *DataField:
			detached = append(detached, f.DetachedPrefix)
		case *ListField:
			detached = append(detached, f.DetachedCountPrefix, f.DetachedLengthPrefix, f.DetachedElemLengthPrefix)
		}
		for _, name := range detached {
			if name == "" {
				continue
			}
			sib, idx := findByName(members, name)
			switch {
			case sib == nil:
				p.logger.ErrorAt(SemanticValidationError, m.Common().Loc(), path,
					fmt.Sprintf("detached prefix %q is not a sibling field", name))
				ok = false
			case idx >= i:
				p.logger.ErrorAt(SemanticValidationError, m.Common().Loc(), path,
					fmt.Sprintf("detached prefix %q must precede the field", name))
				ok = false
			default:
				if _, isInt := Deref(sib).(*IntField); !isInt {
					p.logger.ErrorAt(SemanticValidationError, m.Common().Loc(), path,
						fmt.Sprintf("detached prefix %q must be an int field", name))
					ok = false
				}
			}
		}
	}
	return ok
}

func (p *Protocol) checkMessages(s *Schema) bool {
	ok := true
	seen := make(map[int64]*Message)
	walkNamespaces(s.Root, func(ns *Namespace) {
		for _, m := range ns.Messages {
			if m.ValidateMinLength > 0 && m.MinLength() != m.ValidateMinLength {
				p.logger.ErrorAt(SemanticValidationError, m.Loc(), m.ExternalRef(),
					fmt.Sprintf("minimal length is %d, expected %d", m.MinLength(), m.ValidateMinLength))
				ok = false
			}
			if s.NonUniqueMsgIdAllowed {
				continue
			}
			if prev, dup := seen[m.ID]; dup {
				p.logger.ErrorAt(SemanticValidationError, m.Loc(), m.ExternalRef(),
					fmt.Sprintf("message id %d is already used by %q", m.ID, prev.ExternalRef()))
				ok = false
				continue
			}
			seen[m.ID] = m
		}
	})
	return ok
}

func (p *Protocol) checkFrameFields(s *Schema, fr *Frame) bool {
	ok := true
	for _, l := range fr.Layers {
		if l.Field == nil {
			continue
		}
		fail := func(msg string) {
			p.logger.ErrorAt(SemanticValidationError, l.Loc(), l.ExternalRef(), msg)
			ok = false
		}
		f := Deref(l.Field)
		switch l.Kind {
		case LayerSize, LayerSync:
			if f.Kind() != KindInt && !(l.Kind == LayerSync && f.Kind() == KindData) {
				fail(fmt.Sprintf("%s layer field must be an int, got %s", l.Kind, f.Kind()))
			}
		case LayerID:
			if f.Kind() != KindInt && f.Kind() != KindEnum {
				fail(fmt.Sprintf("id layer field must be an int or enum, got %s", f.Kind()))
			}
		case LayerChecksum:
			if (f.Kind() != KindInt && f.Kind() != KindData) || f.MinLength() != f.MaxLength() {
				fail("checksum layer field must be a fixed length int or data")
			}
		case LayerValue:
			ifaces := l.Interfaces
			if len(ifaces) == 0 {
				walkNamespaces(s.Root, func(ns *Namespace) {
					for _, i := range ns.Interfaces {
						ifaces = append(ifaces, i.ExternalRef())
					}
				})
			}
			if len(ifaces) == 0 {
				fail(fmt.Sprintf("value layer refers to interface field %q but no interface is defined", l.InterfaceFieldName))
			}
			for _, name := range ifaces {
				iface := p.lookupInterface(s.Root, name)
				if iface == nil {
					fail(fmt.Sprintf("interface %q is not defined", name))
					continue
				}
				if f, _ := findByName(iface.Fields, l.InterfaceFieldName); f == nil {
					fail(fmt.Sprintf("interface %q has no field %q", name, l.InterfaceFieldName))
				}
			}
		}
	}
	return ok
}

// synthesizeDefaultInterface adds an empty interface to the protocol schema
// when none is declared, so every backend sees at least one.
func (p *Protocol) synthesizeDefaultInterface() {
	s := p.CurrentSchema()
	found := false
	walkNamespaces(s.Root, func(ns *Namespace) {
		found = found || len(ns.Interfaces) > 0
	})
	if found {
		return
	}
	s.Root.Interfaces = append(s.Root.Interfaces, &Interface{Name: "Message", Synthesized: true, parent: s.Root})
}

// markReferenced flags the elements used by the protocol schema: its frames
// and interfaces, its messages, and transitively every field they use.
func (p *Protocol) markReferenced() {
	s := p.CurrentSchema()
	walkNamespaces(s.Root, func(ns *Namespace) {
		for _, i := range ns.Interfaces {
			i.referenced = true
			for _, f := range i.Fields {
				markField(f)
			}
		}
		for _, fr := range ns.Frames {
			fr.referenced = true
			for _, l := range fr.Layers {
				if l.Field != nil {
					markField(l.Field)
				}
			}
		}
		for _, m := range ns.Messages {
			if !p.AllMessagesReferenced {
				continue
			}
			m.referenced = true
			for _, f := range m.Fields {
				markField(f)
			}
		}
	})
	for _, sch := range p.Schemas {
		walkNamespaces(sch.Root, func(ns *Namespace) {
			for _, f := range ns.Fields {
				if f.Common().ForceGen {
					markField(f)
				}
			}
		})
	}
}

func markField(f Field) {
	c := f.Common()
	if c.referenced {
		return
	}
	c.referenced = true
	for _, m := range f.owned() {
		markField(m)
	}
	if r, ok := f.(*RefField); ok && r.Target != nil {
		markField(r.Target)
	}
}

// MarkMessageReferenced flags a message, and the fields it uses, as used.
// Generators call it for messages selected explicitly when
// AllMessagesReferenced is off.
func MarkMessageReferenced(m *Message) {
	m.referenced = true
	for _, f := range m.Fields {
		markField(f)
	}
}

func sortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].ID != msgs[j].ID {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Order < msgs[j].Order
	})
}
