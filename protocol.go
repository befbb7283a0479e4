package commsdsl

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Protocol is the compilation unit: every schema document parsed into one
// object model. The last schema is the protocol schema, the others are
// dependencies it may reference with "@Schema." paths.
type Protocol struct {
	Schemas []*Schema
	// Strict turns unexpected attributes and elements into errors.
	Strict bool
	// AllMessagesReferenced marks every message as used, keeping it for
	// generation even when no frame or field refers to it.
	AllMessagesReferenced bool

	logger        *Logger
	extraPrefixes []string
	validated     bool
}

func NewProtocol(logger *Logger) *Protocol {
	if logger == nil {
		logger = NewLogger(os.Stderr)
	}
	return &Protocol{logger: logger, AllMessagesReferenced: true}
}

func (p *Protocol) Logger() *Logger {
	return p.logger
}

// AddExpectedExtraPrefix registers a prefix of attribute and element names that
// are kept as extra information instead of being reported.
func (p *Protocol) AddExpectedExtraPrefix(prefix string) {
	if !contains(p.extraPrefixes, prefix) {
		p.extraPrefixes = append(p.extraPrefixes, prefix)
	}
}

func (p *Protocol) isExtraName(name string) bool {
	for _, prefix := range p.extraPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func (p *Protocol) ParseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		p.logger.Error(err.Error())
		return p.logger.Err()
	}
	return p.ParseData(path, data)
}

// ParseData parses one schema document. Errors are reported to the logger and
// returned together.
func (p *Protocol) ParseData(name string, data []byte) error {
	if p.validated {
		return fmt.Errorf("%s: protocol is already validated", name)
	}
	p.logger.addSource(name, data)
	root, err := ParseDocument(name, bytes.NewReader(data))
	if err != nil {
		p.logger.Report(&Report{Level: LevelError, Kind: StructuralParseError, Msg: err.Error()})
		return p.logger.Err()
	}
	p.parseSchemaNode(root)
	return p.logger.Err()
}

// Validate runs the post parse passes: reference resolution, cross element
// checks, default interface synthesis and referenced marking.
func (p *Protocol) Validate() error {
	if err := p.logger.Err(); err != nil {
		return err
	}
	if len(p.Schemas) == 0 {
		p.logger.Error("no schema was parsed")
		return p.logger.Err()
	}
	if !p.resolve() {
		return p.logger.Err()
	}
	if !p.crossValidate() {
		return p.logger.Err()
	}
	p.synthesizeDefaultInterface()
	p.markReferenced()
	p.validated = true
	return p.logger.Err()
}

// CurrentSchema is the protocol schema, defined by the last parsed document.
func (p *Protocol) CurrentSchema() *Schema {
	if len(p.Schemas) == 0 {
		return nil
	}
	return p.Schemas[len(p.Schemas)-1]
}

// FindField looks up a namespace level field by its external reference,
// relative to the protocol schema unless prefixed with "@Schema.".
func (p *Protocol) FindField(ref string) Field {
	s := p.CurrentSchema()
	if s == nil {
		return nil
	}
	return p.lookupField(s.Root, ref)
}

func (p *Protocol) FindMessage(ref string) *Message {
	s := p.CurrentSchema()
	if s == nil {
		return nil
	}
	return p.lookupMessage(s.Root, ref)
}

func (p *Protocol) FindInterface(ref string) *Interface {
	s := p.CurrentSchema()
	if s == nil {
		return nil
	}
	return p.lookupInterface(s.Root, ref)
}

// AllMessages returns the messages of the protocol schema ordered by id and
// then by order.
func (p *Protocol) AllMessages() []*Message {
	s := p.CurrentSchema()
	if s == nil {
		return nil
	}
	msgs := namespaceMessages(s.Root)
	sortMessages(msgs)
	return msgs
}

func (p *Protocol) Platforms() []string {
	s := p.CurrentSchema()
	if s == nil {
		return nil
	}
	return s.Platforms
}

func namespaceMessages(ns *Namespace) []*Message {
	result := append([]*Message(nil), ns.Messages...)
	for _, c := range ns.Namespaces {
		result = append(result, namespaceMessages(c)...)
	}
	return result
}

// lookupPath splits an external reference into the namespace it lives in and
// the remaining element path, walking from ns. A "@Schema." prefix starts at
// that schema's root.
func (p *Protocol) lookupPath(ns *Namespace, ref string) (*Namespace, []string, error) {
	if strings.HasPrefix(ref, "@") {
		schemaName, rest, _ := strings.Cut(ref[1:], ".")
		s := p.findSchema(schemaName)
		if s == nil {
			return nil, nil, fmt.Errorf("schema %q is not defined", schemaName)
		}
		ns, ref = s.Root, rest
	}
	parts := strings.Split(ref, ".")
	cur := ns
	i := 0
	for ; i < len(parts)-1; i++ {
		next := cur.FindNamespace(parts[i])
		if next == nil {
			break
		}
		cur = next
	}
	return cur, parts[i:], nil
}

// resolveFieldRef finds the field named by ref, searching from the innermost
// namespace outwards. Paths may continue into bundle and bitfield members,
// through refs that are bound on the way.
func (p *Protocol) resolveFieldRef(ns *Namespace, ref string, st *refState) (Field, error) {
	absolute := strings.HasPrefix(ref, "@")
	var firstErr error
	for cur := ns; cur != nil; cur = cur.parentNamespace() {
		target, rest, err := p.lookupPath(cur, ref)
		if err != nil {
			return nil, err
		}
		f := target.FindField(rest[0])
		if f == nil {
			if firstErr == nil {
				if len(rest) > 1 {
					firstErr = fmt.Errorf("namespace %q is not defined", joinPath(ExternalRef(target), rest[0]))
				} else {
					firstErr = fmt.Errorf("field %q is not defined", ref)
				}
			}
			if absolute {
				break
			}
			continue
		}
		sub, err := findSubField(f, strings.Join(rest[1:], "."), func(f Field) (Field, error) {
			return p.derefBound(f, st)
		})
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("field %q is not defined", ref)
	}
	return nil, firstErr
}

func (p *Protocol) lookupField(ns *Namespace, ref string) Field {
	f, _ := p.resolveFieldRef(ns, ref, newRefState())
	return f
}

func (p *Protocol) lookupMessage(ns *Namespace, ref string) *Message {
	for cur := ns; cur != nil; cur = cur.parentNamespace() {
		target, rest, err := p.lookupPath(cur, ref)
		if err != nil {
			return nil
		}
		if len(rest) == 1 {
			if m := target.FindMessage(rest[0]); m != nil {
				return m
			}
		}
	}
	return nil
}

func (p *Protocol) lookupInterface(ns *Namespace, ref string) *Interface {
	for cur := ns; cur != nil; cur = cur.parentNamespace() {
		target, rest, err := p.lookupPath(cur, ref)
		if err != nil {
			return nil
		}
		if len(rest) == 1 {
			if i := target.FindInterface(rest[0]); i != nil {
				return i
			}
		}
	}
	return nil
}

// lookupValue evaluates "Field.Value" references: an enum value or an int
// special value of a namespace level field.
func (p *Protocol) lookupValue(ns *Namespace, ref string) (int64, bool) {
	if ns == nil || !IsValidRefName(ref) {
		return 0, false
	}
	fieldRef, valueName := splitRef(ref)
	if fieldRef == "" || fieldRef == "@" {
		return 0, false
	}
	st := newRefState()
	f, err := p.resolveFieldRef(ns, fieldRef, st)
	if err != nil {
		return 0, false
	}
	if f, err = p.derefBound(f, st); err != nil {
		return 0, false
	}
	switch f := f.(type) {
	case *EnumField:
		if v, ok := f.FindValue(valueName); ok {
			return v.Value, true
		}
	case *IntField:
		if sp, ok := f.FindSpecial(valueName); ok {
			return sp.Value, true
		}
	}
	return 0, false
}
