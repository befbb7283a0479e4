package commsdsl

import (
	"fmt"
	"math"
	"strings"
)

// NotYetDeprecated is the DeprecatedSince value of an element that was never deprecated.
const NotYetDeprecated = uint(math.MaxUint32)

// MaxLengthUnbounded is reported by MaxLength for fields without an upper bound.
const MaxLengthUnbounded = math.MaxInt32

type ElemKind int

const (
	ElemSchema ElemKind = iota
	ElemNamespace
	ElemInterface
	ElemMessage
	ElemFrame
	ElemField
	ElemLayer
)

// Elem is implemented by every node of the object model. Parent links are
// non-owning.
type Elem interface {
	ElemName() string
	ElemKind() ElemKind
	ElemParent() Elem
}

// ExternalRef returns the dotted path of e from its schema root.
func ExternalRef(e Elem) string {
	if e == nil || e.ElemKind() == ElemSchema {
		return ""
	}
	return joinPath(ExternalRef(e.ElemParent()), e.ElemName())
}

// SchemaOf returns the schema e belongs to.
func SchemaOf(e Elem) *Schema {
	for e != nil {
		if s, ok := e.(*Schema); ok {
			return s
		}
		e = e.ElemParent()
	}
	return nil
}

// NamespaceOf returns the innermost namespace containing e.
func NamespaceOf(e Elem) *Namespace {
	for e != nil {
		if ns, ok := e.(*Namespace); ok {
			return ns
		}
		e = e.ElemParent()
	}
	return nil
}

type FieldKind int

const (
	KindInt FieldKind = iota
	KindEnum
	KindSet
	KindFloat
	KindBitfield
	KindBundle
	KindString
	KindData
	KindList
	KindRef
	KindOptional
	KindVariant
)

var fieldKindNames = []string{
	"int", "enum", "set", "float", "bitfield", "bundle", "string", "data", "list", "ref", "optional", "variant",
}

func (k FieldKind) String() string {
	if int(k) < len(fieldKindNames) {
		return fieldKindNames[k]
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

func fieldKindOf(elemName string) (FieldKind, bool) {
	for i, n := range fieldKindNames {
		if n == elemName {
			return FieldKind(i), true
		}
	}
	return 0, false
}

func isFieldElem(name string) bool {
	_, ok := fieldKindOf(name)
	return ok
}

// Field is implemented by one struct per field kind. Consumers switch on Kind()
// or on the concrete type.
type Field interface {
	Elem
	Kind() FieldKind
	Common() *FieldCommon
	ExternalRef() string
	Referenced() bool
	MinLength() int
	MaxLength() int

	schema() *elemSchema
	parse(fp *fieldParser) bool
	clone() Field
	// owned returns the fields owned by this one, in declaration order.
	owned() []Field
}

type FieldCommon struct {
	Name            string            `json:"name"`
	DisplayName     string            `json:"displayName,omitempty"`
	Description     string            `json:"description,omitempty"`
	SinceVersion    uint              `json:"sinceVersion,omitempty"`
	DeprecatedSince uint              `json:"deprecated,omitempty"`
	Removed         bool              `json:"removed,omitempty"`
	SemanticType    string            `json:"semanticType,omitempty"`
	Pseudo          bool              `json:"pseudo,omitempty"`
	FailOnInvalid   bool              `json:"failOnInvalid,omitempty"`
	ForceGen        bool              `json:"forceGen,omitempty"`
	Customizable    bool              `json:"customizable,omitempty"`
	Reusable        bool              `json:"reusable,omitempty"`
	ExtraAttrs      map[string]string `json:"extraAttrs,omitempty"`
	ExtraElems      []*Node           `json:"-"`

	parent     Elem
	node       *Node
	referenced bool
}

func (c *FieldCommon) Common() *FieldCommon { return c }
func (c *FieldCommon) ElemName() string     { return c.Name }
func (c *FieldCommon) ElemKind() ElemKind   { return ElemField }
func (c *FieldCommon) ElemParent() Elem     { return c.parent }
func (c *FieldCommon) Referenced() bool     { return c.referenced }
func (c *FieldCommon) Node() *Node          { return c.node }

func (c *FieldCommon) ExternalRef() string {
	return joinPath(ExternalRef(c.parent), c.Name)
}

func (c *FieldCommon) Loc() Location {
	if c.node == nil {
		return Location{}
	}
	return c.node.Loc
}

// IsDeprecated reports whether the field carries a deprecation version.
func (c *FieldCommon) IsDeprecated() bool {
	return c.DeprecatedSince != NotYetDeprecated
}

var commonFieldProps = []string{
	"name", "displayName", "description", "sinceVersion", "deprecated", "removed", "reuse",
	"semanticType", "pseudo", "failOnInvalid", "forceGen", "customizable", "reusable", "replace",
}

var semanticTypes = []string{"", "none", "messageId", "version", "length"}

func fieldSchema(props, children []string) *elemSchema {
	return &elemSchema{
		props:    append(append([]string{}, commonFieldProps...), props...),
		required: []string{"name"},
		children: children,
	}
}

// scope is the parsing context of a field: where it lives and what it inherits.
type scope struct {
	schema     *Schema
	ns         *Namespace
	endian     Endian
	inBitfield bool
	parent     Elem
	since      uint
	deprecated uint
}

func (s *scope) child(parent Elem, since, deprecated uint) *scope {
	c := *s
	c.parent = parent
	c.since = since
	c.deprecated = deprecated
	c.inBitfield = false
	return &c
}

type fieldParser struct {
	*elemParser
	scope *scope
	field Field
}

func (fp *fieldParser) logger() *Logger {
	return fp.proto.logger
}

func (fp *fieldParser) path() string {
	return joinPath(ExternalRef(fp.scope.parent), fp.field.Common().Name)
}

func (fp *fieldParser) errorf(format string, args ...interface{}) bool {
	fp.ok = false
	fp.proto.logger.ErrorAt(SemanticValidationError, fp.node.Loc, fp.path(), fmt.Sprintf(format, args...))
	return false
}

func (fp *fieldParser) warnf(format string, args ...interface{}) {
	fp.proto.logger.WarningAt(fp.node.Loc, fp.path(), fmt.Sprintf(format, args...))
}

func newField(kind FieldKind) Field {
	switch kind {
	case KindInt:
		return newIntField()
	case KindEnum:
		return newEnumField()
	case KindSet:
		return newSetField()
	case KindFloat:
		return newFloatField()
	case KindBitfield:
		return &BitfieldField{}
	case KindBundle:
		return &BundleField{}
	case KindString:
		return &StringField{}
	case KindData:
		return &DataField{}
	case KindList:
		return &ListField{}
	case KindRef:
		return &RefField{}
	case KindOptional:
		return &OptionalField{DefaultMode: OptModeTentative}
	case KindVariant:
		return &VariantField{DefaultMember: -1}
	}
	panic("unknown field kind " + kind.String())
}

// parseField builds one field from its parse tree node, applying reuse first
// when requested.
func (p *Protocol) parseField(node *Node, sc *scope) (Field, bool) {
	kind, ok := fieldKindOf(node.Name)
	if !ok {
		p.logger.ErrorAt(StructuralParseError, node.Loc, ExternalRef(sc.parent), fmt.Sprintf("<%s> is not a field", node.Name))
		return nil, false
	}
	var f Field
	if ref, ok := node.Attr("reuse"); ok {
		orig := p.lookupField(sc.ns, ref)
		if orig == nil {
			p.logger.ErrorAt(ResolutionError, node.Loc, ExternalRef(sc.parent), fmt.Sprintf("field %q to reuse is not defined", ref))
			return nil, false
		}
		if orig.Kind() != kind {
			p.logger.ErrorAt(SemanticValidationError, node.Loc, ExternalRef(sc.parent),
				fmt.Sprintf("cannot reuse %s field %q as <%s>", orig.Kind(), ref, node.Name))
			return nil, false
		}
		f = orig.clone()
		c := f.Common()
		c.Reusable = false
		c.referenced = false
		c.ExtraAttrs = nil
		c.ExtraElems = nil
	} else {
		f = newField(kind)
		f.Common().DeprecatedSince = NotYetDeprecated
	}
	fp := &fieldParser{
		elemParser: p.newElemParser(node, f.schema()),
		scope:      sc,
		field:      f,
	}
	c := f.Common()
	c.node = node
	c.parent = sc.parent
	c.ExtraAttrs = fp.extraAttrs
	c.ExtraElems = fp.extraElems
	if !fp.ok {
		return nil, false
	}
	if !p.parseFieldCommon(fp) {
		return nil, false
	}
	if !f.parse(fp) || !fp.ok {
		return nil, false
	}
	reparent(f)
	return f, true
}

// reparent points every owned field, recursively, at its owner. Cloned fields
// still point at the original owners until this runs.
func reparent(f Field) {
	for _, m := range f.owned() {
		m.Common().parent = f
		reparent(m)
	}
}

func (p *Protocol) parseFieldCommon(fp *fieldParser) bool {
	c := fp.field.Common()
	if fp.has("name") {
		c.Name = fp.get("name")
	}
	if !IsValidName(c.Name) {
		return fp.errorf("invalid field name %q", c.Name)
	}
	if fp.has("displayName") {
		c.DisplayName = fp.get("displayName")
	}
	if fp.has("description") {
		c.Description = fp.get("description")
	}
	if fp.has("semanticType") {
		c.SemanticType = fp.get("semanticType")
		if !contains(semanticTypes, c.SemanticType) {
			return fp.errorf("unknown semanticType %q", c.SemanticType)
		}
	}
	c.Pseudo, _ = fp.boolProp("pseudo", c.Pseudo)
	c.FailOnInvalid, _ = fp.boolProp("failOnInvalid", c.FailOnInvalid)
	c.ForceGen, _ = fp.boolProp("forceGen", c.ForceGen)
	c.Customizable, _ = fp.boolProp("customizable", c.Customizable)
	c.Reusable, _ = fp.boolProp("reusable", c.Reusable)
	c.SinceVersion = max(c.SinceVersion, fp.scope.since)
	if c.DeprecatedSince == 0 {
		c.DeprecatedSince = NotYetDeprecated
	}
	return fp.ok && p.parseVersions(fp.elemParser, fp.path(), fp.scope, &c.SinceVersion, &c.DeprecatedSince, &c.Removed)
}

// parseVersions reads sinceVersion/deprecated/removed and checks them against
// the schema version and the enclosing element.
func (p *Protocol) parseVersions(ep *elemParser, path string, sc *scope, since, deprecated *uint, removed *bool) bool {
	var ok bool
	if *since, ok = ep.uintProp("sinceVersion", *since); !ok {
		return false
	}
	if *deprecated, ok = ep.uintProp("deprecated", *deprecated); !ok {
		return false
	}
	if *removed, ok = ep.boolProp("removed", *removed); !ok {
		return false
	}
	fail := func(msg string) bool {
		p.logger.ErrorAt(SemanticValidationError, ep.node.Loc, path, msg)
		return false
	}
	version := sc.schema.Version
	if *since > version {
		return fail(fmt.Sprintf("sinceVersion %d is greater than schema version %d", *since, version))
	}
	if *since < sc.since {
		return fail(fmt.Sprintf("sinceVersion %d is less than the version of the containing element (%d)", *since, sc.since))
	}
	if *deprecated != NotYetDeprecated {
		if *deprecated <= *since {
			return fail(fmt.Sprintf("deprecated version %d must be greater than sinceVersion %d", *deprecated, *since))
		}
		if *deprecated > version {
			return fail(fmt.Sprintf("deprecated version %d is greater than schema version %d", *deprecated, version))
		}
		if *deprecated > sc.deprecated {
			return fail(fmt.Sprintf("deprecated version %d is greater than the one of the containing element", *deprecated))
		}
	} else if *removed {
		return fail("removed element must also be deprecated")
	}
	return true
}

// parseMembers parses the field children of node, either direct or grouped
// under a <members> wrapper.
func (p *Protocol) parseMembers(nodes []*Node, sc *scope) ([]Field, bool) {
	var result []Field
	ok := true
	for _, n := range nodes {
		if n.Name == "members" || n.Name == "fields" {
			more, mok := p.parseMembers(n.Children, sc)
			result = append(result, more...)
			ok = ok && mok
			continue
		}
		if !isFieldElem(n.Name) {
			continue
		}
		f, fok := p.parseField(n, sc)
		if !fok {
			ok = false
			continue
		}
		result = append(result, f)
	}
	return result, ok
}

// checkUniqueNames reports duplicate field names in one sibling list.
func (p *Protocol) checkUniqueNames(fields []Field, path string) bool {
	seen := make(map[string]Field, len(fields))
	ok := true
	for _, f := range fields {
		name := f.Common().Name
		if prev, dup := seen[name]; dup {
			p.logger.ErrorAt(SemanticValidationError, f.Common().Loc(), path,
				fmt.Sprintf("duplicate field name %q (previously defined at %s)", name, prev.Common().Loc()))
			ok = false
			continue
		}
		seen[name] = f
	}
	return ok
}

func findByName(fields []Field, name string) (Field, int) {
	for i, f := range fields {
		if f.Common().Name == name {
			return f, i
		}
	}
	return nil, -1
}

// Deref follows Ref fields until a concrete field is reached. It returns nil for
// an unresolved reference.
func Deref(f Field) Field {
	for i := 0; f != nil && i < 64; i++ {
		r, ok := f.(*RefField)
		if !ok {
			return f
		}
		f = r.Target
	}
	return nil
}

// Members returns the ordered member fields of a bitfield, bundle or variant.
func Members(f Field) []Field {
	switch ff := f.(type) {
	case *BitfieldField:
		return ff.Members
	case *BundleField:
		return ff.Members
	case *VariantField:
		return ff.Members
	}
	return nil
}

func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	result := make([]Field, len(fields))
	for i, f := range fields {
		result[i] = f.clone()
	}
	return result
}

func cloneField(f Field) Field {
	if f == nil {
		return nil
	}
	return f.clone()
}

// fieldProp reads a property that either names a field (an external reference,
// or a "$sibling" for detached prefixes) or wraps an inline field definition in
// an element of the same name. The returned field is nil when the property is
// absent or detached.
func (fp *fieldParser) fieldProp(name string, sc *scope) (Field, string, bool) {
	nodes := fp.childrenNamed(name)
	if fp.has(name) {
		if len(nodes) > 0 {
			return nil, "", fp.errorf("%q is defined both as a reference and inline", name)
		}
		ref := fp.get(name)
		if strings.HasPrefix(ref, "$") {
			if !IsValidName(ref[1:]) {
				return nil, "", fp.errorf("invalid detached %s %q", name, ref)
			}
			return nil, ref[1:], true
		}
		if !IsValidRefName(ref) {
			return nil, "", fp.errorf("invalid %s reference %q", name, ref)
		}
		_, last := splitRef(ref)
		r := &RefField{FieldRef: ref, ns: sc.ns}
		r.Name = last
		r.DeprecatedSince = NotYetDeprecated
		r.SinceVersion = sc.since
		r.parent = sc.parent
		r.node = fp.node
		return r, "", true
	}
	if len(nodes) == 0 {
		return nil, "", true
	}
	if len(nodes) > 1 {
		return nil, "", fp.errorf("<%s> is defined more than once", name)
	}
	var defs []*Node
	for _, c := range nodes[0].Children {
		if isFieldElem(c.Name) {
			defs = append(defs, c)
		}
	}
	if len(defs) != 1 {
		return nil, "", fp.errorf("<%s> must contain exactly one field definition", name)
	}
	f, ok := fp.proto.parseField(defs[0], sc)
	return f, "", ok
}

func splitRef(ref string) (string, string) {
	n := strings.LastIndex(ref, ".")
	if n < 0 {
		return "", ref
	}
	return ref[:n], ref[n+1:]
}

// OwnedFields returns the fields owned by f, in declaration order: members,
// list elements and prefixes, the wrapped field of an optional.
func OwnedFields(f Field) []Field {
	return f.owned()
}
