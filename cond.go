package commsdsl

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

type CondKind int

const (
	CondKindExpr CondKind = iota
	CondKindList
)

// Cond is an inclusion condition of an optional field.
type Cond interface {
	Kind() CondKind
	String() string
}

// CondExpr compares a field with a value. A bare boolean check has an empty
// Op and Right; a negated boolean check has Op "!".
type CondExpr struct {
	Left  string `json:"left"`
	Op    string `json:"op,omitempty"`
	Right string `json:"right,omitempty"`
}

func (c *CondExpr) Kind() CondKind { return CondKindExpr }

func (c *CondExpr) String() string {
	switch c.Op {
	case "":
		return c.Left
	case "!":
		return "!" + c.Left
	}
	return c.Left + " " + c.Op + " " + c.Right
}

type CondListType int

const (
	CondAnd CondListType = iota
	CondOr
	CondNot
)

type CondList struct {
	Type  CondListType `json:"type"`
	Conds []Cond       `json:"conds"`
}

func (c *CondList) Kind() CondKind { return CondKindList }

func (c *CondList) String() string {
	if c.Type == CondNot && len(c.Conds) == 1 {
		return "!(" + c.Conds[0].String() + ")"
	}
	sep := " && "
	if c.Type == CondOr {
		sep = " || "
	}
	parts := make([]string, len(c.Conds))
	for i, sub := range c.Conds {
		parts[i] = sub.String()
		if l, ok := sub.(*CondList); ok && l.Type != CondNot {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, sep)
}

var condLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "String", Pattern: `"[^"]*"|'[^']*'`},
	{Name: "Number", Pattern: `[-+]?(0[xX][0-9a-fA-F]+|[0-9]+(\.[0-9]+)?)`},
	{Name: "Ident", Pattern: `\$?[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*`},
	{Name: "Op", Pattern: `==|!=|<=|>=|&&|\|\||[=<>!()]`},
})

type condOr struct {
	And []*condAnd `parser:"@@ ( '||' @@ )*"`
}

type condAnd struct {
	Terms []*condUnary `parser:"@@ ( '&&' @@ )*"`
}

type condUnary struct {
	Not   *condUnary `parser:"  '!' @@"`
	Group *condOr    `parser:"| '(' @@ ')'"`
	Atom  *condAtom  `parser:"| @@"`
}

type condAtom struct {
	Left string   `parser:"@Ident"`
	Cmp  *condCmp `parser:"@@?"`
}

type condCmp struct {
	Op    string `parser:"@('==' | '!=' | '<=' | '>=' | '=' | '<' | '>')"`
	Right string `parser:"@(Number | Ident | String)"`
}

var condParser = participle.MustBuild[condOr](
	participle.Lexer(condLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// ParseCondition parses a textual condition such as "$status = 5 && $enabled".
func ParseCondition(text string) (Cond, error) {
	ast, err := condParser.ParseString("", text)
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %v", text, err)
	}
	return ast.model(), nil
}

func (o *condOr) model() Cond {
	if len(o.And) == 1 {
		return o.And[0].model()
	}
	l := &CondList{Type: CondOr}
	for _, a := range o.And {
		l.Conds = append(l.Conds, a.model())
	}
	return l
}

func (a *condAnd) model() Cond {
	if len(a.Terms) == 1 {
		return a.Terms[0].model()
	}
	l := &CondList{Type: CondAnd}
	for _, t := range a.Terms {
		l.Conds = append(l.Conds, t.model())
	}
	return l
}

func (u *condUnary) model() Cond {
	switch {
	case u.Not != nil:
		if u.Not.Atom != nil && u.Not.Atom.Cmp == nil {
			return &CondExpr{Left: u.Not.Atom.Left, Op: "!"}
		}
		return &CondList{Type: CondNot, Conds: []Cond{u.Not.model()}}
	case u.Group != nil:
		return u.Group.model()
	}
	if u.Atom.Cmp == nil {
		return &CondExpr{Left: u.Atom.Left}
	}
	op := u.Atom.Cmp.Op
	if op == "==" {
		op = "="
	}
	return &CondExpr{Left: u.Atom.Left, Op: op, Right: u.Atom.Cmp.Right}
}

var condNodeSchema = &elemSchema{props: []string{"value"}, required: []string{"value"}}
var condListSchema = &elemSchema{children: []string{"cond", "and", "or"}}

// parseCondNodes builds a condition from <cond>, <and> and <or> elements.
// Several top level elements are combined with typ.
func (p *Protocol) parseCondNodes(nodes []*Node, typ CondListType, path string) (Cond, bool) {
	var conds []Cond
	for _, n := range nodes {
		switch n.Name {
		case "cond":
			ep := p.newElemParser(n, condNodeSchema)
			if !ep.ok {
				return nil, false
			}
			c, err := ParseCondition(ep.get("value"))
			if err != nil {
				p.logger.ErrorAt(SemanticValidationError, n.Loc, path, err.Error())
				return nil, false
			}
			conds = append(conds, c)
		case "and", "or":
			ep := p.newElemParser(n, condListSchema)
			if !ep.ok {
				return nil, false
			}
			subType := CondAnd
			if n.Name == "or" {
				subType = CondOr
			}
			if len(ep.children) < 2 {
				p.logger.ErrorAt(SemanticValidationError, n.Loc, path,
					fmt.Sprintf("<%s> requires at least two conditions", n.Name))
				return nil, false
			}
			c, ok := p.parseCondNodes(ep.children, subType, path)
			if !ok {
				return nil, false
			}
			conds = append(conds, c)
		}
	}
	switch len(conds) {
	case 0:
		return nil, true
	case 1:
		if l, ok := conds[0].(*CondList); ok && l.Type == typ {
			return l, true
		}
		return conds[0], true
	}
	return &CondList{Type: typ, Conds: conds}, true
}

// condVerifier checks the field references of a condition against the
// siblings of the optional field owning it.
type condVerifier struct {
	proto    *Protocol
	siblings []Field
	ownerIdx int
	loc      Location
	path     string
}

func (p *Protocol) verifyCond(c Cond, siblings []Field, ownerIdx int, loc Location, path string) bool {
	v := &condVerifier{proto: p, siblings: siblings, ownerIdx: ownerIdx, loc: loc, path: path}
	return v.verify(c)
}

func (v *condVerifier) fail(format string, args ...interface{}) bool {
	v.proto.logger.ErrorAt(SemanticValidationError, v.loc, v.path, fmt.Sprintf(format, args...))
	return false
}

func (v *condVerifier) verify(c Cond) bool {
	switch cc := c.(type) {
	case *CondList:
		if len(cc.Conds) == 0 {
			return v.fail("empty condition list")
		}
		for _, sub := range cc.Conds {
			if !v.verify(sub) {
				return false
			}
		}
		return true
	case *CondExpr:
		return v.verifyExpr(cc)
	}
	return v.fail("unknown condition %T", c)
}

// condTarget is what a dotted condition name resolves to: a field, or a bit
// of a set field.
type condTarget struct {
	field Field
	bit   bool
}

func (v *condVerifier) lookup(name string) (condTarget, bool) {
	name = strings.TrimPrefix(name, "$")
	head, rest, _ := strings.Cut(name, ".")
	sib, idx := findByName(v.siblings, head)
	if sib == nil {
		return condTarget{}, v.fail("condition refers to unknown field %q", name)
	}
	if v.ownerIdx >= 0 && idx >= v.ownerIdx {
		return condTarget{}, v.fail("condition refers to field %q which is not read before the optional field", head)
	}
	f := sib
	for rest != "" {
		var part string
		part, rest, _ = strings.Cut(rest, ".")
		d := Deref(f)
		if opt, ok := d.(*OptionalField); ok {
			d = Deref(opt.Field)
		}
		if set, ok := d.(*SetField); ok && rest == "" {
			if _, found := set.FindBit(part); found {
				return condTarget{field: set, bit: true}, true
			}
		}
		m, _ := findByName(Members(d), part)
		if m == nil {
			return condTarget{}, v.fail("field %q has no member %q", f.Common().Name, part)
		}
		f = m
	}
	return condTarget{field: f}, true
}

func (v *condVerifier) verifyExpr(c *CondExpr) bool {
	t, ok := v.lookup(c.Left)
	if !ok {
		return false
	}
	if c.Op == "" || c.Op == "!" {
		if t.bit || isBoolLike(t.field) {
			return true
		}
		return v.fail("%q cannot be used as a boolean condition", c.Left)
	}
	if strings.HasPrefix(c.Right, "$") {
		rt, ok := v.lookup(c.Right)
		if !ok {
			return false
		}
		if !comparableKinds(valueField(t.field), valueField(rt.field)) {
			return v.fail("cannot compare %q with %q", c.Left, c.Right)
		}
		return true
	}
	if t.bit {
		if _, ok := strToBool(c.Right); !ok || (c.Op != "=" && c.Op != "!=") {
			return v.fail("set bit %q can only be compared for equality with true or false", c.Left)
		}
		return true
	}
	isString := strings.HasPrefix(c.Right, "\"") || strings.HasPrefix(c.Right, "'")
	switch f := valueField(t.field).(type) {
	case *IntField:
		if isString {
			return v.fail("cannot compare int field %q with a string", c.Left)
		}
		if _, err := strToValue(c.Right, f.Type.IsBigUnsigned()); err == nil {
			return true
		}
		if _, ok := f.FindSpecial(c.Right); ok {
			return true
		}
		if _, ok := v.proto.lookupValue(NamespaceOf(f), c.Right); ok {
			return true
		}
		return v.fail("%q is not a valid value of %q", c.Right, c.Left)
	case *EnumField:
		if isString {
			return v.fail("cannot compare enum field %q with a string", c.Left)
		}
		if _, ok := f.FindValue(c.Right); ok {
			return true
		}
		if _, err := strToValue(c.Right, f.Type.IsBigUnsigned()); err == nil {
			return true
		}
		if _, ok := v.proto.lookupValue(NamespaceOf(f), c.Right); ok {
			return true
		}
		return v.fail("%q is not a value of enum %q", c.Right, c.Left)
	case *FloatField:
		if isString {
			return v.fail("cannot compare float field %q with a string", c.Left)
		}
		if _, err := strToFloat(c.Right); err == nil {
			return true
		}
		if _, ok := f.FindSpecial(c.Right); ok {
			return true
		}
		return v.fail("%q is not a valid value of %q", c.Right, c.Left)
	case *StringField:
		if !isString {
			return v.fail("string field %q must be compared with a quoted string", c.Left)
		}
		if c.Op != "=" && c.Op != "!=" {
			return v.fail("string field %q supports only = and !=", c.Left)
		}
		return true
	case nil:
		return v.fail("field %q is not resolved", c.Left)
	default:
		return v.fail("%s field %q cannot be used in a comparison", f.Kind(), c.Left)
	}
}

// valueField dereferences refs and optional wrappers down to the field
// carrying the value.
func valueField(f Field) Field {
	d := Deref(f)
	if opt, ok := d.(*OptionalField); ok {
		return Deref(opt.Field)
	}
	return d
}

func isBoolLike(f Field) bool {
	d := Deref(f)
	if _, ok := d.(*OptionalField); ok {
		return true
	}
	if i, ok := d.(*IntField); ok {
		return i.Bits() == 1 || (!i.bigUnsigned() && i.MinValue >= 0 && i.MaxValue <= 1)
	}
	return false
}

func comparableKinds(a, b Field) bool {
	if a == nil || b == nil {
		return false
	}
	numeric := func(f Field) bool {
		k := f.Kind()
		return k == KindInt || k == KindEnum || k == KindFloat
	}
	if numeric(a) && numeric(b) {
		return true
	}
	return a.Kind() == KindString && b.Kind() == KindString
}
