package comms

import (
	"strings"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/gen"
)

// condCode translates an optional field condition into a C++ boolean
// expression over the accessors of the containing message or bundle.
func condCode(c commsdsl.Cond, siblings []commsdsl.Field) string {
	switch cc := c.(type) {
	case *commsdsl.CondList:
		parts := make([]string, len(cc.Conds))
		for i, sub := range cc.Conds {
			parts[i] = "(" + condCode(sub, siblings) + ")"
		}
		switch cc.Type {
		case commsdsl.CondNot:
			return "!" + parts[0]
		case commsdsl.CondOr:
			return strings.Join(parts, " || ")
		}
		return strings.Join(parts, " && ")
	case *commsdsl.CondExpr:
		return exprCode(cc, siblings)
	}
	return "false"
}

func exprCode(c *commsdsl.CondExpr, siblings []commsdsl.Field) string {
	left, leftField, bit := accessor(c.Left, siblings)
	switch c.Op {
	case "":
		if bit {
			return left
		}
		return left + ".getValue() != 0"
	case "!":
		if bit {
			return "!" + left
		}
		return left + ".getValue() == 0"
	}
	op := c.Op
	if op == "=" {
		op = "=="
	}
	if bit {
		return left + " " + op + " " + strings.ToLower(c.Right)
	}
	var right string
	switch {
	case strings.HasPrefix(c.Right, "$"):
		r, _, _ := accessor(c.Right[1:], siblings)
		right = r + ".getValue()"
	case strings.HasPrefix(c.Right, "\"") || strings.HasPrefix(c.Right, "'"):
		right = "\"" + strings.Trim(c.Right, "\"'") + "\""
	default:
		right = valueCode(leftField, left, c.Right)
	}
	return left + ".getValue() " + op + " " + right
}

// accessor returns the C++ access path of a dotted field name, the field it
// ends at and whether it names a set bit.
func accessor(name string, siblings []commsdsl.Field) (string, commsdsl.Field, bool) {
	var sb strings.Builder
	fields := siblings
	var cur commsdsl.Field
	parts := strings.Split(strings.TrimPrefix(name, "$"), ".")
	for i, part := range parts {
		if set, ok := cur.(*commsdsl.SetField); ok && i == len(parts)-1 {
			if _, found := set.FindBit(part); found {
				sb.WriteString(".getBitValue_" + part + "()")
				return sb.String(), set, true
			}
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString("field_" + part + "()")
		cur = nil
		for _, f := range fields {
			if f.Common().Name == part {
				cur = f
				break
			}
		}
		if cur == nil {
			break
		}
		cur = commsdsl.Deref(cur)
		if opt, ok := cur.(*commsdsl.OptionalField); ok {
			sb.WriteString(".field()")
			cur = commsdsl.Deref(opt.Field)
		}
		fields = commsdsl.Members(cur)
	}
	return sb.String(), cur, false
}

// valueCode renders a literal, an enum value name or an int special name.
func valueCode(f commsdsl.Field, access string, value string) string {
	switch ff := f.(type) {
	case *commsdsl.EnumField:
		for _, v := range ff.Values {
			if v.Name == value {
				return "std::decay<decltype(" + access + ")>::type::ValueType::" + v.Name
			}
		}
	case *commsdsl.IntField:
		if _, ok := ff.FindSpecial(value); ok {
			return "std::decay<decltype(" + access + ")>::type::value" + gen.ClassName(value) + "()"
		}
	}
	return value
}
