package commsdsl

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(test *testing.T) {
	c, err := ParseCondition("$status = 5 && $enabled")
	require.NoError(test, err)
	expected := &CondList{Type: CondAnd, Conds: []Cond{
		&CondExpr{Left: "$status", Op: "=", Right: "5"},
		&CondExpr{Left: "$enabled"},
	}}
	require.Empty(test, cmp.Diff(expected, c))

	c, err = ParseCondition("!$a || ($b != 0x10 && !($c == $d))")
	require.NoError(test, err)
	expected = &CondList{Type: CondOr, Conds: []Cond{
		&CondExpr{Left: "$a", Op: "!"},
		&CondList{Type: CondAnd, Conds: []Cond{
			&CondExpr{Left: "$b", Op: "!=", Right: "0x10"},
			&CondList{Type: CondNot, Conds: []Cond{&CondExpr{Left: "$c", Op: "=", Right: "$d"}}},
		}},
	}}
	require.Empty(test, cmp.Diff(expected, c))
	require.Equal(test, "!$a || ($b != 0x10 && !($c = $d))", c.String())

	for _, bad := range []string{"", "$a =", "$a && ", "($a", "5 = $a"} {
		_, err := ParseCondition(bad)
		require.Error(test, err, bad)
	}
}

const condMessage = `
<fields>
  <enum name="Mode" type="uint8">
    <validValue name="Off" val="0"/>
    <validValue name="On" val="1"/>
  </enum>
</fields>
<message name="M" id="1">
  <int name="status" type="uint8"/>
  <int name="enabled" type="uint8" maxValue="1"/>
  <ref name="mode" field="Mode"/>
  <set name="flags" length="1"><bit name="extra" idx="0"/></set>
  <string name="tag" length="2"/>
  <optional name="value" cond="%s">
    <int name="value" type="uint16"/>
  </optional>
  <int name="later" type="uint8"/>
</message>`

func condSchema(cond string) string {
	return schemaDoc(strings.Replace(condMessage, "%s", cond, 1))
}

func TestConditionVerify(test *testing.T) {
	valid := []string{
		"$status = 5 &amp;&amp; $enabled",
		"$status &gt;= 3 || !$enabled",
		"$mode = On",
		"$mode != 0",
		"$flags.extra",
		"$flags.extra = true",
		"$tag = 'ab'",
		"$status != $enabled",
	}
	for _, cond := range valid {
		p, err := parseSchemas(test, condSchema(cond))
		require.NoError(test, err, cond)
		opt := p.FindMessage("M").Fields[5].(*OptionalField)
		require.NotNil(test, opt.Cond)
	}

	invalid := []string{
		"$status",
		"$unknown = 1",
		"$later = 1",
		"$mode = Maybe",
		"$status = 'x'",
		"$tag = 5",
		"$tag &lt; 'b'",
		"$flags.other",
		"$flags.extra = 2",
		"$status = $tag",
	}
	for _, cond := range invalid {
		_, err := parseSchemas(test, condSchema(cond))
		requireErrorKind(test, err, SemanticValidationError)
	}

	_, err := parseSchemas(test, schemaDoc(`
<variant name="V">
  <int name="a" type="uint8"/>
  <optional name="o" cond="$a = 1"><int name="o" type="uint8"/></optional>
</variant>`))
	require.NoError(test, err)

	nested := map[string]string{
		"variant member": `
<variant name="V">
  <int name="a" type="uint8"/>
  <optional name="o" cond="$nosuch = 1"><int name="o" type="uint8"/></optional>
</variant>`,
		"list element": `
<message name="M" id="1">
  <int name="a" type="uint8"/>
  <list name="l" count="2">
    <optional name="o" cond="$a = 1"><int name="o" type="uint8"/></optional>
  </list>
</message>`,
		"wrapped by optional": `
<message name="M" id="1">
  <int name="a" type="uint8"/>
  <optional name="outer">
    <optional name="inner" cond="$a = 1"><int name="inner" type="uint8"/></optional>
  </optional>
</message>`,
	}
	for name, body := range nested {
		_, err := parseSchemas(test, schemaDoc(body))
		require.Error(test, err, name)
		requireErrorKind(test, err, SemanticValidationError)
	}
}

func TestConditionElements(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <int name="a" type="uint8"/>
  <int name="b" type="uint8"/>
  <optional name="value">
    <int name="value" type="uint16"/>
    <or>
      <cond value="$a = 1"/>
      <and>
        <cond value="$b = 2"/>
        <cond value="$a = 0"/>
      </and>
    </or>
  </optional>
</message>`))
	require.NoError(test, err)
	opt := p.FindMessage("M").Fields[2].(*OptionalField)
	require.Equal(test, "$a = 1 || ($b = 2 && $a = 0)", opt.Cond.String())

	_, err = parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <int name="a" type="uint8"/>
  <optional name="value" cond="$a = 1">
    <int name="value" type="uint16"/>
    <cond value="$a = 2"/>
  </optional>
</message>`))
	require.Error(test, err)

	_, err = parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <int name="a" type="uint8"/>
  <optional name="value">
    <int name="value" type="uint16"/>
    <and><cond value="$a = 1"/></and>
  </optional>
</message>`))
	requireErrorKind(test, err, SemanticValidationError)
}
