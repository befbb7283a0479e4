package commsdsl

import (
	"math"
	"strings"
)

type FloatType int

const (
	FloatTypeFloat FloatType = iota
	FloatTypeDouble
)

func (t FloatType) String() string {
	if t == FloatTypeDouble {
		return "double"
	}
	return "float"
}

type FloatRange struct {
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	SinceVersion    uint    `json:"sinceVersion,omitempty"`
	DeprecatedSince uint    `json:"deprecated,omitempty"`
}

type FloatSpecial struct {
	Name            string  `json:"name"`
	Value           float64 `json:"value"`
	Description     string  `json:"description,omitempty"`
	DisplayName     string  `json:"displayName,omitempty"`
	SinceVersion    uint    `json:"sinceVersion,omitempty"`
	DeprecatedSince uint    `json:"deprecated,omitempty"`
}

type FloatField struct {
	FieldCommon
	Type                     FloatType      `json:"type"`
	Endian                   Endian         `json:"endian"`
	DefaultValue             float64        `json:"defaultValue"`
	ValidRanges              []FloatRange   `json:"validRanges,omitempty"`
	Specials                 []FloatSpecial `json:"specials,omitempty"`
	Units                    string         `json:"units,omitempty"`
	DisplayDecimals          uint           `json:"displayDecimals,omitempty"`
	NonUniqueSpecialsAllowed bool           `json:"nonUniqueSpecialsAllowed,omitempty"`
	ValidCheckVersion        bool           `json:"validCheckVersion,omitempty"`
}

func newFloatField() *FloatField {
	return &FloatField{}
}

var floatSchema = fieldSchema(
	[]string{"type", "defaultValue", "endian", "units", "displayDecimals", "validRange", "validValue",
		"validMin", "validMax", "nonUniqueSpecialsAllowed", "validCheckVersion", "displaySpecials"},
	[]string{"special", "validRange", "validValue", "validMin", "validMax"},
)

func (f *FloatField) Kind() FieldKind      { return KindFloat }
func (f *FloatField) schema() *elemSchema { return floatSchema }
func (f *FloatField) owned() []Field      { return nil }

func (f *FloatField) clone() Field {
	cp := *f
	cp.ValidRanges = append([]FloatRange(nil), f.ValidRanges...)
	cp.Specials = append([]FloatSpecial(nil), f.Specials...)
	return &cp
}

func (f *FloatField) MinLength() int { return f.MaxLength() }

func (f *FloatField) MaxLength() int {
	if f.Type == FloatTypeDouble {
		return 8
	}
	return 4
}

func (f *FloatField) FindSpecial(name string) (FloatSpecial, bool) {
	for _, s := range f.Specials {
		if s.Name == name {
			return s, true
		}
	}
	return FloatSpecial{}, false
}

func (f *FloatField) strToValue(fp *fieldParser, s string) (float64, bool) {
	if v, err := strToFloat(s); err == nil {
		return v, true
	}
	if sp, ok := f.FindSpecial(s); ok {
		return sp.Value, true
	}
	if v, ok := fp.proto.lookupValue(fp.scope.ns, s); ok {
		return float64(v), true
	}
	return 0, false
}

func (f *FloatField) parse(fp *fieldParser) bool {
	reused := fp.has("reuse")
	if fp.has("type") {
		switch fp.get("type") {
		case "float":
			f.Type = FloatTypeFloat
		case "double":
			f.Type = FloatTypeDouble
		default:
			return fp.errorf("unknown float type %q", fp.get("type"))
		}
	} else if !reused {
		return fp.errorf("float field requires the \"type\" property")
	}
	if !parseEndianProp(fp, &f.Endian, reused) {
		return false
	}
	var ok bool
	if f.NonUniqueSpecialsAllowed, ok = fp.boolProp("nonUniqueSpecialsAllowed", f.NonUniqueSpecialsAllowed); !ok {
		return false
	}
	if f.ValidCheckVersion, ok = fp.boolProp("validCheckVersion", f.ValidCheckVersion); !ok {
		return false
	}
	if f.DisplayDecimals, ok = fp.uintProp("displayDecimals", f.DisplayDecimals); !ok {
		return false
	}
	if fp.has("units") {
		u := fp.get("units")
		if !contains(knownUnits, strings.ToLower(u)) {
			return fp.errorf("unknown units %q", u)
		}
		f.Units = u
	}
	vsc := fp.scope.child(f, f.SinceVersion, f.DeprecatedSince)
	for _, n := range fp.childrenNamed("special") {
		ep := fp.proto.newElemParser(n, specialSchema)
		if !ep.ok {
			return false
		}
		sp := FloatSpecial{
			Name:            ep.get("name"),
			Description:     ep.get("description"),
			DisplayName:     ep.get("displayName"),
			SinceVersion:    f.SinceVersion,
			DeprecatedSince: NotYetDeprecated,
		}
		if !IsValidName(sp.Name) {
			return fp.errorf("invalid special value name %q", sp.Name)
		}
		if _, dup := f.FindSpecial(sp.Name); dup {
			return fp.errorf("special value %q is defined more than once", sp.Name)
		}
		v, err := strToFloat(ep.get("val"))
		if err != nil {
			return fp.errorf("invalid value %q of special %q", ep.get("val"), sp.Name)
		}
		sp.Value = v
		var removed bool
		if !fp.proto.parseVersions(ep, fp.path(), vsc, &sp.SinceVersion, &sp.DeprecatedSince, &removed) {
			return false
		}
		f.Specials = append(f.Specials, sp)
	}
	if !f.NonUniqueSpecialsAllowed {
		for i, a := range f.Specials {
			for _, b := range f.Specials[i+1:] {
				if floatEqual(a.Value, b.Value) {
					return fp.errorf("specials %q and %q share the same value", a.Name, b.Name)
				}
			}
		}
	}
	if fp.has("defaultValue") {
		if f.DefaultValue, ok = f.strToValue(fp, fp.get("defaultValue")); !ok {
			return fp.errorf("invalid defaultValue %q", fp.get("defaultValue"))
		}
	}
	return f.parseValidRanges(fp, vsc)
}

func (f *FloatField) parseValidRanges(fp *fieldParser, vsc *scope) bool {
	type item struct {
		kind, value string
		node        *Node
	}
	var items []item
	for _, kind := range []string{"validRange", "validValue", "validMin", "validMax"} {
		if fp.has(kind) {
			items = append(items, item{kind: kind, value: fp.get(kind)})
		}
	}
	for _, n := range fp.childrenNamed("validRange", "validValue", "validMin", "validMax") {
		v, ok := n.Attr("value")
		if !ok {
			v = n.Text
		}
		items = append(items, item{kind: n.Name, value: v, node: n})
	}
	for _, it := range items {
		r := FloatRange{SinceVersion: f.SinceVersion, DeprecatedSince: NotYetDeprecated}
		var lo, hi string
		switch it.kind {
		case "validRange":
			var ok bool
			if lo, hi, ok = parseRangeStr(it.value); !ok {
				return fp.errorf("invalid validRange %q, expected \"[min, max]\"", it.value)
			}
		case "validValue":
			lo, hi = it.value, it.value
		case "validMin":
			lo, hi = it.value, "inf"
		case "validMax":
			lo, hi = "-inf", it.value
		}
		var ok bool
		if r.Min, ok = f.strToValue(fp, lo); !ok {
			return fp.errorf("invalid %s value %q", it.kind, lo)
		}
		if r.Max, ok = f.strToValue(fp, hi); !ok {
			return fp.errorf("invalid %s value %q", it.kind, hi)
		}
		nan := math.IsNaN(r.Min) || math.IsNaN(r.Max)
		if nan && !(it.kind == "validValue" && math.IsNaN(r.Min)) {
			return fp.errorf("nan is only allowed as a single valid value")
		}
		if !nan && r.Min > r.Max {
			return fp.errorf("%s %q has min greater than max", it.kind, it.value)
		}
		if it.node != nil {
			ep := fp.proto.newElemParser(it.node, validRangeSchema)
			var removed bool
			if !ep.ok || !fp.proto.parseVersions(ep, fp.path(), vsc, &r.SinceVersion, &r.DeprecatedSince, &removed) {
				return false
			}
		}
		f.ValidRanges = append(f.ValidRanges, r)
	}
	return true
}

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}
