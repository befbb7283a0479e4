package commsdsl

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type IntType int

const (
	IntTypeInt8 IntType = iota
	IntTypeUint8
	IntTypeInt16
	IntTypeUint16
	IntTypeInt32
	IntTypeUint32
	IntTypeInt64
	IntTypeUint64
	IntTypeIntvar
	IntTypeUintvar
)

var intTypeNames = []string{"int8", "uint8", "int16", "uint16", "int32", "uint32", "int64", "uint64", "intvar", "uintvar"}

func (t IntType) String() string {
	if int(t) < len(intTypeNames) {
		return intTypeNames[t]
	}
	return fmt.Sprintf("IntType(%d)", int(t))
}

func parseIntType(s string) (IntType, bool) {
	for i, n := range intTypeNames {
		if n == s {
			return IntType(i), true
		}
	}
	return 0, false
}

func (t IntType) IsUnsigned() bool {
	switch t {
	case IntTypeUint8, IntTypeUint16, IntTypeUint32, IntTypeUint64, IntTypeUintvar:
		return true
	}
	return false
}

func (t IntType) IsBigUnsigned() bool {
	return t == IntTypeUint64 || t == IntTypeUintvar
}

func (t IntType) IsVarLength() bool {
	return t == IntTypeIntvar || t == IntTypeUintvar
}

// MaxLength is the storage size in bytes.
func (t IntType) MaxLength() int {
	switch t {
	case IntTypeInt8, IntTypeUint8:
		return 1
	case IntTypeInt16, IntTypeUint16:
		return 2
	case IntTypeInt32, IntTypeUint32:
		return 4
	case IntTypeInt64, IntTypeUint64:
		return 8
	}
	return 10
}

// intTypeBounds returns the representable range of a value serialised in
// bits bits of type t.
func intTypeBounds(t IntType, bits int) (int64, int64) {
	if t.IsVarLength() {
		bits = min(bits/8*7, 64)
	}
	if bits <= 0 {
		return 0, 0
	}
	if t.IsUnsigned() {
		if bits >= 64 {
			return 0, -1 // max uint64, compared with cmpValues
		}
		return 0, int64(1)<<uint(bits) - 1
	}
	if bits >= 64 {
		return math.MinInt64, math.MaxInt64
	}
	return -(int64(1) << uint(bits-1)), int64(1)<<uint(bits-1) - 1
}

// smallestIntType returns the narrowest fixed length type able to hold bytes.
func smallestIntType(length int, unsigned bool) IntType {
	t := IntTypeInt8
	switch {
	case length <= 1:
		t = IntTypeInt8
	case length <= 2:
		t = IntTypeInt16
	case length <= 4:
		t = IntTypeInt32
	default:
		t = IntTypeInt64
	}
	if unsigned {
		t++
	}
	return t
}

type ValidRange struct {
	Min             int64 `json:"min"`
	Max             int64 `json:"max"`
	SinceVersion    uint  `json:"sinceVersion,omitempty"`
	DeprecatedSince uint  `json:"deprecated,omitempty"`
}

type SpecialValue struct {
	Name            string `json:"name"`
	Value           int64  `json:"value"`
	Description     string `json:"description,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	SinceVersion    uint   `json:"sinceVersion,omitempty"`
	DeprecatedSince uint   `json:"deprecated,omitempty"`
}

type Scaling struct {
	Num   int64 `json:"num"`
	Denom int64 `json:"denom"`
}

func (s Scaling) IsIdentity() bool {
	return s.Num == s.Denom
}

var knownUnits = []string{
	"ns", "us", "ms", "sec", "s", "min", "h", "day", "week",
	"nm", "um", "mm", "cm", "m", "km",
	"nm/s", "um/s", "mm/s", "cm/s", "m/s", "km/s", "km/h",
	"hz", "khz", "mhz", "ghz",
	"deg", "rad",
	"na", "ua", "ma", "a", "ka",
	"nv", "uv", "mv", "v", "kv",
	"b", "kb", "mb", "gb", "tb",
}

type IntField struct {
	FieldCommon
	Type                     IntType        `json:"type"`
	Endian                   Endian         `json:"endian"`
	Length                   int            `json:"length"`
	BitLength                int            `json:"bitLength,omitempty"`
	SerOffset                int64          `json:"serOffset,omitempty"`
	MinValue                 int64          `json:"minValue"`
	MaxValue                 int64          `json:"maxValue"`
	DefaultValue             int64          `json:"defaultValue"`
	Scaling                  Scaling        `json:"scaling"`
	ValidRanges              []ValidRange   `json:"validRanges,omitempty"`
	Specials                 []SpecialValue `json:"specials,omitempty"`
	Units                    string         `json:"units,omitempty"`
	DisplayDecimals          uint           `json:"displayDecimals,omitempty"`
	DisplayOffset            int64          `json:"displayOffset,omitempty"`
	SignExt                  bool           `json:"signExt"`
	ValidCheckVersion        bool           `json:"validCheckVersion,omitempty"`
	NonUniqueSpecialsAllowed bool           `json:"nonUniqueSpecialsAllowed,omitempty"`

	typeSet bool
}

func newIntField() *IntField {
	return &IntField{Scaling: Scaling{1, 1}, SignExt: true}
}

var intSchema = fieldSchema(
	[]string{"type", "defaultValue", "endian", "length", "bitLength", "serOffset", "minValue", "maxValue",
		"scaling", "units", "displayDecimals", "displayOffset", "signExt", "validRange", "validValue",
		"validMin", "validMax", "validCheckVersion", "nonUniqueSpecialsAllowed", "displaySpecials"},
	[]string{"special", "validRange", "validValue", "validMin", "validMax"},
)

func (f *IntField) Kind() FieldKind      { return KindInt }
func (f *IntField) schema() *elemSchema { return intSchema }
func (f *IntField) owned() []Field      { return nil }

func (f *IntField) clone() Field {
	cp := *f
	cp.ValidRanges = append([]ValidRange(nil), f.ValidRanges...)
	cp.Specials = append([]SpecialValue(nil), f.Specials...)
	return &cp
}

func (f *IntField) MinLength() int {
	if f.Type.IsVarLength() {
		return 1
	}
	return f.Length
}

func (f *IntField) MaxLength() int {
	return f.Length
}

// Bits is the number of serialised bits.
func (f *IntField) Bits() int {
	if f.BitLength > 0 {
		return f.BitLength
	}
	return f.Length * 8
}

// TypeBounds is the range of values representable by the field, accounting for
// serialisation offset.
func (f *IntField) TypeBounds() (int64, int64) {
	lo, hi := intTypeBounds(f.Type, f.Bits())
	if f.SerOffset != 0 && !f.Type.IsBigUnsigned() {
		lo -= f.SerOffset
		hi -= f.SerOffset
	}
	return lo, hi
}

func (f *IntField) bigUnsigned() bool {
	return f.Type.IsBigUnsigned() && f.Bits() >= 64
}

func (f *IntField) FindSpecial(name string) (SpecialValue, bool) {
	for _, s := range f.Specials {
		if s.Name == name {
			return s, true
		}
	}
	return SpecialValue{}, false
}

// IsValidValue reports whether v is inside one of the valid ranges, or inside
// [MinValue, MaxValue] when no range is declared.
func (f *IntField) IsValidValue(v int64) bool {
	big := f.bigUnsigned()
	if len(f.ValidRanges) == 0 {
		return cmpValues(v, f.MinValue, big) >= 0 && cmpValues(v, f.MaxValue, big) <= 0
	}
	for _, r := range f.ValidRanges {
		if cmpValues(v, r.Min, big) >= 0 && cmpValues(v, r.Max, big) <= 0 {
			return true
		}
	}
	return false
}

func (f *IntField) parse(fp *fieldParser) bool {
	reused := fp.has("reuse")
	if fp.has("type") {
		t, ok := parseIntType(fp.get("type"))
		if !ok {
			return fp.errorf("unknown int type %q", fp.get("type"))
		}
		typeChanged := !f.typeSet || t != f.Type
		f.Type = t
		f.typeSet = true
		if typeChanged {
			f.Length = t.MaxLength()
			f.BitLength = 0
			f.MinValue, f.MaxValue = 0, 0
			reused = false
		}
	}
	if !f.typeSet {
		return fp.errorf("int field requires the \"type\" property")
	}
	if !parseEndianProp(fp, &f.Endian, reused) {
		return false
	}
	if fp.has("length") {
		n, err := strToInt(fp.get("length"))
		if err != nil || n <= 0 {
			return fp.errorf("invalid length %q", fp.get("length"))
		}
		if int(n) > f.Type.MaxLength() {
			return fp.errorf("length %d exceeds the %d bytes of type %s", n, f.Type.MaxLength(), f.Type)
		}
		if f.Type.IsVarLength() && n < 2 {
			return fp.errorf("variable length int must allow at least 2 bytes")
		}
		f.Length = int(n)
	}
	if !parseBitLengthProp(fp, &f.BitLength, f.Length) {
		return false
	}
	if fp.has("serOffset") {
		v, err := strToInt(fp.get("serOffset"))
		if err != nil {
			return fp.errorf("invalid serOffset %q", fp.get("serOffset"))
		}
		f.SerOffset = v
	}
	lo, hi := f.TypeBounds()
	big := f.bigUnsigned()
	if !reused || fp.has("type") || fp.has("length") || fp.has("bitLength") {
		f.MinValue, f.MaxValue = lo, hi
	}
	// Specials are parsed first so that values may refer to them by name.
	if !f.parseSpecials(fp, lo, hi) {
		return false
	}
	for _, b := range []struct {
		prop string
		dst  *int64
	}{{"minValue", &f.MinValue}, {"maxValue", &f.MaxValue}} {
		if !fp.has(b.prop) {
			continue
		}
		v, ok := f.strToValue(fp, fp.get(b.prop))
		if !ok {
			return fp.errorf("invalid %s %q", b.prop, fp.get(b.prop))
		}
		if cmpValues(v, lo, big) < 0 || cmpValues(v, hi, big) > 0 {
			return fp.errorf("%s %s is outside the range of type %s", b.prop, valueString(v, big), f.Type)
		}
		*b.dst = v
	}
	if cmpValues(f.MinValue, f.MaxValue, big) > 0 {
		return fp.errorf("minValue %s is greater than maxValue %s", valueString(f.MinValue, big), valueString(f.MaxValue, big))
	}
	if fp.has("defaultValue") {
		v, ok := f.strToValue(fp, fp.get("defaultValue"))
		if !ok {
			return fp.errorf("invalid defaultValue %q", fp.get("defaultValue"))
		}
		f.DefaultValue = v
	} else if !reused && (cmpValues(0, f.MinValue, big) < 0 || cmpValues(0, f.MaxValue, big) > 0) {
		f.DefaultValue = f.MinValue
	}
	if cmpValues(f.DefaultValue, f.MinValue, big) < 0 || cmpValues(f.DefaultValue, f.MaxValue, big) > 0 {
		return fp.errorf("defaultValue %s is outside [%s, %s]", valueString(f.DefaultValue, big),
			valueString(f.MinValue, big), valueString(f.MaxValue, big))
	}
	if fp.has("scaling") {
		s, ok := parseScaling(fp.get("scaling"))
		if !ok {
			return fp.errorf("invalid scaling %q, expected \"num/denom\"", fp.get("scaling"))
		}
		f.Scaling = s
	}
	if fp.has("units") {
		u := fp.get("units")
		if !contains(knownUnits, strings.ToLower(u)) {
			return fp.errorf("unknown units %q", u)
		}
		f.Units = u
	}
	var ok bool
	if f.DisplayDecimals, ok = fp.uintProp("displayDecimals", f.DisplayDecimals); !ok {
		return false
	}
	if fp.has("displayOffset") {
		v, err := strToInt(fp.get("displayOffset"))
		if err != nil {
			return fp.errorf("invalid displayOffset %q", fp.get("displayOffset"))
		}
		f.DisplayOffset = v
	}
	if f.SignExt, ok = fp.boolProp("signExt", f.SignExt); !ok {
		return false
	}
	if f.ValidCheckVersion, ok = fp.boolProp("validCheckVersion", f.ValidCheckVersion); !ok {
		return false
	}
	if f.NonUniqueSpecialsAllowed, ok = fp.boolProp("nonUniqueSpecialsAllowed", f.NonUniqueSpecialsAllowed); !ok {
		return false
	}
	if !f.parseValidRanges(fp) {
		return false
	}
	return f.checkSpecialValues(fp)
}

func (f *IntField) strToValue(fp *fieldParser, s string) (int64, bool) {
	if v, err := strToValue(s, f.Type.IsBigUnsigned()); err == nil {
		return v, true
	}
	if sp, ok := f.FindSpecial(s); ok {
		return sp.Value, true
	}
	return fp.proto.lookupValue(fp.scope.ns, s)
}

func (f *IntField) parseSpecials(fp *fieldParser, lo, hi int64) bool {
	big := f.bigUnsigned()
	for _, n := range fp.childrenNamed("special") {
		ep := fp.proto.newElemParser(n, specialSchema)
		if !ep.ok {
			return false
		}
		sp := SpecialValue{
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
		v, err := strToValue(ep.get("val"), f.Type.IsBigUnsigned())
		if err != nil {
			var ok bool
			if v, ok = fp.proto.lookupValue(fp.scope.ns, ep.get("val")); !ok {
				return fp.errorf("invalid value %q of special %q", ep.get("val"), sp.Name)
			}
		}
		if cmpValues(v, lo, big) < 0 || cmpValues(v, hi, big) > 0 {
			return fp.errorf("special %q value %s does not fit into %d bits", sp.Name, valueString(v, big), f.Bits())
		}
		sp.Value = v
		var removed bool
		if !fp.proto.parseVersions(ep, fp.path(), fp.scope.child(fp.field, f.SinceVersion, f.DeprecatedSince),
			&sp.SinceVersion, &sp.DeprecatedSince, &removed) {
			return false
		}
		f.Specials = append(f.Specials, sp)
	}
	return true
}

func (f *IntField) checkSpecialValues(fp *fieldParser) bool {
	if f.NonUniqueSpecialsAllowed {
		return true
	}
	seen := make(map[int64]string, len(f.Specials))
	for _, sp := range f.Specials {
		if prev, dup := seen[sp.Value]; dup {
			return fp.errorf("specials %q and %q share the value %s", prev, sp.Name, valueString(sp.Value, f.bigUnsigned()))
		}
		seen[sp.Value] = sp.Name
	}
	return true
}

var specialSchema = &elemSchema{
	props:    []string{"name", "val", "description", "displayName", "sinceVersion", "deprecated", "removed"},
	required: []string{"name", "val"},
}

var validRangeSchema = &elemSchema{
	props:    []string{"value", "sinceVersion", "deprecated", "removed"},
	required: []string{"value"},
}

func (f *IntField) parseValidRanges(fp *fieldParser) bool {
	type item struct {
		kind  string
		value string
		node  *Node
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
	big := f.bigUnsigned()
	for _, it := range items {
		r := ValidRange{SinceVersion: f.SinceVersion, DeprecatedSince: NotYetDeprecated}
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
			lo, hi = it.value, valueString(f.MaxValue, big)
		case "validMax":
			lo, hi = valueString(f.MinValue, big), it.value
		}
		var ok bool
		if r.Min, ok = f.strToValue(fp, lo); !ok {
			return fp.errorf("invalid %s value %q", it.kind, lo)
		}
		if r.Max, ok = f.strToValue(fp, hi); !ok {
			return fp.errorf("invalid %s value %q", it.kind, hi)
		}
		if cmpValues(r.Min, r.Max, big) > 0 {
			return fp.errorf("%s %q has min greater than max", it.kind, it.value)
		}
		if cmpValues(r.Min, f.MinValue, big) < 0 || cmpValues(r.Max, f.MaxValue, big) > 0 {
			return fp.errorf("%s %q is outside [%s, %s]", it.kind, it.value,
				valueString(f.MinValue, big), valueString(f.MaxValue, big))
		}
		if it.node != nil {
			ep := fp.proto.newElemParser(it.node, validRangeSchema)
			var removed bool
			if !ep.ok || !fp.proto.parseVersions(ep, fp.path(), fp.scope.child(fp.field, f.SinceVersion, f.DeprecatedSince),
				&r.SinceVersion, &r.DeprecatedSince, &removed) {
				return false
			}
		}
		f.ValidRanges = append(f.ValidRanges, r)
	}
	f.ValidRanges = mergeRanges(f.ValidRanges, big)
	return true
}

// mergeRanges sorts the ranges and joins overlapping or adjacent ones that
// carry identical version information.
func mergeRanges(ranges []ValidRange, big bool) []ValidRange {
	if len(ranges) < 2 {
		return ranges
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		return cmpValues(ranges[i].Min, ranges[j].Min, big) < 0
	})
	result := []ValidRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &result[len(result)-1]
		sameVersions := last.SinceVersion == r.SinceVersion && last.DeprecatedSince == r.DeprecatedSince
		adjacent := cmpValues(r.Min, last.Max, big) <= 0 || (last.Max != math.MaxInt64 && r.Min == last.Max+1)
		if sameVersions && adjacent {
			if cmpValues(r.Max, last.Max, big) > 0 {
				last.Max = r.Max
			}
			continue
		}
		result = append(result, r)
	}
	return result
}

func parseScaling(s string) (Scaling, bool) {
	parts := strings.Split(s, "/")
	if len(parts) > 2 {
		return Scaling{}, false
	}
	num, err := strToInt(parts[0])
	if err != nil || num == 0 {
		return Scaling{}, false
	}
	denom := int64(1)
	if len(parts) == 2 {
		if denom, err = strToInt(parts[1]); err != nil || denom == 0 {
			return Scaling{}, false
		}
	}
	return Scaling{Num: num, Denom: denom}, true
}

// parseBitLengthProp handles the bitLength property shared by the bitfield
// member kinds.
func parseBitLengthProp(fp *fieldParser, bitLength *int, length int) bool {
	if !fp.has("bitLength") {
		return true
	}
	n, err := strToInt(fp.get("bitLength"))
	if err != nil || n <= 0 {
		return fp.errorf("invalid bitLength %q", fp.get("bitLength"))
	}
	if int(n) > length*8 {
		return fp.errorf("bitLength %d exceeds the storage length of %d bits", n, length*8)
	}
	if !fp.scope.inBitfield {
		fp.warnf("bitLength is only meaningful for bitfield members, ignored")
		return true
	}
	*bitLength = int(n)
	return true
}
