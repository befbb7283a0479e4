package comms

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/gen"
)

var cppIntTypes = map[string]string{
	"int8": "std::int8_t", "uint8": "std::uint8_t",
	"int16": "std::int16_t", "uint16": "std::uint16_t",
	"int32": "std::int32_t", "uint32": "std::uint32_t",
	"int64": "std::int64_t", "uint64": "std::uint64_t",
	"intvar": "std::int64_t", "uintvar": "std::uint64_t",
}

var unitOpts = map[string]string{
	"ns": "UnitsNanoseconds", "us": "UnitsMicroseconds", "ms": "UnitsMilliseconds",
	"s": "UnitsSeconds", "sec": "UnitsSeconds", "min": "UnitsMinutes", "h": "UnitsHours",
	"day": "UnitsDays", "week": "UnitsWeeks",
	"mm": "UnitsMillimeters", "cm": "UnitsCentimeters", "m": "UnitsMeters", "km": "UnitsKilometers",
	"m/s": "UnitsMetersPerSecond", "km/h": "UnitsKilometersPerHour",
	"hz": "UnitsHertz", "khz": "UnitsKilohertz", "mhz": "UnitsMegahertz", "ghz": "UnitsGigahertz",
	"deg": "UnitsDegrees", "rad": "UnitsRadians",
	"ma": "UnitsMilliamps", "a": "UnitsAmps", "mv": "UnitsMillivolts", "v": "UnitsVolts",
	"b": "UnitsBytes", "kb": "UnitsKilobytes", "mb": "UnitsMegabytes", "gb": "UnitsGigabytes",
}

type fieldElem struct {
	b *Backend
	f commsdsl.Field

	className string
	def       string
	incs      includes

	// Variant analysis.
	readKey string
	compact bool

	versionDep bool
}

const fieldTempl = `#^#PREFIX#$#
#^#DOC#$#
struct #^#CLASS#$# : public
    #^#BASE#$#
{
    #^#PUBLIC#$#
    /// @brief Name of the field.
    static const char* name()
    {
        return "#^#NAME#$#";
    }
    #^#EXTRA#$#
};`

const fieldHeaderTempl = `// Generated by commsdsl2comms.

/// @file
/// @brief Contains definition of <b>"#^#NAME#$#"</b> field.

#pragma once

#^#INCLUDES#$#

#^#NS_BEGIN#$#
#^#DEF#$#

#^#NS_END#$#
`

func tmplArgs(kind string, args []string) string {
	return kind + "<\n    " + strings.Join(args, ",\n    ") + "\n>"
}

func opt(name string, args ...interface{}) string {
	if len(args) == 0 {
		return "comms::option::def::" + name
	}
	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = fmt.Sprint(a)
	}
	return "comms::option::def::" + name + "<" + strings.Join(strs, ", ") + ">"
}

func (b *Backend) fieldBase() string {
	return "::" + b.mainNs + "::field::FieldBase"
}

// Prepare renders the definition of the field. Members are prepared first,
// so containers embed their already rendered definitions.
func (e *fieldElem) Prepare() bool {
	b := e.b
	e.className = gen.ClassName(e.f.Common().Name)
	e.incs = includes{path.Join(b.mainNs, "field", "FieldBase.h"): true, "comms/options.h": true}
	e.versionDep = e.b.versions.Dependent(e.f)
	repl := map[string]string{
		"DOC":   docComment(e.f.Common().Name, e.f.Common().Description),
		"CLASS": e.className,
		"NAME":  e.displayName(),
	}
	var ok bool
	switch f := e.f.(type) {
	case *commsdsl.IntField:
		ok = e.prepareInt(f, repl)
	case *commsdsl.EnumField:
		ok = e.prepareEnum(f, repl)
	case *commsdsl.SetField:
		ok = e.prepareSet(f, repl)
	case *commsdsl.FloatField:
		ok = e.prepareFloat(f, repl)
	case *commsdsl.BitfieldField:
		ok = e.prepareMembers("Bitfield", f.Members, nil, repl)
	case *commsdsl.BundleField:
		ok = e.prepareMembers("Bundle", f.Members, f.Aliases, repl)
	case *commsdsl.StringField:
		ok = e.prepareString(f, repl)
	case *commsdsl.DataField:
		ok = e.prepareData(f, repl)
	case *commsdsl.ListField:
		ok = e.prepareList(f, repl)
	case *commsdsl.RefField:
		ok = e.prepareRef(f, repl)
	case *commsdsl.OptionalField:
		ok = e.prepareOptional(f, repl)
	case *commsdsl.VariantField:
		ok = e.prepareVariant(f, repl)
	default:
		return b.gen.Errorf(e.f, "unsupported field kind %s", e.f.Kind())
	}
	if !ok {
		return false
	}
	e.def = gen.ProcessTemplate(fieldTempl, repl)
	return true
}

// Write emits a header for fields defined directly in a namespace; member
// fields are part of their container's header.
func (e *fieldElem) Write() bool {
	if _, ok := e.f.ElemParent().(*commsdsl.Namespace); !ok {
		return true
	}
	b := e.b
	content := gen.ProcessTemplate(fieldHeaderTempl, map[string]string{
		"NAME":     e.f.Common().Name,
		"INCLUDES": e.incs.String(),
		"NS_BEGIN": b.nsBegin(e.f, "field"),
		"DEF":      e.def,
		"NS_END":   b.nsEnd(e.f, "field"),
	})
	return b.writeHeader(e.f, b.headerPath(e.f, "field"), content)
}

func (e *fieldElem) displayName() string {
	if d := e.f.Common().DisplayName; d != "" {
		return d
	}
	return e.f.Common().Name
}

func (e *fieldElem) endianOpts(endian commsdsl.Endian) []string {
	if s := commsdsl.SchemaOf(e.f); s != nil && s.Endian == endian {
		return nil
	}
	if endian == commsdsl.EndianBig {
		return []string{opt("BigEndian")}
	}
	return []string{opt("LittleEndian")}
}

func (e *fieldElem) lengthOpts(t commsdsl.IntType, length int, bitLength int) []string {
	switch {
	case bitLength > 0:
		return []string{opt("FixedBitLength", bitLength)}
	case t.IsVarLength():
		return []string{opt("VarLength", 1, length)}
	case length != t.MaxLength():
		return []string{opt("FixedLength", length)}
	}
	return nil
}

func (e *fieldElem) commonOpts() []string {
	var opts []string
	c := e.f.Common()
	if c.FailOnInvalid {
		opts = append(opts, opt("FailOnInvalid", "comms::ErrorStatus::InvalidMsgData"))
	}
	if c.Pseudo {
		opts = append(opts, opt("EmptySerialization"))
	}
	return opts
}

func (e *fieldElem) prepareInt(f *commsdsl.IntField, repl map[string]string) bool {
	e.incs["comms/field/IntValue.h"] = true
	e.incs["<cstdint>"] = true
	args := []string{e.b.fieldBase(), cppIntTypes[f.Type.String()]}
	args = append(args, e.keyOpts(f)...)
	if f.DefaultValue != 0 {
		args = append(args, opt("DefaultNumValue", f.DefaultValue))
	}
	if !f.Scaling.IsIdentity() {
		args = append(args, opt("ScalingRatio", f.Scaling.Num, f.Scaling.Denom))
	}
	for _, r := range f.ValidRanges {
		if r.Min == r.Max {
			args = append(args, opt("ValidNumValue", r.Min))
		} else {
			args = append(args, opt("ValidNumValueRange", r.Min, r.Max))
		}
	}
	if u, ok := unitOpts[strings.ToLower(f.Units)]; ok {
		args = append(args, opt(u))
	}
	args = append(args, e.commonOpts()...)
	repl["BASE"] = tmplArgs("comms::field::IntValue", args)
	var specials []string
	for _, s := range f.Specials {
		name := gen.ClassName(s.Name)
		specials = append(specials, fmt.Sprintf(
			"/// @brief Special value <b>\"%s\"</b>.\nstatic constexpr ValueType value%s()\n{\n    return static_cast<ValueType>(%d);\n}\n\n"+
				"/// @brief Check the value is equal to special @ref value%s().\nbool is%s() const\n{\n    return getValue() == value%s();\n}\n",
			s.Name, name, s.Value, name, name, name))
	}
	repl["EXTRA"] = strings.Join(specials, "\n")
	return true
}

// keyOpts are the serialisation options of an int, shared with the key field
// of an optimized variant read.
func (e *fieldElem) keyOpts(f *commsdsl.IntField) []string {
	opts := e.endianOpts(f.Endian)
	opts = append(opts, e.lengthOpts(f.Type, f.Length, f.BitLength)...)
	if f.SerOffset != 0 {
		opts = append(opts, opt("NumValueSerOffset", f.SerOffset))
	}
	return opts
}

func (e *fieldElem) prepareEnum(f *commsdsl.EnumField, repl map[string]string) bool {
	e.incs["comms/field/EnumValue.h"] = true
	e.incs["<cstdint>"] = true
	valType := e.className + "Val"
	var sb strings.Builder
	fmt.Fprintf(&sb, "/// @brief Values enumerator for @ref %s field.\nenum class %s : %s\n{\n", e.className, valType, cppIntTypes[f.Type.String()])
	for _, v := range f.Values {
		num := fmt.Sprint(v.Value)
		if f.HexAssign {
			num = fmt.Sprintf("0x%X", v.Value)
		}
		fmt.Fprintf(&sb, "    %s = %s, ///< value @b %s\n", v.Name, num, v.Name)
	}
	sb.WriteString("};\n")
	repl["PREFIX"] = sb.String()

	args := []string{e.b.fieldBase(), valType}
	args = append(args, e.endianOpts(f.Endian)...)
	args = append(args, e.lengthOpts(f.Type, f.Length, f.BitLength)...)
	if f.DefaultValue != 0 {
		args = append(args, opt("DefaultNumValue", f.DefaultValue))
	}
	for _, r := range enumRanges(f.Values) {
		args = append(args, opt("ValidNumValueRange", r[0], r[1]))
	}
	args = append(args, e.commonOpts()...)
	repl["BASE"] = tmplArgs("comms::field::EnumValue", args)
	return true
}

// enumRanges groups the enumerator values into contiguous ranges.
func enumRanges(values []commsdsl.EnumValue) [][2]int64 {
	var nums []int64
	seen := make(map[int64]bool)
	for _, v := range values {
		if !seen[v.Value] {
			seen[v.Value] = true
			nums = append(nums, v.Value)
		}
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	var ranges [][2]int64
	for _, n := range nums {
		if l := len(ranges); l > 0 && ranges[l-1][1]+1 == n {
			ranges[l-1][1] = n
			continue
		}
		ranges = append(ranges, [2]int64{n, n})
	}
	return ranges
}

func (e *fieldElem) prepareSet(f *commsdsl.SetField, repl map[string]string) bool {
	e.incs["comms/field/BitmaskValue.h"] = true
	bits := f.BitCount()
	var reservedMask, reservedValue, defaultValue uint64
	used := make(map[int]bool)
	var names, idxs []string
	for _, bit := range f.Bits {
		used[bit.Idx] = true
		if bit.DefaultValue {
			defaultValue |= 1 << uint(bit.Idx)
		}
		if bit.Reserved {
			reservedMask |= 1 << uint(bit.Idx)
			if bit.ReservedValue {
				reservedValue |= 1 << uint(bit.Idx)
			}
			continue
		}
		names = append(names, bit.Name)
		idxs = append(idxs, fmt.Sprintf("BitIdx_%s = %d,", bit.Name, bit.Idx))
	}
	for i := 0; i < bits; i++ {
		if !used[i] {
			reservedMask |= 1 << uint(i)
			if f.ReservedValue {
				reservedValue |= 1 << uint(i)
			}
		}
	}
	args := []string{e.b.fieldBase()}
	args = append(args, e.endianOpts(f.Endian)...)
	if f.BitLength > 0 {
		args = append(args, opt("FixedBitLength", f.BitLength))
	} else {
		args = append(args, opt("FixedLength", f.Type.MaxLength()))
	}
	if defaultValue != 0 {
		args = append(args, opt("DefaultNumValue", fmt.Sprintf("0x%XULL", defaultValue)))
	}
	if reservedMask != 0 {
		args = append(args, opt("BitmaskReservedBits", fmt.Sprintf("0x%XULL", reservedMask), fmt.Sprintf("0x%XULL", reservedValue)))
	}
	args = append(args, e.commonOpts()...)
	repl["BASE"] = tmplArgs("comms::field::BitmaskValue", args)
	if len(names) > 0 {
		repl["PUBLIC"] = fmt.Sprintf("/// @brief Bits indices.\nenum BitIdx\n{\n    %s\n    BitIdx_numOfValues = %d\n};\n\nCOMMS_BITMASK_BITS_ACCESS(%s);\n",
			strings.Join(idxs, "\n    "), bits, strings.Join(names, ", "))
	}
	return true
}

func (e *fieldElem) prepareFloat(f *commsdsl.FloatField, repl map[string]string) bool {
	e.incs["comms/field/FloatValue.h"] = true
	typ := "float"
	if f.Type == commsdsl.FloatTypeDouble {
		typ = "double"
	}
	args := []string{e.b.fieldBase(), typ}
	args = append(args, e.endianOpts(f.Endian)...)
	if u, ok := unitOpts[strings.ToLower(f.Units)]; ok {
		args = append(args, opt(u))
	}
	args = append(args, e.commonOpts()...)
	repl["BASE"] = tmplArgs("comms::field::FloatValue", args)
	if f.DefaultValue != 0 {
		repl["PUBLIC"] = fmt.Sprintf("/// @brief Default constructor.\n%s()\n{\n    setValue(%v);\n}\n", e.className, f.DefaultValue)
	}
	return true
}

// member returns the prepared view of a member field and the type to use
// for it in a members tuple.
func (e *fieldElem) member(m commsdsl.Field, scope string) (*fieldElem, string, bool) {
	me := e.b.fieldElem(m)
	if me == nil || me.def == "" {
		return nil, "", e.b.gen.Errorf(m, "member %s was not prepared", m.Common().Name)
	}
	e.incs.add(me.incs)
	typ := scope + "::" + me.className
	if since := m.Common().SinceVersion; e.b.versions.Optional(since, e.f.Common().SinceVersion) {
		e.incs["comms/field/Optional.h"] = true
		typ = tmplArgs("comms::field::Optional", []string{typ, opt("ExistsByDefault"), opt("ExistsSinceVersion", since)})
	}
	return me, typ, true
}

// membersStruct renders the struct scoping the definitions of members and
// returns the C++ names of the members in order.
func (e *fieldElem) membersStruct(members []commsdsl.Field) (string, []string, bool) {
	scope := e.className + "Members"
	var defs, types, names []string
	for _, m := range members {
		me, typ, ok := e.member(m, scope)
		if !ok {
			return "", nil, false
		}
		defs = append(defs, me.def)
		types = append(types, typ)
		names = append(names, m.Common().Name)
	}
	e.incs["<tuple>"] = true
	body := strings.Join(defs, "\n\n")
	if len(types) > 0 {
		body += "\n\n/// @brief All members bundled in @b std::tuple.\nusing All = " + tmplArgs("std::tuple", types) + ";"
	} else {
		body += "\n\nusing All = std::tuple<>;"
	}
	s := gen.ProcessTemplate(membersTempl, map[string]string{"CLASS": e.className, "BODY": body})
	return s, names, true
}

const versionAssert = `static_assert(
    isVersionDependent(),
    "The field must be recognised as version dependent");`

const membersTempl = `/// @brief Scope for all the member fields of @ref #^#CLASS#$# field.
struct #^#CLASS#$#Members
{
    #^#BODY#$#
};
`

func (e *fieldElem) prepareMembers(kind string, members []commsdsl.Field, aliases []*commsdsl.Alias, repl map[string]string) bool {
	e.incs["comms/field/"+kind+".h"] = true
	prefix, names, ok := e.membersStruct(members)
	if !ok {
		return false
	}
	repl["PREFIX"] = prefix
	args := []string{e.b.fieldBase(), e.className + "Members::All"}
	if bf, isBitfield := e.f.(*commsdsl.BitfieldField); isBitfield {
		args = append(args, e.endianOpts(bf.Endian)...)
	}
	if opts, _ := conditionals(members); len(opts) > 0 {
		args = append(args, opt("HasCustomRead"), opt("HasCustomRefresh"))
	}
	args = append(args, e.commonOpts()...)
	repl["BASE"] = tmplArgs("comms::field::"+kind, args)
	public := ""
	if len(names) > 0 {
		public = fmt.Sprintf("COMMS_FIELD_MEMBERS_NAMES(\n    %s\n);\n", strings.Join(names, ",\n    "))
	}
	for _, a := range aliases {
		public += fmt.Sprintf("\n/// @brief Alias to a member field.\nCOMMS_FIELD_ALIAS(%s, %s);\n", a.Name, strings.ReplaceAll(a.FieldName, ".", ", "))
	}
	repl["PUBLIC"] = public
	if e.versionDep {
		repl["EXTRA"] = versionAssert
	}
	if refresh := refreshCode(members, false); refresh != "" {
		repl["PUBLIC"] = "using Base =\n    " + strings.ReplaceAll(repl["BASE"], "\n", "\n    ") + ";\n\n" + repl["PUBLIC"]
		repl["EXTRA"] = strings.TrimPrefix(repl["EXTRA"]+"\n\n"+refresh, "\n\n")
	}
	return true
}

// prefixMember renders a prefix field owned by a string, data or list into
// the members struct, returning the qualified type.
func (e *fieldElem) prefixMember(prefix commsdsl.Field, defs *[]string) (string, bool) {
	me, typ, ok := e.member(prefix, e.className+"Members")
	if !ok {
		return "", false
	}
	*defs = append(*defs, me.def)
	return typ, true
}

func (e *fieldElem) sequenceStruct(defs []string) string {
	if len(defs) == 0 {
		return ""
	}
	return gen.ProcessTemplate(membersTempl, map[string]string{"CLASS": e.className, "BODY": strings.Join(defs, "\n\n")})
}

func (e *fieldElem) sequenceLengthOpts(length int, prefix commsdsl.Field, detached string, defs *[]string) ([]string, bool) {
	var opts []string
	switch {
	case prefix != nil:
		typ, ok := e.prefixMember(prefix, defs)
		if !ok {
			return nil, false
		}
		opts = append(opts, opt("SequenceSizeFieldPrefix", typ))
	case detached != "":
		opts = append(opts, opt("SequenceSizeForcingEnabled"))
	}
	if length > 0 {
		opts = append(opts, opt("SequenceFixedSize", length))
	}
	return opts, true
}

func (e *fieldElem) prepareString(f *commsdsl.StringField, repl map[string]string) bool {
	e.incs["comms/field/String.h"] = true
	var defs []string
	args := []string{e.b.fieldBase()}
	opts, ok := e.sequenceLengthOpts(f.Length, f.LengthPrefix, f.DetachedPrefix, &defs)
	if !ok {
		return false
	}
	args = append(args, opts...)
	if f.ZeroTermSuffix {
		e.incs["comms/field/IntValue.h"] = true
		args = append(args, opt("SequenceTerminationFieldSuffix",
			"comms::field::IntValue<"+e.b.fieldBase()+", std::uint8_t, "+opt("ValidNumValue", 0)+">"))
	}
	args = append(args, e.commonOpts()...)
	repl["PREFIX"] = e.sequenceStruct(defs)
	repl["BASE"] = tmplArgs("comms::field::String", args)
	if f.DefaultValue != "" {
		repl["PUBLIC"] = fmt.Sprintf("/// @brief Default constructor.\n%s()\n{\n    static const char Str[] = %q;\n    comms::util::assign(value(), Str, Str + sizeof(Str) - 1);\n}\n", e.className, f.DefaultValue)
		e.incs["comms/util/assign.h"] = true
	}
	return true
}

func (e *fieldElem) prepareData(f *commsdsl.DataField, repl map[string]string) bool {
	e.incs["comms/field/ArrayList.h"] = true
	e.incs["<cstdint>"] = true
	var defs []string
	args := []string{e.b.fieldBase(), "std::uint8_t"}
	opts, ok := e.sequenceLengthOpts(f.Length, f.LengthPrefix, f.DetachedPrefix, &defs)
	if !ok {
		return false
	}
	args = append(args, opts...)
	args = append(args, e.commonOpts()...)
	repl["PREFIX"] = e.sequenceStruct(defs)
	repl["BASE"] = tmplArgs("comms::field::ArrayList", args)
	if len(f.DefaultValue) > 0 {
		bytes := make([]string, len(f.DefaultValue))
		for i, v := range f.DefaultValue {
			bytes[i] = fmt.Sprintf("0x%02X", v)
		}
		repl["PUBLIC"] = fmt.Sprintf("/// @brief Default constructor.\n%s()\n{\n    static const std::uint8_t Data[] = {%s};\n    comms::util::assign(value(), std::begin(Data), std::end(Data));\n}\n",
			e.className, strings.Join(bytes, ", "))
		e.incs["comms/util/assign.h"] = true
		e.incs["<iterator>"] = true
	}
	return true
}

func (e *fieldElem) prepareList(f *commsdsl.ListField, repl map[string]string) bool {
	e.incs["comms/field/ArrayList.h"] = true
	var defs []string
	elem, ok := e.prefixMember(f.Element, &defs)
	if !ok {
		return false
	}
	args := []string{e.b.fieldBase(), elem}
	if f.Count > 0 {
		args = append(args, opt("SequenceFixedSize", f.Count))
	}
	type prefixOpt struct {
		field    commsdsl.Field
		detached string
		option   string
	}
	for _, p := range []prefixOpt{
		{f.CountPrefix, f.DetachedCountPrefix, "SequenceSizeFieldPrefix"},
		{f.LengthPrefix, f.DetachedLengthPrefix, "SequenceSerLengthFieldPrefix"},
	} {
		switch {
		case p.field != nil:
			typ, ok := e.prefixMember(p.field, &defs)
			if !ok {
				return false
			}
			args = append(args, opt(p.option, typ))
		case p.detached != "":
			args = append(args, opt("SequenceSizeForcingEnabled"))
		}
	}
	switch {
	case f.ElemLengthPrefix != nil:
		typ, ok := e.prefixMember(f.ElemLengthPrefix, &defs)
		if !ok {
			return false
		}
		if f.ElemFixedLength {
			args = append(args, opt("SequenceElemFixedSerLengthFieldPrefix", typ))
		} else {
			args = append(args, opt("SequenceElemSerLengthFieldPrefix", typ))
		}
	case f.DetachedElemLengthPrefix != "":
		args = append(args, opt("SequenceElemLengthForcingEnabled"))
	}
	args = append(args, e.commonOpts()...)
	repl["PREFIX"] = e.sequenceStruct(defs)
	repl["BASE"] = tmplArgs("comms::field::ArrayList", args)
	return true
}

func (e *fieldElem) prepareRef(f *commsdsl.RefField, repl map[string]string) bool {
	b := e.b
	target := f.Target
	if target == nil {
		return b.gen.Errorf(f, "reference %s is not resolved", f.FieldRef)
	}
	e.incs[b.headerPath(target, "field")] = true
	repl["BASE"] = b.scopedName(target, "field")
	return true
}

func (e *fieldElem) prepareOptional(f *commsdsl.OptionalField, repl map[string]string) bool {
	e.incs["comms/field/Optional.h"] = true
	var defs []string
	inner, ok := e.prefixMember(f.Field, &defs)
	if !ok {
		return false
	}
	args := []string{inner}
	switch f.DefaultMode {
	case commsdsl.OptModeExists:
		args = append(args, opt("ExistsByDefault"))
	case commsdsl.OptModeMissing:
		args = append(args, opt("MissingByDefault"))
	}
	if f.MissingOnReadFail {
		args = append(args, opt("MissingOnReadFail"))
	}
	if f.MissingOnInvalid {
		args = append(args, opt("MissingOnInvalid"))
	}
	repl["PREFIX"] = e.sequenceStruct(defs)
	repl["BASE"] = tmplArgs("comms::field::Optional", args)
	if f.Cond != nil {
		repl["DOC"] += "\n/// @details Exists when: " + f.Cond.String()
	}
	return true
}

func (e *fieldElem) prepareVariant(v *commsdsl.VariantField, repl map[string]string) bool {
	b := e.b
	e.incs["comms/field/Variant.h"] = true
	prefix, names, ok := e.membersStruct(v.Members)
	if !ok {
		return false
	}
	e.compact = gen.CompactVariantAccess(v, b.gen.Config)
	e.readKey = gen.OptimizedReadKey(v, func(f commsdsl.Field) bool {
		return gen.HasCustomCode(b.gen.Config, f, ".read")
	})
	repl["PREFIX"] = prefix
	args := []string{b.fieldBase(), e.className + "Members::All"}
	if v.DefaultMember >= 0 && v.DefaultMember < len(v.Members) {
		args = append(args, opt("DefaultVariantIndex", v.DefaultMember))
	}
	if e.readKey != "" {
		args = append(args, opt("HasCustomRead"))
	}
	args = append(args, e.commonOpts()...)
	repl["BASE"] = tmplArgs("comms::field::Variant", args)
	var public string
	switch {
	case len(names) == 0:
	case e.compact:
		public = fmt.Sprintf("COMMS_VARIANT_MEMBERS_NAMES(\n    %s\n);\n", strings.Join(names, ",\n    "))
	default:
		idxs := make([]string, len(names))
		for i, n := range names {
			idxs[i] = fmt.Sprintf("FieldIdx_%s = %d,", n, i)
		}
		public = fmt.Sprintf("/// @brief Member indices, used with accessField() and initField().\nenum FieldIdx\n{\n    %s\n    FieldIdx_numOfValues\n};\n",
			strings.Join(idxs, "\n    "))
	}
	repl["PUBLIC"] = public
	if e.readKey != "" {
		repl["EXTRA"] = e.optimizedRead(v)
	}
	return true
}

// optimizedRead renders a read that peeks at the common key and initializes
// only the matching member.
func (e *fieldElem) optimizedRead(v *commsdsl.VariantField) string {
	var key *commsdsl.IntField
	var cases []string
	def := "return comms::ErrorStatus::InvalidMsgData;"
	for i, m := range v.Members {
		val, ok := gen.VariantKey(m)
		if !ok {
			def = fmt.Sprintf("return initField<%d>().read(iter, len);", i)
			continue
		}
		if key == nil {
			b := commsdsl.Deref(m).(*commsdsl.BundleField)
			key = commsdsl.Deref(b.Members[0]).(*commsdsl.IntField)
		}
		cases = append(cases, fmt.Sprintf("case %d:\n    return initField<%d>().read(iter, len);", val, i))
	}
	keyArgs := append([]string{e.b.fieldBase(), cppIntTypes[e.readKey]}, e.keyOpts(key)...)
	return gen.ProcessTemplate(optimizedReadTempl, map[string]string{
		"KEY":     tmplArgs("comms::field::IntValue", keyArgs),
		"CASES":   strings.Join(cases, "\n"),
		"DEFAULT": def,
	})
}

const optimizedReadTempl = `/// @brief Optimized read dispatching on the common key of the members.
template <typename TIter>
comms::ErrorStatus read(TIter& iter, std::size_t len)
{
    using CommonKeyField =
        #^#KEY#$#;

    CommonKeyField commonKeyField;
    auto origIter = iter;
    auto es = commonKeyField.read(iter, len);
    if (es != comms::ErrorStatus::Success) {
        return es;
    }

    iter = origIter;
    switch (commonKeyField.getValue()) {
    #^#CASES#$#
    default:
        break;
    }

    #^#DEFAULT#$#
}`
