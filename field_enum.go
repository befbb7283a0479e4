package commsdsl

type EnumValue struct {
	Name            string `json:"name"`
	Value           int64  `json:"value"`
	Description     string `json:"description,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	SinceVersion    uint   `json:"sinceVersion,omitempty"`
	DeprecatedSince uint   `json:"deprecated,omitempty"`
}

type EnumField struct {
	FieldCommon
	Type              IntType     `json:"type"`
	Endian            Endian      `json:"endian"`
	Length            int         `json:"length"`
	BitLength         int         `json:"bitLength,omitempty"`
	Values            []EnumValue `json:"values"`
	DefaultValue      int64       `json:"defaultValue"`
	NonUniqueAllowed  bool        `json:"nonUniqueAllowed,omitempty"`
	ValidCheckVersion bool        `json:"validCheckVersion,omitempty"`
	HexAssign         bool        `json:"hexAssign,omitempty"`
}

func newEnumField() *EnumField {
	return &EnumField{}
}

var enumSchema = fieldSchema(
	[]string{"type", "defaultValue", "endian", "length", "bitLength", "nonUniqueAllowed",
		"validCheckVersion", "hexAssign", "availableLengthLimit"},
	[]string{"validValue"},
)

var enumValueSchema = &elemSchema{
	props:    []string{"name", "val", "description", "displayName", "sinceVersion", "deprecated", "removed"},
	required: []string{"name", "val"},
}

func (f *EnumField) Kind() FieldKind      { return KindEnum }
func (f *EnumField) schema() *elemSchema { return enumSchema }
func (f *EnumField) owned() []Field      { return nil }

func (f *EnumField) clone() Field {
	cp := *f
	cp.Values = append([]EnumValue(nil), f.Values...)
	return &cp
}

func (f *EnumField) MinLength() int {
	if f.Type.IsVarLength() {
		return 1
	}
	return f.Length
}

func (f *EnumField) MaxLength() int { return f.Length }

func (f *EnumField) Bits() int {
	if f.BitLength > 0 {
		return f.BitLength
	}
	return f.Length * 8
}

func (f *EnumField) FindValue(name string) (EnumValue, bool) {
	for _, v := range f.Values {
		if v.Name == name {
			return v, true
		}
	}
	return EnumValue{}, false
}

func (f *EnumField) parse(fp *fieldParser) bool {
	reused := fp.has("reuse")
	if fp.has("type") {
		t, ok := parseIntType(fp.get("type"))
		if !ok {
			return fp.errorf("unknown enum type %q", fp.get("type"))
		}
		if t != f.Type || f.Length == 0 {
			f.Length = t.MaxLength()
			f.BitLength = 0
		}
		f.Type = t
	} else if !reused {
		return fp.errorf("enum field requires the \"type\" property")
	}
	if !parseEndianProp(fp, &f.Endian, reused) {
		return false
	}
	if fp.has("length") {
		n, err := strToInt(fp.get("length"))
		if err != nil || n <= 0 || int(n) > f.Type.MaxLength() {
			return fp.errorf("invalid length %q for type %s", fp.get("length"), f.Type)
		}
		f.Length = int(n)
	}
	if !parseBitLengthProp(fp, &f.BitLength, f.Length) {
		return false
	}
	var ok bool
	if f.NonUniqueAllowed, ok = fp.boolProp("nonUniqueAllowed", f.NonUniqueAllowed); !ok {
		return false
	}
	if f.ValidCheckVersion, ok = fp.boolProp("validCheckVersion", f.ValidCheckVersion); !ok {
		return false
	}
	if f.HexAssign, ok = fp.boolProp("hexAssign", f.HexAssign); !ok {
		return false
	}
	lo, hi := intTypeBounds(f.Type, f.Bits())
	big := f.Type.IsBigUnsigned() && f.Bits() >= 64
	vsc := fp.scope.child(f, f.SinceVersion, f.DeprecatedSince)
	for _, n := range fp.childrenNamed("validValue") {
		ep := fp.proto.newElemParser(n, enumValueSchema)
		if !ep.ok {
			return false
		}
		ev := EnumValue{
			Name:            ep.get("name"),
			Description:     ep.get("description"),
			DisplayName:     ep.get("displayName"),
			SinceVersion:    f.SinceVersion,
			DeprecatedSince: NotYetDeprecated,
		}
		if !IsValidName(ev.Name) {
			return fp.errorf("invalid enum value name %q", ev.Name)
		}
		if _, dup := f.FindValue(ev.Name); dup {
			return fp.errorf("enum value %q is defined more than once", ev.Name)
		}
		v, err := strToValue(ep.get("val"), f.Type.IsBigUnsigned())
		if err != nil {
			return fp.errorf("invalid value %q of %q", ep.get("val"), ev.Name)
		}
		if cmpValues(v, lo, big) < 0 || cmpValues(v, hi, big) > 0 {
			return fp.errorf("value %s of %q does not fit into %d bits", valueString(v, big), ev.Name, f.Bits())
		}
		ev.Value = v
		var removed bool
		if !fp.proto.parseVersions(ep, fp.path(), vsc, &ev.SinceVersion, &ev.DeprecatedSince, &removed) {
			return false
		}
		f.Values = append(f.Values, ev)
	}
	if len(f.Values) == 0 {
		return fp.errorf("enum has no values")
	}
	if !f.NonUniqueAllowed {
		seen := make(map[int64]string, len(f.Values))
		for _, ev := range f.Values {
			if prev, dup := seen[ev.Value]; dup {
				return fp.errorf("enum values %q and %q share the value %s (nonUniqueAllowed is false)",
					prev, ev.Name, valueString(ev.Value, big))
			}
			seen[ev.Value] = ev.Name
		}
	}
	if fp.has("defaultValue") {
		s := fp.get("defaultValue")
		if ev, ok := f.FindValue(s); ok {
			f.DefaultValue = ev.Value
		} else if v, err := strToValue(s, f.Type.IsBigUnsigned()); err == nil {
			f.DefaultValue = v
		} else if v, ok := fp.proto.lookupValue(fp.scope.ns, s); ok {
			f.DefaultValue = v
		} else {
			return fp.errorf("invalid defaultValue %q", s)
		}
		if cmpValues(f.DefaultValue, lo, big) < 0 || cmpValues(f.DefaultValue, hi, big) > 0 {
			return fp.errorf("defaultValue %s does not fit into %d bits", valueString(f.DefaultValue, big), f.Bits())
		}
	}
	return true
}

type SetBit struct {
	Name            string `json:"name"`
	Idx             int    `json:"idx"`
	DefaultValue    bool   `json:"defaultValue"`
	Reserved        bool   `json:"reserved,omitempty"`
	ReservedValue   bool   `json:"reservedValue,omitempty"`
	Description     string `json:"description,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	SinceVersion    uint   `json:"sinceVersion,omitempty"`
	DeprecatedSince uint   `json:"deprecated,omitempty"`
}

type SetField struct {
	FieldCommon
	Type              IntType  `json:"type"`
	Endian            Endian   `json:"endian"`
	Length            int      `json:"length"`
	BitLength         int      `json:"bitLength,omitempty"`
	Bits              []SetBit `json:"bits"`
	DefaultValue      bool     `json:"defaultValue"`
	ReservedValue     bool     `json:"reservedValue"`
	NonUniqueAllowed  bool     `json:"nonUniqueAllowed,omitempty"`
	ValidCheckVersion bool     `json:"validCheckVersion,omitempty"`
}

func newSetField() *SetField {
	return &SetField{}
}

var setSchema = fieldSchema(
	[]string{"type", "defaultValue", "reservedValue", "endian", "length", "bitLength",
		"nonUniqueAllowed", "validCheckVersion", "availableLengthLimit"},
	[]string{"bit"},
)

var setBitSchema = &elemSchema{
	props: []string{"name", "idx", "defaultValue", "reserved", "reservedValue", "description",
		"displayName", "sinceVersion", "deprecated", "removed"},
	required: []string{"name", "idx"},
}

func (f *SetField) Kind() FieldKind      { return KindSet }
func (f *SetField) schema() *elemSchema { return setSchema }
func (f *SetField) owned() []Field      { return nil }

func (f *SetField) clone() Field {
	cp := *f
	cp.Bits = append([]SetBit(nil), f.Bits...)
	return &cp
}

func (f *SetField) MinLength() int { return f.Length }
func (f *SetField) MaxLength() int { return f.Length }

// BitCount is the number of serialised bits.
func (f *SetField) BitCount() int {
	if f.BitLength > 0 {
		return f.BitLength
	}
	return f.Length * 8
}

func (f *SetField) FindBit(name string) (SetBit, bool) {
	for _, b := range f.Bits {
		if b.Name == name {
			return b, true
		}
	}
	return SetBit{}, false
}

func (f *SetField) parse(fp *fieldParser) bool {
	reused := fp.has("reuse")
	switch {
	case fp.has("type"):
		t, ok := parseIntType(fp.get("type"))
		if !ok || !t.IsUnsigned() || t.IsVarLength() {
			return fp.errorf("set type must be a fixed length unsigned type, got %q", fp.get("type"))
		}
		f.Type = t
		f.Length = t.MaxLength()
		if fp.has("length") {
			n, err := strToInt(fp.get("length"))
			if err != nil || n <= 0 || int(n) > t.MaxLength() {
				return fp.errorf("invalid length %q for type %s", fp.get("length"), t)
			}
			f.Length = int(n)
		}
	case fp.has("length"):
		n, err := strToInt(fp.get("length"))
		if err != nil || n <= 0 || n > 8 {
			return fp.errorf("invalid length %q", fp.get("length"))
		}
		f.Length = int(n)
		f.Type = smallestIntType(f.Length, true)
	case !reused:
		return fp.errorf("set field requires either \"type\" or \"length\"")
	}
	if !parseEndianProp(fp, &f.Endian, reused) {
		return false
	}
	if !parseBitLengthProp(fp, &f.BitLength, f.Length) {
		return false
	}
	var ok bool
	if f.DefaultValue, ok = fp.boolProp("defaultValue", f.DefaultValue); !ok {
		return false
	}
	if f.ReservedValue, ok = fp.boolProp("reservedValue", f.ReservedValue); !ok {
		return false
	}
	if f.NonUniqueAllowed, ok = fp.boolProp("nonUniqueAllowed", f.NonUniqueAllowed); !ok {
		return false
	}
	if f.ValidCheckVersion, ok = fp.boolProp("validCheckVersion", f.ValidCheckVersion); !ok {
		return false
	}
	vsc := fp.scope.child(f, f.SinceVersion, f.DeprecatedSince)
	for _, n := range fp.childrenNamed("bit") {
		ep := fp.proto.newElemParser(n, setBitSchema)
		if !ep.ok {
			return false
		}
		b := SetBit{
			Name:            ep.get("name"),
			Description:     ep.get("description"),
			DisplayName:     ep.get("displayName"),
			DefaultValue:    f.DefaultValue,
			ReservedValue:   f.ReservedValue,
			SinceVersion:    f.SinceVersion,
			DeprecatedSince: NotYetDeprecated,
		}
		if !IsValidName(b.Name) {
			return fp.errorf("invalid bit name %q", b.Name)
		}
		if _, dup := f.FindBit(b.Name); dup {
			return fp.errorf("bit %q is defined more than once", b.Name)
		}
		idx, err := strToInt(ep.get("idx"))
		if err != nil || idx < 0 || int(idx) >= f.BitCount() {
			return fp.errorf("bit %q index %q is outside [0, %d)", b.Name, ep.get("idx"), f.BitCount())
		}
		b.Idx = int(idx)
		if b.DefaultValue, ok = ep.boolProp("defaultValue", b.DefaultValue); !ok {
			return false
		}
		if b.Reserved, ok = ep.boolProp("reserved", b.Reserved); !ok {
			return false
		}
		if b.ReservedValue, ok = ep.boolProp("reservedValue", b.ReservedValue); !ok {
			return false
		}
		var removed bool
		if !fp.proto.parseVersions(ep, fp.path(), vsc, &b.SinceVersion, &b.DeprecatedSince, &removed) {
			return false
		}
		f.Bits = append(f.Bits, b)
	}
	if !f.NonUniqueAllowed {
		seen := make(map[int]string, len(f.Bits))
		for _, b := range f.Bits {
			if prev, dup := seen[b.Idx]; dup {
				return fp.errorf("bits %q and %q share index %d (nonUniqueAllowed is false)", prev, b.Name, b.Idx)
			}
			seen[b.Idx] = b.Name
		}
	}
	return true
}
