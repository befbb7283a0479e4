package commsdsl

// BitfieldField packs int, enum and set members into a single fixed length
// value.
type BitfieldField struct {
	FieldCommon
	Endian  Endian  `json:"endian"`
	Length  int     `json:"length"`
	Members []Field `json:"members"`
}

var bitfieldChildren = []string{"members", "int", "enum", "set"}

var bitfieldSchema = fieldSchema([]string{"endian", "length", "validCheckVersion"}, bitfieldChildren)

func (f *BitfieldField) Kind() FieldKind      { return KindBitfield }
func (f *BitfieldField) schema() *elemSchema { return bitfieldSchema }
func (f *BitfieldField) owned() []Field      { return f.Members }
func (f *BitfieldField) MinLength() int      { return f.Length }
func (f *BitfieldField) MaxLength() int      { return f.Length }

func (f *BitfieldField) clone() Field {
	cp := *f
	cp.Members = cloneFields(f.Members)
	return &cp
}

// MemberBits returns the number of bits used by a bitfield member.
func MemberBits(f Field) int {
	switch m := f.(type) {
	case *IntField:
		return m.Bits()
	case *EnumField:
		return m.Bits()
	case *SetField:
		return m.BitCount()
	}
	return 0
}

func (f *BitfieldField) parse(fp *fieldParser) bool {
	reused := fp.has("reuse")
	if !parseEndianProp(fp, &f.Endian, reused) {
		return false
	}
	declared := 0
	if fp.has("length") {
		n, err := strToInt(fp.get("length"))
		if err != nil || n <= 0 || n > 8 {
			return fp.errorf("invalid bitfield length %q", fp.get("length"))
		}
		declared = int(n)
	}
	sc := fp.scope.child(f, f.SinceVersion, f.DeprecatedSince)
	sc.inBitfield = true
	sc.endian = f.Endian
	members, ok := fp.proto.parseMembers(fp.childrenNamed(bitfieldChildren...), sc)
	if !ok {
		return false
	}
	f.Members = append(f.Members, members...)
	if len(f.Members) == 0 {
		return fp.errorf("bitfield has no members")
	}
	if !fp.proto.checkUniqueNames(f.Members, fp.path()) {
		return false
	}
	total := 0
	for _, m := range f.Members {
		if m.MinLength() != m.MaxLength() {
			return fp.errorf("member %q of a bitfield must have a fixed length", m.Common().Name)
		}
		total += MemberBits(m)
	}
	switch {
	case declared > 0 && total != declared*8:
		return fp.errorf("bitfield members use %d bits, the declared length is %d bits", total, declared*8)
	case declared == 0 && (total%8 != 0 || total > 64):
		return fp.errorf("bitfield members use %d bits, expected a whole number of bytes up to 64 bits", total)
	}
	f.Length = total / 8
	return true
}

type BundleField struct {
	FieldCommon
	Members []Field  `json:"members"`
	Aliases []*Alias `json:"aliases,omitempty"`
	// ValidateMinLength is the expected minimal serialised length, 0 when unchecked.
	ValidateMinLength int `json:"validateMinLength,omitempty"`
}

var bundleChildren = append([]string{"members", "alias"}, fieldKindNames...)

var bundleSchema = fieldSchema([]string{"validateMinLength", "reuseAliases"}, bundleChildren)

func (f *BundleField) Kind() FieldKind      { return KindBundle }
func (f *BundleField) schema() *elemSchema { return bundleSchema }
func (f *BundleField) owned() []Field      { return f.Members }

func (f *BundleField) clone() Field {
	cp := *f
	cp.Members = cloneFields(f.Members)
	cp.Aliases = cloneAliases(f.Aliases, &cp)
	return &cp
}

func (f *BundleField) MinLength() int { return sumMinLength(f.Members) }
func (f *BundleField) MaxLength() int { return sumMaxLength(f.Members) }

func (f *BundleField) parse(fp *fieldParser) bool {
	sc := fp.scope.child(f, f.SinceVersion, f.DeprecatedSince)
	members, ok := fp.proto.parseMembers(fp.childrenNamed(bundleChildren...), sc)
	if !ok {
		return false
	}
	f.Members = append(f.Members, members...)
	if len(f.Members) == 0 {
		return fp.errorf("bundle has no members")
	}
	if !fp.proto.checkUniqueNames(f.Members, fp.path()) {
		return false
	}
	reuseAliases, ok := fp.boolProp("reuseAliases", true)
	if !ok {
		return false
	}
	prior := cloneAliases(f.Aliases, f)
	if !reuseAliases {
		prior = nil
	}
	if f.Aliases, ok = fp.proto.parseAliases(fp.childrenNamed("alias"), f, prior); !ok {
		return false
	}
	if fp.has("validateMinLength") {
		n, err := strToInt(fp.get("validateMinLength"))
		if err != nil || n < 0 {
			return fp.errorf("invalid validateMinLength %q", fp.get("validateMinLength"))
		}
		f.ValidateMinLength = int(n)
	}
	return true
}

func sumMinLength(fields []Field) int {
	total := 0
	for _, f := range fields {
		total += f.MinLength()
	}
	return total
}

func sumMaxLength(fields []Field) int {
	total := 0
	for _, f := range fields {
		n := f.MaxLength()
		if n >= MaxLengthUnbounded || total+n >= MaxLengthUnbounded {
			return MaxLengthUnbounded
		}
		total += n
	}
	return total
}
