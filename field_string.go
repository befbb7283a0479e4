package commsdsl

import (
	"encoding/hex"
	"strings"
)

// lengthSpec is the length information shared by string and data fields: a
// fixed length, a length prefix owned by the field, or a detached prefix that
// is a preceding sibling.
type lengthSpec struct {
	Length         int    `json:"length,omitempty"`
	LengthPrefix   Field  `json:"lengthPrefix,omitempty"`
	DetachedPrefix string `json:"detachedPrefix,omitempty"`
}

func (ls *lengthSpec) parseLength(fp *fieldParser, owner Field) bool {
	if fp.has("length") {
		n, err := strToInt(fp.get("length"))
		if err != nil || n < 0 {
			return fp.errorf("invalid length %q", fp.get("length"))
		}
		ls.Length = int(n)
		ls.LengthPrefix = nil
	}
	c := owner.Common()
	sc := fp.scope.child(owner, c.SinceVersion, c.DeprecatedSince)
	prefix, detached, ok := fp.fieldProp("lengthPrefix", sc)
	if !ok {
		return false
	}
	if prefix != nil || detached != "" {
		ls.LengthPrefix = prefix
		ls.DetachedPrefix = detached
	}
	if ls.LengthPrefix != nil && ls.Length > 0 {
		return fp.errorf("fixed length and lengthPrefix are mutually exclusive")
	}
	if ls.LengthPrefix != nil && ls.LengthPrefix.Kind() != KindRef && ls.LengthPrefix.Kind() != KindInt {
		return fp.errorf("lengthPrefix must be an int field, got %s", ls.LengthPrefix.Kind())
	}
	return true
}

func (ls *lengthSpec) minLength() int {
	switch {
	case ls.Length > 0:
		return ls.Length
	case ls.LengthPrefix != nil:
		return ls.LengthPrefix.MinLength()
	}
	return 0
}

func (ls *lengthSpec) maxLength() int {
	if ls.Length > 0 {
		return ls.Length
	}
	return MaxLengthUnbounded
}

func (ls *lengthSpec) owned() []Field {
	if ls.LengthPrefix == nil {
		return nil
	}
	return []Field{ls.LengthPrefix}
}

func (p *Protocol) checkIntPrefix(owner Field, prop string, prefix Field) bool {
	if prefix == nil {
		return true
	}
	d := Deref(prefix)
	if d == nil {
		return false
	}
	if _, ok := d.(*IntField); !ok {
		p.logger.ErrorAt(SemanticValidationError, owner.Common().Loc(), owner.ExternalRef(),
			prop+" must refer to an int field, got "+d.Kind().String())
		return false
	}
	return true
}

type StringField struct {
	FieldCommon
	lengthSpec
	ZeroTermSuffix bool   `json:"zeroTermSuffix,omitempty"`
	Encoding       string `json:"encoding,omitempty"`
	DefaultValue   string `json:"defaultValue,omitempty"`
}

var stringSchema = fieldSchema(
	[]string{"defaultValue", "length", "lengthPrefix", "zeroTermSuffix", "encoding"},
	[]string{"lengthPrefix"},
)

var knownEncodings = []string{"", "ascii", "utf-8", "utf8", "utf-16", "utf16", "latin1"}

func (f *StringField) Kind() FieldKind      { return KindString }
func (f *StringField) schema() *elemSchema { return stringSchema }
func (f *StringField) owned() []Field      { return f.lengthSpec.owned() }
func (f *StringField) MinLength() int {
	if f.ZeroTermSuffix {
		return 1
	}
	return f.minLength()
}
func (f *StringField) MaxLength() int { return f.maxLength() }

func (f *StringField) clone() Field {
	cp := *f
	cp.LengthPrefix = cloneField(f.LengthPrefix)
	return &cp
}

func (f *StringField) parse(fp *fieldParser) bool {
	if !f.parseLength(fp, f) {
		return false
	}
	var ok bool
	if f.ZeroTermSuffix, ok = fp.boolProp("zeroTermSuffix", f.ZeroTermSuffix); !ok {
		return false
	}
	if f.ZeroTermSuffix && (f.Length > 0 || f.LengthPrefix != nil || f.DetachedPrefix != "") {
		return fp.errorf("zeroTermSuffix cannot be combined with a length or lengthPrefix")
	}
	if fp.has("encoding") {
		f.Encoding = strings.ToLower(fp.get("encoding"))
		if !contains(knownEncodings, f.Encoding) {
			return fp.errorf("unknown encoding %q", fp.get("encoding"))
		}
	}
	if fp.has("defaultValue") {
		f.DefaultValue = fp.get("defaultValue")
	}
	if f.Length > 0 && len(f.DefaultValue) > f.Length {
		return fp.errorf("defaultValue %q is longer than the fixed length %d", f.DefaultValue, f.Length)
	}
	return true
}

func (f *StringField) checkResolved(p *Protocol) bool {
	return p.checkIntPrefix(f, "lengthPrefix", f.LengthPrefix)
}

type DataField struct {
	FieldCommon
	lengthSpec
	DefaultValue []byte `json:"defaultValue,omitempty"`
}

var dataSchema = fieldSchema(
	[]string{"defaultValue", "length", "lengthPrefix"},
	[]string{"lengthPrefix"},
)

func (f *DataField) Kind() FieldKind      { return KindData }
func (f *DataField) schema() *elemSchema { return dataSchema }
func (f *DataField) owned() []Field      { return f.lengthSpec.owned() }
func (f *DataField) MinLength() int      { return f.minLength() }
func (f *DataField) MaxLength() int      { return f.maxLength() }

func (f *DataField) clone() Field {
	cp := *f
	cp.LengthPrefix = cloneField(f.LengthPrefix)
	cp.DefaultValue = append([]byte(nil), f.DefaultValue...)
	return &cp
}

func (f *DataField) parse(fp *fieldParser) bool {
	if !f.parseLength(fp, f) {
		return false
	}
	if fp.has("defaultValue") {
		s := strings.Join(strings.Fields(fp.get("defaultValue")), "")
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		b, err := hex.DecodeString(s)
		if err != nil {
			return fp.errorf("defaultValue %q is not a hex string", fp.get("defaultValue"))
		}
		f.DefaultValue = b
	}
	if f.Length > 0 && len(f.DefaultValue) > f.Length {
		return fp.errorf("defaultValue has %d bytes, more than the fixed length %d", len(f.DefaultValue), f.Length)
	}
	return true
}

func (f *DataField) checkResolved(p *Protocol) bool {
	return p.checkIntPrefix(f, "lengthPrefix", f.LengthPrefix)
}
