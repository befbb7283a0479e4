package commsdsl

import (
	"fmt"
	"strings"
)

// RefField refers to a field defined elsewhere. Target is set by the resolver
// and is never owned by the ref.
type RefField struct {
	FieldCommon
	FieldRef string `json:"field"`
	Target   Field  `json:"-"`

	ns *Namespace
}

var refSchema = fieldSchema([]string{"field", "bitLength"}, nil)

func (f *RefField) Kind() FieldKind      { return KindRef }
func (f *RefField) schema() *elemSchema { return refSchema }
func (f *RefField) owned() []Field      { return nil }

func (f *RefField) clone() Field {
	cp := *f
	return &cp
}

func (f *RefField) MinLength() int {
	if d := Deref(f); d != nil {
		return d.MinLength()
	}
	return 0
}

func (f *RefField) MaxLength() int {
	if d := Deref(f); d != nil {
		return d.MaxLength()
	}
	return MaxLengthUnbounded
}

func (f *RefField) parse(fp *fieldParser) bool {
	f.ns = fp.scope.ns
	if fp.has("field") {
		f.FieldRef = fp.get("field")
		f.Target = nil
	}
	if f.FieldRef == "" {
		return fp.errorf("ref field requires the \"field\" property")
	}
	if !IsValidRefName(f.FieldRef) {
		return fp.errorf("invalid field reference %q", f.FieldRef)
	}
	if fp.has("bitLength") {
		return fp.errorf("ref fields cannot be bitfield members")
	}
	return true
}

type OptMode int

const (
	OptModeTentative OptMode = iota
	OptModeExists
	OptModeMissing
)

var optModeNames = []string{"tentative", "exist", "missing"}

func (m OptMode) String() string {
	if int(m) < len(optModeNames) {
		return optModeNames[m]
	}
	return fmt.Sprintf("OptMode(%d)", int(m))
}

func parseOptMode(s string) (OptMode, bool) {
	switch strings.ToLower(s) {
	case "tentative", "t":
		return OptModeTentative, true
	case "exists", "exist", "e":
		return OptModeExists, true
	case "missing", "miss", "m":
		return OptModeMissing, true
	}
	return 0, false
}

// OptionalField wraps a field that may be absent, optionally controlled by a
// condition over preceding siblings.
type OptionalField struct {
	FieldCommon
	Field             Field   `json:"field"`
	DefaultMode       OptMode `json:"defaultMode"`
	Cond              Cond    `json:"cond,omitempty"`
	MissingOnReadFail bool    `json:"missingOnReadFail,omitempty"`
	MissingOnInvalid  bool    `json:"missingOnInvalid,omitempty"`
}

var optionalSchema = fieldSchema(
	[]string{"field", "defaultMode", "cond", "missingOnReadFail", "missingOnInvalid"},
	append([]string{"field", "cond", "and", "or"}, fieldKindNames...),
)

func (f *OptionalField) Kind() FieldKind      { return KindOptional }
func (f *OptionalField) schema() *elemSchema { return optionalSchema }

func (f *OptionalField) owned() []Field {
	if f.Field == nil {
		return nil
	}
	return []Field{f.Field}
}

func (f *OptionalField) clone() Field {
	cp := *f
	cp.Field = cloneField(f.Field)
	return &cp
}

func (f *OptionalField) MinLength() int { return 0 }

func (f *OptionalField) MaxLength() int {
	if f.Field == nil {
		return 0
	}
	return f.Field.MaxLength()
}

func (f *OptionalField) parse(fp *fieldParser) bool {
	sc := fp.scope.child(f, f.SinceVersion, f.DeprecatedSince)
	wrapped, detached, ok := fp.fieldProp("field", sc)
	if !ok {
		return false
	}
	if detached != "" {
		return fp.errorf("optional cannot wrap a detached field")
	}
	direct, ok := fp.proto.parseMembers(fp.childrenNamed(fieldKindNames...), sc)
	if !ok {
		return false
	}
	switch {
	case wrapped != nil && len(direct) > 0, len(direct) > 1:
		return fp.errorf("optional must wrap exactly one field")
	case len(direct) == 1:
		wrapped = direct[0]
	}
	if wrapped != nil {
		f.Field = wrapped
	}
	if f.Field == nil {
		return fp.errorf("optional does not wrap a field")
	}
	if fp.has("defaultMode") {
		m, ok := parseOptMode(fp.get("defaultMode"))
		if !ok {
			return fp.errorf("invalid defaultMode %q", fp.get("defaultMode"))
		}
		f.DefaultMode = m
	}
	if f.MissingOnReadFail, ok = fp.boolProp("missingOnReadFail", f.MissingOnReadFail); !ok {
		return false
	}
	if f.MissingOnInvalid, ok = fp.boolProp("missingOnInvalid", f.MissingOnInvalid); !ok {
		return false
	}
	condNodes := fp.childrenNamed("cond", "and", "or")
	if fp.has("cond") && len(condNodes) > 0 {
		return fp.errorf("condition is defined both as a property and as elements")
	}
	if fp.has("cond") {
		c, err := ParseCondition(fp.get("cond"))
		if err != nil {
			return fp.errorf("%v", err)
		}
		f.Cond = c
	} else if len(condNodes) > 0 {
		c, ok := fp.proto.parseCondNodes(condNodes, CondAnd, fp.path())
		if !ok {
			return false
		}
		f.Cond = c
	}
	return true
}

// VariantField holds exactly one of its members at a time.
type VariantField struct {
	FieldCommon
	Members []Field `json:"members"`
	// DefaultMember is the index of the member selected by default, -1 for none.
	DefaultMember            int  `json:"defaultMember"`
	DisplayIdxReadOnlyHidden bool `json:"displayIdxReadOnlyHidden,omitempty"`
}

var variantSchema = fieldSchema(
	[]string{"defaultMember", "displayIdxReadOnlyHidden"},
	append([]string{"members"}, fieldKindNames...),
)

func (f *VariantField) Kind() FieldKind      { return KindVariant }
func (f *VariantField) schema() *elemSchema { return variantSchema }
func (f *VariantField) owned() []Field      { return f.Members }

func (f *VariantField) clone() Field {
	cp := *f
	cp.Members = cloneFields(f.Members)
	return &cp
}

func (f *VariantField) MinLength() int {
	if len(f.Members) == 0 {
		return 0
	}
	n := f.Members[0].MinLength()
	for _, m := range f.Members[1:] {
		n = min(n, m.MinLength())
	}
	return n
}

func (f *VariantField) MaxLength() int {
	n := 0
	for _, m := range f.Members {
		n = max(n, m.MaxLength())
	}
	return n
}

func (f *VariantField) parse(fp *fieldParser) bool {
	sc := fp.scope.child(f, f.SinceVersion, f.DeprecatedSince)
	members, ok := fp.proto.parseMembers(fp.childrenNamed(append([]string{"members"}, fieldKindNames...)...), sc)
	if !ok {
		return false
	}
	f.Members = append(f.Members, members...)
	if len(f.Members) == 0 {
		return fp.errorf("variant has no members")
	}
	if !fp.proto.checkUniqueNames(f.Members, fp.path()) {
		return false
	}
	if fp.has("defaultMember") {
		s := fp.get("defaultMember")
		switch {
		case s == "none" || s == "-1":
			f.DefaultMember = -1
		default:
			if _, idx := findByName(f.Members, s); idx >= 0 {
				f.DefaultMember = idx
				break
			}
			n, err := strToInt(s)
			if err != nil || n < 0 || int(n) >= len(f.Members) {
				return fp.errorf("invalid defaultMember %q", s)
			}
			f.DefaultMember = int(n)
		}
	}
	if f.DisplayIdxReadOnlyHidden, ok = fp.boolProp("displayIdxReadOnlyHidden", f.DisplayIdxReadOnlyHidden); !ok {
		return false
	}
	return true
}
