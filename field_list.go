package commsdsl

type ListField struct {
	FieldCommon
	Element          Field `json:"element"`
	Count            int   `json:"count,omitempty"`
	CountPrefix      Field `json:"countPrefix,omitempty"`
	LengthPrefix     Field `json:"lengthPrefix,omitempty"`
	ElemLengthPrefix Field `json:"elemLengthPrefix,omitempty"`
	ElemFixedLength  bool  `json:"elemFixedLength,omitempty"`

	DetachedCountPrefix      string `json:"detachedCountPrefix,omitempty"`
	DetachedLengthPrefix     string `json:"detachedLengthPrefix,omitempty"`
	DetachedElemLengthPrefix string `json:"detachedElemLengthPrefix,omitempty"`
}

var listPrefixProps = []string{"element", "countPrefix", "lengthPrefix", "elemLengthPrefix"}

var listSchema = fieldSchema(
	append([]string{"count", "elemFixedLength"}, listPrefixProps...),
	append(append([]string{}, listPrefixProps...), fieldKindNames...),
)

func (f *ListField) Kind() FieldKind      { return KindList }
func (f *ListField) schema() *elemSchema { return listSchema }

func (f *ListField) owned() []Field {
	var result []Field
	for _, m := range []Field{f.Element, f.CountPrefix, f.LengthPrefix, f.ElemLengthPrefix} {
		if m != nil {
			result = append(result, m)
		}
	}
	return result
}

func (f *ListField) clone() Field {
	cp := *f
	cp.Element = cloneField(f.Element)
	cp.CountPrefix = cloneField(f.CountPrefix)
	cp.LengthPrefix = cloneField(f.LengthPrefix)
	cp.ElemLengthPrefix = cloneField(f.ElemLengthPrefix)
	return &cp
}

func (f *ListField) MinLength() int {
	switch {
	case f.Count > 0 && f.Element != nil:
		return f.Count * f.Element.MinLength()
	case f.CountPrefix != nil:
		return f.CountPrefix.MinLength()
	case f.LengthPrefix != nil:
		return f.LengthPrefix.MinLength()
	}
	return 0
}

func (f *ListField) MaxLength() int {
	if f.Count > 0 && f.Element != nil {
		n := f.Element.MaxLength()
		if n >= MaxLengthUnbounded/f.Count {
			return MaxLengthUnbounded
		}
		return f.Count * n
	}
	return MaxLengthUnbounded
}

func (f *ListField) parse(fp *fieldParser) bool {
	sc := fp.scope.child(f, f.SinceVersion, f.DeprecatedSince)
	elem, detached, ok := fp.fieldProp("element", sc)
	if !ok {
		return false
	}
	if detached != "" {
		return fp.errorf("element cannot be a detached field")
	}
	direct, ok := fp.proto.parseMembers(fp.childrenNamed(fieldKindNames...), sc)
	if !ok {
		return false
	}
	switch {
	case elem != nil && len(direct) > 0:
		return fp.errorf("element is defined more than once")
	case len(direct) > 1:
		return fp.errorf("list must have exactly one element field")
	case len(direct) == 1:
		elem = direct[0]
	}
	if elem != nil {
		f.Element = elem
	}
	if f.Element == nil {
		return fp.errorf("list has no element field")
	}
	if fp.has("count") {
		n, err := strToInt(fp.get("count"))
		if err != nil || n <= 0 {
			return fp.errorf("invalid count %q", fp.get("count"))
		}
		f.Count = int(n)
		f.CountPrefix, f.LengthPrefix = nil, nil
		f.DetachedCountPrefix, f.DetachedLengthPrefix = "", ""
	}
	prefixes := []struct {
		prop     string
		field    *Field
		detached *string
	}{
		{"countPrefix", &f.CountPrefix, &f.DetachedCountPrefix},
		{"lengthPrefix", &f.LengthPrefix, &f.DetachedLengthPrefix},
		{"elemLengthPrefix", &f.ElemLengthPrefix, &f.DetachedElemLengthPrefix},
	}
	for _, pp := range prefixes {
		pf, det, ok := fp.fieldProp(pp.prop, sc)
		if !ok {
			return false
		}
		if pf == nil && det == "" {
			continue
		}
		if pf != nil && pf.Kind() != KindRef && pf.Kind() != KindInt {
			return fp.errorf("%s must be an int field, got %s", pp.prop, pf.Kind())
		}
		*pp.field, *pp.detached = pf, det
	}
	sizing := 0
	for _, set := range []bool{f.Count > 0, f.CountPrefix != nil || f.DetachedCountPrefix != "",
		f.LengthPrefix != nil || f.DetachedLengthPrefix != ""} {
		if set {
			sizing++
		}
	}
	if sizing > 1 {
		return fp.errorf("count, countPrefix and lengthPrefix are mutually exclusive")
	}
	if f.ElemFixedLength, ok = fp.boolProp("elemFixedLength", f.ElemFixedLength); !ok {
		return false
	}
	if f.ElemFixedLength && f.ElemLengthPrefix == nil && f.DetachedElemLengthPrefix == "" {
		return fp.errorf("elemFixedLength requires elemLengthPrefix")
	}
	return true
}

func (f *ListField) checkResolved(p *Protocol) bool {
	ok := p.checkIntPrefix(f, "countPrefix", f.CountPrefix) &&
		p.checkIntPrefix(f, "lengthPrefix", f.LengthPrefix) &&
		p.checkIntPrefix(f, "elemLengthPrefix", f.ElemLengthPrefix)
	if !ok {
		return false
	}
	elem := Deref(f.Element)
	for _, pf := range []Field{f.CountPrefix, f.LengthPrefix, f.ElemLengthPrefix} {
		if pf != nil && Deref(pf) == elem {
			p.logger.ErrorAt(SemanticValidationError, f.Loc(), f.ExternalRef(),
				"list prefix and element must be distinct fields")
			return false
		}
	}
	if f.ElemFixedLength && elem.MinLength() != elem.MaxLength() {
		p.logger.ErrorAt(SemanticValidationError, f.Loc(), f.ExternalRef(),
			"elemFixedLength requires an element of fixed length")
		return false
	}
	return true
}
