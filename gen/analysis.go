package gen

import (
	"path/filepath"
	"strings"

	"github.com/boynton/commsdsl"
)

// DefaultVariantMaxMembers is the member count above which variant member
// access falls back to the enumerated form.
const DefaultVariantMaxMembers = 120

// OptimizedReadKey returns the type name of the key shared by all members of
// v when its read can dispatch on that key directly, or "" otherwise.
// Every member must be a bundle whose first member is a fixed valued int key
// with failOnInvalid set. Only the last member may lack a key; it then acts
// as the catch-all. Key values must be unique and the key fields equivalent.
func OptimizedReadKey(v *commsdsl.VariantField, hasCustomRead func(commsdsl.Field) bool) string {
	if len(v.Members) <= 1 {
		return ""
	}
	var first *commsdsl.IntField
	seen := make(map[int64]bool)
	for i, m := range v.Members {
		b, ok := commsdsl.Deref(m).(*commsdsl.BundleField)
		if !ok {
			return ""
		}
		key := bundleKey(b, hasCustomRead)
		if key == nil {
			if i != len(v.Members)-1 {
				return ""
			}
			continue
		}
		if seen[key.DefaultValue] {
			return ""
		}
		seen[key.DefaultValue] = true
		if first == nil {
			first = key
			continue
		}
		if !keysEquivalent(first, key) {
			return ""
		}
	}
	if first == nil {
		return ""
	}
	return first.Type.String()
}

func bundleKey(b *commsdsl.BundleField, hasCustomRead func(commsdsl.Field) bool) *commsdsl.IntField {
	if len(b.Members) == 0 {
		return nil
	}
	key, ok := commsdsl.Deref(b.Members[0]).(*commsdsl.IntField)
	if !ok || !key.FailOnInvalid || key.Pseudo || len(key.ValidRanges) != 1 {
		return nil
	}
	r := key.ValidRanges[0]
	if r.Min != r.Max || r.Min != key.DefaultValue {
		return nil
	}
	if hasCustomRead != nil && (hasCustomRead(b.Members[0]) || hasCustomRead(key)) {
		return nil
	}
	return key
}

func keysEquivalent(a, b *commsdsl.IntField) bool {
	return a.Type == b.Type && a.Length == b.Length && a.BitLength == b.BitLength &&
		a.Endian == b.Endian && a.SerOffset == b.SerOffset && a.SignExt == b.SignExt
}

// VersionPolicy controls how fields introduced in later protocol versions
// are generated. Independent drops version handling altogether; fields
// introduced no later than MinRemote are taken to be always present.
type VersionPolicy struct {
	Independent bool
	MinRemote   uint
}

// VersionPolicyOf reads version-independent and min-remote-version.
func VersionPolicyOf(config *commsdsl.Data) VersionPolicy {
	if config == nil {
		return VersionPolicy{}
	}
	return VersionPolicy{
		Independent: config.GetConfigBool("version-independent", false),
		MinRemote:   uint(config.GetConfigInt("min-remote-version", 0)),
	}
}

// Optional reports whether a member introduced at since, inside a container
// introduced at parentSince, exists only from that version on.
func (vp VersionPolicy) Optional(since, parentSince uint) bool {
	return !vp.Independent && since > parentSince && since > vp.MinRemote
}

// Dependent reports whether the serialized form of f depends on the
// protocol version: f or one of the fields it owns appears after its parent,
// or is removed after deprecation.
func (vp VersionPolicy) Dependent(f commsdsl.Field) bool {
	var since uint
	switch p := f.ElemParent().(type) {
	case commsdsl.Field:
		since = p.Common().SinceVersion
	case *commsdsl.Message:
		since = p.SinceVersion
	}
	return vp.dependent(f, since)
}

func (vp VersionPolicy) dependent(f commsdsl.Field, parentSince uint) bool {
	c := f.Common()
	if vp.Optional(c.SinceVersion, parentSince) || (!vp.Independent && c.Removed && c.IsDeprecated()) {
		return true
	}
	if r, ok := f.(*commsdsl.RefField); ok {
		t := commsdsl.Deref(r)
		return t != nil && vp.FieldsDependent(commsdsl.OwnedFields(t), t.Common().SinceVersion)
	}
	for _, m := range commsdsl.OwnedFields(f) {
		if vp.dependent(m, c.SinceVersion) {
			return true
		}
	}
	return false
}

// FieldsDependent reports whether any of fields is version dependent
// relative to a container introduced at since.
func (vp VersionPolicy) FieldsDependent(fields []commsdsl.Field, since uint) bool {
	for _, f := range fields {
		if vp.dependent(f, since) {
			return true
		}
	}
	return false
}

// VersionDependent is Dependent under the default policy.
func VersionDependent(f commsdsl.Field) bool {
	return VersionPolicy{}.Dependent(f)
}

// FieldsVersionDependent is FieldsDependent under the default policy.
func FieldsVersionDependent(fields []commsdsl.Field, since uint) bool {
	return VersionPolicy{}.FieldsDependent(fields, since)
}

// CompactVariantAccess reports whether the members of v can be accessed with
// one generated accessor per member, rather than through an enumerated
// dispatch table. The ceiling is read from variant-max-members.
func CompactVariantAccess(v *commsdsl.VariantField, config *commsdsl.Data) bool {
	limit := DefaultVariantMaxMembers
	if config != nil {
		limit = config.GetConfigInt("variant-max-members", DefaultVariantMaxMembers)
	}
	return len(v.Members) <= limit
}

// CustomCodePath returns the path of the custom code file for f with the
// given suffix, for example ".read", or "" if no custom-code-dir is set.
func CustomCodePath(config *commsdsl.Data, f commsdsl.Elem, suffix string) string {
	dir := config.GetConfigString("custom-code-dir", "")
	if dir == "" {
		return ""
	}
	rel := strings.ReplaceAll(commsdsl.ExternalRef(f), ".", string(filepath.Separator))
	return filepath.Join(dir, rel+suffix)
}

// HasCustomCode reports whether a custom code file with suffix exists for f.
func HasCustomCode(config *commsdsl.Data, f commsdsl.Elem, suffix string) bool {
	path := CustomCodePath(config, f, suffix)
	return path != "" && FileExists(path)
}

// VariantKey returns the key value selecting member m of a variant with an
// optimized read key. The catch-all member has no key.
func VariantKey(m commsdsl.Field) (int64, bool) {
	b, ok := commsdsl.Deref(m).(*commsdsl.BundleField)
	if !ok {
		return 0, false
	}
	if key := bundleKey(b, nil); key != nil {
		return key.DefaultValue, true
	}
	return 0, false
}
