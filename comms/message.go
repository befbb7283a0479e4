package comms

import (
	"fmt"
	"path"
	"strings"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/gen"
)

// conditionals returns the optional fields among fields that carry a
// condition, with their indices.
func conditionals(fields []commsdsl.Field) ([]*commsdsl.OptionalField, []int) {
	var opts []*commsdsl.OptionalField
	var idxs []int
	for i, f := range fields {
		if o, ok := f.(*commsdsl.OptionalField); ok && o.Cond != nil {
			opts = append(opts, o)
			idxs = append(idxs, i)
		}
	}
	return opts, idxs
}

// refreshCode renders the read and refresh functions updating the mode of
// conditional optional fields. Messages reach the read helpers of their base
// through Base::template, fields call them directly.
func refreshCode(fields []commsdsl.Field, message bool) string {
	opts, _ := conditionals(fields)
	if len(opts) == 0 {
		return ""
	}
	readFunc, refreshFunc, prefix := "read", "refresh", ""
	if message {
		readFunc, refreshFunc, prefix = "doRead", "doRefresh", "Base::template do"
	}
	call := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + strings.ToUpper(name[:1]) + name[1:]
	}
	var read, refresh, helpers strings.Builder
	prev := ""
	for _, o := range opts {
		name := o.Name
		if prev == "" {
			fmt.Fprintf(&read, "auto es = %s<FieldIdx_%s>(iter, len);\n", call("readUntilAndUpdateLen"), name)
		} else {
			fmt.Fprintf(&read, "es = %s<FieldIdx_%s, FieldIdx_%s>(iter, len);\n", call("readFromUntilAndUpdateLen"), prev, name)
		}
		fmt.Fprintf(&read, "if (es != comms::ErrorStatus::Success) {\n    return es;\n}\n\nrefresh_%s();\n\n", name)
		fmt.Fprintf(&refresh, "updated = refresh_%s() || updated;\n", name)
		helpers.WriteString(gen.ProcessTemplate(refreshHelperTempl, map[string]string{
			"NAME": name,
			"COND": condCode(o.Cond, fields),
		}))
		prev = name
	}
	fmt.Fprintf(&read, "return %s<FieldIdx_%s>(iter, len);", call("readFrom"), prev)
	baseRefresh := "Base::refresh()"
	if message {
		baseRefresh = "Base::doRefresh()"
	}
	return gen.ProcessTemplate(refreshTempl, map[string]string{
		"READ_FUNC":    readFunc,
		"READ":         read.String(),
		"REFRESH_FUNC": refreshFunc,
		"BASE_REFRESH": baseRefresh,
		"REFRESH":      strings.TrimSuffix(refresh.String(), "\n"),
		"HELPERS":      strings.TrimSuffix(helpers.String(), "\n"),
	})
}

const refreshTempl = `/// @brief Read updating the mode of conditional members as they become known.
template <typename TIter>
comms::ErrorStatus #^#READ_FUNC#$#(TIter& iter, std::size_t len)
{
    #^#READ#$#
}

/// @brief Update the mode of conditional members.
bool #^#REFRESH_FUNC#$#()
{
    bool updated = #^#BASE_REFRESH#$#;
    #^#REFRESH#$#
    return updated;
}

private:
    #^#HELPERS#$#`

const refreshHelperTempl = `bool refresh_#^#NAME#$#()
{
    auto mode = comms::field::OptionalMode::Missing;
    if (#^#COND#$#) {
        mode = comms::field::OptionalMode::Exists;
    }

    if (field_#^#NAME#$#().getMode() == mode) {
        return false;
    }

    field_#^#NAME#$#().setMode(mode);
    return true;
}
`

// fieldsStruct renders the scope struct holding the definitions of the
// fields of a message or interface.
func fieldsStruct(b *Backend, owner commsdsl.Elem, fields []commsdsl.Field, since uint, incs includes) (string, []string, bool) {
	scope := gen.ClassName(owner.ElemName()) + "Fields"
	var defs, types, names []string
	for _, f := range fields {
		fe := b.fieldElem(f)
		if fe == nil || fe.def == "" {
			return "", nil, b.gen.Errorf(f, "field %s was not prepared", f.Common().Name)
		}
		incs.add(fe.incs)
		typ := scope + "::" + fe.className
		if b.versions.Optional(f.Common().SinceVersion, since) {
			incs["comms/field/Optional.h"] = true
			typ = tmplArgs("comms::field::Optional", []string{typ, opt("ExistsByDefault"), opt("ExistsSinceVersion", f.Common().SinceVersion)})
		}
		defs = append(defs, fe.def)
		types = append(types, typ)
		names = append(names, f.Common().Name)
	}
	incs["<tuple>"] = true
	all := "using All = std::tuple<>;"
	if len(types) > 0 {
		all = "/// @brief All the fields bundled in std::tuple.\nusing All = " + tmplArgs("std::tuple", types) + ";"
	}
	body := strings.TrimPrefix(strings.Join(defs, "\n\n")+"\n\n"+all, "\n\n")
	return gen.ProcessTemplate(fieldsStructTempl, map[string]string{
		"NAME":  owner.ElemName(),
		"SCOPE": scope,
		"BODY":  body,
	}), names, true
}

const fieldsStructTempl = `/// @brief Fields of <b>"#^#NAME#$#"</b>.
struct #^#SCOPE#$#
{
    #^#BODY#$#
};`

func aliasCode(macro string, aliases []*commsdsl.Alias) string {
	var sb strings.Builder
	for _, a := range aliases {
		fmt.Fprintf(&sb, "\n/// @brief Alias to a member field.\n%s(%s, %s);\n", macro, a.Name, strings.ReplaceAll(a.FieldName, ".", ", "))
	}
	return sb.String()
}

type messageElem struct {
	b *Backend
	m *commsdsl.Message

	content string
}

func (e *messageElem) Prepare() bool {
	b := e.b
	m := e.m
	incs := includes{"comms/MessageBase.h": true, path.Join(b.mainNs, "MsgId.h"): true}
	fields, names, ok := fieldsStruct(b, m, m.Fields, m.SinceVersion, incs)
	if !ok {
		return false
	}
	class := gen.ClassName(m.Name)
	args := []string{
		"TMsgBase",
		opt("StaticNumIdImpl", "::"+b.mainNs+"::MsgId_"+class),
		opt("FieldsImpl", class+"Fields::All"),
		opt("MsgType", class+"<TMsgBase>"),
		opt("HasName"),
	}
	refresh := refreshCode(m.Fields, true)
	if refresh != "" {
		args = append(args, opt("HasCustomRefresh"))
	}
	public := ""
	if len(names) > 0 {
		public = fmt.Sprintf("COMMS_MSG_FIELDS_NAMES(\n    %s\n);\n", strings.Join(names, ",\n    "))
	}
	public += aliasCode("COMMS_MSG_FIELD_ALIAS", m.Aliases)
	if b.versions.FieldsDependent(m.Fields, m.SinceVersion) {
		public += "\nstatic_assert(Base::areFieldsVersionDependent(), \"Fields must be version dependent\");\n"
	}
	if m.ValidateMinLength > 0 {
		public += fmt.Sprintf("\nstatic_assert(Base::doMinLength() == %d, \"Unexpected minimal serialisation length\");\n", m.ValidateMinLength)
	}
	desc := m.Description
	if m.Sender != commsdsl.SenderBoth {
		desc = strings.TrimSpace(desc + "\nSent by " + m.Sender.String() + ".")
	}
	e.content = gen.ProcessTemplate(messageTempl, map[string]string{
		"NAME":     m.Name,
		"DISPLAY":  displayOr(m.DisplayName, m.Name),
		"INCLUDES": incs.String(),
		"NS_BEGIN": b.nsBegin(m, "message"),
		"NS_END":   b.nsEnd(m, "message"),
		"FIELDS":   fields,
		"DOC":      docComment(m.Name, desc),
		"CLASS":    class,
		"BASE":     tmplArgs("comms::MessageBase", args),
		"PUBLIC":   public,
		"REFRESH":  refresh,
	})
	return true
}

func (e *messageElem) Write() bool {
	return e.b.writeHeader(e.m, e.b.headerPath(e.m, "message"), e.content)
}

func displayOr(display, name string) string {
	if display != "" {
		return display
	}
	return name
}

const messageTempl = `// Generated by commsdsl2comms.

/// @file
/// @brief Contains definition of <b>"#^#NAME#$#"</b> message and its fields.

#pragma once

#^#INCLUDES#$#

#^#NS_BEGIN#$#
#^#FIELDS#$#

#^#DOC#$#
template <typename TMsgBase>
class #^#CLASS#$# : public
    #^#BASE#$#
{
    using Base =
        #^#BASE#$#;

public:
    #^#PUBLIC#$#
    /// @brief Name of the message.
    static const char* doName()
    {
        return "#^#DISPLAY#$#";
    }

    #^#REFRESH#$#
};

#^#NS_END#$#
`

type interfaceElem struct {
	b *Backend
	i *commsdsl.Interface

	content string
}

func (e *interfaceElem) Prepare() bool {
	b := e.b
	i := e.i
	incs := includes{"comms/Message.h": true, path.Join(b.mainNs, "MsgId.h"): true}
	fields, names, ok := fieldsStruct(b, i, i.Fields, 0, incs)
	if !ok {
		return false
	}
	class := gen.ClassName(i.Name)
	endian := "BigEndian"
	if commsdsl.SchemaOf(i).Endian == commsdsl.EndianLittle {
		endian = "LittleEndian"
	}
	args := []string{"TOpt...", opt(endian), opt("MsgIdType", "::"+b.mainNs+"::MsgId")}
	public := ""
	if len(names) > 0 {
		args = append(args, opt("ExtraTransportFields", class+"Fields::All"))
		public = fmt.Sprintf("COMMS_MSG_TRANSPORT_FIELDS_NAMES(\n    %s\n);\n", strings.Join(names, ",\n    "))
	}
	public += aliasCode("COMMS_MSG_TRANSPORT_FIELD_ALIAS", i.Aliases)
	e.content = gen.ProcessTemplate(interfaceTempl, map[string]string{
		"NAME":     i.Name,
		"INCLUDES": incs.String(),
		"NS_BEGIN": b.nsBegin(i, ""),
		"NS_END":   b.nsEnd(i, ""),
		"FIELDS":   fields,
		"DOC":      docComment(i.Name, i.Description),
		"CLASS":    class,
		"BASE":     tmplArgs("comms::Message", args),
		"PUBLIC":   public,
	})
	return true
}

func (e *interfaceElem) Write() bool {
	return e.b.writeHeader(e.i, e.b.headerPath(e.i, ""), e.content)
}

const interfaceTempl = `// Generated by commsdsl2comms.

/// @file
/// @brief Contains definition of <b>"#^#NAME#$#"</b> interface class.

#pragma once

#^#INCLUDES#$#

#^#NS_BEGIN#$#
#^#FIELDS#$#

#^#DOC#$#
template <typename... TOpt>
class #^#CLASS#$# : public
    #^#BASE#$#
{
public:
    #^#PUBLIC#$#
};

#^#NS_END#$#
`
