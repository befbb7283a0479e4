// Package comms generates C++ headers for the COMMS library from a validated
// protocol: one header per referenced namespace field, message, interface
// and frame, plus the message id enumeration.
package comms

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/gen"
)

// Backend is the gen.Factory of the comms generator.
type Backend struct {
	gen      *gen.Generator
	mainNs   string
	versions gen.VersionPolicy
}

func NewBackend() *Backend {
	return &Backend{}
}

// Generate runs the comms backend over p, writing headers below outDir.
func Generate(p *commsdsl.Protocol, config *commsdsl.Data, outDir string) (*gen.Generator, error) {
	g := gen.NewGenerator(p, NewBackend(), config, outDir)
	return g, g.Generate()
}

// MainNamespace is the outermost C++ namespace, main-namespace or the
// protocol schema name.
func (b *Backend) MainNamespace() string {
	return b.mainNs
}

func (b *Backend) CreateSchema(g *gen.Generator, s *commsdsl.Schema) gen.Elem {
	if b.gen == nil {
		b.gen = g
		b.mainNs = g.Config.GetConfigString("main-namespace", g.Protocol.CurrentSchema().Name)
		b.versions = gen.VersionPolicyOf(g.Config)
	}
	return &schemaElem{b: b, s: s}
}

func (b *Backend) CreateNamespace(g *gen.Generator, ns *commsdsl.Namespace) gen.Elem {
	return nil
}

func (b *Backend) CreateInterface(g *gen.Generator, i *commsdsl.Interface) gen.Elem {
	if !i.Referenced() {
		return nil
	}
	return &interfaceElem{b: b, i: i}
}

func (b *Backend) CreateMessage(g *gen.Generator, m *commsdsl.Message) gen.Elem {
	if !m.Referenced() {
		return nil
	}
	return &messageElem{b: b, m: m}
}

func (b *Backend) CreateFrame(g *gen.Generator, f *commsdsl.Frame) gen.Elem {
	if !f.Referenced() {
		return nil
	}
	return &frameElem{b: b, f: f}
}

func (b *Backend) CreateLayer(g *gen.Generator, l *commsdsl.Layer) gen.Elem {
	return nil
}

func (b *Backend) CreateField(g *gen.Generator, f commsdsl.Field) gen.Elem {
	if !f.Referenced() {
		return nil
	}
	return &fieldElem{b: b, f: f}
}

// nsParts returns the C++ namespace components of the namespace holding e,
// starting with the main namespace.
func (b *Backend) nsParts(e commsdsl.Elem) []string {
	parts := []string{b.mainNs}
	if s := commsdsl.SchemaOf(e); s != nil && s != b.gen.Protocol.CurrentSchema() {
		parts[0] = s.Name
	}
	ns := commsdsl.NamespaceOf(e)
	var names []string
	for ns != nil && ns.Name != "" {
		names = append([]string{ns.Name}, names...)
		ns, _ = ns.ElemParent().(*commsdsl.Namespace)
	}
	return append(parts, names...)
}

// headerPath returns the include path of the header of e within kind, for
// example "proto/field/Length.h".
func (b *Backend) headerPath(e commsdsl.Elem, kind string) string {
	parts := b.nsParts(e)
	if kind != "" {
		parts = append(parts, kind)
	}
	return path.Join(append(parts, gen.ClassName(e.ElemName())+".h")...)
}

// scopedName returns the fully qualified C++ name of e within kind.
func (b *Backend) scopedName(e commsdsl.Elem, kind string) string {
	parts := b.nsParts(e)
	if kind != "" {
		parts = append(parts, kind)
	}
	return "::" + strings.Join(append(parts, gen.ClassName(e.ElemName())), "::")
}

func (b *Backend) nsBegin(e commsdsl.Elem, kind string) string {
	var sb strings.Builder
	parts := b.nsParts(e)
	if kind != "" {
		parts = append(parts, kind)
	}
	for _, p := range parts {
		fmt.Fprintf(&sb, "namespace %s\n{\n\n", p)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *Backend) nsEnd(e commsdsl.Elem, kind string) string {
	var sb strings.Builder
	parts := b.nsParts(e)
	if kind != "" {
		parts = append(parts, kind)
	}
	for i := len(parts) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "} // namespace %s\n\n", parts[i])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *Backend) writeHeader(e commsdsl.Elem, rel string, content string) bool {
	w := gen.NewWriter(b.gen)
	w.WriteFile(path.Join("include", rel), content)
	if w.Err != nil {
		return b.gen.Errorf(e, "%v", w.Err)
	}
	return true
}

func (b *Backend) fieldElem(f commsdsl.Field) *fieldElem {
	fe, _ := b.gen.ElemOf(f).(*fieldElem)
	return fe
}

type includes map[string]bool

func (inc includes) add(other includes) {
	for k := range other {
		inc[k] = true
	}
}

func (inc includes) String() string {
	list := make([]string, 0, len(inc))
	for k := range inc {
		list = append(list, k)
	}
	sort.Strings(list)
	var sb strings.Builder
	for _, k := range list {
		if strings.HasSuffix(k, ">") {
			fmt.Fprintf(&sb, "#include %s\n", k)
		} else {
			fmt.Fprintf(&sb, "#include \"%s\"\n", k)
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func docComment(name string, desc string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "/// @brief Definition of <b>\"%s\"</b>.", name)
	for _, line := range strings.Split(strings.TrimSpace(desc), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fmt.Fprintf(&sb, "\n/// @details %s", line)
		}
	}
	return sb.String()
}

type schemaElem struct {
	b *Backend
	s *commsdsl.Schema
}

func (e *schemaElem) Prepare() bool { return true }

// Write emits the schema wide headers: the field base, the message id
// enumeration and the list of all messages.
func (e *schemaElem) Write() bool {
	b := e.b
	if e.s != b.gen.Protocol.CurrentSchema() {
		return true
	}
	endian := "comms::option::def::BigEndian"
	if e.s.Endian == commsdsl.EndianLittle {
		endian = "comms::option::def::LittleEndian"
	}
	ok := b.writeHeader(e.s, path.Join(b.mainNs, "field", "FieldBase.h"), gen.ProcessTemplate(fieldBaseTempl, map[string]string{
		"NS":     b.mainNs,
		"ENDIAN": endian,
	}))
	msgs := b.gen.Protocol.AllMessages()
	var ids, allIncs, allList []string
	for _, m := range msgs {
		if !m.Referenced() {
			continue
		}
		ids = append(ids, fmt.Sprintf("MsgId_%s = %d, ///< message id of <b>%s</b>", gen.ClassName(m.Name), m.ID, m.Name))
		allIncs = append(allIncs, fmt.Sprintf("#include \"%s\"", b.headerPath(m, "message")))
		allList = append(allList, b.scopedName(m, "message")+"<TBase>")
	}
	idType := "std::uint8_t"
	if n := len(msgs); n > 0 {
		switch last := msgs[n-1].ID; {
		case last > 0xffff:
			idType = "std::uint32_t"
		case last > 0xff:
			idType = "std::uint16_t"
		}
	}
	ok = ok && b.writeHeader(e.s, path.Join(b.mainNs, "MsgId.h"), gen.ProcessTemplate(msgIdTempl, map[string]string{
		"NS":   b.mainNs,
		"TYPE": idType,
		"IDS":  strings.Join(ids, "\n"),
	}))
	return ok && b.writeHeader(e.s, path.Join(b.mainNs, "input", "AllMessages.h"), gen.ProcessTemplate(allMessagesTempl, map[string]string{
		"NS":       b.mainNs,
		"INCLUDES": strings.Join(allIncs, "\n"),
		"MESSAGES": strings.Join(allList, ",\n"),
	}))
}

const fieldBaseTempl = `// Generated by commsdsl2comms.

#pragma once

#include "comms/Field.h"
#include "comms/options.h"

namespace #^#NS#$#
{

namespace field
{

/// @brief Common base class for all the fields.
using FieldBase = comms::Field<#^#ENDIAN#$#>;

} // namespace field

} // namespace #^#NS#$#
`

const msgIdTempl = `// Generated by commsdsl2comms.

#pragma once

#include <cstdint>

namespace #^#NS#$#
{

/// @brief Message ids enumeration.
enum MsgId : #^#TYPE#$#
{
    #^#IDS#$#
};

} // namespace #^#NS#$#
`

const allMessagesTempl = `// Generated by commsdsl2comms.

#pragma once

#include <tuple>

#^#INCLUDES#$#

namespace #^#NS#$#
{

namespace input
{

/// @brief All messages of the protocol, sorted by id.
template <typename TBase>
using AllMessages =
    std::tuple<
        #^#MESSAGES#$#
    >;

} // namespace input

} // namespace #^#NS#$#
`
