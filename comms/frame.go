package comms

import (
	"fmt"
	"path"
	"strings"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/gen"
)

type checksumAlg struct {
	typ    string
	header string
}

var checksumAlgs = map[string]checksumAlg{
	"sum":       {"comms::protocol::checksum::BasicSum<>", "BasicSum.h"},
	"crc-ccitt": {"comms::protocol::checksum::Crc_CCITT", "Crc.h"},
	"crc-16":    {"comms::protocol::checksum::Crc_16", "Crc.h"},
	"crc-32":    {"comms::protocol::checksum::Crc_32", "Crc.h"},
}

type frameElem struct {
	b *Backend
	f *commsdsl.Frame

	content string
}

// Prepare renders the layers innermost first: each layer type wraps the
// one declared after it and the payload ends the chain.
func (e *frameElem) Prepare() bool {
	b := e.b
	fr := e.f
	class := gen.ClassName(fr.Name)
	scope := class + "Layers"
	incs := includes{
		path.Join(b.mainNs, "input", "AllMessages.h"): true,
		"comms/protocol/MsgDataLayer.h":               true,
	}
	var defs, aliases []string
	next := ""
	for i := len(fr.Layers) - 1; i >= 0; i-- {
		l := fr.Layers[i]
		name := gen.ClassName(l.Name) + "Layer"
		field := ""
		if l.Field != nil {
			fe := b.fieldElem(l.Field)
			if fe == nil || fe.def == "" {
				return b.gen.Errorf(l, "field of layer %s was not prepared", l.Name)
			}
			incs.add(fe.incs)
			defs = append(defs, fe.def)
			field = fe.className
		}
		var typ string
		switch l.Kind {
		case commsdsl.LayerPayload:
			typ = "comms::protocol::MsgDataLayer<>"
		case commsdsl.LayerSync:
			incs["comms/protocol/SyncPrefixLayer.h"] = true
			typ = tmplArgs("comms::protocol::SyncPrefixLayer", []string{field, next})
		case commsdsl.LayerSize:
			incs["comms/protocol/MsgSizeLayer.h"] = true
			typ = tmplArgs("comms::protocol::MsgSizeLayer", []string{field, next})
		case commsdsl.LayerID:
			incs["comms/protocol/MsgIdLayer.h"] = true
			typ = tmplArgs("comms::protocol::MsgIdLayer", []string{field, "TMessage", "TAllMessages", next})
		case commsdsl.LayerValue:
			incs["comms/protocol/TransportValueLayer.h"] = true
			args := []string{field, "TMessage::TransportFieldIdx_" + l.InterfaceFieldName, next}
			if l.PseudoField {
				args = append(args, opt("ProtocolLayerPseudoField"))
			}
			typ = tmplArgs("comms::protocol::TransportValueLayer", args)
		case commsdsl.LayerChecksum:
			alg := b.scopedName(fr, "frame") + "Checksum" + gen.ClassName(l.AlgName)
			if known, ok := checksumAlgs[l.Alg]; ok {
				alg = known.typ
				incs["comms/protocol/checksum/"+known.header] = true
			}
			kind := "ChecksumLayer"
			if l.From == "" {
				kind = "ChecksumPrefixLayer"
			}
			incs["comms/protocol/"+kind+".h"] = true
			args := []string{field, alg, next}
			if l.VerifyBeforeRead {
				args = append(args, opt("ChecksumLayerVerifyBeforeRead"))
			}
			typ = tmplArgs("comms::protocol::"+kind, args)
		case commsdsl.LayerCustom:
			incs[path.Join(b.nsParts(fr)...)+"/frame/layer/"+gen.ClassName(l.Name)+".h"] = true
			typ = tmplArgs(gen.ClassName(l.Name), []string{field, next})
		}
		aliases = append(aliases, fmt.Sprintf("/// @brief Definition of layer \"%s\".\nusing %s =\n    %s;", l.Name, name, strings.ReplaceAll(typ, "\n", "\n    ")))
		next = name
	}
	var layerNames []string
	for _, l := range fr.Layers {
		layerNames = append(layerNames, gen.ClassName(l.Name))
	}
	body := strings.Join(append(defs, aliases...), "\n\n")
	body += "\n\n/// @brief Final protocol stack definition.\nusing Stack = " + next + ";"
	e.content = gen.ProcessTemplate(frameTempl, map[string]string{
		"NAME":     fr.Name,
		"INCLUDES": incs.String(),
		"NS_BEGIN": b.nsBegin(fr, "frame"),
		"NS_END":   b.nsEnd(fr, "frame"),
		"DOC":      docComment(fr.Name, fr.Description),
		"CLASS":    class,
		"SCOPE":    scope,
		"BODY":     body,
		"ALL":      "::" + b.mainNs + "::input::AllMessages<TMessage>",
		"LAYERS":   strings.Join(layerNames, ",\n"),
	})
	return true
}

func (e *frameElem) Write() bool {
	return e.b.writeHeader(e.f, e.b.headerPath(e.f, "frame"), e.content)
}

const frameTempl = `// Generated by commsdsl2comms.

/// @file
/// @brief Contains definition of <b>"#^#NAME#$#"</b> frame class.

#pragma once

#^#INCLUDES#$#

#^#NS_BEGIN#$#
/// @brief Layers definition of @ref #^#CLASS#$# frame class.
template <typename TMessage, typename TAllMessages = #^#ALL#$#>
struct #^#SCOPE#$#
{
    #^#BODY#$#
};

#^#DOC#$#
template <typename TMessage, typename TAllMessages = #^#ALL#$#>
class #^#CLASS#$# : public
    #^#SCOPE#$#<TMessage, TAllMessages>::Stack
{
    using Base = typename #^#SCOPE#$#<TMessage, TAllMessages>::Stack;

public:
    COMMS_PROTOCOL_LAYERS_NAMES_OUTER(
        #^#LAYERS#$#
    );
};

#^#NS_END#$#
`
