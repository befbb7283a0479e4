package commsdsl

import (
	"fmt"
	"strings"
)

type LayerKind int

const (
	LayerCustom LayerKind = iota
	LayerSync
	LayerSize
	LayerID
	LayerValue
	LayerPayload
	LayerChecksum
)

var layerKindNames = []string{"custom", "sync", "size", "id", "value", "payload", "checksum"}

func (k LayerKind) String() string {
	if int(k) < len(layerKindNames) {
		return layerKindNames[k]
	}
	return fmt.Sprintf("LayerKind(%d)", int(k))
}

func (k LayerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func layerKindOf(name string) (LayerKind, bool) {
	for i, n := range layerKindNames {
		if n == name {
			return LayerKind(i), true
		}
	}
	return 0, false
}

var checksumAlgs = []string{"custom", "sum", "crc-ccitt", "crc-16", "crc-32"}

// Layer is one stage of a frame. Every kind except payload is bound to a
// field, defined inline or referenced with the field property.
type Layer struct {
	Kind        LayerKind `json:"kind"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Field       Field     `json:"field,omitempty"`

	// Checksum layers.
	Alg              string `json:"alg,omitempty"`
	AlgName          string `json:"algName,omitempty"`
	From             string `json:"from,omitempty"`
	Until            string `json:"until,omitempty"`
	VerifyBeforeRead bool   `json:"verifyBeforeRead,omitempty"`

	// Value layers.
	InterfaceFieldName string   `json:"interfaceFieldName,omitempty"`
	Interfaces         []string `json:"interfaces,omitempty"`
	PseudoField        bool     `json:"pseudo,omitempty"`

	// Custom layers.
	IDReplacement bool `json:"idReplacement,omitempty"`

	ExtraAttrs map[string]string `json:"extraAttrs,omitempty"`
	ExtraElems []*Node           `json:"-"`

	parent *Frame
	node   *Node
}

func (l *Layer) ElemName() string    { return l.Name }
func (l *Layer) ElemKind() ElemKind  { return ElemLayer }
func (l *Layer) ElemParent() Elem    { return l.parent }
func (l *Layer) ExternalRef() string { return ExternalRef(l) }

func (l *Layer) Loc() Location {
	if l.node == nil {
		return Location{}
	}
	return l.node.Loc
}

func (l *Layer) isID() bool {
	return l.Kind == LayerID || (l.Kind == LayerCustom && l.IDReplacement)
}

var layerCommonProps = []string{"name", "description", "field"}

var layerSchemas = map[LayerKind]*elemSchema{
	LayerCustom:   layerSchema("idReplacement", "semanticLayerType", "checksumFrom", "checksumUntil"),
	LayerSync:     layerSchema(),
	LayerSize:     layerSchema(),
	LayerID:       layerSchema(),
	LayerValue:    layerSchema("interfaceFieldName", "interfaces", "pseudo"),
	LayerPayload:  {props: []string{"name", "description"}, required: []string{"name"}},
	LayerChecksum: layerSchema("alg", "algName", "from", "until", "verifyBeforeRead"),
}

func layerSchema(props ...string) *elemSchema {
	return &elemSchema{
		props:    append(append([]string{}, layerCommonProps...), props...),
		required: []string{"name"},
		children: append([]string{"field"}, fieldKindNames...),
	}
}

type Frame struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Layers      []*Layer          `json:"layers"`
	ExtraAttrs  map[string]string `json:"extraAttrs,omitempty"`
	ExtraElems  []*Node           `json:"-"`

	parent     Elem
	node       *Node
	referenced bool
}

func (f *Frame) ElemName() string    { return f.Name }
func (f *Frame) ElemKind() ElemKind  { return ElemFrame }
func (f *Frame) ElemParent() Elem    { return f.parent }
func (f *Frame) ExternalRef() string { return ExternalRef(f) }
func (f *Frame) Referenced() bool    { return f.referenced }

func (f *Frame) Loc() Location {
	if f.node == nil {
		return Location{}
	}
	return f.node.Loc
}

func (f *Frame) FindLayer(name string) (*Layer, int) {
	for i, l := range f.Layers {
		if l.Name == name {
			return l, i
		}
	}
	return nil, -1
}

var frameSchema = &elemSchema{
	props:    []string{"name", "description"},
	required: []string{"name"},
	children: append([]string{"layers"}, layerKindNames...),
}

var layersSchema = &elemSchema{children: layerKindNames}

func (p *Protocol) parseFrame(ns *Namespace, node *Node, sc *scope) bool {
	ep := p.newElemParser(node, frameSchema)
	if !ep.ok {
		return false
	}
	name := ep.get("name")
	path := joinPath(ExternalRef(ns), name)
	if !IsValidName(name) {
		p.logger.ErrorAt(SemanticValidationError, node.Loc, path, fmt.Sprintf("invalid frame name %q", name))
		return false
	}
	if prev := ns.FindFrame(name); prev != nil {
		p.logger.ErrorAt(SemanticValidationError, node.Loc, path,
			fmt.Sprintf("frame %q is already defined at %s", name, prev.Loc()))
		return false
	}
	fr := &Frame{
		Name:        name,
		Description: ep.get("description"),
		ExtraAttrs:  ep.extraAttrs,
		ExtraElems:  ep.extraElems,
		parent:      ns,
		node:        node,
	}
	var layerNodes []*Node
	for _, n := range ep.children {
		if n.Name != "layers" {
			layerNodes = append(layerNodes, n)
			continue
		}
		lep := p.newElemParser(n, layersSchema)
		if !lep.ok {
			return false
		}
		layerNodes = append(layerNodes, lep.children...)
	}
	for _, n := range layerNodes {
		l, ok := p.parseLayer(fr, n, sc)
		if !ok {
			return false
		}
		if prev, _ := fr.FindLayer(l.Name); prev != nil {
			p.logger.ErrorAt(SemanticValidationError, n.Loc, path, fmt.Sprintf("layer %q is defined more than once", l.Name))
			return false
		}
		fr.Layers = append(fr.Layers, l)
	}
	if !p.validateLayerStack(fr) {
		return false
	}
	ns.Frames = append(ns.Frames, fr)
	return true
}

func (p *Protocol) parseLayer(fr *Frame, node *Node, sc *scope) (*Layer, bool) {
	kind, _ := layerKindOf(node.Name)
	ep := p.newElemParser(node, layerSchemas[kind])
	if !ep.ok {
		return nil, false
	}
	l := &Layer{
		Kind:        kind,
		Name:        ep.get("name"),
		Description: ep.get("description"),
		ExtraAttrs:  ep.extraAttrs,
		ExtraElems:  ep.extraElems,
		parent:      fr,
		node:        node,
	}
	path := joinPath(ExternalRef(fr), l.Name)
	fail := func(msg string) (*Layer, bool) {
		p.logger.ErrorAt(SemanticValidationError, node.Loc, path, msg)
		return nil, false
	}
	if !IsValidName(l.Name) {
		return fail(fmt.Sprintf("invalid layer name %q", l.Name))
	}
	if kind != LayerPayload {
		fp := &fieldParser{elemParser: ep, scope: sc.child(l, sc.since, sc.deprecated), field: &RefField{}}
		f, detached, ok := fp.fieldProp("field", fp.scope)
		if !ok {
			return nil, false
		}
		if detached != "" {
			return fail("layer field cannot be detached")
		}
		direct, ok := p.parseMembers(ep.childrenNamed(fieldKindNames...), fp.scope)
		if !ok {
			return nil, false
		}
		switch {
		case f != nil && len(direct) > 0, len(direct) > 1:
			return fail("layer must define exactly one field")
		case len(direct) == 1:
			f = direct[0]
		}
		if f == nil {
			return fail(fmt.Sprintf("%s layer requires a field", kind))
		}
		l.Field = f
	}
	var ok bool
	switch kind {
	case LayerChecksum:
		l.Alg = strings.ToLower(ep.get("alg"))
		if !contains(checksumAlgs, l.Alg) {
			return fail(fmt.Sprintf("unknown checksum alg %q", ep.get("alg")))
		}
		l.AlgName = ep.get("algName")
		if l.Alg == "custom" && l.AlgName == "" {
			return fail("custom checksum requires algName")
		}
		l.From = ep.get("from")
		l.Until = ep.get("until")
		if l.VerifyBeforeRead, ok = ep.boolProp("verifyBeforeRead", false); !ok {
			return nil, false
		}
	case LayerValue:
		l.InterfaceFieldName = strings.TrimPrefix(ep.get("interfaceFieldName"), "$")
		if l.InterfaceFieldName == "" {
			return fail("value layer requires interfaceFieldName")
		}
		l.Interfaces = splitList(ep.get("interfaces"))
		if l.PseudoField, ok = ep.boolProp("pseudo", false); !ok {
			return nil, false
		}
	case LayerCustom:
		if l.IDReplacement, ok = ep.boolProp("idReplacement", false); !ok {
			return nil, false
		}
	}
	return l, true
}

// validateLayerStack checks the layer counts, moves checksum layers next to
// the range they protect and then checks the payload is innermost.
func (p *Protocol) validateLayerStack(fr *Frame) bool {
	fail := func(l *Layer, msg string) bool {
		loc := fr.Loc()
		if l != nil {
			loc = l.Loc()
		}
		p.logger.ErrorAt(SemanticValidationError, loc, ExternalRef(fr), msg)
		return false
	}
	payloads, ids, payloadIdx := 0, 0, -1
	for i, l := range fr.Layers {
		switch {
		case l.Kind == LayerPayload:
			payloads++
			payloadIdx = i
		case l.isID():
			ids++
		}
	}
	if payloads != 1 {
		return fail(nil, fmt.Sprintf("frame must have exactly one payload layer, found %d", payloads))
	}
	if ids > 1 {
		return fail(nil, fmt.Sprintf("frame must have at most one id layer, found %d", ids))
	}
	for _, l := range fr.Layers[payloadIdx+1:] {
		if l.Kind != LayerChecksum {
			return fail(l, fmt.Sprintf("only checksum layers may follow the payload, %q is a %s layer", l.Name, l.Kind))
		}
	}
	layers, err := rearrangeChecksums(fr.Layers)
	if err != nil {
		return fail(nil, err.Error())
	}
	fr.Layers = layers
	if fr.Layers[len(fr.Layers)-1].Kind != LayerPayload {
		return fail(nil, "payload must be the innermost layer")
	}
	return true
}

// rearrangeChecksums moves every checksum layer with a "from" boundary in
// front of that boundary so that it wraps the protected layers, leaving the
// relative order of all other layers untouched. "until" boundaries must
// follow the checksum.
func rearrangeChecksums(layers []*Layer) ([]*Layer, error) {
	result := append([]*Layer(nil), layers...)
	var checksums []*Layer
	for _, l := range layers {
		if l.Kind == LayerChecksum {
			checksums = append(checksums, l)
		}
	}
	indexOf := func(name string) int {
		for i, l := range result {
			if l.Name == name {
				return i
			}
		}
		return -1
	}
	for _, c := range checksums {
		if c.From == "" && c.Until == "" {
			return nil, fmt.Errorf("checksum layer %q requires either from or until", c.Name)
		}
		if c.From != "" {
			from := indexOf(c.From)
			cur := indexOf(c.Name)
			switch {
			case from < 0:
				return nil, fmt.Errorf("checksum layer %q refers to unknown layer %q", c.Name, c.From)
			case from == cur:
				return nil, fmt.Errorf("checksum layer %q cannot start from itself", c.Name)
			case from > cur:
				return nil, fmt.Errorf("checksum layer %q must follow its from layer %q", c.Name, c.From)
			}
			result = append(result[:cur], result[cur+1:]...)
			result = append(result[:from], append([]*Layer{c}, result[from:]...)...)
		}
		if c.Until != "" {
			until := indexOf(c.Until)
			cur := indexOf(c.Name)
			switch {
			case until < 0:
				return nil, fmt.Errorf("checksum layer %q refers to unknown layer %q", c.Name, c.Until)
			case until <= cur:
				return nil, fmt.Errorf("checksum layer %q must precede its until layer %q", c.Name, c.Until)
			}
		}
	}
	return result, nil
}
