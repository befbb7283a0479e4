package main

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ghodss/yaml"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/gen"
)

type fieldSummary struct {
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	Ref     string         `json:"ref,omitempty"`
	Since   uint           `json:"sinceVersion,omitempty"`
	MinLen  int            `json:"minLength"`
	MaxLen  int            `json:"maxLength,omitempty"`
	Cond    string         `json:"cond,omitempty"`
	Members []fieldSummary `json:"members,omitempty"`
}

type messageSummary struct {
	Name   string         `json:"name"`
	ID     int64          `json:"id"`
	Sender string         `json:"sender"`
	Fields []fieldSummary `json:"fields,omitempty"`
}

type layerSummary struct {
	Name  string        `json:"name"`
	Kind  string        `json:"kind"`
	Field *fieldSummary `json:"field,omitempty"`
}

type frameSummary struct {
	Name   string         `json:"name"`
	Layers []layerSummary `json:"layers"`
}

type namespaceSummary struct {
	Name       string             `json:"name,omitempty"`
	Fields     []fieldSummary     `json:"fields,omitempty"`
	Interfaces []messageSummary   `json:"interfaces,omitempty"`
	Messages   []messageSummary   `json:"messages,omitempty"`
	Frames     []frameSummary     `json:"frames,omitempty"`
	Namespaces []namespaceSummary `json:"namespaces,omitempty"`
}

type schemaSummary struct {
	Name      string           `json:"name"`
	Version   uint             `json:"version"`
	Endian    string           `json:"endian"`
	Platforms []string         `json:"platforms,omitempty"`
	Root      namespaceSummary `json:"namespace"`
}

// Dump renders a summary of the resolved protocol as yaml, json or an
// indented text outline.
func Dump(p *commsdsl.Protocol, format string) (string, error) {
	var schemas []schemaSummary
	for _, s := range p.Schemas {
		schemas = append(schemas, schemaSummary{
			Name:      s.Name,
			Version:   s.Version,
			Endian:    s.Endian.String(),
			Platforms: s.Platforms,
			Root:      summarizeNamespace(s.Root),
		})
	}
	switch format {
	case "json":
		return commsdsl.Pretty(schemas), nil
	case "yaml", "":
		b, err := yaml.Marshal(schemas)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case "text":
		return dumpText(schemas)
	}
	return "", fmt.Errorf("unsupported dump format %q", format)
}

func summarizeNamespace(ns *commsdsl.Namespace) namespaceSummary {
	sum := namespaceSummary{Name: ns.Name, Fields: summarizeFields(ns.Fields)}
	for _, i := range ns.Interfaces {
		sum.Interfaces = append(sum.Interfaces, messageSummary{Name: i.Name, Fields: summarizeFields(i.Fields)})
	}
	for _, m := range ns.Messages {
		sum.Messages = append(sum.Messages, messageSummary{Name: m.Name, ID: m.ID, Sender: m.Sender.String(), Fields: summarizeFields(m.Fields)})
	}
	for _, fr := range ns.Frames {
		fs := frameSummary{Name: fr.Name}
		for _, l := range fr.Layers {
			ls := layerSummary{Name: l.Name, Kind: l.Kind.String()}
			if l.Field != nil {
				f := summarizeField(l.Field)
				ls.Field = &f
			}
			fs.Layers = append(fs.Layers, ls)
		}
		sum.Frames = append(sum.Frames, fs)
	}
	for _, c := range ns.Namespaces {
		sum.Namespaces = append(sum.Namespaces, summarizeNamespace(c))
	}
	return sum
}

func summarizeFields(fields []commsdsl.Field) []fieldSummary {
	var result []fieldSummary
	for _, f := range fields {
		result = append(result, summarizeField(f))
	}
	return result
}

func summarizeField(f commsdsl.Field) fieldSummary {
	c := f.Common()
	sum := fieldSummary{Name: c.Name, Kind: f.Kind().String(), Since: c.SinceVersion, MinLen: f.MinLength()}
	if max := f.MaxLength(); max != commsdsl.MaxLengthUnbounded {
		sum.MaxLen = max
	}
	switch ff := f.(type) {
	case *commsdsl.RefField:
		sum.Ref = ff.FieldRef
	case *commsdsl.OptionalField:
		if ff.Cond != nil {
			sum.Cond = ff.Cond.String()
		}
	}
	sum.Members = summarizeFields(commsdsl.OwnedFields(f))
	return sum
}

var textTemplate = `{{range .}}schema {{.Name}} v{{.Version}} ({{.Endian}})
{{template "ns" (ns .Root 1)}}{{end}}
{{- define "ns"}}{{$d := .Depth}}{{with .Ns}}
{{- range .Fields}}{{template "field" (field . $d)}}{{end}}
{{- range .Interfaces}}{{indent $d}}interface {{.Name}}
{{range .Fields}}{{template "field" (field . (inc $d))}}{{end}}{{end}}
{{- range .Messages}}{{indent $d}}message {{.Name}} id={{.ID}} sender={{.Sender}}
{{range .Fields}}{{template "field" (field . (inc $d))}}{{end}}{{end}}
{{- range .Frames}}{{indent $d}}frame {{.Name}}
{{range .Layers}}{{indent (inc $d)}}{{.Kind}} {{.Name}}
{{end}}{{end}}
{{- range .Namespaces}}{{indent $d}}namespace {{.Name}}
{{template "ns" (ns . (inc $d))}}{{end}}{{end}}{{end}}
{{- define "field"}}{{$d := .Depth}}{{with .Field}}{{indent $d}}{{.Kind}} {{.Name}}{{if .Ref}} -> {{.Ref}}{{end}}{{if .Cond}} if {{.Cond}}{{end}} [{{.MinLen}}{{if .MaxLen}}..{{.MaxLen}}{{end}}]
{{range .Members}}{{template "field" (field . (inc $d))}}{{end}}{{end}}{{end}}`

type nsAt struct {
	Ns    namespaceSummary
	Depth int
}

type fieldAt struct {
	Field fieldSummary
	Depth int
}

func dumpText(schemas []schemaSummary) (string, error) {
	funcMap := template.FuncMap{
		"indent": func(depth int) string { return strings.Repeat("  ", depth) },
		"inc":    func(n int) int { return n + 1 },
		"ns":     func(ns namespaceSummary, depth int) nsAt { return nsAt{ns, depth} },
		"field":  func(f fieldSummary, depth int) fieldAt { return fieldAt{f, depth} },
	}
	w := &gen.Writer{}
	w.Begin()
	w.EmitTemplate("dump", textTemplate, schemas, funcMap)
	out := w.End()
	return out, w.Err
}
