// Package project loads HCL project files describing a whole generation run
// and executes them.
//
// A project file lists the schema files, the parsing options and one output
// block per backend:
//
//	schemas = ["base.xml", "${env.PROTO_DIR}/app.xml"]
//	strict  = true
//
//	output "comms" {
//	  dir     = "${schema_dir}/out/include"
//	  options = { "main-namespace" = "demo" }
//	}
//
// Expressions may use env.NAME for environment variables and schema_dir for
// the directory holding the project file. Relative paths are resolved
// against that directory too.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/comms"
	"github.com/boynton/commsdsl/graphql"
)

// Backend generates output for a validated protocol.
type Backend func(p *commsdsl.Protocol, config *commsdsl.Data, outDir string) error

// Backends maps output block labels to backends.
var Backends = map[string]Backend{
	"comms": func(p *commsdsl.Protocol, config *commsdsl.Data, outDir string) error {
		_, err := comms.Generate(p, config, outDir)
		return err
	},
	"graphql": func(p *commsdsl.Protocol, config *commsdsl.Data, outDir string) error {
		_, err := graphql.Generate(p, config, outDir)
		return err
	},
}

type Output struct {
	Backend string    `hcl:"backend,label"`
	Dir     string    `hcl:"dir"`
	Options cty.Value `hcl:"options,optional"`
}

type Project struct {
	Schemas               []string  `hcl:"schemas"`
	Strict                bool      `hcl:"strict,optional"`
	ExtraPrefixes         []string  `hcl:"extra_prefixes,optional"`
	AllMessagesReferenced *bool     `hcl:"all_messages_referenced,optional"`
	Outputs               []*Output `hcl:"output,block"`

	// Dir is the directory holding the project file.
	Dir string
}

// Load parses and decodes a project file.
func Load(path string) (*Project, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, diags)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	var proj Project
	diags = gohcl.DecodeBody(file.Body, evalContext(dir), &proj)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode project file %s: %w", path, diags)
	}
	if len(proj.Schemas) == 0 {
		return nil, fmt.Errorf("%s: no schemas listed", path)
	}
	seen := make(map[string]bool)
	for _, out := range proj.Outputs {
		if _, ok := Backends[out.Backend]; !ok {
			return nil, fmt.Errorf("%s: unknown output backend %q (known: %s)", path, out.Backend, strings.Join(backendNames(), ", "))
		}
		if seen[out.Backend] {
			return nil, fmt.Errorf("%s: output %q is defined more than once", path, out.Backend)
		}
		seen[out.Backend] = true
	}
	proj.Dir = dir
	return &proj, nil
}

func backendNames() []string {
	names := make([]string, 0, len(Backends))
	for k := range Backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// evalContext exposes the environment as env.* and the project directory as
// schema_dir.
func evalContext(dir string) *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && validEnvName(k) {
			env[k] = cty.StringVal(v)
		}
	}
	vars := map[string]cty.Value{
		"schema_dir": cty.StringVal(dir),
		"env":        cty.ObjectVal(env),
	}
	return &hcl.EvalContext{Variables: vars}
}

func validEnvName(s string) bool {
	for i, c := range s {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

func (proj *Project) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(proj.Dir, p)
}

// Protocol parses and validates the listed schemas.
func (proj *Project) Protocol(logger *commsdsl.Logger) (*commsdsl.Protocol, error) {
	p := commsdsl.NewProtocol(logger)
	p.Strict = proj.Strict
	if proj.AllMessagesReferenced != nil {
		p.AllMessagesReferenced = *proj.AllMessagesReferenced
	}
	for _, prefix := range proj.ExtraPrefixes {
		p.AddExpectedExtraPrefix(prefix)
	}
	for _, s := range proj.Schemas {
		if err := p.ParseFile(proj.path(s)); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Run parses the schemas and runs every output in declaration order.
func (proj *Project) Run(logger *commsdsl.Logger) error {
	p, err := proj.Protocol(logger)
	if err != nil {
		return err
	}
	for _, out := range proj.Outputs {
		config, err := OptionsData(out.Options)
		if err != nil {
			return fmt.Errorf("output %q: %w", out.Backend, err)
		}
		logger.Info(fmt.Sprintf("generating %s into %s", out.Backend, proj.path(out.Dir)))
		if err := Backends[out.Backend](p, config, proj.path(out.Dir)); err != nil {
			return err
		}
	}
	return nil
}

// OptionsData converts an options object to generator configuration.
func OptionsData(v cty.Value) (*commsdsl.Data, error) {
	if v.IsNull() {
		return commsdsl.NewData(), nil
	}
	m, err := ctyToGo(v)
	if err != nil {
		return nil, err
	}
	obj, ok := m.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("options must be an object")
	}
	return commsdsl.NewDataFromMap(obj), nil
}

func ctyToGo(v cty.Value) (interface{}, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("unknown value")
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			n, _ := bf.Int64()
			return int(n), nil
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsObjectType() || t.IsMapType():
		result := make(map[string]interface{})
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			result[k.AsString()] = gv
		}
		return result, nil
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		var result []interface{}
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			result = append(result, gv)
		}
		return result, nil
	}
	return nil, fmt.Errorf("unsupported option type %s", t.FriendlyName())
}
