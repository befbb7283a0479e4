package commsdsl

import (
	"fmt"
	"strings"
)

// Alias gives a member field, or a sub-member reached by a dotted path, an
// additional name. An alias may name another alias of the same container;
// such chains must end in a concrete field.
type Alias struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FieldName   string `json:"field"`
	Target      Field  `json:"-"`

	node   *Node
	parent Elem
}

var aliasSchema = &elemSchema{
	props:    []string{"name", "field", "description", "sinceVersion", "deprecated", "removed"},
	required: []string{"name", "field"},
}

func (a *Alias) Loc() Location {
	if a.node == nil {
		return Location{}
	}
	return a.node.Loc
}

func (p *Protocol) parseAliases(nodes []*Node, parent Elem, prior []*Alias) ([]*Alias, bool) {
	result := append([]*Alias(nil), prior...)
	ok := true
	path := ExternalRef(parent)
	for _, n := range nodes {
		ep := p.newElemParser(n, aliasSchema)
		if !ep.ok {
			ok = false
			continue
		}
		a := &Alias{
			Name:        ep.get("name"),
			Description: ep.get("description"),
			FieldName:   strings.TrimPrefix(ep.get("field"), "$"),
			node:        n,
			parent:      parent,
		}
		if !IsValidName(a.Name) {
			p.logger.ErrorAt(SemanticValidationError, n.Loc, path, fmt.Sprintf("invalid alias name %q", a.Name))
			ok = false
			continue
		}
		if !IsValidRefName(a.FieldName) || strings.HasPrefix(a.FieldName, "@") {
			p.logger.ErrorAt(SemanticValidationError, n.Loc, path, fmt.Sprintf("invalid alias field %q", ep.get("field")))
			ok = false
			continue
		}
		if findAlias(result, a.Name) != nil {
			p.logger.ErrorAt(SemanticValidationError, n.Loc, path, fmt.Sprintf("alias %q is defined more than once", a.Name))
			ok = false
			continue
		}
		result = append(result, a)
	}
	return result, ok
}

func findAlias(aliases []*Alias, name string) *Alias {
	for _, a := range aliases {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func cloneAliases(aliases []*Alias, parent Elem) []*Alias {
	if aliases == nil {
		return nil
	}
	result := make([]*Alias, len(aliases))
	for i, a := range aliases {
		cp := *a
		cp.parent = parent
		cp.Target = nil
		result[i] = &cp
	}
	return result
}

// resolveAliases binds every alias of one container to its concrete field.
// Alias chains are followed with cycle detection.
func (p *Protocol) resolveAliases(members []Field, aliases []*Alias) bool {
	ok := true
	for _, a := range aliases {
		path := ExternalRef(a.parent)
		if f, _ := findByName(members, a.Name); f != nil {
			p.logger.ErrorAt(SemanticValidationError, a.Loc(), path,
				fmt.Sprintf("alias %q has the same name as a member field", a.Name))
			ok = false
			continue
		}
		var err error
		a.Target, err = resolveAliasChain(a, members, aliases)
		if err != nil {
			p.logger.ErrorAt(ResolutionError, a.Loc(), path, err.Error())
			ok = false
		}
	}
	return ok
}

func resolveAliasChain(a *Alias, members []Field, aliases []*Alias) (Field, error) {
	visited := map[string]bool{a.Name: true}
	chain := []string{a.Name}
	cur := a
	for {
		head, rest, _ := strings.Cut(cur.FieldName, ".")
		if m, _ := findByName(members, head); m != nil {
			return findSubField(m, rest, boundDeref)
		}
		next := findAlias(aliases, head)
		if next == nil {
			return nil, fmt.Errorf("alias %q refers to unknown field %q", a.Name, cur.FieldName)
		}
		if visited[next.Name] {
			chain = append(chain, next.Name)
			return nil, fmt.Errorf("alias cycle detected: %s", strings.Join(chain, " -> "))
		}
		if rest != "" {
			return nil, fmt.Errorf("alias %q uses a sub-path %q through alias %q", a.Name, rest, next.Name)
		}
		visited[next.Name] = true
		chain = append(chain, next.Name)
		cur = next
	}
}

// findSubField descends a dotted member path into bundles and bitfields,
// following refs with deref.
func findSubField(f Field, path string, deref func(Field) (Field, error)) (Field, error) {
	for path != "" {
		var head string
		head, path, _ = strings.Cut(path, ".")
		d, err := deref(f)
		if err != nil {
			return nil, err
		}
		m, _ := findByName(Members(d), head)
		if m == nil {
			return nil, fmt.Errorf("field %q has no member %q", d.Common().Name, head)
		}
		f = m
	}
	return f, nil
}

// boundDeref follows refs that are already bound.
func boundDeref(f Field) (Field, error) {
	if d := Deref(f); d != nil {
		return d, nil
	}
	return nil, fmt.Errorf("field %q is not resolved", f.Common().Name)
}
