// Package catalog declares the fixed set of operations the assistant can
// invoke, together with their parameter schemas.
//
// The catalog is the single source of truth for both the tool surface handed
// to the reasoning engine and the validation performed before an operation
// runs. It carries no behavior of its own.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNotFound is returned when an operation name is not in the catalog.
var ErrNotFound = errors.New("operation not found")

// ParamType is the declared type of an operation parameter.
type ParamType string

const (
	TypeEnum   ParamType = "enum"
	TypeString ParamType = "string"
	TypeNumber ParamType = "number"
)

// AllValue is the enum sentinel meaning "no filter".
const AllValue = "ALL"

// Param describes one operation input.
type Param struct {
	Name          string    `json:"name"`
	Type          ParamType `json:"type"`
	AllowedValues []string  `json:"allowedValues,omitempty"`
	Required      bool      `json:"required"`
	Description   string    `json:"description"`
}

// Definition describes one operation.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"inputSchema"`

	// Mutating operations write to the store and are never retried.
	Mutating bool `json:"mutating,omitempty"`
}

// Param returns the named parameter.
func (d Definition) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// JSONSchema renders the parameters as a JSON Schema object.
func (d Definition) JSONSchema() json.RawMessage {
	properties := make(map[string]any, len(d.Params))
	required := make([]string, 0)
	for _, p := range d.Params {
		prop := map[string]any{"description": p.Description}
		switch p.Type {
		case TypeNumber:
			prop["type"] = "number"
		case TypeEnum:
			prop["type"] = "string"
			prop["enum"] = p.AllowedValues
		default:
			prop["type"] = "string"
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}

type entry struct {
	def    Definition
	schema *jsonschema.Schema
}

// Catalog is an immutable, validated set of operation definitions.
type Catalog struct {
	defs   []Definition
	byName map[string]*entry
}

// New validates the definitions and compiles their schemas.
func New(defs ...Definition) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*entry, len(defs))}
	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			return nil, errors.New("operation name is required")
		}
		if _, dup := c.byName[def.Name]; dup {
			return nil, fmt.Errorf("duplicate operation %q", def.Name)
		}
		seen := make(map[string]bool, len(def.Params))
		for _, p := range def.Params {
			if seen[p.Name] {
				return nil, fmt.Errorf("operation %q: duplicate parameter %q", def.Name, p.Name)
			}
			seen[p.Name] = true
			if p.Type == TypeEnum && len(p.AllowedValues) == 0 {
				return nil, fmt.Errorf("operation %q: enum parameter %q has no allowed values", def.Name, p.Name)
			}
		}
		compiled, err := jsonschema.CompileString(def.Name+".schema.json", string(def.JSONSchema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", def.Name, err)
		}
		c.defs = append(c.defs, def)
		c.byName[def.Name] = &entry{def: def, schema: compiled}
	}
	return c, nil
}

// List returns every definition in declaration order.
func (c *Catalog) List() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Names returns the sorted operation names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.defs))
	for _, def := range c.defs {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	e, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// Schema returns the parameter list for name, or ErrNotFound.
func (c *Catalog) Schema(name string) ([]Param, error) {
	e, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	params := make([]Param, len(e.def.Params))
	copy(params, e.def.Params)
	return params, nil
}
