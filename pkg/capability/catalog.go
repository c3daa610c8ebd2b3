// Package capability executes the tool calls a model asks for against a
// named catalog of capabilities.
package capability

import (
	"context"
	"fmt"
	"sort"

	"trip-agent/internal/llmtypes"
)

// Func invokes a capability. The returned string is handed back to the model.
type Func func(ctx context.Context, args map[string]interface{}) (string, error)

// Capability is a named, invokable tool.
type Capability struct {
	Name        string
	Description string
	// Parameters is the JSON Schema of the arguments object.
	Parameters map[string]interface{}
	// Source names where the capability came from, usually an MCP server.
	Source string
	Invoke Func
}

// Catalog is an ordered name -> capability set. A nil *Catalog is empty.
type Catalog struct {
	order  []string
	byName map[string]Capability
}

func NewCatalog(caps ...Capability) *Catalog {
	c := &Catalog{byName: make(map[string]Capability)}
	for _, cp := range caps {
		c.Add(cp)
	}
	return c
}

// Add registers cp, replacing any capability with the same name in place.
func (c *Catalog) Add(cp Capability) {
	if c.byName == nil {
		c.byName = make(map[string]Capability)
	}
	if _, exists := c.byName[cp.Name]; !exists {
		c.order = append(c.order, cp.Name)
	}
	c.byName[cp.Name] = cp
}

func (c *Catalog) Get(name string) (Capability, bool) {
	if c == nil {
		return Capability{}, false
	}
	cp, ok := c.byName[name]
	return cp, ok
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// List returns the capabilities in registration order.
func (c *Catalog) List() []Capability {
	if c == nil {
		return nil
	}
	out := make([]Capability, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// Merge returns a new catalog holding c's capabilities followed by others'.
func (c *Catalog) Merge(others ...*Catalog) *Catalog {
	out := NewCatalog(c.List()...)
	for _, o := range others {
		for _, cp := range o.List() {
			out.Add(cp)
		}
	}
	return out
}

// Without returns a copy of c minus the named capabilities.
func (c *Catalog) Without(names ...string) *Catalog {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := NewCatalog()
	for _, cp := range c.List() {
		if !skip[cp.Name] {
			out.Add(cp)
		}
	}
	return out
}

// Tools renders the catalog as model tool definitions.
func (c *Catalog) Tools() []llmtypes.Tool {
	caps := c.List()
	tools := make([]llmtypes.Tool, 0, len(caps))
	for _, cp := range caps {
		params := cp.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		tools = append(tools, llmtypes.Tool{
			Type: "function",
			Function: &llmtypes.FunctionDefinition{
				Name:        cp.Name,
				Description: cp.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// Describe returns "name: description" lines in registration order.
func (c *Catalog) Describe() []string {
	caps := c.List()
	out := make([]string, 0, len(caps))
	for _, cp := range caps {
		desc := cp.Description
		if desc == "" {
			desc = "no description"
		}
		out = append(out, fmt.Sprintf("%s: %s", cp.Name, desc))
	}
	return out
}

// Sources returns the distinct capability sources, sorted.
func (c *Catalog) Sources() []string {
	seen := map[string]bool{}
	for _, cp := range c.List() {
		if cp.Source != "" {
			seen[cp.Source] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
