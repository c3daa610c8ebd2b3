package worker

import (
	"sort"

	"trip-agent/internal/utils"
	"trip-agent/pkg/capability"
)

// DefaultServerMapping binds well-known MCP servers to worker types. Servers
// missing from the mapping feed the search worker.
func DefaultServerMapping() map[string][]string {
	return map[string][]string{
		"12306-mcp":      {TypeTransport},
		"variflight-mcp": {TypeTransport},
		"mcp_tool":       {TypeWeather},
		"amap-maps":      {TypeMap},
		"aigohotel-mcp":  {TypeHotel},
		"local-files":    {TypeFile},
	}
}

// Registry holds the available workers in a stable order.
type Registry struct {
	order       []string
	byName      map[string]*Worker
	defaultName string
}

// NewRegistry creates a registry. The default worker is TypeSearch when
// present, else the first registered worker.
func NewRegistry(workers ...*Worker) *Registry {
	r := &Registry{byName: make(map[string]*Worker)}
	for _, w := range workers {
		r.Register(w)
	}
	return r
}

// Register adds or replaces a worker.
func (r *Registry) Register(w *Worker) {
	if w == nil {
		return
	}
	if _, exists := r.byName[w.Name]; !exists {
		r.order = append(r.order, w.Name)
	}
	r.byName[w.Name] = w
}

// SetDefault designates the general-purpose worker.
func (r *Registry) SetDefault(name string) {
	r.defaultName = name
}

// Get returns the worker registered under name.
func (r *Registry) Get(name string) (*Worker, bool) {
	if r == nil {
		return nil, false
	}
	w, ok := r.byName[name]
	return w, ok
}

// Default returns the designated general-purpose worker, falling back to
// the search worker and then the first registered one.
func (r *Registry) Default() *Worker {
	if r == nil || len(r.order) == 0 {
		return nil
	}
	if w, ok := r.byName[r.defaultName]; ok {
		return w
	}
	if w, ok := r.byName[TypeSearch]; ok {
		return w
	}
	return r.byName[r.order[0]]
}

// List returns workers in registration order.
func (r *Registry) List() []*Worker {
	if r == nil {
		return nil
	}
	out := make([]*Worker, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns worker names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Len returns the number of workers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// SearchCatalog returns the capabilities of the search worker, used by the
// fallback search when the task's own worker has none.
func (r *Registry) SearchCatalog() *capability.Catalog {
	if w, ok := r.Get(TypeSearch); ok {
		return w.Capabilities
	}
	return nil
}

// BuildRegistry groups server catalogs into workers. mapping overrides the
// default server mapping per server; local capabilities are shared by the
// search and transport workers. Workers without capabilities are skipped.
func BuildRegistry(catalogs map[string]*capability.Catalog, mapping map[string][]string, local *capability.Catalog, logger utils.ExtendedLogger) *Registry {
	effective := DefaultServerMapping()
	for server, types := range mapping {
		effective[server] = types
	}

	byType := map[string]*capability.Catalog{}
	add := func(workerType string, cat *capability.Catalog) {
		if byType[workerType] == nil {
			byType[workerType] = capability.NewCatalog()
		}
		byType[workerType] = byType[workerType].Merge(cat)
	}

	servers := make([]string, 0, len(catalogs))
	for server := range catalogs {
		servers = append(servers, server)
	}
	sort.Strings(servers)

	for _, server := range servers {
		cat := catalogs[server]
		types, ok := effective[server]
		if !ok || len(types) == 0 {
			if logger != nil {
				logger.Warnf("⚠️ MCP server [%s] has no worker mapping, %d tools -> %s worker", server, cat.Len(), TypeSearch)
			}
			add(TypeSearch, cat)
			continue
		}
		for _, t := range types {
			if logger != nil {
				logger.Infof("✅ MCP server [%s] %d tools -> %s worker", server, cat.Len(), t)
			}
			add(t, cat)
		}
	}

	if local.Len() > 0 {
		add(TypeSearch, local)
		add(TypeTransport, local)
		if logger != nil {
			logger.Infof("✅ Added %d local tools -> search and transport workers", local.Len())
		}
	}

	reg := NewRegistry()
	for _, t := range []string{TypeTransport, TypeMap, TypeSearch, TypeFile, TypeWeather, TypeHotel} {
		if cat := byType[t]; cat.Len() > 0 {
			reg.Register(New(t, cat))
		}
		delete(byType, t)
	}
	// custom worker types from the mapping, sorted for determinism
	custom := make([]string, 0, len(byType))
	for t := range byType {
		custom = append(custom, t)
	}
	sort.Strings(custom)
	for _, t := range custom {
		if cat := byType[t]; cat.Len() > 0 {
			reg.Register(New(t, cat))
		}
	}
	reg.SetDefault(TypeSearch)
	return reg
}
