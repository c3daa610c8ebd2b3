package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trip-agent/internal/utils"
	"trip-agent/pkg/capability"
)

// Manager owns every MCP connection of the process and the catalogs built
// from them.
type Manager struct {
	logger   utils.ExtendedLogger
	mu       sync.RWMutex
	clients  map[string]*Client
	catalogs map[string]*capability.Catalog
}

func NewManager(logger utils.ExtendedLogger) *Manager {
	return &Manager{
		logger:   logger,
		clients:  make(map[string]*Client),
		catalogs: make(map[string]*capability.Catalog),
	}
}

// Initialize connects to every enabled server in parallel and lists its
// tools, bounded by timeout. Servers that fail are skipped; their errors are
// joined into the returned error while the others stay usable.
func (m *Manager) Initialize(ctx context.Context, cfg *Config, timeout time.Duration) error {
	servers := cfg.ListServers()
	if len(servers) == 0 {
		m.logger.Infof("ℹ️ No MCP servers configured")
		return nil
	}
	m.logger.Infof("🚀 Connecting to %d MCP servers: %v", len(servers), servers)

	initCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		errMu sync.Mutex
		errs  []error
	)
	g := new(errgroup.Group)
	for _, name := range servers {
		srv, _ := cfg.GetServer(name)
		g.Go(func() error {
			c := New(name, srv, m.logger)
			if err := m.connect(initCtx, c); err != nil {
				m.logger.Errorf("❌ MCP server %s unavailable: %v", name, err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, cat := range m.CatalogsByServer() {
		total += cat.Len()
	}
	m.logger.Infof("✅ MCP initialization finished: %d tools from %d servers (%d failed)", total, len(m.CatalogsByServer()), len(errs))
	return errors.Join(errs...)
}

func (m *Manager) connect(ctx context.Context, c *Client) error {
	if err := c.ConnectWithRetry(ctx); err != nil {
		return err
	}
	return m.AddClient(ctx, c)
}

// AddClient lists the tools of an already connected client and registers it.
func (m *Manager) AddClient(ctx context.Context, c *Client) error {
	catalog, err := c.Capabilities(ctx)
	if err != nil {
		_ = c.Close()
		return err
	}
	m.mu.Lock()
	m.clients[c.Name()] = c
	m.catalogs[c.Name()] = catalog
	m.mu.Unlock()
	m.logger.Infof("🔧 MCP server %s: %d tools", c.Name(), catalog.Len())
	return nil
}

// CatalogsByServer returns a copy of the server -> catalog map.
func (m *Manager) CatalogsByServer() map[string]*capability.Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*capability.Catalog, len(m.catalogs))
	for k, v := range m.catalogs {
		out[k] = v
	}
	return out
}

// Servers returns the connected server names, sorted.
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			m.logger.Warnf("⚠️ Failed to close MCP client %s: %v", name, err)
		}
	}
	m.clients = make(map[string]*Client)
	m.catalogs = make(map[string]*capability.Catalog)
}
