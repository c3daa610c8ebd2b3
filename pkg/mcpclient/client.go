// Package mcpclient connects to MCP servers and exposes their tools as
// capabilities.
package mcpclient

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"trip-agent/internal/utils"
	"trip-agent/pkg/capability"
)

const (
	clientName      = "trip-agent"
	clientVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
)

// RetryConfig defines the retry behavior for MCP connections
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	ConnectTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialDelay:   1 * time.Second,
		MaxDelay:       10 * time.Second,
		BackoffFactor:  2.0,
		ConnectTimeout: 30 * time.Second,
	}
}

// Client wraps one MCP server connection.
type Client struct {
	name        string
	config      ServerConfig
	mcpClient   *client.Client
	serverInfo  *mcp.Implementation
	retryConfig RetryConfig
	logger      utils.ExtendedLogger
	mu          sync.RWMutex
}

func New(name string, config ServerConfig, logger utils.ExtendedLogger) *Client {
	return &Client{name: name, config: config, retryConfig: DefaultRetryConfig(), logger: logger}
}

func NewWithRetryConfig(name string, config ServerConfig, retryConfig RetryConfig, logger utils.ExtendedLogger) *Client {
	return &Client{name: name, config: config, retryConfig: retryConfig, logger: logger}
}

// newFromMCP wraps an already created mcp-go client, used for in-process
// servers.
func newFromMCP(name string, c *client.Client, logger utils.ExtendedLogger) *Client {
	return &Client{name: name, mcpClient: c, retryConfig: DefaultRetryConfig(), logger: logger}
}

func (c *Client) Name() string {
	return c.name
}

// ConnectWithRetry connects with exponential backoff between attempts.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(c.retryConfig.InitialDelay) * math.Pow(c.retryConfig.BackoffFactor, float64(attempt-1)))
			if delay > c.retryConfig.MaxDelay {
				delay = c.retryConfig.MaxDelay
			}
			c.logger.Infof("🔄 Retrying MCP connection (attempt %d/%d) to server '%s' after %v delay...", attempt+1, c.retryConfig.MaxRetries+1, c.name, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			}
		}

		connectCtx := ctx
		cancel := func() {}
		if c.retryConfig.ConnectTimeout > 0 {
			connectCtx, cancel = context.WithTimeout(ctx, c.retryConfig.ConnectTimeout)
		}
		err := c.connectOnce(connectCtx)
		cancel()
		if err == nil {
			c.logger.Infof("✅ Connected to MCP server '%s' via %s", c.name, c.config.GetProtocol())
			return nil
		}
		lastErr = err
		c.logger.Errorf("❌ Connection attempt failed for server %s (attempt %d): %v", c.name, attempt+1, err)
		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled during connection retry: %w", ctx.Err())
		}
	}
	return fmt.Errorf("failed to connect to MCP server '%s' after %d attempts: %w", c.name, c.retryConfig.MaxRetries+1, lastErr)
}

func (c *Client) connectOnce(ctx context.Context) error {
	var (
		mcpClient *client.Client
		err       error
	)

	switch c.config.GetProtocol() {
	case ProtocolSSE:
		mcpClient, err = client.NewSSEMCPClient(c.config.URL, transport.WithHeaders(c.config.Headers))
		if err != nil {
			return fmt.Errorf("failed to create SSE MCP client: %w", err)
		}
		// the SSE stream outlives the connect context
		if err := mcpClient.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start SSE MCP client: %w", err)
		}
	case ProtocolStreamableHTTP:
		mcpClient, err = client.NewStreamableHttpClient(c.config.URL, transport.WithHTTPHeaders(c.config.Headers))
		if err != nil {
			return fmt.Errorf("failed to create HTTP MCP client: %w", err)
		}
		if err := mcpClient.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP MCP client: %w", err)
		}
	default:
		env := make([]string, 0, len(c.config.Env))
		for k, v := range c.config.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		mcpClient, err = client.NewStdioMCPClient(c.config.Command, env, c.config.Args...)
		if err != nil {
			return fmt.Errorf("failed to create stdio MCP client: %w", err)
		}
	}

	info, err := initialize(ctx, mcpClient)
	if err != nil {
		_ = mcpClient.Close()
		return err
	}

	c.mu.Lock()
	c.mcpClient = mcpClient
	c.serverInfo = info
	c.mu.Unlock()
	return nil
}

func initialize(ctx context.Context, mcpClient *client.Client) (*mcp.Implementation, error) {
	result, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      mcp.Implementation{Name: clientName, Version: clientVersion},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MCP connection: %w", err)
	}
	return &result.ServerInfo, nil
}

func (c *Client) conn() (*client.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mcpClient == nil {
		return nil, fmt.Errorf("client not connected")
	}
	return c.mcpClient, nil
}

func (c *Client) GetServerInfo() *mcp.Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	mc, err := c.conn()
	if err != nil {
		return nil, err
	}
	result, err := mc.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	mc, err := c.conn()
	if err != nil {
		return nil, err
	}
	result, err := mc.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: arguments},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", name, err)
	}
	return result, nil
}

// Capabilities lists the server's tools as a catalog, skipping disabled ones.
// Each capability calls back into this client.
func (c *Client) Capabilities(ctx context.Context) (*capability.Catalog, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	catalog := capability.NewCatalog()
	for _, tool := range tools {
		if c.config.IsToolDisabled(tool.Name) {
			c.logger.Debugf("🚫 Skipping disabled tool %s on server %s", tool.Name, c.name)
			continue
		}
		toolName := tool.Name
		catalog.Add(capability.Capability{
			Name:        toolName,
			Description: tool.Description,
			Parameters:  ToolParameters(tool),
			Source:      c.name,
			Invoke: func(ctx context.Context, args map[string]interface{}) (string, error) {
				result, err := c.CallTool(ctx, toolName, args)
				if err != nil {
					return "", err
				}
				return ToolResultAsString(result)
			},
		})
	}
	return catalog, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mcpClient == nil {
		return nil
	}
	err := c.mcpClient.Close()
	c.mcpClient = nil
	return err
}
