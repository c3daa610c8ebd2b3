package mcpclient

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Protocol string

const (
	ProtocolStdio          Protocol = "stdio"
	ProtocolSSE            Protocol = "sse"
	ProtocolStreamableHTTP Protocol = "streamable_http"
)

// ServerConfig describes one MCP server.
type ServerConfig struct {
	Description string            `yaml:"description" json:"description,omitempty"`
	Transport   Protocol          `yaml:"transport" json:"transport,omitempty"`
	URL         string            `yaml:"url" json:"url,omitempty"`
	Command     string            `yaml:"command" json:"command,omitempty"`
	Args        []string          `yaml:"args" json:"args,omitempty"`
	Env         map[string]string `yaml:"env" json:"env,omitempty"`
	Headers     map[string]string `yaml:"headers" json:"headers,omitempty"`
	// DisabledTools are listed by the server but never offered to a model.
	DisabledTools []string `yaml:"disabled_tools" json:"disabled_tools,omitempty"`
	Disabled      bool     `yaml:"disabled" json:"disabled,omitempty"`
}

// GetProtocol returns the configured transport, or infers one: a URL ending
// in /sse means SSE, any other URL streamable HTTP, no URL stdio.
func (s ServerConfig) GetProtocol() Protocol {
	if s.Transport != "" {
		return s.Transport
	}
	if s.URL == "" {
		return ProtocolStdio
	}
	if strings.HasSuffix(strings.TrimRight(s.URL, "/"), "/sse") {
		return ProtocolSSE
	}
	return ProtocolStreamableHTTP
}

// IsToolDisabled reports whether name is in DisabledTools.
func (s ServerConfig) IsToolDisabled(name string) bool {
	for _, d := range s.DisabledTools {
		if d == name {
			return true
		}
	}
	return false
}

// WorkerList accepts either a single worker name or a list in YAML.
type WorkerList []string

func (w *WorkerList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*w = WorkerList{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*w = list
		return nil
	default:
		return fmt.Errorf("worker mapping must be a name or a list of names")
	}
}

// Config is the MCP section of the application config file.
type Config struct {
	Servers map[string]ServerConfig `yaml:"mcpServers" json:"mcpServers"`
	// WorkerMapping binds every tool of a server to one or more workers.
	WorkerMapping map[string]WorkerList `yaml:"workerMapping" json:"workerMapping,omitempty"`
}

// LoadConfig reads a YAML (or JSON) config file, expanding ${ENV} references.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MCP config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse MCP config: %w", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]ServerConfig{}
	}
	for name, srv := range cfg.Servers {
		if srv.URL == "" && srv.Command == "" {
			return nil, fmt.Errorf("MCP server %q needs either url or command", name)
		}
	}
	return &cfg, nil
}

// ListServers returns the enabled server names, sorted.
func (c *Config) ListServers() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Servers))
	for name, srv := range c.Servers {
		if !srv.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Config) GetServer(name string) (ServerConfig, error) {
	if c == nil {
		return ServerConfig{}, fmt.Errorf("server %s not found in config", name)
	}
	srv, ok := c.Servers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("server %s not found in config", name)
	}
	return srv, nil
}
