package mcpclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"trip-agent/internal/utils"
)

// LocalFilesServer is the name the in-process file tools register under.
const LocalFilesServer = "local-files"

// NewLocalFileServer serves read_file, write_file and list_files confined to
// root. It backs the file worker when no external server provides one.
func NewLocalFileServer(root string) *server.MCPServer {
	s := server.NewMCPServer(LocalFilesServer, clientVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("read_file",
			mcp.WithDescription("Read a text file from the trip workspace"),
			mcp.WithString("file_path", mcp.Required(), mcp.Description("Path relative to the workspace")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			path, err := confine(root, req.GetString("file_path", ""))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("file not readable: %v", err)), nil
			}
			return mcp.NewToolResultText(string(data)), nil
		},
	)

	s.AddTool(
		mcp.NewTool("write_file",
			mcp.WithDescription("Write a text file into the trip workspace"),
			mcp.WithString("file_path", mcp.Required(), mcp.Description("Path relative to the workspace")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Full file content")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			path, err := confine(root, req.GetString("file_path", ""))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := os.WriteFile(path, []byte(req.GetString("content", "")), 0o644); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rel, _ := filepath.Rel(root, path)
			return mcp.NewToolResultText("wrote " + rel), nil
		},
	)

	s.AddTool(
		mcp.NewTool("list_files",
			mcp.WithDescription("List files in the trip workspace"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var files []string
			err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					rel, _ := filepath.Rel(root, p)
					files = append(files, rel)
				}
				return nil
			})
			if err != nil && !os.IsNotExist(err) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			sort.Strings(files)
			if len(files) == 0 {
				return mcp.NewToolResultText("(workspace is empty)"), nil
			}
			return mcp.NewToolResultText(strings.Join(files, "\n")), nil
		},
	)

	return s
}

// confine resolves rel inside root and rejects anything escaping it.
func confine(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("file_path is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	path := filepath.Join(absRoot, filepath.Clean("/"+rel))
	if path != absRoot && !strings.HasPrefix(path, absRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return path, nil
}

// ConnectInProcess connects to an MCP server living in this process.
func ConnectInProcess(ctx context.Context, name string, srv *server.MCPServer, logger utils.ExtendedLogger) (*Client, error) {
	mc, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process client for %s: %w", name, err)
	}
	if err := mc.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start in-process client for %s: %w", name, err)
	}
	info, err := initialize(ctx, mc)
	if err != nil {
		_ = mc.Close()
		return nil, err
	}
	c := newFromMCP(name, mc, logger)
	c.serverInfo = info
	return c, nil
}
