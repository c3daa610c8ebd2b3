package mcpclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/pkg/capability"
	"trip-agent/pkg/logger"
)

func newTrainServer() *server.MCPServer {
	s := server.NewMCPServer("12306-test", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(
		mcp.NewTool("get_tickets",
			mcp.WithDescription("Query train tickets"),
			mcp.WithString("from", mcp.Required()),
			mcp.WithString("to", mcp.Required()),
			mcp.WithArray("classes"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("G101 " + req.GetString("from", "") + "->" + req.GetString("to", "")), nil
		},
	)
	s.AddTool(
		mcp.NewTool("sold_out", mcp.WithDescription("Always fails")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("no seats left"), nil
		},
	)
	s.AddTool(
		mcp.NewTool("happiness_index", mcp.WithDescription("Disabled in config")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("0.9"), nil
		},
	)
	return s
}

func TestInProcessClient_Capabilities(t *testing.T) {
	ctx := context.Background()
	c, err := ConnectInProcess(ctx, "12306-mcp", newTrainServer(), logger.CreateTestLogger())
	require.NoError(t, err)
	defer c.Close()
	c.config.DisabledTools = []string{"happiness_index"}

	catalog, err := c.Capabilities(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"get_tickets", "sold_out"}, catalog.Names())

	tickets, ok := catalog.Get("get_tickets")
	require.True(t, ok)
	assert.Equal(t, "12306-mcp", tickets.Source)
	props := tickets.Parameters["properties"].(map[string]interface{})
	classes := props["classes"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"type": "string"}, classes["items"])

	out, err := tickets.Invoke(ctx, map[string]interface{}{"from": "Beijing", "to": "Shanghai"})
	require.NoError(t, err)
	assert.Equal(t, "G101 Beijing->Shanghai", out)

	soldOut, _ := catalog.Get("sold_out")
	_, err = soldOut.Invoke(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no seats left")
}

func TestInProcessClient_ThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	c, err := ConnectInProcess(ctx, "12306-mcp", newTrainServer(), logger.CreateTestLogger())
	require.NoError(t, err)
	defer c.Close()
	catalog, err := c.Capabilities(ctx)
	require.NoError(t, err)

	d := capability.NewDispatcher(logger.CreateTestLogger())
	results := d.ExecuteCalls(ctx, []capability.Call{
		{ID: "1", Name: "get_tickets", Args: `{"from":"A","to":"B"}`},
		{ID: "2", Name: "sold_out"},
	}, catalog)

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Content, capability.FailurePrefix)
}

func TestManager_AddClient(t *testing.T) {
	ctx := context.Background()
	m := NewManager(logger.CreateTestLogger())
	defer m.Close()

	c, err := ConnectInProcess(ctx, "12306-mcp", newTrainServer(), logger.CreateTestLogger())
	require.NoError(t, err)
	require.NoError(t, m.AddClient(ctx, c))

	assert.Equal(t, []string{"12306-mcp"}, m.Servers())
	assert.Equal(t, 3, m.CatalogsByServer()["12306-mcp"].Len())

	require.NoError(t, m.Initialize(ctx, &Config{}, 0))
}

func TestLocalFileServer(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	c, err := ConnectInProcess(ctx, LocalFilesServer, NewLocalFileServer(root), logger.CreateTestLogger())
	require.NoError(t, err)
	defer c.Close()
	catalog, err := c.Capabilities(ctx)
	require.NoError(t, err)

	write, _ := catalog.Get("write_file")
	_, err = write.Invoke(ctx, map[string]interface{}{"file_path": "plans/day1.md", "content": "Forbidden City"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "plans", "day1.md"))
	require.NoError(t, err)
	assert.Equal(t, "Forbidden City", string(data))

	read, _ := catalog.Get("read_file")
	out, err := read.Invoke(ctx, map[string]interface{}{"file_path": "../../plans/day1.md"})
	require.NoError(t, err, "escaping paths are clamped to the workspace")
	assert.Equal(t, "Forbidden City", out)

	list, _ := catalog.Get("list_files")
	out, err = list.Invoke(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("plans", "day1.md"), out)
}
