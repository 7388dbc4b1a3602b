package mcpserver

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/silk/pkg/archive"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

func echoHandler(_ context.Context, input json.RawMessage) (string, error) {
	return string(input), nil
}

func errorHandler(_ context.Context, _ json.RawMessage) (string, error) {
	return "", errors.New("tool failed")
}

func newTestTool(name string) toolbox.Tool {
	return toolbox.Tool{
		Name:        name,
		Description: "Test tool: " + name,
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     echoHandler,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProject(t *testing.T) *archive.Builder {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# demo\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module demo\n"), 0o600))

	return archive.New(archive.Options{
		Root:     root,
		Manifest: archive.Manifest{Files: []string{"README.md", "go.mod"}},
		Logger:   quietLogger(),
	})
}

// setupTestClient creates an MCPServer, connects an SDK client via in-memory
// transports, and returns the client session. The server runs in a background
// goroutine tied to t.Cleanup.
func setupTestClient(t *testing.T, setup func(*MCPServer)) *mcp.ClientSession {
	t.Helper()

	s := New("test-server", "1.0.0", quietLogger())
	setup(s)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- s.run(ctx, serverTransport)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func withTools(tools ...toolbox.Tool) func(*MCPServer) {
	return func(s *MCPServer) {
		tb := toolbox.New()
		tb.Register(tools...)
		s.RegisterToolBox(tb)
	}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)

	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListTools(t *testing.T) {
	session := setupTestClient(t, withTools(
		newTestTool("echo"),
		newProject(t).Tool(),
	))

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Tools, 2)

	toolsByName := make(map[string]*mcp.Tool, len(result.Tools))
	for _, tool := range result.Tools {
		toolsByName[tool.Name] = tool
	}

	echo, ok := toolsByName["echo"]
	require.True(t, ok)
	assert.Equal(t, "Test tool: echo", echo.Description)

	_, ok = toolsByName[archive.ToolName]
	assert.True(t, ok)
}

func TestToolCallSuccess(t *testing.T) {
	session := setupTestClient(t, withTools(newTestTool("echo")))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"msg": "hello"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"msg":"hello"}`, textOf(t, result))
}

func TestToolCallArchive(t *testing.T) {
	session := setupTestClient(t, withTools(newProject(t).Tool()))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      archive.ToolName,
		Arguments: map[string]any{"reason": "backup"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var res archive.Result
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &res))
	assert.Equal(t, archive.MIMEType, res.FileType)
	assert.Equal(t, archive.DefaultName, res.Filename)
	assert.NotEmpty(t, res.FileDataBase64)
}

func TestToolCallInvalidArguments(t *testing.T) {
	session := setupTestClient(t, withTools(newProject(t).Tool()))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      archive.ToolName,
		Arguments: map[string]any{"reason": 42},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "invalid arguments")
}

func TestToolCallHandlerError(t *testing.T) {
	session := setupTestClient(t, withTools(toolbox.Tool{
		Name:        "fail",
		Description: "Always fails",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     errorHandler,
	}))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "fail",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "tool failed", textOf(t, result))
}

func TestToolCallNotFound(t *testing.T) {
	session := setupTestClient(t, withTools())

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "missing",
		Arguments: map[string]any{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestReadArchiveResource(t *testing.T) {
	b := newProject(t)
	session := setupTestClient(t, func(s *MCPServer) { s.RegisterArchive(b) })

	result, err := session.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: ArchiveURI})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)

	rc := result.Contents[0]
	assert.Equal(t, archive.MIMEType, rc.MIMEType)

	zr, err := zip.NewReader(bytes.NewReader(rc.Blob), int64(len(rc.Blob)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"README.md", "go.mod"}, names)

}

func TestContextCancellation(t *testing.T) {
	s := New("srv", "1.0.0", nil)
	serverTransport, _ := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.run(ctx, serverTransport)
	assert.ErrorIs(t, err, context.Canceled)
}
