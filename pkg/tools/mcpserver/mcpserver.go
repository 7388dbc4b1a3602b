// Package mcpserver exposes a toolbox, and optionally the project archive,
// over the Model Context Protocol using the official MCP Go SDK.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/germanamz/silk/pkg/archive"
	"github.com/germanamz/silk/pkg/chats/content"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// ArchiveURI is the resource URI under which the project archive is served.
const ArchiveURI = "silk://project/archive.zip"

// MCPServer serves tools over the MCP protocol.
type MCPServer struct {
	server *mcp.Server
	log    *slog.Logger
}

// New creates a new MCPServer with the given name and version. A nil logger
// falls back to slog.Default().
func New(name, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	return &MCPServer{server: server, log: logger}
}

// RegisterToolBox adds every tool in tb. Calls go through tb.Call so
// arguments are validated against each tool's schema.
func (s *MCPServer) RegisterToolBox(tb *toolbox.ToolBox) {
	for _, t := range tb.Tools() {
		s.server.AddTool(toSDKTool(t), s.toSDKHandler(tb, t.Name))
	}
}

// RegisterArchive serves b's archive as a binary resource at ArchiveURI.
func (s *MCPServer) RegisterArchive(b *archive.Builder) {
	s.server.AddResource(&mcp.Resource{
		URI:         ArchiveURI,
		Name:        b.Name(),
		Description: "Zip archive of the project source files.",
		MIMEType:    archive.MIMEType,
	}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		res, err := b.Archive(ctx, "mcp resource read")
		if err != nil {
			return nil, err
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      ArchiveURI,
				MIMEType: res.FileType,
				Blob:     res.Data,
			}},
		}, nil
	})
}

// Serve starts serving MCP requests. It reads requests from in and writes
// responses to out. It blocks until ctx is cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

// run starts the server with the given transport. Exported via Serve for
// production use; called directly by tests with InMemoryTransport.
func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.Schema(),
	}
}

// toSDKHandler routes an MCP tool call through the toolbox. Tool failures are
// reported to the client as error results, not protocol errors.
func (s *MCPServer) toSDKHandler(tb *toolbox.ToolBox, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}

		res := tb.Call(ctx, content.ToolCall{Name: name, Arguments: string(args)})
		if res.IsError {
			s.log.WarnContext(ctx, "mcp tool call failed", slog.String("tool", name), slog.String("error", res.Content))
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Content}},
			IsError: res.IsError,
		}, nil
	}
}

// nopWriteCloser wraps an io.Writer as an io.WriteCloser with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
