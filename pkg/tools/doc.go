// Package tools holds the tool layer offered to models and MCP clients.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/silk/pkg/tools/toolbox]: Tool type and ToolBox registry with JSON Schema argument validation
//   - [github.com/germanamz/silk/pkg/tools/mcpserver]: MCP server using the official MCP Go SDK for exposing a toolbox and the project archive
package tools
