// Package toolbox holds the tools offered to model providers and executes the
// calls they request, validating arguments against each tool's JSON Schema.
package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/germanamz/silk/pkg/chats/content"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrToolNotFound is returned when a call names an unregistered tool.
	ErrToolNotFound = errors.New("toolbox: tool not found")
	// ErrInvalidArguments is returned when call arguments fail schema validation.
	ErrInvalidArguments = errors.New("toolbox: invalid arguments")
)

// ToolBox orchestrates a collection of tools. It allows registering, retrieving,
// listing, and calling tools. A ToolBox is read-only after setup and safe to
// share between requests once registration is done.
type ToolBox struct {
	tools map[string]Tool
}

// New creates a new ToolBox ready for use.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]Tool),
	}
}

// Register adds one or more tools to the ToolBox. If a tool with the same name
// already exists, it is replaced.
func (tb *ToolBox) Register(tools ...Tool) {
	for _, t := range tools {
		tb.tools[t.Name] = t
	}
}

// Get returns a tool by name and a boolean indicating whether it was found.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	t, ok := tb.tools[name]
	return t, ok
}

// Tools returns all registered tools sorted by name.
func (tb *ToolBox) Tools() []Tool {
	result := make([]Tool, 0, len(tb.tools))
	for _, t := range tb.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Invoke validates the call's arguments and runs the named tool's handler.
func (tb *ToolBox) Invoke(ctx context.Context, tc content.ToolCall) (string, error) {
	t, ok := tb.tools[tc.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, tc.Name)
	}

	args := json.RawMessage(tc.ArgumentsOrEmpty())
	if err := ValidateArguments(t.Schema(), args); err != nil {
		return "", fmt.Errorf("%s: %w", t.Name, err)
	}

	return t.Handler(ctx, args)
}

// Call executes a tool call and returns a ToolResult. If the tool is not found,
// the arguments are invalid, or the handler fails, IsError is set.
func (tb *ToolBox) Call(ctx context.Context, tc content.ToolCall) content.ToolResult {
	result, err := tb.Invoke(ctx, tc)
	if err != nil {
		return content.ToolResult{
			ToolCallID: tc.ID,
			Content:    err.Error(),
			IsError:    true,
		}
	}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Content:    result,
	}
}

// ValidateArguments checks args against a JSON Schema document.
func ValidateArguments(schema, args json.RawMessage) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(args),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
}
