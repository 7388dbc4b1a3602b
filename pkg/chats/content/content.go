// Package content defines the tool calls and results exchanged with model
// providers.
package content

// ToolCall represents a model's request to invoke a tool.
// Arguments holds the raw JSON string as emitted by the provider.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ArgumentsOrEmpty returns the call arguments, substituting an empty JSON
// object when the provider sent none.
func (tc ToolCall) ArgumentsOrEmpty() string {
	if tc.Arguments == "" {
		return "{}"
	}
	return tc.Arguments
}

// ToolResult holds the output of a tool invocation. IsError marks Content as
// an error message rather than tool output.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}
