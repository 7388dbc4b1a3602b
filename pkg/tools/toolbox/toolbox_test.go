package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/germanamz/silk/pkg/chats/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reasonSchema = `{"type":"object","properties":{"reason":{"type":"string"}},"required":["reason"]}`

func echoHandler(_ context.Context, input json.RawMessage) (string, error) {
	return string(input), nil
}

func errorHandler(_ context.Context, _ json.RawMessage) (string, error) {
	return "", errors.New("tool failed")
}

func newEchoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "Echoes input",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     echoHandler,
	}
}

func TestNew(t *testing.T) {
	tb := New()
	assert.NotNil(t, tb)
	assert.Empty(t, tb.Tools())
}

func TestRegisterAndGet(t *testing.T) {
	tb := New()
	tb.Register(newEchoTool("echo"))

	got, ok := tb.Get("echo")
	assert.True(t, ok)
	assert.Equal(t, "echo", got.Name)

	_, ok = tb.Get("missing")
	assert.False(t, ok)
}

func TestRegisterReplace(t *testing.T) {
	tb := New()
	tb.Register(Tool{Name: "tool", Description: "original", Handler: echoHandler})
	tb.Register(Tool{Name: "tool", Description: "replaced", Handler: echoHandler})

	got, ok := tb.Get("tool")
	require.True(t, ok)
	assert.Equal(t, "replaced", got.Description)
	assert.Len(t, tb.Tools(), 1)
}

func TestTools_SortedByName(t *testing.T) {
	tb := New()
	tb.Register(newEchoTool("c"), newEchoTool("a"), newEchoTool("b"))

	var names []string
	for _, tool := range tb.Tools() {
		names = append(names, tool.Name)
	}

	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestCallSuccess(t *testing.T) {
	tb := New()
	tb.Register(newEchoTool("echo"))

	result := tb.Call(context.Background(), content.ToolCall{
		ID:        "call-1",
		Name:      "echo",
		Arguments: `{"msg":"hi"}`,
	})

	assert.Equal(t, "call-1", result.ToolCallID)
	assert.JSONEq(t, `{"msg":"hi"}`, result.Content)
	assert.False(t, result.IsError)
}

func TestCall_EmptyArgumentsBecomeObject(t *testing.T) {
	tb := New()
	tb.Register(newEchoTool("echo"))

	result := tb.Call(context.Background(), content.ToolCall{ID: "1", Name: "echo"})

	assert.False(t, result.IsError)
	assert.JSONEq(t, `{}`, result.Content)
}

func TestCallNotFound(t *testing.T) {
	tb := New()

	result := tb.Call(context.Background(), content.ToolCall{ID: "call-2", Name: "missing"})

	assert.Equal(t, "call-2", result.ToolCallID)
	assert.Contains(t, result.Content, "tool not found: missing")
	assert.True(t, result.IsError)
}

func TestCallHandlerError(t *testing.T) {
	tb := New()
	tb.Register(Tool{Name: "fail", Handler: errorHandler})

	result := tb.Call(context.Background(), content.ToolCall{ID: "call-3", Name: "fail"})

	assert.Equal(t, "call-3", result.ToolCallID)
	assert.Equal(t, "tool failed", result.Content)
	assert.True(t, result.IsError)
}

func TestInvoke_Errors(t *testing.T) {
	tb := New()
	tb.Register(Tool{
		Name:        "getAllProjectFiles",
		InputSchema: json.RawMessage(reasonSchema),
		Handler:     echoHandler,
	})

	_, err := tb.Invoke(context.Background(), content.ToolCall{Name: "nope"})
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = tb.Invoke(context.Background(), content.ToolCall{
		Name:      "getAllProjectFiles",
		Arguments: `{"reason":42}`,
	})
	assert.ErrorIs(t, err, ErrInvalidArguments)

	out, err := tb.Invoke(context.Background(), content.ToolCall{
		Name:      "getAllProjectFiles",
		Arguments: `{"reason":"user asked"}`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"reason":"user asked"}`, out)
}

func TestValidateArguments(t *testing.T) {
	schema := json.RawMessage(reasonSchema)

	assert.NoError(t, ValidateArguments(schema, json.RawMessage(`{"reason":"x"}`)))

	err := ValidateArguments(schema, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.Contains(t, err.Error(), "reason")

	err = ValidateArguments(schema, json.RawMessage(`not json`))
	assert.ErrorIs(t, err, ErrInvalidArguments)
}
