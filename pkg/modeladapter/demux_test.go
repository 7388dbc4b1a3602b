package modeladapter_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted returns a NextFunc replaying chunks then ending with final.
func scripted(final error, chunks ...modeladapter.Chunk) modeladapter.NextFunc {
	i := 0
	return func() (modeladapter.Chunk, error) {
		if i >= len(chunks) {
			return modeladapter.Chunk{}, final
		}
		c := chunks[i]
		i++
		return c, nil
	}
}

var (
	textOnly = modeladapter.Request{Prompt: "hi"}
	withTool = modeladapter.Request{
		Prompt: "hi",
		Tools:  []toolbox.Tool{{Name: "getAllProjectFiles"}},
		Choice: modeladapter.Auto(),
	}
)

func TestDemux_Text(t *testing.T) {
	var released atomic.Int32
	next := scripted(io.EOF,
		modeladapter.Chunk{},
		modeladapter.Chunk{Text: "Hel"},
		modeladapter.Chunk{Text: "lo"},
		modeladapter.Chunk{},
		modeladapter.Chunk{Text: " world"},
	)

	resp, err := modeladapter.Demux(context.Background(), textOnly, next, func() { released.Add(1) }, 1)
	require.NoError(t, err)

	text, ok := resp.(modeladapter.Text)
	require.True(t, ok)

	got, err := text.Stream.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)
	assert.Equal(t, int32(1), released.Load())
}

func TestDemux_ToolCallAccumulates(t *testing.T) {
	var released atomic.Int32
	next := scripted(io.EOF,
		modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Index: 0, ID: "call_1", Name: "getAllProjectFiles"}},
		modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Index: 0, Arguments: `{"rea`}},
		modeladapter.Chunk{Text: "ignored"},
		modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Index: 0, Arguments: `son":"dl"}`}},
	)

	resp, err := modeladapter.Demux(context.Background(), withTool, next, func() { released.Add(1) }, 4)
	require.NoError(t, err)

	call, ok := resp.(modeladapter.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call_1", call.Call.ID)
	assert.Equal(t, "getAllProjectFiles", call.Call.Name)
	assert.JSONEq(t, `{"reason":"dl"}`, call.Call.Arguments)
	assert.Equal(t, int32(1), released.Load())
}

func TestDemux_FirstToolCallByIndex(t *testing.T) {
	next := scripted(io.EOF,
		modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Index: 1, Name: "second"}},
		modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Index: 0, Name: "first"}},
	)

	resp, err := modeladapter.Demux(context.Background(), withTool, next, func() {}, 4)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.(modeladapter.ToolCall).Call.Name)
}

func TestDemux_ToolCallWithoutName(t *testing.T) {
	next := scripted(io.EOF, modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Arguments: "{}"}})

	_, err := modeladapter.Demux(context.Background(), withTool, next, func() {}, 4)
	assert.ErrorIs(t, err, modeladapter.ErrEmptyResponse)
}

func TestDemux_EmptyStream(t *testing.T) {
	resp, err := modeladapter.Demux(context.Background(), textOnly, scripted(io.EOF), func() {}, 4)
	require.NoError(t, err)

	got, err := resp.(modeladapter.Text).Stream.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDemux_ErrorBeforeFirstChunk(t *testing.T) {
	var released atomic.Int32
	boom := errors.New("boom")

	_, err := modeladapter.Demux(context.Background(), textOnly, scripted(boom), func() { released.Add(1) }, 4)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), released.Load())
}

func TestDemux_MidStreamErrorReachesConsumer(t *testing.T) {
	boom := errors.New("connection reset")
	next := scripted(boom, modeladapter.Chunk{Text: "partial"})

	resp, err := modeladapter.Demux(context.Background(), textOnly, next, func() {}, 4)
	require.NoError(t, err)

	got, err := resp.(modeladapter.Text).Stream.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", got)
}

func TestDemux_ToolCallAfterTextWins(t *testing.T) {
	var released atomic.Int32
	next := scripted(io.EOF,
		modeladapter.Chunk{Text: "I'll fetch the project files for you."},
		modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Index: 1, ID: "toolu_1", Name: "getAllProjectFiles"}},
		modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Index: 1, Arguments: `{"reason":"user asked"}`}},
	)

	resp, err := modeladapter.Demux(context.Background(), withTool, next, func() { released.Add(1) }, 4)
	require.NoError(t, err)

	call, ok := resp.(modeladapter.ToolCall)
	require.True(t, ok, "expected tool call, got %T", resp)
	assert.Equal(t, "getAllProjectFiles", call.Call.Name)
	assert.JSONEq(t, `{"reason":"user asked"}`, call.Call.Arguments)
	assert.Equal(t, int32(1), released.Load())
}

func TestDemux_BufferedTextWhenToolsOffered(t *testing.T) {
	var released atomic.Int32
	next := scripted(io.EOF,
		modeladapter.Chunk{Text: "Hel"},
		modeladapter.Chunk{},
		modeladapter.Chunk{Text: "lo"},
	)

	resp, err := modeladapter.Demux(context.Background(), withTool, next, func() { released.Add(1) }, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), released.Load())

	got, err := resp.(modeladapter.Text).Stream.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
}

func TestDemux_BufferedTextErrorIsFatal(t *testing.T) {
	boom := errors.New("connection reset")
	next := scripted(boom, modeladapter.Chunk{Text: "partial"})

	_, err := modeladapter.Demux(context.Background(), withTool, next, func() {}, 4)
	assert.ErrorIs(t, err, boom)
}

func TestDemux_LateToolCallOnTextOnlyRequest(t *testing.T) {
	req := withTool
	req.Choice = modeladapter.None()

	next := scripted(io.EOF,
		modeladapter.Chunk{Text: "Sure."},
		modeladapter.Chunk{Tool: &modeladapter.ToolDelta{Name: "getAllProjectFiles"}},
		modeladapter.Chunk{Text: " ignored"},
	)

	resp, err := modeladapter.Demux(context.Background(), req, next, func() {}, 4)
	require.NoError(t, err)

	got, err := resp.(modeladapter.Text).Stream.Collect(context.Background())
	assert.ErrorIs(t, err, modeladapter.ErrLateToolCall)
	assert.Contains(t, err.Error(), "getAllProjectFiles")
	assert.Equal(t, "Sure.", got)
}

func TestRequest_TextOnly(t *testing.T) {
	assert.True(t, textOnly.TextOnly())
	assert.False(t, withTool.TextOnly())

	none := withTool
	none.Choice = modeladapter.None()
	assert.True(t, none.TextOnly())
}
