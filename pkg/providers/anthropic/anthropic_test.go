package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/providers/anthropic"
	"github.com/germanamz/silk/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var archiveTool = toolbox.Tool{
	Name:        "getAllProjectFiles",
	Description: "Get all the source code files for the entire project as a single file.",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"reason":{"type":"string"}},"required":["reason"]}`),
}

const messageStart = `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":1}}}`

type sseEvent struct {
	name string
	data string
}

func newTestServer(t *testing.T, check func(body map[string]any), events ...sseEvent) *anthropic.Adapter {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		if check != nil {
			check(body)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
		}
	}))
	t.Cleanup(srv.Close)

	return anthropic.New(anthropic.Options{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "claude-sonnet-4-5",
		HTTPClient: srv.Client(),
	})
}

func TestSubmit_StreamsText(t *testing.T) {
	a := newTestServer(t,
		func(body map[string]any) {
			assert.Equal(t, true, body["stream"])
			assert.Equal(t, "claude-sonnet-4-5", body["model"])
			assert.Equal(t, "auto", body["tool_choice"].(map[string]any)["type"])
		},
		sseEvent{"message_start", messageStart},
		sseEvent{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":", world"}}`},
		sseEvent{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		sseEvent{"message_stop", `{"type":"message_stop"}`},
	)

	resp, err := a.Submit(context.Background(), modeladapter.Request{
		Prompt: "user: hello",
		Tools:  []toolbox.Tool{archiveTool},
		Choice: modeladapter.Auto(),
	})
	require.NoError(t, err)

	got, err := resp.(modeladapter.Text).Stream.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", got)
}

func TestSubmit_ForcedToolUse(t *testing.T) {
	a := newTestServer(t,
		func(body map[string]any) {
			choice := body["tool_choice"].(map[string]any)
			assert.Equal(t, "tool", choice["type"])
			assert.Equal(t, "getAllProjectFiles", choice["name"])

			tools := body["tools"].([]any)
			require.Len(t, tools, 1)
			schema := tools[0].(map[string]any)["input_schema"].(map[string]any)
			assert.Equal(t, []any{"reason"}, schema["required"])
		},
		sseEvent{"message_start", messageStart},
		sseEvent{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"getAllProjectFiles","input":{}}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"reason\": "}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"download\"}"}}`},
		sseEvent{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		sseEvent{"message_stop", `{"type":"message_stop"}`},
	)

	resp, err := a.Submit(context.Background(), modeladapter.Request{
		Prompt: "user: download the code",
		Tools:  []toolbox.Tool{archiveTool},
		Choice: modeladapter.Force("getAllProjectFiles"),
	})
	require.NoError(t, err)

	call, ok := resp.(modeladapter.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "toolu_1", call.Call.ID)
	assert.Equal(t, "getAllProjectFiles", call.Call.Name)
	assert.JSONEq(t, `{"reason":"download"}`, call.Call.Arguments)
}

func TestSubmit_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	t.Cleanup(srv.Close)

	a := anthropic.New(anthropic.Options{BaseURL: srv.URL, APIKey: "k", Model: "m", HTTPClient: srv.Client()})

	_, err := a.Submit(context.Background(), modeladapter.Request{Prompt: "x"})

	var rle *modeladapter.RateLimitError
	require.ErrorAs(t, err, &rle)
}

func TestSubmit_InvalidToolSchema(t *testing.T) {
	a := anthropic.New(anthropic.Options{APIKey: "k", Model: "m"})

	_, err := a.Submit(context.Background(), modeladapter.Request{
		Prompt: "x",
		Tools:  []toolbox.Tool{{Name: "bad", InputSchema: json.RawMessage(`[`)}},
	})
	assert.ErrorContains(t, err, "decode schema")
}
