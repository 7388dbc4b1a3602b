// Package grok implements modeladapter.Provider for xAI's Grok models using
// the OpenAI-compatible chat completions API with server-sent events.
package grok

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// DefaultBaseURL is the base URL for the xAI API.
const DefaultBaseURL = "https://api.x.ai/v1"

var _ modeladapter.Provider = (*GrokAdapter)(nil)

// GrokAdapter streams chat completions from xAI's Grok API.
type GrokAdapter struct {
	modeladapter.ModelAdapter

	BufferSize int
}

// New creates a GrokAdapter with the given API key and HTTP client.
// A nil client falls back to a default client.
func New(apiKey string, client *http.Client) *GrokAdapter {
	return &GrokAdapter{
		ModelAdapter: modeladapter.New(DefaultBaseURL, modeladapter.Auth{Key: apiKey}, client),
	}
}

// Submit sends the prompt to the chat completions endpoint and returns the
// streamed reply.
func (g *GrokAdapter) Submit(ctx context.Context, req modeladapter.Request) (modeladapter.Response, error) {
	resp, err := g.PostStream(ctx, "/chat/completions", g.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("grok: %w", err)
	}

	out, err := modeladapter.Demux(ctx, req, newEventReader(resp.Body).next, func() { _ = resp.Body.Close() }, g.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("grok: %w", err)
	}

	return out, nil
}

func (g *GrokAdapter) buildRequest(req modeladapter.Request) chatRequest {
	cr := chatRequest{
		Model:       g.Name,
		Messages:    []apiMessage{{Role: "user", Content: req.Prompt}},
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
		Stream:      true,
	}

	if len(req.Tools) == 0 {
		return cr
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, MarshalToolDef(t))
	}

	switch req.Choice.Mode {
	case modeladapter.ChoiceForce:
		cr.ToolChoice = forcedChoice{Type: "function", Function: forcedFunction{Name: req.Choice.Tool}}
	case modeladapter.ChoiceNone:
		cr.ToolChoice = "none"
	default:
		cr.ToolChoice = "auto"
	}

	return cr
}

// MarshalToolDef converts a tool into the API tool format used in the chat
// request.
func MarshalToolDef(t toolbox.Tool) apiTool {
	return apiTool{
		Type: "function",
		Function: apiToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema(),
		},
	}
}

// eventReader decodes "data:" lines of an SSE body into chunks.
type eventReader struct {
	scanner *bufio.Scanner
	pending []modeladapter.Chunk
}

func newEventReader(r io.Reader) *eventReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &eventReader{scanner: s}
}

func (e *eventReader) next() (modeladapter.Chunk, error) {
	for len(e.pending) == 0 {
		if !e.scanner.Scan() {
			if err := e.scanner.Err(); err != nil {
				return modeladapter.Chunk{}, err
			}
			return modeladapter.Chunk{}, io.EOF
		}

		line := strings.TrimSpace(e.scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}

		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return modeladapter.Chunk{}, io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return modeladapter.Chunk{}, fmt.Errorf("decode event: %w", err)
		}

		e.pending = chunk.chunks()
	}

	c := e.pending[0]
	e.pending = e.pending[1:]
	return c, nil
}

// API request/response types.

type chatRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Stream      bool         `json:"stream"`
	Tools       []apiTool    `json:"tools,omitempty"`
	ToolChoice  any          `json:"tool_choice,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type forcedChoice struct {
	Type     string         `json:"type"`
	Function forcedFunction `json:"function"`
}

type forcedFunction struct {
	Name string `json:"name"`
}

type apiTool struct {
	Type     string     `json:"type"`
	Function apiToolDef `json:"function"`
}

type apiToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []deltaToolCall `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

type deltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func (s streamChunk) chunks() []modeladapter.Chunk {
	var out []modeladapter.Chunk

	for _, c := range s.Choices {
		for _, tc := range c.Delta.ToolCalls {
			out = append(out, modeladapter.Chunk{Tool: &modeladapter.ToolDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}})
		}
		if c.Delta.Content != "" {
			out = append(out, modeladapter.Chunk{Text: c.Delta.Content})
		}
	}

	return out
}
