// Package ollama implements modeladapter.Provider for a local or remote
// Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// DefaultHost is used when no host is configured.
const DefaultHost = "http://localhost:11434"

var _ modeladapter.Provider = (*Adapter)(nil)

// Options configures an Adapter.
type Options struct {
	Host        string
	Model       string
	Temperature float64
	BufferSize  int
	HTTPClient  *http.Client
}

// Adapter implements modeladapter.Provider for Ollama's chat endpoint.
type Adapter struct {
	client      *api.Client
	model       string
	temperature float64
	bufferSize  int
}

// New creates an Adapter for the server at opts.Host.
func New(opts Options) (*Adapter, error) {
	host := opts.Host
	if host == "" {
		host = DefaultHost
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", host, err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Adapter{
		client:      api.NewClient(u, hc),
		model:       opts.Model,
		temperature: opts.Temperature,
		bufferSize:  opts.BufferSize,
	}, nil
}

// Submit streams a chat reply for req. Ollama has no tool_choice parameter:
// a forced choice offers only the forced tool and ChoiceNone offers none.
func (a *Adapter) Submit(ctx context.Context, req modeladapter.Request) (modeladapter.Response, error) {
	chatReq, err := a.buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	chunks := make(chan modeladapter.Chunk)
	done := make(chan error, 1)

	go func() {
		done <- a.client.Chat(cctx, chatReq, func(r api.ChatResponse) error {
			for _, c := range chunksOf(r) {
				select {
				case chunks <- c:
				case <-cctx.Done():
					return cctx.Err()
				}
			}
			return nil
		})
		close(chunks)
	}()

	var final error
	finished := false

	next := func() (modeladapter.Chunk, error) {
		if finished {
			return modeladapter.Chunk{}, final
		}

		c, ok := <-chunks
		if ok {
			return c, nil
		}

		finished = true
		final = io.EOF
		if err := <-done; err != nil {
			final = mapError(err)
		}
		return modeladapter.Chunk{}, final
	}

	resp, err := modeladapter.Demux(ctx, req, next, cancel, a.bufferSize)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	return resp, nil
}

func (a *Adapter) buildRequest(req modeladapter.Request) (*api.ChatRequest, error) {
	stream := true
	chatReq := &api.ChatRequest{
		Model:    a.model,
		Messages: []api.Message{{Role: "user", Content: req.Prompt}},
		Stream:   &stream,
	}
	if a.temperature != 0 {
		chatReq.Options = map[string]any{"temperature": a.temperature}
	}

	for _, t := range req.Tools {
		switch req.Choice.Mode {
		case modeladapter.ChoiceNone:
			continue
		case modeladapter.ChoiceForce:
			if t.Name != req.Choice.Tool {
				continue
			}
		}

		tool, err := toolDef(t)
		if err != nil {
			return nil, err
		}
		chatReq.Tools = append(chatReq.Tools, tool)
	}

	return chatReq, nil
}

func toolDef(t toolbox.Tool) (api.Tool, error) {
	raw, err := json.Marshal(map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Schema(),
		},
	})
	if err != nil {
		return api.Tool{}, fmt.Errorf("tool %s: %w", t.Name, err)
	}

	var tool api.Tool
	if err := json.Unmarshal(raw, &tool); err != nil {
		return api.Tool{}, fmt.Errorf("tool %s: decode schema: %w", t.Name, err)
	}

	return tool, nil
}

// chunksOf converts one streamed reply. Ollama emits tool calls whole, so
// each call becomes a single complete delta.
func chunksOf(r api.ChatResponse) []modeladapter.Chunk {
	var out []modeladapter.Chunk

	for i, tc := range r.Message.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil || tc.Function.Arguments == nil {
			args = []byte("{}")
		}

		idx := tc.Function.Index
		if idx == 0 {
			idx = i
		}

		out = append(out, modeladapter.Chunk{Tool: &modeladapter.ToolDelta{
			Index:     idx,
			ID:        "call_" + tc.Function.Name + "_" + uuid.NewString()[:8],
			Name:      tc.Function.Name,
			Arguments: string(args),
		}})
	}

	if r.Message.Content != "" {
		out = append(out, modeladapter.Chunk{Text: r.Message.Content})
	}

	return out
}

func mapError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return &modeladapter.RateLimitError{Body: se.Error()}
	}
	return err
}
