// Package openai implements modeladapter.Provider for the OpenAI Chat
// Completions API using streamed responses.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// DefaultBaseURL is the OpenAI API root including the version prefix.
const DefaultBaseURL = "https://api.openai.com/v1"

var _ modeladapter.Provider = (*Adapter)(nil)

// Options configures an Adapter.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	BufferSize  int
	HTTPClient  *http.Client
}

// Adapter implements modeladapter.Provider for OpenAI-compatible APIs.
type Adapter struct {
	client      *goopenai.Client
	model       string
	maxTokens   int
	temperature float32
	bufferSize  int
}

// New creates an Adapter.
func New(opts Options) *Adapter {
	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return &Adapter{
		client:      goopenai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		bufferSize:  opts.BufferSize,
	}
}

// Submit streams a chat completion for req.
func (a *Adapter) Submit(ctx context.Context, req modeladapter.Request) (modeladapter.Response, error) {
	s, err := a.client.CreateChatCompletionStream(ctx, a.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", mapError(err))
	}

	next := func() (modeladapter.Chunk, error) {
		resp, err := s.Recv()
		if err != nil {
			return modeladapter.Chunk{}, err
		}
		if len(resp.Choices) == 0 {
			return modeladapter.Chunk{}, nil
		}

		delta := resp.Choices[0].Delta
		if len(delta.ToolCalls) > 0 {
			tc := delta.ToolCalls[0]
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			return modeladapter.Chunk{Tool: &modeladapter.ToolDelta{
				Index:     idx,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}}, nil
		}

		return modeladapter.Chunk{Text: delta.Content}, nil
	}

	return modeladapter.Demux(ctx, req, next, func() { s.Close() }, a.bufferSize)
}

func (a *Adapter) buildRequest(req modeladapter.Request) goopenai.ChatCompletionRequest {
	creq := goopenai.ChatCompletionRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Messages: []goopenai.ChatCompletionMessage{{
			Role:    goopenai.ChatMessageRoleUser,
			Content: req.Prompt,
		}},
	}

	if len(req.Tools) == 0 {
		return creq
	}

	creq.Tools = toolDefs(req.Tools)

	switch req.Choice.Mode {
	case modeladapter.ChoiceForce:
		creq.ToolChoice = goopenai.ToolChoice{
			Type:     goopenai.ToolTypeFunction,
			Function: goopenai.ToolFunction{Name: req.Choice.Tool},
		}
	case modeladapter.ChoiceNone:
		creq.ToolChoice = "none"
	default:
		creq.ToolChoice = "auto"
	}

	return creq
}

func toolDefs(tools []toolbox.Tool) []goopenai.Tool {
	defs := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema(),
			},
		})
	}
	return defs
}

// mapError converts a 429 from the API into *modeladapter.RateLimitError.
func mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &modeladapter.RateLimitError{Body: apiErr.Message}
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &modeladapter.RateLimitError{Body: reqErr.Error()}
	}

	return err
}
