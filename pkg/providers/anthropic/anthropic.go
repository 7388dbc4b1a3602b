// Package anthropic implements modeladapter.Provider for the Anthropic
// Messages API using streamed responses.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// DefaultMaxTokens caps the reply length when none is configured.
const DefaultMaxTokens = 4096

var _ modeladapter.Provider = (*Adapter)(nil)

// Options configures an Adapter.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	BufferSize int
	HTTPClient *http.Client
}

// Adapter implements modeladapter.Provider for the Anthropic Messages API.
type Adapter struct {
	client     sdk.Client
	model      string
	maxTokens  int
	bufferSize int
}

// New creates an Adapter. SDK-level retries are disabled; wrap the adapter
// in modeladapter.RateLimited to retry 429s.
func New(opts Options) *Adapter {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	return &Adapter{
		client:     sdk.NewClient(reqOpts...),
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		bufferSize: opts.BufferSize,
	}
}

// Submit streams a message for req.
func (a *Adapter) Submit(ctx context.Context, req modeladapter.Request) (modeladapter.Response, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	s := a.client.Messages.NewStreaming(ctx, params)

	next := func() (modeladapter.Chunk, error) {
		if !s.Next() {
			if err := s.Err(); err != nil {
				return modeladapter.Chunk{}, mapError(err)
			}
			return modeladapter.Chunk{}, io.EOF
		}

		switch ev := s.Current().AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "tool_use" {
				return modeladapter.Chunk{Tool: &modeladapter.ToolDelta{
					Index: int(ev.Index),
					ID:    ev.ContentBlock.ID,
					Name:  ev.ContentBlock.Name,
				}}, nil
			}
		case sdk.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				return modeladapter.Chunk{Text: d.Text}, nil
			case sdk.InputJSONDelta:
				return modeladapter.Chunk{Tool: &modeladapter.ToolDelta{
					Index:     int(ev.Index),
					Arguments: d.PartialJSON,
				}}, nil
			}
		}

		return modeladapter.Chunk{}, nil
	}

	resp, err := modeladapter.Demux(ctx, req, next, func() { _ = s.Close() }, a.bufferSize)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	return resp, nil
}

func (a *Adapter) buildParams(req modeladapter.Request) (sdk.MessageNewParams, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}

	if len(req.Tools) == 0 {
		return params, nil
	}

	for _, t := range req.Tools {
		tool, err := toolParam(t)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParam{OfTool: &tool})
	}

	switch req.Choice.Mode {
	case modeladapter.ChoiceForce:
		params.ToolChoice = sdk.ToolChoiceUnionParam{OfTool: &sdk.ToolChoiceToolParam{Name: req.Choice.Tool}}
	case modeladapter.ChoiceNone:
		params.ToolChoice = sdk.ToolChoiceUnionParam{OfNone: &sdk.ToolChoiceNoneParam{}}
	default:
		params.ToolChoice = sdk.ToolChoiceUnionParam{OfAuto: &sdk.ToolChoiceAutoParam{}}
	}

	return params, nil
}

// toolParam splits a JSON Schema object into the SDK's properties/required form.
func toolParam(t toolbox.Tool) (sdk.ToolParam, error) {
	var schema struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(t.Schema(), &schema); err != nil {
		return sdk.ToolParam{}, fmt.Errorf("tool %s: decode schema: %w", t.Name, err)
	}

	return sdk.ToolParam{
		Name:        t.Name,
		Description: sdk.String(t.Description),
		InputSchema: sdk.ToolInputSchemaParam{
			Properties: schema.Properties,
			Required:   schema.Required,
		},
	}, nil
}

// mapError converts a 429 from the API into *modeladapter.RateLimitError.
func mapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		var retryAfter string
		if apiErr.Response != nil {
			retryAfter = apiErr.Response.Header.Get("Retry-After")
		}
		return &modeladapter.RateLimitError{
			RetryAfter: modeladapter.ParseRetryAfter(retryAfter),
			Body:       apiErr.Error(),
		}
	}
	return err
}
