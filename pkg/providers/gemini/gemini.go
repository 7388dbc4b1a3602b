// Package gemini implements modeladapter.Provider for the Google Gemini API
// using streamed responses.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

var _ modeladapter.Provider = (*Adapter)(nil)

// Options configures an Adapter.
type Options struct {
	APIKey     string
	Model      string
	Endpoint   string
	MaxTokens  int
	BufferSize int
	HTTPClient *http.Client
}

// Adapter implements modeladapter.Provider for Gemini.
type Adapter struct {
	client     *genai.Client
	model      string
	maxTokens  int32
	bufferSize int
}

// New creates an Adapter. Close releases the underlying client.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: init: %w", err)
	}

	return &Adapter{
		client:     client,
		model:      opts.Model,
		maxTokens:  int32(opts.MaxTokens), //nolint:gosec // configured value
		bufferSize: opts.BufferSize,
	}, nil
}

// Close releases the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Submit streams generated content for req.
func (a *Adapter) Submit(ctx context.Context, req modeladapter.Request) (modeladapter.Response, error) {
	model := a.client.GenerativeModel(a.model)
	if a.maxTokens > 0 {
		model.SetMaxOutputTokens(a.maxTokens)
	}

	if len(req.Tools) > 0 {
		tool, err := functionTool(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		model.Tools = []*genai.Tool{tool}
		model.ToolConfig = toolConfig(req.Choice)
	}

	it := model.GenerateContentStream(ctx, genai.Text(req.Prompt))

	var pending []modeladapter.Chunk
	next := func() (modeladapter.Chunk, error) {
		for len(pending) == 0 {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return modeladapter.Chunk{}, io.EOF
			}
			if err != nil {
				return modeladapter.Chunk{}, err
			}
			pending = chunksOf(resp)
			if len(pending) == 0 {
				return modeladapter.Chunk{}, nil
			}
		}

		c := pending[0]
		pending = pending[1:]
		return c, nil
	}

	resp, err := modeladapter.Demux(ctx, req, next, func() {}, a.bufferSize)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	return resp, nil
}

// chunksOf flattens the first candidate of a streamed response.
func chunksOf(resp *genai.GenerateContentResponse) []modeladapter.Chunk {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}

	var out []modeladapter.Chunk
	calls := 0

	for _, p := range resp.Candidates[0].Content.Parts {
		switch v := p.(type) {
		case genai.Text:
			out = append(out, modeladapter.Chunk{Text: string(v)})
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil || v.Args == nil {
				args = []byte("{}")
			}
			out = append(out, modeladapter.Chunk{Tool: &modeladapter.ToolDelta{
				Index:     calls,
				ID:        "call_" + v.Name + "_" + uuid.NewString()[:8],
				Name:      v.Name,
				Arguments: string(args),
			}})
			calls++
		}
	}

	return out
}

func toolConfig(choice modeladapter.ToolChoice) *genai.ToolConfig {
	cfg := &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAuto}

	switch choice.Mode {
	case modeladapter.ChoiceForce:
		cfg.Mode = genai.FunctionCallingAny
		cfg.AllowedFunctionNames = []string{choice.Tool}
	case modeladapter.ChoiceNone:
		cfg.Mode = genai.FunctionCallingNone
	}

	return &genai.ToolConfig{FunctionCallingConfig: cfg}
}

func functionTool(tools []toolbox.Tool) (*genai.Tool, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))

	for _, t := range tools {
		schema, err := schemaFromJSON(t.Schema())
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}

	return &genai.Tool{FunctionDeclarations: decls}, nil
}

type jsonSchema struct {
	Type        string                     `json:"type"`
	Description string                     `json:"description"`
	Format      string                     `json:"format"`
	Enum        []string                   `json:"enum"`
	Nullable    bool                       `json:"nullable"`
	Items       json.RawMessage            `json:"items"`
	Properties  map[string]json.RawMessage `json:"properties"`
	Required    []string                   `json:"required"`
}

// schemaFromJSON converts the subset of JSON Schema that Gemini understands.
// Keywords Gemini rejects ($schema, additionalProperties) are dropped.
func schemaFromJSON(raw json.RawMessage) (*genai.Schema, error) {
	var js jsonSchema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	s := &genai.Schema{
		Type:        schemaType(js.Type),
		Description: js.Description,
		Format:      js.Format,
		Enum:        js.Enum,
		Nullable:    js.Nullable,
		Required:    js.Required,
	}

	if len(js.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(js.Properties))
		for name, sub := range js.Properties {
			child, err := schemaFromJSON(sub)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			s.Properties[name] = child
		}
	}

	if len(js.Items) > 0 {
		items, err := schemaFromJSON(js.Items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s.Items = items
	}

	return s, nil
}

func schemaType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
