package modeladapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/germanamz/silk/pkg/chats/content"
	"github.com/germanamz/silk/pkg/stream"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// ErrEmptyResponse is returned when a provider produces neither text nor a tool call.
var ErrEmptyResponse = errors.New("modeladapter: empty response")

// ChoiceMode selects how a provider may use the offered tools.
type ChoiceMode string

const (
	ChoiceAuto  ChoiceMode = "auto"  // The model decides.
	ChoiceForce ChoiceMode = "force" // The model must call ToolChoice.Tool.
	ChoiceNone  ChoiceMode = "none"  // Tools are advertised but must not be called.
)

// ToolChoice is the tool-choice policy attached to a Request.
type ToolChoice struct {
	Mode ChoiceMode
	Tool string // Set when Mode is ChoiceForce.
}

// Auto lets the model decide whether to call a tool.
func Auto() ToolChoice { return ToolChoice{Mode: ChoiceAuto} }

// Force requires the model to call the named tool.
func Force(name string) ToolChoice { return ToolChoice{Mode: ChoiceForce, Tool: name} }

// None forbids tool calls.
func None() ToolChoice { return ToolChoice{Mode: ChoiceNone} }

// Forced reports whether the policy requires a tool call.
func (c ToolChoice) Forced() bool { return c.Mode == ChoiceForce }

// String returns "auto", "none", or the forced tool name.
func (c ToolChoice) String() string {
	switch c.Mode {
	case ChoiceForce:
		return c.Tool
	case ChoiceNone:
		return string(ChoiceNone)
	default:
		return string(ChoiceAuto)
	}
}

// Request is a single model invocation: a rendered prompt, the tools on
// offer and the tool-choice policy.
type Request struct {
	Prompt string
	Tools  []toolbox.Tool
	Choice ToolChoice
}

// Validate checks that a forced choice names one of the offered tools.
func (r Request) Validate() error {
	if !r.Choice.Forced() {
		return nil
	}

	for _, t := range r.Tools {
		if t.Name == r.Choice.Tool {
			return nil
		}
	}

	return fmt.Errorf("modeladapter: forced tool %q is not offered", r.Choice.Tool)
}

// TextOnly reports whether the model is barred from calling a tool: nothing
// is offered or the policy is ChoiceNone.
func (r Request) TextOnly() bool {
	return len(r.Tools) == 0 || r.Choice.Mode == ChoiceNone
}

// Response is the outcome of a model invocation: either [Text] or [ToolCall].
type Response interface {
	isResponse()
}

// Text is a streamed textual reply. The consumer drains Stream until it
// reports io.EOF or an error, or aborts it.
type Text struct {
	Stream *stream.Pipe
}

func (Text) isResponse() {}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	Call content.ToolCall
}

func (ToolCall) isResponse() {}

// Provider submits requests to a language model.
type Provider interface {
	Submit(ctx context.Context, req Request) (Response, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

// Submit calls f.
func (f ProviderFunc) Submit(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

var _ Provider = ProviderFunc(nil)
