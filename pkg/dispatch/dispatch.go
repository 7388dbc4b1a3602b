// Package dispatch decides how a chat request is answered: a direct archive
// download, a buffered tool result, or a streamed model reply.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/germanamz/silk/pkg/archive"
	"github.com/germanamz/silk/pkg/chats/chat"
	"github.com/germanamz/silk/pkg/chats/content"
	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/stream"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// Preamble precedes the rendered transcript in every prompt.
const Preamble = "You are an AI assistant. When the user asks to 'download the code' or 'get the source files', " +
	"use the '" + archive.ToolName + "' tool. Do NOT try to write out the code manually.\n\n" +
	"Current conversation:\n"

// DirectDownloadReason is logged for form-triggered downloads.
const DirectDownloadReason = "Direct download from button"

var (
	// ErrProvider wraps failures reported by the model provider.
	ErrProvider = errors.New("dispatch: provider failed")
	// ErrBadToolCall is returned when the model requests an unknown tool or
	// passes arguments that do not match its schema.
	ErrBadToolCall = errors.New("dispatch: unusable tool call")
	// ErrMisconfigured is returned when the dispatcher would force a tool its
	// toolbox does not offer.
	ErrMisconfigured = errors.New("dispatch: misconfigured")
)

// Outcome is the result of dispatching one request: [Download], [ToolResult]
// or [Stream].
type Outcome interface {
	isOutcome()
}

// Download is a built archive to be sent as a file attachment.
type Download struct {
	Result archive.Result
}

// ToolResult is the JSON output of a tool the model invoked.
type ToolResult struct {
	Call content.ToolCall
	Body json.RawMessage
}

// Stream is a model reply relayed fragment by fragment.
type Stream struct {
	Pipe *stream.Pipe
}

func (Download) isOutcome()   {}
func (ToolResult) isOutcome() {}
func (Stream) isOutcome()     {}

// Archiver builds the project archive.
type Archiver interface {
	Archive(ctx context.Context, reason string) (archive.Result, error)
}

// Options configures a Dispatcher. Tools defaults to a toolbox holding only
// the archive tool when Archiver is an *archive.Builder.
type Options struct {
	Provider modeladapter.Provider
	Archiver Archiver
	Tools    *toolbox.ToolBox
	ToolName string
	Preamble string
	// DisableToolCalls sends every chat turn with ChoiceNone, so replies
	// always stream as text. Form downloads are unaffected.
	DisableToolCalls bool
	Logger           *slog.Logger
}

// Dispatcher answers classified requests using injected collaborators. It
// holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	provider modeladapter.Provider
	archiver Archiver
	tools    *toolbox.ToolBox
	toolName string
	preamble string
	noTools  bool
	log      *slog.Logger
}

// New creates a Dispatcher from opts.
func New(opts Options) *Dispatcher {
	if opts.ToolName == "" {
		opts.ToolName = archive.ToolName
	}
	if opts.Preamble == "" {
		opts.Preamble = Preamble
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tools == nil {
		opts.Tools = toolbox.New()
		if b, ok := opts.Archiver.(*archive.Builder); ok {
			opts.Tools.Register(b.Tool())
		}
	}

	return &Dispatcher{
		provider: opts.Provider,
		archiver: opts.Archiver,
		tools:    opts.Tools,
		toolName: opts.ToolName,
		preamble: opts.Preamble,
		noTools:  opts.DisableToolCalls,
		log:      opts.Logger,
	}
}

// Handle dispatches in along its classified path.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) (Outcome, error) {
	if in.Kind == KindDownload {
		return d.Download(ctx)
	}

	c := in.Chat
	if c == nil {
		c = chat.New()
	}

	return d.Converse(ctx, c)
}

// Download builds the archive for a direct download.
func (d *Dispatcher) Download(ctx context.Context) (Download, error) {
	res, err := d.archiver.Archive(ctx, DirectDownloadReason)
	if err != nil {
		return Download{}, fmt.Errorf("dispatch: download: %w", err)
	}
	return Download{Result: res}, nil
}

// Converse submits the transcript to the provider. A tool call is executed
// and its result returned; text is returned as a stream. When the policy
// forces the tool and the provider answers with text anyway, the text is
// discarded and the tool is invoked with the last turn as the reason.
func (d *Dispatcher) Converse(ctx context.Context, c *chat.Chat) (Outcome, error) {
	req := modeladapter.Request{
		Prompt: c.Prompt(d.preamble),
		Tools:  d.tools.Tools(),
		Choice: d.choiceFor(c),
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMisconfigured, err)
	}

	d.log.DebugContext(ctx, "submitting to provider",
		slog.Int("turns", c.Len()),
		slog.String("tool_choice", req.Choice.String()),
	)

	resp, err := d.provider.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	switch r := resp.(type) {
	case modeladapter.ToolCall:
		return d.invoke(ctx, r.Call)
	case modeladapter.Text:
		if !req.Choice.Forced() {
			return Stream{Pipe: r.Stream}, nil
		}

		r.Stream.Abort()
		d.log.WarnContext(ctx, "provider ignored forced tool choice", slog.String("tool", d.toolName))

		return d.invoke(ctx, d.fallbackCall(c))
	default:
		return nil, fmt.Errorf("%w: unexpected response %T", ErrProvider, resp)
	}
}

func (d *Dispatcher) choiceFor(c *chat.Chat) modeladapter.ToolChoice {
	if d.noTools {
		return modeladapter.None()
	}
	return ToolChoiceFor(c, d.toolName)
}

func (d *Dispatcher) fallbackCall(c *chat.Chat) content.ToolCall {
	var reason string
	if last, ok := c.Last(); ok {
		reason = last.Content
	}

	args, _ := json.Marshal(archive.ToolArgs{Reason: reason})

	return content.ToolCall{
		ID:        "call_" + d.toolName + "_fallback",
		Name:      d.toolName,
		Arguments: string(args),
	}
}

func (d *Dispatcher) invoke(ctx context.Context, call content.ToolCall) (Outcome, error) {
	d.log.InfoContext(ctx, "invoking tool", slog.String("tool", call.Name), slog.String("call_id", call.ID))

	out, err := d.tools.Invoke(ctx, call)
	if errors.Is(err, toolbox.ErrToolNotFound) || errors.Is(err, toolbox.ErrInvalidArguments) {
		return nil, fmt.Errorf("%w: %w", ErrBadToolCall, err)
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch: tool %s: %w", call.Name, err)
	}

	return ToolResult{Call: call, Body: json.RawMessage(out)}, nil
}
