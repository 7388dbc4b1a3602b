package modeladapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/germanamz/silk/pkg/chats/content"
	"github.com/germanamz/silk/pkg/stream"
)

// Chunk is one decoded event of a provider's streaming response. A chunk
// carries text, a tool-call fragment, or neither (keep-alives, usage frames).
type Chunk struct {
	Text string
	Tool *ToolDelta
}

// ToolDelta is a fragment of a streamed tool call. Fragments sharing an Index
// belong to the same call; ID and Name arrive once, Arguments accumulate.
type ToolDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// NextFunc returns the next chunk of a provider stream, or io.EOF once the
// stream is complete.
type NextFunc func() (Chunk, error)

// ErrLateToolCall closes a text stream whose provider emitted a tool call
// after text on a request that offered no callable tools.
var ErrLateToolCall = errors.New("modeladapter: tool call after text on a text-only request")

// Demux turns a provider stream into a Response. A tool fragment anywhere in
// the stream makes the whole response a [ToolCall]; text seen before it is
// discarded. When req offers tools that may be called, text is therefore
// buffered until the stream ends and returned as a closed [Text] stream. When
// req rules tool calls out (no tools or ChoiceNone), the first text fragment
// settles the variant and the rest is relayed by a background goroutine
// through a pipe of bufferSize. release is called exactly once when the
// stream is no longer read.
func Demux(ctx context.Context, req Request, next NextFunc, release func(), bufferSize int) (Response, error) {
	if req.TextOnly() {
		return demuxStreaming(ctx, next, release, bufferSize)
	}

	defer release()

	var fragments []string
	for {
		chunk, err := next()
		if errors.Is(err, io.EOF) {
			return Text{Stream: stream.FromSlice(fragments...)}, nil
		}
		if err != nil {
			return nil, err
		}

		if chunk.Tool != nil {
			return collectToolCall(chunk.Tool, next)
		}
		if chunk.Text != "" {
			fragments = append(fragments, chunk.Text)
		}
	}
}

func demuxStreaming(ctx context.Context, next NextFunc, release func(), bufferSize int) (Response, error) {
	for {
		chunk, err := next()
		if errors.Is(err, io.EOF) {
			release()
			return Text{Stream: stream.FromSlice()}, nil
		}
		if err != nil {
			release()
			return nil, err
		}

		if chunk.Tool != nil {
			defer release()
			return collectToolCall(chunk.Tool, next)
		}

		if chunk.Text == "" {
			continue
		}

		pipe := stream.New(bufferSize)
		// The pipe is empty, so the first fragment never blocks.
		_ = pipe.Send(ctx, chunk.Text)

		go relay(ctx, pipe, next, release)

		return Text{Stream: pipe}, nil
	}
}

// relay closes the pipe only after the provider stream is released.
func relay(ctx context.Context, pipe *stream.Pipe, next NextFunc, release func()) {
	pipe.Close(pump(ctx, pipe, next, release))
}

func pump(ctx context.Context, pipe *stream.Pipe, next NextFunc, release func()) error {
	defer release()

	for {
		chunk, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if chunk.Tool != nil {
			return fmt.Errorf("%w: %s", ErrLateToolCall, chunk.Tool.Name)
		}
		if chunk.Text == "" {
			continue
		}
		if err := pipe.Send(ctx, chunk.Text); err != nil {
			return err
		}
	}
}

func collectToolCall(first *ToolDelta, next NextFunc) (Response, error) {
	calls := map[int]*content.ToolCall{}
	merge := func(d *ToolDelta) {
		tc, ok := calls[d.Index]
		if !ok {
			tc = &content.ToolCall{}
			calls[d.Index] = tc
		}
		if d.ID != "" {
			tc.ID = d.ID
		}
		if d.Name != "" {
			tc.Name = d.Name
		}
		tc.Arguments += d.Arguments
	}

	merge(first)

	for {
		chunk, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk.Tool != nil {
			merge(chunk.Tool)
		}
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	tc := *calls[indexes[0]]
	if tc.Name == "" {
		return nil, ErrEmptyResponse
	}

	return ToolCall{Call: tc}, nil
}
