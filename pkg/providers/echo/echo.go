// Package echo implements an offline modeladapter.Provider that replies with
// the last line of the prompt. It honours forced tool choices and is meant for
// local runs and tests.
package echo

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/germanamz/silk/pkg/modeladapter"
)

// Prefix starts every reply.
const Prefix = "echo:"

var _ modeladapter.Provider = (*Adapter)(nil)

// Adapter is the offline provider.
type Adapter struct {
	BufferSize int
}

// New creates an Adapter.
func New(bufferSize int) *Adapter {
	return &Adapter{BufferSize: bufferSize}
}

// Submit streams "echo: <last prompt line>" one word at a time, or returns a
// tool call when req forces one.
func (a *Adapter) Submit(ctx context.Context, req modeladapter.Request) (modeladapter.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	last := lastLine(req.Prompt)

	var chunks []modeladapter.Chunk
	if req.Choice.Forced() && len(req.Tools) > 0 {
		args, err := json.Marshal(map[string]string{"reason": last})
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, modeladapter.Chunk{Tool: &modeladapter.ToolDelta{
			ID:        "call_" + req.Choice.Tool + "_" + uuid.NewString()[:8],
			Name:      req.Choice.Tool,
			Arguments: string(args),
		}})
	} else {
		for i, w := range strings.Fields(Prefix + " " + last) {
			if i > 0 {
				w = " " + w
			}
			chunks = append(chunks, modeladapter.Chunk{Text: w})
		}
	}

	next := func() (modeladapter.Chunk, error) {
		if len(chunks) == 0 {
			return modeladapter.Chunk{}, io.EOF
		}
		c := chunks[0]
		chunks = chunks[1:]
		return c, nil
	}

	return modeladapter.Demux(ctx, req, next, func() {}, a.BufferSize)
}

func lastLine(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
