package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// ToolName is the name under which the archive is offered to models.
const ToolName = "getAllProjectFiles"

// ToolArgs is the input accepted by the archive tool.
type ToolArgs struct {
	Reason string `json:"reason"`
}

var toolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"reason": {
			"type": "string",
			"description": "The user's reason for requesting the project files."
		}
	},
	"required": ["reason"]
}`)

// Archive logs why the archive was requested and builds it.
func (b *Builder) Archive(ctx context.Context, reason string) (Result, error) {
	b.log.InfoContext(ctx, "archive requested", slog.String("reason", reason))
	return b.Build(ctx)
}

// Tool exposes the builder as the getAllProjectFiles tool. The handler
// returns the archive Result encoded as JSON.
func (b *Builder) Tool() toolbox.Tool {
	return toolbox.Tool{
		Name:        ToolName,
		Description: "Get all the source code files for the entire project as a single file.",
		InputSchema: toolSchema,
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args ToolArgs
			if err := json.Unmarshal(input, &args); err != nil {
				return "", fmt.Errorf("archive: decode tool input: %w", err)
			}

			res, err := b.Archive(ctx, args.Reason)
			if err != nil {
				return "", err
			}

			out, err := res.JSON()
			if err != nil {
				return "", fmt.Errorf("archive: encode result: %w", err)
			}

			return string(out), nil
		},
	}
}
