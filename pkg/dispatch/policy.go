package dispatch

import (
	"strings"

	"github.com/germanamz/silk/pkg/chats/chat"
	"github.com/germanamz/silk/pkg/modeladapter"
)

// ForceKeyword forces the tool when it appears in the last turn, in any case.
const ForceKeyword = "download"

// ToolChoiceFor returns the tool-choice policy for a transcript: tool is
// forced when the last turn mentions ForceKeyword, otherwise the model decides.
// An empty transcript is auto.
func ToolChoiceFor(c *chat.Chat, tool string) modeladapter.ToolChoice {
	last, ok := c.Last()
	if ok && strings.Contains(strings.ToLower(last.Content), ForceKeyword) {
		return modeladapter.Force(tool)
	}
	return modeladapter.Auto()
}
