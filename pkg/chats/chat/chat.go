// Package chat provides the conversation transcript supplied by clients.
package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/silk/pkg/chats/role"
)

// ErrInvalidTurn is returned by Validate when a turn has an unusable role.
var ErrInvalidTurn = errors.New("chat: invalid turn")

// Turn is one entry of a conversation transcript.
type Turn struct {
	Role    role.Role `json:"role"`
	Content string    `json:"content"`
}

// Line renders the turn as "<role>: <content>".
func (t Turn) Line() string {
	return t.Role.String() + ": " + t.Content
}

// Chat is an ordered conversation transcript. The zero value is ready to use.
// Chat is not safe for concurrent use; callers must synchronize externally.
type Chat struct {
	turns []Turn
}

// New creates a Chat pre-populated with the given turns.
func New(turns ...Turn) *Chat {
	return &Chat{turns: turns}
}

// Append adds one or more turns to the conversation.
func (c *Chat) Append(turns ...Turn) {
	c.turns = append(c.turns, turns...)
}

// Len returns the number of turns in the conversation.
func (c *Chat) Len() int {
	return len(c.turns)
}

// Last returns the most recent turn and true, or a zero Turn and false
// if the conversation is empty.
func (c *Chat) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Turns returns a copy of all turns in the conversation.
func (c *Chat) Turns() []Turn {
	cp := make([]Turn, len(c.turns))
	copy(cp, c.turns)
	return cp
}

// Validate checks that every turn was sent by a user or the assistant.
func (c *Chat) Validate() error {
	for i, t := range c.turns {
		if !t.Role.Conversational() {
			return fmt.Errorf("%w: turn %d has role %q", ErrInvalidTurn, i, t.Role)
		}
	}
	return nil
}

// Prompt renders the transcript below preamble, one "<role>: <content>" line
// per turn in order.
func (c *Chat) Prompt(preamble string) string {
	var b strings.Builder
	b.WriteString(preamble)

	for i, t := range c.turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Line())
	}

	return b.String()
}
