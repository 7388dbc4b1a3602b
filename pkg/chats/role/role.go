// Package role defines the sender roles used in chat transcripts.
package role

// Role represents the sender of a turn in a conversation.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case System, User, Assistant:
		return true
	}
	return false
}

// Conversational reports whether r may appear in a client-supplied transcript.
// System instructions are owned by the server and never accepted from clients.
func (r Role) Conversational() bool {
	return r == User || r == Assistant
}

// String returns the underlying string value of the role.
func (r Role) String() string {
	return string(r)
}
