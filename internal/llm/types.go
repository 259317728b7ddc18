package llm

// Roles recognized in a chat conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stream is an incrementally produced completion.
// Recv returns the next non-empty text fragment, or io.EOF once the
// completion has finished cleanly. Close releases the upstream connection
// and must be called exactly once.
type Stream interface {
	Recv() (string, error)
	Close() error
}
