package session

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single role/content pair in a conversation.
// Messages are values: copying one never aliases another conversation's state.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"` // replaces the role token when set
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// Snapshot is the flat head/body/messages record used by Load and Dump.
// It carries no version field; compatibility is the caller's concern.
type Snapshot struct {
	Head     []Message `json:"head" yaml:"head"`
	Body     []Message `json:"body" yaml:"body"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// cloneMessages returns a copy of msgs that never shares a backing array with it.
func cloneMessages(msgs []Message) []Message {
	result := make([]Message, len(msgs))
	copy(result, msgs)
	return result
}

// equalMessages reports whether two message slices are structurally equal.
func equalMessages(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
