package bus

import "time"

// InboundMessage is a user turn received from a chat channel.
type InboundMessage struct {
	Channel   string    `json:"channel"` // telegram, cli
	SenderID  string    `json:"senderId"`
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionKey returns the conversation a message belongs to.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// IsCommand reports whether the message is a slash command such as /reset.
func (m *InboundMessage) IsCommand() bool {
	return len(m.Content) > 1 && m.Content[0] == '/'
}

// OutboundMessage is a reply to be delivered to a chat channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	ReplyTo string `json:"replyTo,omitempty"`
}
