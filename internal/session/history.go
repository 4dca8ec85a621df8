package session

// History holds a conversation split into a fixed head (system priming)
// and a growing body (the turn-by-turn transcript).
//
// History does no locking. Callers sharing one History across goroutines
// must serialize access themselves.
type History struct {
	head []Message
	body []Message

	// restored is the merged view taken verbatim from a loaded snapshot.
	// It stands in for head+body until the next mutation.
	restored []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		head: make([]Message, 0),
		body: make([]Message, 0),
	}
}

// Add appends a message to the head or the body and returns the last
// message of the resulting merged view. When toHead is true and the body
// is non-empty, that is the last body message, not the one just added.
func (h *History) Add(role Role, content string, toHead bool) Message {
	msg := NewMessage(role, content)
	if toHead {
		h.head = append(h.head, msg)
	} else {
		h.body = append(h.body, msg)
	}
	h.restored = nil

	last, _ := h.Last()
	return last
}

// AddUser adds a user message.
func (h *History) AddUser(content string, toHead bool) Message {
	return h.Add(RoleUser, content, toHead)
}

// AddAssistant adds an assistant message.
func (h *History) AddAssistant(content string, toHead bool) Message {
	return h.Add(RoleAssistant, content, toHead)
}

// AddSystem adds a system message.
func (h *History) AddSystem(content string, toHead bool) Message {
	return h.Add(RoleSystem, content, toHead)
}

// Extend appends a batch of messages to the body.
func (h *History) Extend(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	h.body = append(h.body, msgs...)
	h.restored = nil
}

// Head returns a copy of the head messages.
func (h *History) Head() []Message {
	return cloneMessages(h.head)
}

// Body returns a copy of the body messages.
func (h *History) Body() []Message {
	return cloneMessages(h.body)
}

// MergedView returns head followed by body, built fresh on every call.
func (h *History) MergedView() []Message {
	if h.restored != nil {
		return cloneMessages(h.restored)
	}
	merged := make([]Message, 0, len(h.head)+len(h.body))
	merged = append(merged, h.head...)
	merged = append(merged, h.body...)
	return merged
}

// Last returns the last message of the merged view.
func (h *History) Last() (Message, bool) {
	merged := h.MergedView()
	if len(merged) == 0 {
		return Message{}, false
	}
	return merged[len(merged)-1], true
}

// Len returns the number of messages in the merged view.
func (h *History) Len() int {
	if h.restored != nil {
		return len(h.restored)
	}
	return len(h.head) + len(h.body)
}

// DropOldest removes the oldest body message.
// It returns false when the body is already empty.
func (h *History) DropOldest() (Message, bool) {
	if len(h.body) == 0 {
		return Message{}, false
	}
	oldest := h.body[0]
	h.body = cloneMessages(h.body[1:])
	h.restored = nil
	return oldest, true
}

// ReplaceBody swaps the whole body for msgs.
func (h *History) ReplaceBody(msgs ...Message) {
	h.body = cloneMessages(msgs)
	h.restored = nil
}

// ClearBody removes every body message and keeps the head.
func (h *History) ClearBody() {
	h.ReplaceBody()
}

// Dump returns a snapshot of head, body and the current merged view.
func (h *History) Dump() Snapshot {
	return Snapshot{
		Head:     h.Head(),
		Body:     h.Body(),
		Messages: h.MergedView(),
	}
}

// Load replaces the history with the contents of snap.
//
// The snapshot's Messages field is trusted verbatim as the merged view; it is
// not rebuilt from Head and Body. A hand-edited snapshot whose Messages
// disagree with Head+Body therefore yields a merged view that differs from
// its sources until the next Add, Extend, DropOldest or ReplaceBody. Load
// reports whether the snapshot was consistent so callers can warn about it.
func (h *History) Load(snap Snapshot) bool {
	h.head = cloneMessages(snap.Head)
	h.body = cloneMessages(snap.Body)
	h.restored = nil

	computed := h.MergedView()
	consistent := equalMessages(computed, snap.Messages)
	if !consistent {
		h.restored = cloneMessages(snap.Messages)
	}
	return consistent
}
