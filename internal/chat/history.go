// Package chat holds the conversation state for one reasoning-loop
// invocation: an ordered, append-only sequence of role-tagged messages.
package chat

// Message roles. Ordering in a History is chronological and significant.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is an immutable role-tagged chat entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the ordered conversation state. It only grows: entries are
// appended, never reordered or mutated in place. A History is owned by
// exactly one loop invocation and must not be shared across concurrent
// invocations.
type History struct {
	msgs []Message
}

// NewHistory creates an empty history, optionally seeded with initial
// messages (e.g. the agent's identity system message).
func NewHistory(seed ...Message) *History {
	h := &History{}
	h.msgs = append(h.msgs, seed...)
	return h
}

// Append adds one message to the end of the history.
func (h *History) Append(m Message) {
	h.msgs = append(h.msgs, m)
}

// Extend adds all messages to the end of the history, in order.
func (h *History) Extend(ms []Message) {
	h.msgs = append(h.msgs, ms...)
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.msgs)
}

// Messages returns a copy of the flattened history. Mutating the
// returned slice does not affect the history.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Last returns the most recent message and true, or a zero Message and
// false when the history is empty.
func (h *History) Last() (Message, bool) {
	if len(h.msgs) == 0 {
		return Message{}, false
	}
	return h.msgs[len(h.msgs)-1], true
}
