package chat

import (
	"errors"
	"strings"
)

// ErrInvalidQuery is returned when a query has a shape the history
// update rules do not cover (an empty message list).
var ErrInvalidQuery = errors.New("chat: invalid query shape")

// queryPlaceholder is the substitution token in system prompt templates.
const queryPlaceholder = "{query}"

type queryKind int

const (
	queryText queryKind = iota
	queryPreformed
	queryRaw
)

// Query is the input to one loop invocation: either a single user
// string, a list of pre-formed messages appended verbatim, or a list of
// raw entries whose trailing user entry still needs template formatting.
type Query struct {
	kind queryKind
	text string
	msgs []Message
}

// TextQuery wraps a raw user string. On history update the string is
// substituted into the system prompt template and appended as one user
// message.
func TextQuery(s string) Query {
	return Query{kind: queryText, text: s}
}

// PreformedQuery wraps messages that are already fully formatted; the
// history update extends the conversation with them unmodified.
func PreformedQuery(ms []Message) Query {
	return Query{kind: queryPreformed, msgs: ms}
}

// RawQuery wraps raw role/content entries. If the last entry has the
// user role, its content is substituted into the system prompt template
// before the list is appended; otherwise the list is appended as-is.
func RawQuery(ms []Message) Query {
	return Query{kind: queryRaw, msgs: ms}
}

// Display returns the human-readable form of the query for embedding in
// critique and grading prompts: the raw text, or the content of the
// last message for list queries.
func (q Query) Display() string {
	if q.kind == queryText {
		return q.text
	}
	if len(q.msgs) == 0 {
		return ""
	}
	return q.msgs[len(q.msgs)-1].Content
}

// Format substitutes s into the template's {query} placeholder. A
// template without the placeholder is returned unchanged, so a missing
// placeholder degrades to a static prompt rather than an error.
func Format(template, s string) string {
	return strings.ReplaceAll(template, queryPlaceholder, s)
}

// AddQuery applies the query to the history under the given system
// prompt template:
//
//   - text query: append one user message with the template-substituted
//     text
//   - pre-formed list: extend with the list unmodified
//   - raw list ending in a user entry: replace that entry with a
//     template-substituted user message, then extend with the list
//   - raw list ending in a non-user entry: extend unmodified
//
// An empty message list is rejected with [ErrInvalidQuery] rather than
// silently ignored.
func (h *History) AddQuery(template string, q Query) error {
	switch q.kind {
	case queryText:
		h.Append(Message{
			Role:    RoleUser,
			Content: Format(template, q.text),
		})
		return nil

	case queryPreformed:
		if len(q.msgs) == 0 {
			return ErrInvalidQuery
		}
		h.Extend(q.msgs)
		return nil

	case queryRaw:
		if len(q.msgs) == 0 {
			return ErrInvalidQuery
		}
		ms := make([]Message, len(q.msgs))
		copy(ms, q.msgs)
		if last := ms[len(ms)-1]; last.Role == RoleUser {
			ms[len(ms)-1] = Message{
				Role:    RoleUser,
				Content: Format(template, last.Content),
			}
		}
		h.Extend(ms)
		return nil
	}

	return ErrInvalidQuery
}
