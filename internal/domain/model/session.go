package model

import (
	"time"
)

// DefaultTitle is the sentinel carried by every fresh session. Auto-titling
// only ever fires while the title still equals this value.
const DefaultTitle = "New Chat"

const (
	maxTitleRunes  = 30
	keepTitleRunes = 27
)

// Message is one turn of a conversation as the user sees it. Timestamp is a
// display string frozen at append time; messages are never edited or removed,
// so slice order is conversation order.
type Message struct {
	Content   string `json:"content"`
	IsUser    bool   `json:"isUser"`
	Timestamp string `json:"timestamp"`
}

// SessionInfo is the store-side identity of a conversation: enough to render
// a picker entry without loading the transcript.
type SessionInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewUserMessage(content string, at time.Time) Message {
	return Message{Content: content, IsUser: true, Timestamp: at.Format(time.Kitchen)}
}

func NewAssistantMessage(content string, at time.Time) Message {
	return Message{Content: content, IsUser: false, Timestamp: at.Format(time.Kitchen)}
}

// DeriveTitle produces a session title from the first user message. Text up
// to 30 runes is used as-is; longer text keeps the first 27 runes plus an
// ellipsis so the result never exceeds 30.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return string(runes[:keepTitleRunes]) + "..."
}

// CloneMessages returns an independent copy so observers can hold a snapshot
// while the live slice keeps growing.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
