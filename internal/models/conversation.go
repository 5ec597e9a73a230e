package models

import (
	"strings"
	"time"
)

// Provider names the chat assistant an export came from.
type Provider string

const (
	ProviderChatGPT Provider = "chatgpt"
	ProviderClaude  Provider = "claude"
)

// Conversation is one exported chat thread, normalized across providers.
// Timestamps are unix seconds as supplied by the provider.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Provider   Provider  `json:"provider"`
	CreateTime int64     `json:"createTime"`
	UpdateTime int64     `json:"updateTime"`
	Messages   []Message `json:"messages,omitempty"`
}

// Message returns the message with the given id.
func (c Conversation) Message(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// RenderableMessages returns the messages a note shows, in stored order.
func (c Conversation) RenderableMessages() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Renderable() {
			out = append(out, m)
		}
	}
	return out
}

// Created returns CreateTime as a UTC time.
func (c Conversation) Created() time.Time { return time.Unix(c.CreateTime, 0).UTC() }

// Updated returns UpdateTime as a UTC time.
func (c Conversation) Updated() time.Time { return time.Unix(c.UpdateTime, 0).UTC() }

type Message struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	CreateTime int64  `json:"createTime"`
	Parts      []Part `json:"parts,omitempty"`
}

// Valid reports whether the message yields at least one non-empty text part.
func (m Message) Valid() bool {
	for _, p := range m.Parts {
		if p.Kind == PartText && strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// Renderable reports whether the message belongs in a note: it has text, or
// content of a type that renders as a placeholder. Messages whose parts are
// all blank text carry nothing and are left out.
func (m Message) Renderable() bool {
	if m.Valid() {
		return true
	}
	for _, p := range m.Parts {
		if p.Kind == PartUnsupported {
			return true
		}
	}
	return false
}

// Text joins the non-empty text parts with a blank line.
func (m Message) Text() string {
	var builder strings.Builder
	for _, p := range m.Parts {
		if p.Kind != PartText {
			continue
		}
		cleaned := strings.TrimSpace(p.Text)
		if cleaned == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(cleaned)
	}
	return builder.String()
}

type PartKind int

const (
	PartText PartKind = iota
	// PartUnsupported keeps the provider content type in Text.
	PartUnsupported
)

type Part struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text"`
}

// TextPart is shorthand for a text-bearing part.
func TextPart(text string) Part { return Part{Kind: PartText, Text: text} }
