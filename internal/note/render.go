// Package note renders conversations as Markdown notes and merges new
// messages into notes written earlier.
package note

import (
	"fmt"
	"strings"
	"time"

	"chatvault/internal/models"
)

const (
	humanHeading = "### "
	otherHeading = "#### "

	titlePrefix       = "# Title: "
	createdPrefix     = "Created: "
	lastUpdatedPrefix = "Last Updated: "

	displayLayout = "2006-01-02 at 15:04:05"

	// NoContent stands in for a message that has nothing to show.
	NoContent = "[no renderable content]"
)

// Renderer formats notes. The zero value renders times in UTC.
type Renderer struct {
	Location *time.Location
}

func (r Renderer) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func (r Renderer) machineTime(ts int64) time.Time {
	return time.Unix(ts, 0).In(r.loc())
}

func (r Renderer) displayTime(ts int64) string {
	return time.Unix(ts, 0).In(r.loc()).Format(displayLayout)
}

// Header builds the metadata header for a conversation.
func (r Renderer) Header(conv models.Conversation) Header {
	var h Header
	h.Set(KeyImporter, ImporterName)
	h.Set(KeyProvider, string(conv.Provider))
	h.Set(KeyAliases, DisplayTitle(conv.Title))
	h.Set(KeyConversationID, conv.ID)
	h.SetTime(KeyCreateTime, r.machineTime(conv.CreateTime))
	h.SetTime(KeyUpdateTime, r.machineTime(conv.UpdateTime))
	return h
}

// RenderNote renders a complete note: header, title block, then every
// renderable message in stored order.
func (r Renderer) RenderNote(conv models.Conversation) string {
	var b strings.Builder
	b.WriteString(r.Header(conv).String())
	b.WriteString(titlePrefix + DisplayTitle(conv.Title) + "\n\n")
	b.WriteString(createdPrefix + r.displayTime(conv.CreateTime) + "\n")
	b.WriteString(lastUpdatedPrefix + r.displayTime(conv.UpdateTime) + "\n\n")
	b.WriteString(r.RenderMessages(conv.Provider, conv.RenderableMessages()))
	return b.String()
}

// RenderMessages concatenates RenderMessage output.
func (r Renderer) RenderMessages(provider models.Provider, msgs []models.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(r.RenderMessage(provider, m))
	}
	return b.String()
}

// RenderMessage renders heading, quoted text and marker. A message without
// renderable content gets a placeholder rather than being dropped.
func (r Renderer) RenderMessage(provider models.Provider, msg models.Message) string {
	heading, quote := otherHeading, "> "
	label := "Message"
	switch msg.Role {
	case models.RoleHuman:
		heading, label = humanHeading, "User"
	case models.RoleAssistant:
		quote, label = ">> ", assistantLabel(provider)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s, on %s;\n", heading, label, r.displayTime(msg.CreateTime))
	for _, line := range strings.Split(messageBody(msg), "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString(strings.TrimSpace(quote) + "\n")
			continue
		}
		b.WriteString(quote + line + "\n")
	}
	b.WriteString("\n" + FormatMarker(msg.ID) + "\n\n")
	return b.String()
}

func messageBody(msg models.Message) string {
	var chunks []string
	for _, p := range msg.Parts {
		switch p.Kind {
		case models.PartText:
			if text := strings.TrimSpace(p.Text); text != "" {
				chunks = append(chunks, strings.ReplaceAll(text, "\r\n", "\n"))
			}
		case models.PartUnsupported:
			chunks = append(chunks, "[unsupported content: "+p.Text+"]")
		}
	}
	if len(chunks) == 0 {
		return NoContent
	}
	return strings.Join(chunks, "\n\n")
}

func assistantLabel(provider models.Provider) string {
	switch provider {
	case models.ProviderChatGPT:
		return "ChatGPT"
	case models.ProviderClaude:
		return "Claude"
	default:
		return "Assistant"
	}
}

// DisplayTitle collapses whitespace; empty titles become "Untitled".
func DisplayTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return "Untitled"
	}
	return title
}
