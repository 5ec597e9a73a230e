package importer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatvault/internal/models"
)

type claudeConversation struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	ChatMessages []claudeMessage `json:"chat_messages"`
}

type claudeMessage struct {
	UUID      string          `json:"uuid"`
	Text      string          `json:"text"`
	Sender    string          `json:"sender"`
	CreatedAt string          `json:"created_at"`
	Content   []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func convertClaude(raw []json.RawMessage, now time.Time) ([]models.Conversation, error) {
	conversations := make([]models.Conversation, 0, len(raw))
	for i, item := range raw {
		var payload claudeConversation
		if err := json.Unmarshal(item, &payload); err != nil {
			return nil, fmt.Errorf("conversation %d: %w", i, err)
		}
		if len(payload.ChatMessages) == 0 {
			continue
		}
		conversations = append(conversations, convertClaudeConversation(payload, now))
	}
	return conversations, nil
}

func convertClaudeConversation(raw claudeConversation, now time.Time) models.Conversation {
	messages := make([]models.Message, 0, len(raw.ChatMessages))
	var latest int64
	for i, msg := range raw.ChatMessages {
		created, ok := parseISO(msg.CreatedAt)
		if !ok {
			created = now.Unix()
		} else if created > latest {
			latest = created
		}

		id := cleanID(msg.UUID)
		if id == "" {
			id = cleanID(fmt.Sprintf("%s-%d", raw.UUID, i))
		}

		messages = append(messages, models.Message{
			ID:         id,
			Role:       models.ParseRole(msg.Sender),
			CreateTime: created,
			Parts:      claudeParts(msg),
		})
	}

	createTime, ok := parseISO(raw.CreatedAt)
	if !ok {
		createTime = now.Unix()
	}
	updateTime, ok := parseISO(raw.UpdatedAt)
	if !ok {
		updateTime = latest
	}
	if updateTime < createTime {
		updateTime = createTime
	}

	title := strings.TrimSpace(raw.Name)
	id := cleanID(raw.UUID)
	if id == "" {
		id = newDeterministicID(title, time.Unix(createTime, 0).UTC())
	}

	return models.Conversation{
		ID:         id,
		Title:      title,
		Provider:   models.ProviderClaude,
		CreateTime: createTime,
		UpdateTime: updateTime,
		Messages:   messages,
	}
}

func claudeParts(msg claudeMessage) []models.Part {
	if len(msg.Content) == 0 {
		if msg.Text == "" {
			return nil
		}
		return []models.Part{models.TextPart(msg.Text)}
	}
	parts := make([]models.Part, 0, len(msg.Content))
	for _, c := range msg.Content {
		if c.Type == "text" {
			parts = append(parts, models.TextPart(c.Text))
			continue
		}
		parts = append(parts, models.Part{Kind: models.PartUnsupported, Text: c.Type})
	}
	return parts
}

func parseISO(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}
