package importer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"chatvault/internal/models"
)

type exportConversation struct {
	ID             string                `json:"id"`
	ConversationID string                `json:"conversation_id"`
	Title          string                `json:"title"`
	CreateTime     *float64              `json:"create_time"`
	UpdateTime     *float64              `json:"update_time"`
	CurrentNode    string                `json:"current_node"`
	Mapping        map[string]exportNode `json:"mapping"`
}

type exportNode struct {
	ID       string         `json:"id"`
	Parent   string         `json:"parent"`
	Children []string       `json:"children"`
	Message  *exportMessage `json:"message"`
}

type exportMessage struct {
	ID         string         `json:"id"`
	Author     exportAuthor   `json:"author"`
	CreateTime *float64       `json:"create_time"`
	UpdateTime *float64       `json:"update_time"`
	Content    exportContent  `json:"content"`
	Metadata   exportMetadata `json:"metadata"`
}

type exportAuthor struct {
	Role string `json:"role"`
}

type exportContent struct {
	ContentType string            `json:"content_type"`
	Parts       []json.RawMessage `json:"parts"`
	Text        string            `json:"text"`
	Language    string            `json:"language"`
}

type exportMetadata struct {
	Hidden bool `json:"is_visually_hidden_from_conversation"`
}

type exportPart struct {
	ContentType string `json:"content_type"`
}

func convertChatGPT(raw []json.RawMessage, now time.Time) ([]models.Conversation, error) {
	conversations := make([]models.Conversation, 0, len(raw))
	for i, item := range raw {
		var payload exportConversation
		if err := json.Unmarshal(item, &payload); err != nil {
			return nil, fmt.Errorf("conversation %d: %w", i, err)
		}
		if conv := convertConversation(payload, now); conv != nil {
			conversations = append(conversations, *conv)
		}
	}
	return conversations, nil
}

func convertConversation(raw exportConversation, now time.Time) *models.Conversation {
	if len(raw.Mapping) == 0 {
		return nil
	}

	timeline := traversalPath(raw)
	if len(timeline) == 0 {
		return nil
	}

	var (
		earliest int64
		latest   int64
		messages []models.Message
	)

	for _, node := range timeline {
		msg := node.Message
		if msg == nil || msg.Metadata.Hidden {
			continue
		}
		if strings.EqualFold(msg.Author.Role, "system") {
			continue
		}

		created, ok := toUnix(msg.CreateTime)
		if ok {
			if earliest == 0 || created < earliest {
				earliest = created
			}
			if created > latest {
				latest = created
			}
		} else {
			created = now.Unix()
		}

		id := cleanID(msg.ID)
		if id == "" {
			id = cleanID(node.ID)
		}

		messages = append(messages, models.Message{
			ID:         id,
			Role:       models.ParseRole(msg.Author.Role),
			CreateTime: created,
			Parts:      extractParts(msg.Content),
		})
	}

	createTime, ok := toUnix(raw.CreateTime)
	if !ok {
		createTime = earliest
	}
	if createTime == 0 {
		createTime = now.Unix()
	}

	updateTime, ok := toUnix(raw.UpdateTime)
	if !ok {
		updateTime = latest
	}
	if updateTime < createTime {
		updateTime = createTime
	}

	title := strings.TrimSpace(raw.Title)

	id := cleanID(raw.ConversationID)
	if id == "" {
		id = cleanID(raw.ID)
	}
	if id == "" {
		id = newDeterministicID(title, time.Unix(createTime, 0).UTC())
	}

	return &models.Conversation{
		ID:         id,
		Title:      title,
		Provider:   models.ProviderChatGPT,
		CreateTime: createTime,
		UpdateTime: updateTime,
		Messages:   messages,
	}
}

func traversalPath(raw exportConversation) []exportNode {
	if raw.CurrentNode == "" {
		return timelineByTimestamps(raw)
	}

	path := make([]exportNode, 0, len(raw.Mapping))
	seen := make(map[string]bool)
	nodeID := raw.CurrentNode

	for nodeID != "" {
		node, ok := raw.Mapping[nodeID]
		if !ok || seen[nodeID] {
			break
		}
		if node.ID == "" {
			node.ID = nodeID
		}
		path = append(path, node)
		seen[nodeID] = true
		nodeID = node.Parent
	}

	// reverse to chronological order from root to leaf
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	if len(path) == 0 {
		return timelineByTimestamps(raw)
	}

	return path
}

func timelineByTimestamps(raw exportConversation) []exportNode {
	nodes := make([]exportNode, 0, len(raw.Mapping))
	for key, node := range raw.Mapping {
		if node.ID == "" {
			node.ID = key
		}
		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool {
		ti, okI := toUnix(nodes[i].Message.GetCreateTime())
		tj, okJ := toUnix(nodes[j].Message.GetCreateTime())
		if okI && okJ {
			if ti == tj {
				return nodes[i].ID < nodes[j].ID
			}
			return ti < tj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return nodes[i].ID < nodes[j].ID
	})

	return nodes
}

func extractParts(content exportContent) []models.Part {
	switch content.ContentType {
	case "text", "multimodal_text":
		return collectParts(content.Parts)
	case "code":
		if strings.TrimSpace(content.Text) == "" {
			return nil
		}
		lang := content.Language
		if lang == "unknown" {
			lang = ""
		}
		return []models.Part{models.TextPart("```" + lang + "\n" + strings.TrimSpace(content.Text) + "\n```")}
	case "":
		return nil
	default:
		return []models.Part{{Kind: models.PartUnsupported, Text: content.ContentType}}
	}
}

func collectParts(parts []json.RawMessage) []models.Part {
	out := make([]models.Part, 0, len(parts))
	for _, part := range parts {
		var text string
		if err := json.Unmarshal(part, &text); err == nil {
			out = append(out, models.TextPart(text))
			continue
		}
		var obj exportPart
		if err := json.Unmarshal(part, &obj); err == nil && obj.ContentType != "" {
			out = append(out, models.Part{Kind: models.PartUnsupported, Text: obj.ContentType})
		}
	}
	return out
}

func toUnix(value *float64) (int64, bool) {
	if value == nil || *value <= 0 {
		return 0, false
	}
	return int64(math.Floor(*value)), true
}

// cleanID makes an id safe to embed in a note: surrounding space is dropped,
// inner whitespace runs become one space and a comment terminator is broken
// up, so the id reads back from its marker and header unchanged.
func cleanID(raw string) string {
	id := strings.Join(strings.Fields(raw), " ")
	return strings.ReplaceAll(id, "-->", "--&gt;")
}

func newDeterministicID(seed string, t time.Time) string {
	base := strings.ReplaceAll(strings.ToLower(seed), " ", "-")
	if base == "" {
		base = "conversation"
	}
	return cleanID(base + "-" + t.Format("20060102150405"))
}

func (m *exportMessage) GetCreateTime() *float64 {
	if m == nil {
		return nil
	}
	return m.CreateTime
}
