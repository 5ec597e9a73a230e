package note

import (
	"strings"

	"github.com/pkg/errors"

	"chatvault/internal/models"
)

// Delta returns the renderable messages of conv whose ids have no marker in
// existing, in stored order.
func Delta(conv models.Conversation, existing string) []models.Message {
	seen := MessageIDSet(existing)
	var out []models.Message
	for _, m := range conv.Messages {
		if !m.Renderable() {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// UpdateMetadata rewrites the revision time in the header field and in the
// human-readable "Last Updated:" line. Everything else is left byte for byte.
func (r Renderer) UpdateMetadata(text string, updateTime int64) (string, error) {
	h, body, err := ParseHeader(text)
	if err != nil {
		return "", err
	}
	h.SetTime(KeyUpdateTime, r.machineTime(updateTime))
	return h.String() + replaceLastUpdated(body, r.displayTime(updateTime)), nil
}

// replaceLastUpdated touches only the title block, before the first message.
func replaceLastUpdated(body, display string) string {
	offset := 0
	for offset < len(body) {
		line, _ := splitFirstLine(body[offset:])
		if isMessageHeading(line) {
			break
		}
		if _, ok := ParseMarker(line); ok {
			break
		}
		if strings.HasPrefix(line, lastUpdatedPrefix) {
			end := offset + len(line)
			trailing := ""
			if strings.HasSuffix(line, "\r") {
				trailing = "\r"
			}
			return body[:offset] + lastUpdatedPrefix + display + trailing + body[end:]
		}
		offset += len(line) + 1
	}
	return body
}

// AppendMessages appends rendered messages, separating them from existing
// text with a blank line when it does not already end with one.
func AppendMessages(text, rendered string) string {
	if rendered == "" {
		return text
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if text != "" && !strings.HasSuffix(text, "\n\n") {
		text += "\n"
	}
	return text + rendered
}

// MergeBlocks appends the blocks whose ids are missing from existing and
// reports how many were added.
func MergeBlocks(existing string, blocks []Block) (string, int) {
	seen := MessageIDSet(existing)
	var b strings.Builder
	added := 0
	for _, blk := range blocks {
		if _, ok := seen[blk.ID]; ok {
			continue
		}
		seen[blk.ID] = struct{}{}
		b.WriteString(blk.Text)
		b.WriteString("\n")
		added++
	}
	return AppendMessages(existing, b.String()), added
}

// ErrForeignNote means the note header belongs to another conversation.
var ErrForeignNote = errors.New("note belongs to a different conversation")

// CheckOwner verifies the note at hand carries conversationID.
func CheckOwner(text, conversationID string) error {
	h, _, err := ParseHeader(text)
	if err != nil {
		return err
	}
	id, _ := h.Get(KeyConversationID)
	if id != conversationID {
		return errors.Wrapf(ErrForeignNote, "expected %s, found %q", conversationID, id)
	}
	return nil
}
