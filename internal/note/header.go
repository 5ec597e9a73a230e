package note

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"chatvault/internal/models"
)

// Header field keys, in the order new notes carry them.
const (
	KeyImporter       = "importer"
	KeyProvider       = "provider"
	KeyAliases        = "aliases"
	KeyConversationID = "conversation_id"
	KeyCreateTime     = "create_time"
	KeyUpdateTime     = "update_time"
)

// ImporterName marks notes written by this tool.
const ImporterName = "chatvault"

const fence = "---"

var (
	ErrNoHeader = errors.New("note has no metadata header")

	fieldLine = regexp.MustCompile(`^([A-Za-z0-9_-]+):(?:[ \t]+(.*?))?[ \t]*$`)
)

type headerLine struct {
	field bool
	key   string
	value string // encoded YAML scalar
	raw   string // verbatim text of lines that are not key: value fields
}

// Header is the ordered key: value block between two --- fences at the top
// of a note. Lines that are not simple fields are kept verbatim.
type Header struct {
	lines []headerLine
}

// ParseHeader splits text into its header and the body following the
// closing fence.
func ParseHeader(text string) (Header, string, error) {
	rest, ok := cutLine(text, fence)
	if !ok {
		return Header{}, text, ErrNoHeader
	}

	var h Header
	for rest != "" {
		line, next := splitFirstLine(rest)
		if strings.TrimRight(line, " \t\r") == fence {
			return h, next, nil
		}
		h.lines = append(h.lines, parseHeaderLine(strings.TrimRight(line, "\r")))
		rest = next
	}
	return Header{}, text, errors.Wrap(ErrNoHeader, "unterminated header")
}

func parseHeaderLine(line string) headerLine {
	m := fieldLine.FindStringSubmatch(line)
	if m == nil {
		return headerLine{raw: line}
	}
	return headerLine{field: true, key: m[1], value: m[2]}
}

// Get returns the decoded value of key.
func (h Header) Get(key string) (string, bool) {
	for _, l := range h.lines {
		if l.field && l.key == key {
			return decodeScalar(l.value), true
		}
	}
	return "", false
}

// Set replaces the value of key in place, or appends the field. The value is
// always written as a YAML string.
func (h *Header) Set(key, value string) {
	h.set(key, encodeScalar("!!str", strings.Join(strings.Fields(value), " ")))
}

// SetTime writes an RFC 3339 timestamp as a plain YAML timestamp.
func (h *Header) SetTime(key string, t time.Time) {
	h.set(key, encodeScalar("!!timestamp", t.Format(time.RFC3339)))
}

func (h *Header) set(key, encoded string) {
	for i, l := range h.lines {
		if l.field && l.key == key {
			h.lines[i].value = encoded
			return
		}
	}
	h.lines = append(h.lines, headerLine{field: true, key: key, value: encoded})
}

// Keys lists field keys in order.
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h.lines))
	for _, l := range h.lines {
		if l.field {
			keys = append(keys, l.key)
		}
	}
	return keys
}

// String renders the header including both fences and a trailing newline.
func (h Header) String() string {
	var b strings.Builder
	b.WriteString(fence + "\n")
	for _, l := range h.lines {
		if !l.field {
			b.WriteString(l.raw)
		} else if l.value == "" {
			b.WriteString(l.key + ":")
		} else {
			b.WriteString(l.key + ": " + l.value)
		}
		b.WriteString("\n")
	}
	b.WriteString(fence + "\n")
	return b.String()
}

// Metadata is the typed view of a note header.
type Metadata struct {
	ConversationID string
	Provider       models.Provider
	Title          string
	CreateTime     int64
	UpdateTime     int64
}

// ReadMetadata extracts the conversation fields; conversation_id is required.
func ReadMetadata(h Header) (Metadata, error) {
	var md Metadata
	id, _ := h.Get(KeyConversationID)
	md.ConversationID = strings.TrimSpace(id)
	if md.ConversationID == "" {
		return Metadata{}, errors.New("header has no conversation_id")
	}
	provider, _ := h.Get(KeyProvider)
	md.Provider = models.Provider(strings.TrimSpace(provider))
	md.Title, _ = h.Get(KeyAliases)

	var err error
	if md.CreateTime, err = headerTime(h, KeyCreateTime); err != nil {
		return Metadata{}, err
	}
	if md.UpdateTime, err = headerTime(h, KeyUpdateTime); err != nil {
		return Metadata{}, err
	}
	if md.UpdateTime < md.CreateTime {
		md.UpdateTime = md.CreateTime
	}
	return md, nil
}

func headerTime(h Header, key string) (int64, error) {
	raw, ok := h.Get(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.Wrapf(err, "header field %s", key)
	}
	return t.Unix(), nil
}

func encodeScalar(tag, value string) string {
	out, err := yaml.Marshal(&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value})
	if err != nil {
		return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
	}
	return strings.TrimRight(string(out), "\n")
}

func decodeScalar(value string) string {
	if value == "" {
		return ""
	}
	var s string
	if err := yaml.Unmarshal([]byte(value), &s); err != nil {
		return value
	}
	return s
}

// cutLine strips a first line equal to want (ignoring trailing whitespace).
func cutLine(text, want string) (string, bool) {
	line, rest := splitFirstLine(text)
	if strings.TrimRight(line, " \t\r") != want {
		return text, false
	}
	return rest, true
}

func splitFirstLine(text string) (string, string) {
	idx := strings.IndexByte(text, '\n')
	if idx < 0 {
		return text, ""
	}
	return text[:idx], text[idx+1:]
}
