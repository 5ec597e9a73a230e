package note

import (
	"strings"
)

const (
	markerPrefix = "<!-- UID: "
	markerSuffix = " -->"
)

// FormatMarker returns the line that terminates a rendered message.
func FormatMarker(id string) string {
	return markerPrefix + id + markerSuffix
}

// ParseMarker returns the message id embedded in a marker line.
func ParseMarker(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, markerPrefix) || !strings.HasSuffix(line, markerSuffix) {
		return "", false
	}
	id := strings.TrimSpace(line[len(markerPrefix) : len(line)-len(markerSuffix)])
	if id == "" {
		return "", false
	}
	return id, true
}

// ScanMessageIDs lists marker ids in document order.
func ScanMessageIDs(text string) []string {
	var ids []string
	for _, line := range strings.Split(text, "\n") {
		if id, ok := ParseMarker(line); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// MessageIDSet is ScanMessageIDs as a set.
func MessageIDSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, id := range ScanMessageIDs(text) {
		set[id] = struct{}{}
	}
	return set
}

// Block is one rendered message, from its heading through its marker line.
type Block struct {
	ID   string
	Text string
}

// SplitMessages cuts a note body into rendered message blocks. Text before
// the first message heading is not part of any block.
func SplitMessages(body string) []Block {
	var (
		blocks  []Block
		current []string
		started bool
	)
	for _, line := range strings.Split(body, "\n") {
		if !started {
			if !isMessageHeading(line) {
				continue
			}
			started = true
		}
		current = append(current, line)
		if id, ok := ParseMarker(line); ok {
			blocks = append(blocks, Block{ID: id, Text: strings.Join(current, "\n") + "\n"})
			current = nil
			started = false
		}
	}
	return blocks
}

func isMessageHeading(line string) bool {
	return strings.HasPrefix(line, humanHeading) || strings.HasPrefix(line, otherHeading)
}
