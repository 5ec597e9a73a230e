// Package importer turns provider export archives into normalized conversations.
package importer

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"chatvault/internal/archive"
	"chatvault/internal/models"
)

// IndexEntry is the file every supported export keeps its conversations in.
const IndexEntry = "conversations.json"

// ErrMalformedArchive means the conversation index is absent or unparseable.
var ErrMalformedArchive = errors.New("malformed archive")

// Options controls extraction.
type Options struct {
	// Provider forces a parser; empty or "auto" detects from the JSON shape.
	Provider string
	// Now stands in for absent message timestamps.
	Now time.Time
}

// Extract reads the conversation index of c. It returns either every
// conversation or an error, never a partial result.
func Extract(c archive.Container, opts Options) ([]models.Conversation, error) {
	name, ok := findIndex(c.Entries())
	if !ok {
		return nil, errors.Wrapf(ErrMalformedArchive, "%s not found", IndexEntry)
	}

	text, err := c.ReadEntryAsText(name)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedArchive, "read %s: %v", name, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, errors.Wrapf(ErrMalformedArchive, "parse %s: %v", name, err)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	provider := models.Provider(strings.ToLower(opts.Provider))
	if provider == "" || provider == "auto" {
		provider, err = detectProvider(raw)
		if err != nil {
			return nil, err
		}
	}

	var conversations []models.Conversation
	switch provider {
	case models.ProviderChatGPT:
		conversations, err = convertChatGPT(raw, now)
	case models.ProviderClaude:
		conversations, err = convertClaude(raw, now)
	default:
		return nil, errors.Errorf("unsupported provider %q", provider)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedArchive, "parse %s: %v", name, err)
	}
	return conversations, nil
}

// LoadAndConvert reads an export zip or a bare conversations.json from disk.
func LoadAndConvert(filePath string, opts Options) ([]models.Conversation, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", filePath)
	}
	c, err := Open(data, filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	return Extract(c, opts)
}

// Open picks the container for raw export bytes: zip archives by magic
// number, anything else is treated as a bare conversations.json.
func Open(data []byte, displayName string) (archive.Container, error) {
	if len(data) >= 4 && string(data[:4]) == "PK\x03\x04" {
		c, err := archive.OpenZip(data)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedArchive, "%s: %v", displayName, err)
		}
		return c, nil
	}
	if strings.EqualFold(filepath.Ext(displayName), ".zip") {
		return nil, errors.Wrapf(ErrMalformedArchive, "%s is not a zip archive", displayName)
	}
	return archive.Single(IndexEntry, string(data)), nil
}

func findIndex(entries []string) (string, bool) {
	for _, name := range entries {
		if path.Base(name) == IndexEntry {
			return name, true
		}
	}
	return "", false
}

func detectProvider(raw []json.RawMessage) (models.Provider, error) {
	if len(raw) == 0 {
		return models.ProviderChatGPT, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw[0], &probe); err != nil {
		return "", errors.Wrapf(ErrMalformedArchive, "conversation 0 is not an object: %v", err)
	}
	if _, ok := probe["mapping"]; ok {
		return models.ProviderChatGPT, nil
	}
	if _, ok := probe["chat_messages"]; ok {
		return models.ProviderClaude, nil
	}
	return "", errors.Wrap(ErrMalformedArchive, "unrecognized conversation format")
}
