package importer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatvault/internal/archive"
	"chatvault/internal/models"
	"chatvault/internal/note"
)

const chatGPTExport = `[
  {
    "id": "c1",
    "conversation_id": "c1",
    "title": " Trip ",
    "create_time": 1700000000.25,
    "update_time": 1700000500.9,
    "current_node": "n4",
    "mapping": {
      "root": {"id": "root", "parent": "", "children": ["n0"], "message": null},
      "n0": {"id": "n0", "parent": "root", "children": ["n1"], "message": {
        "id": "n0", "author": {"role": "system"}, "create_time": null,
        "content": {"content_type": "text", "parts": ["hidden system prompt"]}}},
      "n1": {"id": "n1", "parent": "n0", "children": ["n2", "alt"], "message": {
        "id": "m1", "author": {"role": "user"}, "create_time": 1700000001,
        "content": {"content_type": "text", "parts": ["Hi"]}}},
      "alt": {"id": "alt", "parent": "n1", "children": [], "message": {
        "id": "abandoned", "author": {"role": "assistant"}, "create_time": 1700000002,
        "content": {"content_type": "text", "parts": ["old branch"]}}},
      "n2": {"id": "n2", "parent": "n1", "children": ["n3"], "message": {
        "id": "m2", "author": {"role": "assistant"}, "create_time": 1700000003,
        "content": {"content_type": "multimodal_text", "parts": ["Hello", {"content_type": "image_asset_pointer"}]}}},
      "n3": {"id": "n3", "parent": "n2", "children": ["n4"], "message": {
        "id": "m3", "author": {"role": "tool"},
        "metadata": {"is_visually_hidden_from_conversation": true},
        "content": {"content_type": "text", "parts": ["tool chatter"]}}},
      "n4": {"id": "n4", "parent": "n3", "children": [], "message": {
        "id": "m4", "author": {"role": "assistant"},
        "content": {"content_type": "code", "language": "python", "text": "print(1)"}}}
    }
  },
  {"id": "empty", "title": "nothing", "mapping": {}}
]`

const claudeExport = `[
  {
    "uuid": "k1",
    "name": "Claude chat",
    "created_at": "2024-03-01T10:00:00.000000Z",
    "updated_at": "2024-03-01T10:05:00.000000Z",
    "chat_messages": [
      {"uuid": "q1", "sender": "human", "created_at": "2024-03-01T10:00:01Z", "text": "Question", "content": []},
      {"uuid": "a1", "sender": "assistant", "created_at": "2024-03-01T10:00:02Z",
       "content": [{"type": "text", "text": "Answer"}, {"type": "tool_use"}]}
    ]
  }
]`

func TestExtract_ChatGPT(t *testing.T) {
	now := time.Unix(1800000000, 0)
	convs, err := Extract(archive.Single(IndexEntry, chatGPTExport), Options{Now: now})
	require.NoError(t, err)
	require.Len(t, convs, 1, "conversations without a mapping are dropped")

	c := convs[0]
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "Trip", c.Title)
	assert.Equal(t, models.ProviderChatGPT, c.Provider)
	assert.Equal(t, int64(1700000000), c.CreateTime)
	assert.Equal(t, int64(1700000500), c.UpdateTime)

	ids := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m4"}, ids, "current branch only, system and hidden nodes dropped")

	assert.Equal(t, models.RoleHuman, c.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, c.Messages[1].Role)
	assert.Equal(t, []models.Part{
		models.TextPart("Hello"),
		{Kind: models.PartUnsupported, Text: "image_asset_pointer"},
	}, c.Messages[1].Parts)

	assert.Equal(t, now.Unix(), c.Messages[2].CreateTime, "missing timestamps default to now")
	assert.Equal(t, "```python\nprint(1)\n```", c.Messages[2].Text())
}

func TestExtract_ChatGPTWithoutCurrentNodeUsesTimestamps(t *testing.T) {
	export := `[{"id":"c2","title":"t","create_time":10,"update_time":20,"mapping":{
	  "b":{"message":{"id":"b","author":{"role":"assistant"},"create_time":12,"content":{"content_type":"text","parts":["second"]}}},
	  "a":{"message":{"id":"a","author":{"role":"user"},"create_time":11,"content":{"content_type":"text","parts":["first"]}}}
	}}]`
	convs, err := Extract(archive.Single(IndexEntry, export), Options{})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 2)
	assert.Equal(t, "a", convs[0].Messages[0].ID)
	assert.Equal(t, "b", convs[0].Messages[1].ID)
}

func TestExtract_IDsSurviveTheMarkerRoundTrip(t *testing.T) {
	export := `[{"id":"  c3\n","title":"t","create_time":10,"update_time":20,"current_node":"n3","mapping":{
	  "n1":{"id":"n1","children":["n2"],"message":{"id":" m1 ","author":{"role":"user"},"create_time":11,"content":{"content_type":"text","parts":["one"]}}},
	  "n2":{"id":"n2","parent":"n1","children":["n3"],"message":{"id":"m2\nsplit","author":{"role":"assistant"},"create_time":12,"content":{"content_type":"text","parts":["two"]}}},
	  "n3":{"id":" n3 ","parent":"n2","message":{"id":"a-->b","author":{"role":"user"},"create_time":13,"content":{"content_type":"text","parts":["three"]}}}
	}}]`
	convs, err := Extract(archive.Single(IndexEntry, export), Options{})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	c := convs[0]
	assert.Equal(t, "c3", c.ID)
	ids := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2 split", "a--&gt;b"}, ids)

	text := note.Renderer{}.RenderNote(c)
	assert.Equal(t, ids, note.ScanMessageIDs(text))
	assert.Empty(t, note.Delta(c, text))
}

func TestCleanID(t *testing.T) {
	assert.Equal(t, "abc", cleanID("  abc\t"))
	assert.Equal(t, "a b", cleanID("a \n\n b"))
	assert.Equal(t, "x--&gt;", cleanID("x-->"))
	assert.Equal(t, "", cleanID(" \n "))
}

func TestExtract_Claude(t *testing.T) {
	convs, err := Extract(archive.Single("export/"+IndexEntry, claudeExport), Options{})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	c := convs[0]
	assert.Equal(t, "k1", c.ID)
	assert.Equal(t, models.ProviderClaude, c.Provider)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC).Unix(), c.UpdateTime)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, models.RoleHuman, c.Messages[0].Role)
	assert.Equal(t, "Question", c.Messages[0].Text())
	assert.Equal(t, "Answer", c.Messages[1].Text())
}

func TestExtract_ForcedProvider(t *testing.T) {
	_, err := Extract(archive.Single(IndexEntry, claudeExport), Options{Provider: "chatgpt"})
	require.NoError(t, err, "claude objects decode as chatgpt with no mapping and are dropped")

	_, err = Extract(archive.Single(IndexEntry, claudeExport), Options{Provider: "gemini"})
	assert.Error(t, err)
}

func TestExtract_Malformed(t *testing.T) {
	cases := map[string]archive.Container{
		"missing index":  archive.Single("user.json", "{}"),
		"invalid json":   archive.Single(IndexEntry, "{not json"),
		"object root":    archive.Single(IndexEntry, `{"mapping":{}}`),
		"unknown shape":  archive.Single(IndexEntry, `[{"foo":1}]`),
		"non-object row": archive.Single(IndexEntry, `[42]`),
		"bad field type": archive.Single(IndexEntry, `[{"mapping":{}, "title": 5}]`),
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			convs, err := Extract(c, Options{})
			assert.True(t, errors.Is(err, ErrMalformedArchive), "got %v", err)
			assert.Nil(t, convs)
		})
	}
}

func TestLoadAndConvert(t *testing.T) {
	file := filepath.Join(t.TempDir(), "conversations.json")
	require.NoError(t, os.WriteFile(file, []byte(chatGPTExport), 0o644))

	convs, err := LoadAndConvert(file, Options{})
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestOpen(t *testing.T) {
	c, err := Open([]byte("[]"), "conversations.json")
	require.NoError(t, err)
	assert.Equal(t, []string{IndexEntry}, c.Entries())

	_, err = Open([]byte("garbage"), "export.zip")
	assert.True(t, errors.Is(err, ErrMalformedArchive))
}
