package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"user":      RoleHuman,
		"Human":     RoleHuman,
		"assistant": RoleAssistant,
		"tool":      RoleUnknown,
		"":          RoleUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseRole(raw), raw)
	}
}

func TestRoleJSON(t *testing.T) {
	data, err := json.Marshal(Message{ID: "m1", Role: RoleAssistant})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role":"assistant"`)

	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m2","role":"user"}`), &m))
	assert.Equal(t, RoleHuman, m.Role)
}

func TestMessageValidity(t *testing.T) {
	image := Message{ID: "a", Parts: []Part{TextPart("  "), {Kind: PartUnsupported, Text: "image_asset_pointer"}}}
	assert.False(t, image.Valid())
	assert.True(t, image.Renderable())

	blank := Message{ID: "c", Parts: []Part{TextPart(" \n ")}}
	assert.False(t, blank.Valid())
	assert.False(t, blank.Renderable())

	ok := Message{ID: "b", Parts: []Part{TextPart(" Hi "), TextPart(""), TextPart("there")}}
	assert.True(t, ok.Valid())
	assert.Equal(t, "Hi\n\nthere", ok.Text())

	assert.True(t, ok.Renderable())

	conv := Conversation{Messages: []Message{image, ok, blank}}
	shown := conv.RenderableMessages()
	require.Len(t, shown, 2)
	assert.Equal(t, "a", shown[0].ID)
	assert.Equal(t, "b", shown[1].ID)

	got, found := conv.Message("a")
	assert.True(t, found)
	assert.Equal(t, "a", got.ID)
}
