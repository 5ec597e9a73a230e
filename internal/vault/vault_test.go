package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "a/b/c.md", Clean("/a//b/./c.md"))
	assert.Equal(t, "a/c.md", Clean("a\\b\\..\\c.md"))
	assert.Equal(t, "", Clean("/"))
}

func exerciseVault(t *testing.T, v Vault) {
	ctx := context.Background()

	_, err := v.ReadText(ctx, "AI/2023/11/Trip.md")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := v.Exists(ctx, "AI/2023/11")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, v.EnsureFolder(ctx, "AI/2023/11"))
	ok, err = v.Exists(ctx, "AI/2023/11")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, v.WriteText(ctx, "AI/2023/11/Trip.md", "hello"))
	text, err := v.ReadText(ctx, "AI/2023/11/Trip.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	require.NoError(t, v.WriteText(ctx, "AI/2023/11/Trip.md", "hello again"))
	text, err = v.ReadText(ctx, "AI/2023/11/Trip.md")
	require.NoError(t, err)
	assert.Equal(t, "hello again", text)

	err = v.EnsureFolder(ctx, "AI/2023/11/Trip.md")
	require.Error(t, err)
	_, hasStack := err.(interface{ StackTrace() errors.StackTrace })
	assert.True(t, hasStack, "errors carry a stack for zerolog")
}

func TestLocal(t *testing.T) {
	root := t.TempDir()
	v, err := NewLocal(root)
	require.NoError(t, err)
	exerciseVault(t, v)

	_, err = os.Stat(filepath.Join(root, "AI", "2023", "11", "Trip.md.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestMemory(t *testing.T) {
	exerciseVault(t, NewMemory())
}

func TestOverlay_DoesNotWriteThrough(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	require.NoError(t, base.WriteText(ctx, "n.md", "base"))

	over := NewOverlay(base)
	text, err := over.ReadText(ctx, "n.md")
	require.NoError(t, err)
	assert.Equal(t, "base", text)

	require.NoError(t, over.WriteText(ctx, "n.md", "changed"))
	text, _ = over.ReadText(ctx, "n.md")
	assert.Equal(t, "changed", text)

	text, _ = base.ReadText(ctx, "n.md")
	assert.Equal(t, "base", text)
	assert.Equal(t, []string{"n.md"}, over.Files())
}
