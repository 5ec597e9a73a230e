package paths

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatvault/internal/vault"
)

const nov2023 = int64(1700000000) // 2023-11-14T22:13:20Z

func TestSanitizeTitle(t *testing.T) {
	cases := map[string]string{
		"Trip":                 "Trip",
		"  a/b\\c  ":           "a b c",
		"What? <Really>: yes*": "What Really yes",
		"...":                  Untitled,
		"":                     Untitled,
		"line\nbreak\ttab":     "line break tab",
		"[[link]] #tag ^ref":   "link tag ref",
		"ends with dot.":       "ends with dot",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeTitle(in), "input %q", in)
	}

	long := strings.Repeat("é", 150)
	assert.Len(t, []rune(SanitizeTitle(long)), maxTitleRunes)
}

func TestResolve_BucketsAndDeterministicSuffix(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(vault.NewMemory(), Options{BaseFolder: "AI Conversations"})

	first, err := r.Resolve(ctx, "Trip", nov2023, "")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "Trip", nov2023, "")
	require.NoError(t, err)

	assert.Equal(t, "AI Conversations/2023/11/Trip.md", first)
	assert.Equal(t, "AI Conversations/2023/11/Trip (1).md", second)
}

func TestResolve_SameExistingSetSameAnswer(t *testing.T) {
	ctx := context.Background()
	setup := func() *vault.Memory {
		v := vault.NewMemory()
		require.NoError(t, v.WriteText(ctx, "AI/2023/11/Trip.md", "x"))
		require.NoError(t, v.WriteText(ctx, "AI/2023/11/Trip (1).md", "x"))
		return v
	}

	a, err := NewResolver(setup(), Options{BaseFolder: "AI"}).Resolve(ctx, "Trip", nov2023, "")
	require.NoError(t, err)
	b, err := NewResolver(setup(), Options{BaseFolder: "AI"}).Resolve(ctx, "Trip", nov2023, "")
	require.NoError(t, err)

	assert.Equal(t, "AI/2023/11/Trip (2).md", a)
	assert.Equal(t, a, b)
}

func TestResolve_OwnPathIsNotACollision(t *testing.T) {
	ctx := context.Background()
	v := vault.NewMemory()
	require.NoError(t, v.WriteText(ctx, "AI/2023/11/Trip.md", "mine"))

	got, err := NewResolver(v, Options{BaseFolder: "AI"}).Resolve(ctx, "Trip", nov2023, "AI/2023/11/Trip.md")
	require.NoError(t, err)
	assert.Equal(t, "AI/2023/11/Trip.md", got)
}

func TestResolve_DatePrefixAndLocation(t *testing.T) {
	ctx := context.Background()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	r := NewResolver(vault.NewMemory(), Options{BaseFolder: "AI", DatePrefix: PrefixDashed, Location: tokyo})
	got, err := r.Resolve(ctx, "Trip", nov2023, "")
	require.NoError(t, err)
	assert.Equal(t, "AI/2023/11/2023-11-15 - Trip.md", got)

	r = NewResolver(vault.NewMemory(), Options{BaseFolder: "AI", DatePrefix: PrefixCompact})
	got, err = r.Resolve(ctx, "", nov2023, "")
	require.NoError(t, err)
	assert.Equal(t, "AI/2023/11/20231114 - Untitled.md", got)
}

type brokenVault struct{ vault.Vault }

func (brokenVault) EnsureFolder(context.Context, string) error { return errors.New("read-only") }

func TestResolve_FolderCreationFailed(t *testing.T) {
	r := NewResolver(brokenVault{vault.NewMemory()}, Options{BaseFolder: "AI"})
	_, err := r.Resolve(context.Background(), "Trip", nov2023, "")
	assert.ErrorIs(t, err, ErrFolderCreationFailed)
}

func TestParseDatePrefix(t *testing.T) {
	p, err := ParseDatePrefix("")
	require.NoError(t, err)
	assert.Equal(t, PrefixNone, p)

	_, err = ParseDatePrefix("DD/MM")
	assert.Error(t, err)
}
