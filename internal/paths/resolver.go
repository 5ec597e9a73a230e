// Package paths derives collision-free note locations for conversations.
package paths

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"

	"chatvault/internal/vault"
)

// ErrFolderCreationFailed is fatal for the conversation being resolved only.
var ErrFolderCreationFailed = errors.New("folder creation failed")

// Untitled replaces titles that sanitize to nothing.
const Untitled = "Untitled"

const maxTitleRunes = 100

type DatePrefix string

const (
	PrefixNone    DatePrefix = "none"
	PrefixDashed  DatePrefix = "YYYY-MM-DD"
	PrefixCompact DatePrefix = "YYYYMMDD"
)

func ParseDatePrefix(raw string) (DatePrefix, error) {
	switch DatePrefix(strings.TrimSpace(raw)) {
	case "", PrefixNone:
		return PrefixNone, nil
	case PrefixDashed:
		return PrefixDashed, nil
	case PrefixCompact:
		return PrefixCompact, nil
	default:
		return "", fmt.Errorf("unsupported DATE_PREFIX: %s", raw)
	}
}

// Options are the naming settings for one run.
type Options struct {
	BaseFolder string
	DatePrefix DatePrefix
	// Location buckets and prefixes dates; nil means UTC.
	Location *time.Location
}

// Resolver hands out note paths. Paths it returned earlier in the run count
// as taken even before anything is written to them.
type Resolver struct {
	vault   vault.Vault
	opts    Options
	claimed map[string]struct{}
}

func NewResolver(v vault.Vault, opts Options) *Resolver {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Resolver{vault: v, opts: opts, claimed: map[string]struct{}{}}
}

// Folder returns base/YYYY/MM for createTime.
func (r *Resolver) Folder(createTime int64) string {
	t := time.Unix(createTime, 0).In(r.opts.Location)
	return vault.Clean(path.Join(r.opts.BaseFolder, t.Format("2006"), t.Format("01")))
}

// BaseName is the file name before any collision suffix, without extension.
func (r *Resolver) BaseName(title string, createTime int64) string {
	name := SanitizeTitle(title)
	t := time.Unix(createTime, 0).In(r.opts.Location)
	switch r.opts.DatePrefix {
	case PrefixDashed:
		return t.Format("2006-01-02") + " - " + name
	case PrefixCompact:
		return t.Format("20060102") + " - " + name
	default:
		return name
	}
}

// Resolve returns a free path for a note. ownPath, when non-empty, is the
// conversation's already catalogued path and never counts as a collision.
func (r *Resolver) Resolve(ctx context.Context, title string, createTime int64, ownPath string) (string, error) {
	folder := r.Folder(createTime)
	if err := r.vault.EnsureFolder(ctx, folder); err != nil {
		return "", errors.Wrapf(ErrFolderCreationFailed, "%s: %v", folder, err)
	}

	ownPath = vault.Clean(ownPath)
	base := r.BaseName(title, createTime)
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s (%d)", base, i)
		}
		candidate := path.Join(folder, name+".md")
		if ownPath != "" && candidate == ownPath {
			return candidate, nil
		}
		if _, taken := r.claimed[candidate]; taken {
			continue
		}
		exists, err := r.vault.Exists(ctx, candidate)
		if err != nil {
			return "", errors.Wrapf(err, "check %s", candidate)
		}
		if exists {
			continue
		}
		r.claimed[candidate] = struct{}{}
		return candidate, nil
	}
}

// SanitizeTitle makes title safe as a file name on common filesystems.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case strings.ContainsRune(`<>:"/\|?*#^[]`, r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.Trim(cleaned, ". ")

	if runes := []rune(cleaned); len(runes) > maxTitleRunes {
		cleaned = strings.Trim(string(runes[:maxTitleRunes]), ". ")
	}
	if cleaned == "" {
		return Untitled
	}
	return cleaned
}
