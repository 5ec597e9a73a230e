// Package vault is the notes-folder collaborator: text read/write, existence
// checks and folder creation over vault-relative, slash-separated paths.
package vault

import (
	"context"
	"path"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("note not found")

// Vault is the storage surface the reconciliation engine consumes.
type Vault interface {
	ReadText(ctx context.Context, p string) (string, error)
	WriteText(ctx context.Context, p, text string) error
	Exists(ctx context.Context, p string) (bool, error)
	EnsureFolder(ctx context.Context, p string) error
}

// Clean normalizes a vault-relative path: forward slashes, no leading slash,
// no dot segments.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
