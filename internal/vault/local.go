package vault

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Local stores notes under a root directory on disk.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create vault root %s", root)
	}
	return &Local{root: root}, nil
}

func (l *Local) Root() string { return l.root }

func (l *Local) abs(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(Clean(p)))
}

func (l *Local) ReadText(_ context.Context, p string) (string, error) {
	data, err := os.ReadFile(l.abs(p))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "read %s", p)
	}
	return string(data), nil
}

// WriteText writes through a temp file and renames it into place.
func (l *Local) WriteText(_ context.Context, p, text string) error {
	target := l.abs(p)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "create folder for %s", p)
	}

	tmpPath := target + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "write %s", p)
	}
	if _, err := file.WriteString(text); err != nil {
		file.Close()
		return errors.Wrapf(err, "write %s", p)
	}
	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "write %s", p)
	}
	return os.Rename(tmpPath, target)
}

func (l *Local) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(l.abs(p))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", p)
	}
	return true, nil
}

func (l *Local) EnsureFolder(_ context.Context, p string) error {
	target := l.abs(p)
	info, err := os.Stat(target)
	if err == nil {
		if !info.IsDir() {
			return errors.Errorf("%s exists and is not a folder", p)
		}
		return nil
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return errors.Wrapf(err, "create folder %s", p)
	}
	return nil
}
