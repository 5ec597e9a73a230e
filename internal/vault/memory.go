package vault

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Memory keeps notes in a map. With a base vault it becomes a write overlay:
// reads fall through to base, writes never reach it.
type Memory struct {
	base    Vault
	files   map[string]string
	folders map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{files: map[string]string{}, folders: map[string]struct{}{"": {}}}
}

// NewOverlay wraps base so that every write stays in memory.
func NewOverlay(base Vault) *Memory {
	m := NewMemory()
	m.base = base
	return m
}

func (m *Memory) ReadText(ctx context.Context, p string) (string, error) {
	p = Clean(p)
	if text, ok := m.files[p]; ok {
		return text, nil
	}
	if m.base != nil {
		return m.base.ReadText(ctx, p)
	}
	return "", ErrNotFound
}

func (m *Memory) WriteText(_ context.Context, p, text string) error {
	p = Clean(p)
	if _, isFolder := m.folders[p]; isFolder && p != "" {
		return errors.Errorf("cannot write note over folder %s", p)
	}
	m.files[p] = text
	m.addFolders(parent(p))
	return nil
}

func (m *Memory) Exists(ctx context.Context, p string) (bool, error) {
	p = Clean(p)
	if _, ok := m.files[p]; ok {
		return true, nil
	}
	if _, ok := m.folders[p]; ok {
		return true, nil
	}
	if m.base != nil {
		return m.base.Exists(ctx, p)
	}
	return false, nil
}

func (m *Memory) EnsureFolder(_ context.Context, p string) error {
	p = Clean(p)
	if _, ok := m.files[p]; ok {
		return errors.Errorf("%s exists and is not a folder", p)
	}
	m.addFolders(p)
	return nil
}

// Delete removes a note, simulating an external actor.
func (m *Memory) Delete(p string) {
	delete(m.files, Clean(p))
}

// Files lists written note paths in sorted order.
func (m *Memory) Files() []string {
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) addFolders(p string) {
	for p != "" {
		m.folders[p] = struct{}{}
		p = parent(p)
	}
}

func parent(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}
