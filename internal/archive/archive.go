// Package archive reads export containers and computes their content digest.
package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"

	"github.com/pkg/errors"
)

var ErrEntryNotFound = errors.New("archive entry not found")

// Container is the read-only view of an export the extractor needs.
type Container interface {
	Entries() []string
	ReadEntryAsText(name string) (string, error)
}

// Digest returns the lower-case hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type zipContainer struct {
	files map[string]*zip.File
	names []string
}

// OpenZip decodes an in-memory zip archive.
func OpenZip(data []byte) (Container, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "open zip")
	}

	c := &zipContainer{files: make(map[string]*zip.File, len(reader.File))}
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		c.files[f.Name] = f
		c.names = append(c.names, f.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

func (c *zipContainer) Entries() []string {
	return append([]string(nil), c.names...)
}

func (c *zipContainer) ReadEntryAsText(name string) (string, error) {
	f, ok := c.files[name]
	if !ok {
		return "", errors.Wrap(ErrEntryNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", errors.Wrapf(err, "open entry %s", name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", errors.Wrapf(err, "read entry %s", name)
	}
	return string(data), nil
}

type singleContainer struct {
	name string
	text string
}

// Single wraps one already-read file, e.g. a bare conversations.json.
func Single(name, text string) Container {
	return singleContainer{name: name, text: text}
}

func (s singleContainer) Entries() []string { return []string{s.name} }

func (s singleContainer) ReadEntryAsText(name string) (string, error) {
	if name != s.name {
		return "", errors.Wrap(ErrEntryNotFound, name)
	}
	return s.text, nil
}
