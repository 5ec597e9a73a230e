package reconcile

import (
	"github.com/pkg/errors"

	"chatvault/internal/importer"
	"chatvault/internal/paths"
)

var (
	// ErrMalformedArchive is fatal to one archive.
	ErrMalformedArchive = importer.ErrMalformedArchive
	// ErrFolderCreationFailed is fatal to one conversation.
	ErrFolderCreationFailed = paths.ErrFolderCreationFailed

	ErrNoteWriteFailed = errors.New("note write failed")
	// ErrNoteMissing means a catalogued path no longer resolves to a note.
	ErrNoteMissing = errors.New("catalogued note is missing")
	ErrUnknown     = errors.New("unknown error")
)

// ErrorKind is the error column of the activity report.
type ErrorKind string

const (
	KindMalformedArchive     ErrorKind = "MalformedArchive"
	KindFolderCreationFailed ErrorKind = "FolderCreationFailed"
	KindNoteWriteFailed      ErrorKind = "NoteWriteFailed"
	KindNoteMissing          ErrorKind = "NoteMissing"
	KindUnknown              ErrorKind = "UnknownError"
)

// Kind classifies err; anything unrecognised is KindUnknown.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedArchive):
		return KindMalformedArchive
	case errors.Is(err, ErrFolderCreationFailed):
		return KindFolderCreationFailed
	case errors.Is(err, ErrNoteWriteFailed):
		return KindNoteWriteFailed
	case errors.Is(err, ErrNoteMissing):
		return KindNoteMissing
	default:
		return KindUnknown
	}
}
