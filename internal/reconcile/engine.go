// Package reconcile decides, for every conversation in an export, whether it
// is new, unchanged or updated against the catalog, and writes notes
// accordingly.
package reconcile

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"chatvault/internal/metrics"
	"chatvault/internal/models"
	"chatvault/internal/note"
	"chatvault/internal/paths"
	"chatvault/internal/report"
	"chatvault/internal/storage"
	"chatvault/internal/vault"
)

// Renderer produces note text. note.Renderer is the production value.
type Renderer interface {
	RenderNote(conv models.Conversation) string
	RenderMessages(provider models.Provider, msgs []models.Message) string
	UpdateMetadata(text string, updateTime int64) (string, error)
}

// Engine reconciles conversations one at a time against a catalog it
// mutates in place.
type Engine struct {
	vault    vault.Vault
	catalog  *storage.Catalog
	resolver *paths.Resolver
	renderer Renderer
	log      zerolog.Logger
}

func NewEngine(v vault.Vault, c *storage.Catalog, resolver *paths.Resolver, renderer Renderer, log zerolog.Logger) *Engine {
	return &Engine{
		vault:    v,
		catalog:  c,
		resolver: resolver,
		renderer: renderer,
		log:      log.With().Str("component", "engine").Logger(),
	}
}

// Reconcile processes one conversation. It never panics and never returns an
// error: every failure becomes a Failed entry.
func (e *Engine) Reconcile(ctx context.Context, conv models.Conversation) (entry report.Entry) {
	entry = report.Entry{
		ConversationID: conv.ID,
		Title:          note.DisplayTitle(conv.Title),
		CreateTime:     conv.CreateTime,
		UpdateTime:     conv.UpdateTime,
	}
	log := e.log.With().Str("conversation_id", conv.ID).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.Wrapf(ErrUnknown, "panic: %v", rec)
			log.Error().Interface("panic", rec).Msg("Conversation reconciliation panicked")
			entry = failed(entry, err)
		}
		metrics.ObserveConversation(string(entry.Outcome), entry.NewMessages)
	}()

	cat, ok := e.catalog.Get(conv.ID)
	if !ok {
		return e.create(ctx, log, conv, entry)
	}

	entry.Path = cat.Path
	if cat.UpdateTime >= conv.UpdateTime {
		entry.Outcome = report.Skipped
		entry.Reason = report.ReasonNoUpdates
		return entry
	}
	return e.update(ctx, log, conv, cat, entry)
}

func (e *Engine) create(ctx context.Context, log zerolog.Logger, conv models.Conversation, entry report.Entry) report.Entry {
	p, err := e.resolver.Resolve(ctx, conv.Title, conv.CreateTime, "")
	if err != nil {
		log.Error().Stack().Err(err).Msg("Failed to resolve note path")
		return failed(entry, err)
	}
	entry.Path = p

	if err := e.vault.WriteText(ctx, p, e.renderer.RenderNote(conv)); err != nil {
		err = errors.Wrapf(ErrNoteWriteFailed, "%s: %v", p, err)
		log.Error().Stack().Err(err).Msg("Failed to write note")
		return failed(entry, err)
	}

	e.catalog.Put(conv.ID, models.CatalogEntry{
		Path:       p,
		UpdateTime: conv.UpdateTime,
		Provider:   conv.Provider,
	})
	log.Debug().Str("path", p).Msg("Note created")
	entry.Outcome = report.Created
	entry.NewMessages = len(conv.RenderableMessages())
	return entry
}

func (e *Engine) update(ctx context.Context, log zerolog.Logger, conv models.Conversation, cat models.CatalogEntry, entry report.Entry) report.Entry {
	original, err := e.vault.ReadText(ctx, cat.Path)
	if errors.Is(err, vault.ErrNotFound) {
		err = errors.Wrap(ErrNoteMissing, cat.Path)
		log.Warn().Err(err).Msg("Catalogued note no longer exists")
		return failed(entry, err)
	}
	if err != nil {
		log.Error().Stack().Err(err).Msg("Failed to read note")
		return failed(entry, err)
	}

	text, err := e.renderer.UpdateMetadata(original, conv.UpdateTime)
	if errors.Is(err, note.ErrNoHeader) {
		// Header removed by hand: keep the note as is and only append.
		log.Warn().Str("path", cat.Path).Msg("Note has no metadata header")
		text = original
	} else if err != nil {
		log.Error().Stack().Err(err).Msg("Failed to update note metadata")
		return failed(entry, err)
	}

	delta := note.Delta(conv, text)
	text = note.AppendMessages(text, e.renderer.RenderMessages(conv.Provider, delta))

	if text != original {
		if err := e.vault.WriteText(ctx, cat.Path, text); err != nil {
			err = errors.Wrapf(ErrNoteWriteFailed, "%s: %v", cat.Path, err)
			log.Error().Stack().Err(err).Msg("Failed to write note")
			return failed(entry, err)
		}
		entry.Outcome = report.Updated
		entry.NewMessages = len(delta)
	} else {
		entry.Outcome = report.Skipped
		entry.Reason = report.ReasonNoChanges
	}

	// The revision has been observed whether or not the text changed.
	cat.UpdateTime = conv.UpdateTime
	if cat.Provider == "" {
		cat.Provider = conv.Provider
	}
	e.catalog.Put(conv.ID, cat)
	log.Debug().Str("path", cat.Path).Int("new_messages", len(delta)).Str("outcome", string(entry.Outcome)).Msg("Note reconciled")
	return entry
}

// ReconcileNote imports a note that already carries its own header: new
// conversations are written as given, newer revisions of catalogued ones get
// the message blocks the existing note lacks.
func (e *Engine) ReconcileNote(ctx context.Context, md note.Metadata, text string) (entry report.Entry) {
	entry = report.Entry{
		ConversationID: md.ConversationID,
		Title:          note.DisplayTitle(md.Title),
		CreateTime:     md.CreateTime,
		UpdateTime:     md.UpdateTime,
	}
	log := e.log.With().Str("conversation_id", md.ConversationID).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Note reconciliation panicked")
			entry = failed(entry, errors.Wrapf(ErrUnknown, "panic: %v", rec))
		}
		metrics.ObserveConversation(string(entry.Outcome), entry.NewMessages)
	}()

	cat, ok := e.catalog.Get(md.ConversationID)
	if !ok {
		p, err := e.resolver.Resolve(ctx, md.Title, md.CreateTime, "")
		if err != nil {
			return failed(entry, err)
		}
		entry.Path = p
		if err := e.vault.WriteText(ctx, p, text); err != nil {
			return failed(entry, errors.Wrapf(ErrNoteWriteFailed, "%s: %v", p, err))
		}
		e.catalog.Put(md.ConversationID, models.CatalogEntry{Path: p, UpdateTime: md.UpdateTime, Provider: md.Provider})
		entry.Outcome = report.Created
		entry.NewMessages = len(note.ScanMessageIDs(text))
		return entry
	}

	entry.Path = cat.Path
	if cat.UpdateTime >= md.UpdateTime {
		entry.Outcome = report.Skipped
		entry.Reason = report.ReasonNoUpdates
		return entry
	}

	original, err := e.vault.ReadText(ctx, cat.Path)
	if errors.Is(err, vault.ErrNotFound) {
		return failed(entry, errors.Wrap(ErrNoteMissing, cat.Path))
	}
	if err != nil {
		return failed(entry, err)
	}

	updated, err := e.renderer.UpdateMetadata(original, md.UpdateTime)
	if errors.Is(err, note.ErrNoHeader) {
		updated = original
	} else if err != nil {
		return failed(entry, err)
	}

	_, body, err := note.ParseHeader(text)
	if err != nil {
		return failed(entry, err)
	}
	merged, added := note.MergeBlocks(updated, note.SplitMessages(body))

	if merged != original {
		if err := e.vault.WriteText(ctx, cat.Path, merged); err != nil {
			return failed(entry, errors.Wrapf(ErrNoteWriteFailed, "%s: %v", cat.Path, err))
		}
		entry.Outcome = report.Updated
		entry.NewMessages = added
	} else {
		entry.Outcome = report.Skipped
		entry.Reason = report.ReasonNoChanges
	}
	cat.UpdateTime = md.UpdateTime
	e.catalog.Put(md.ConversationID, cat)
	return entry
}

func failed(entry report.Entry, err error) report.Entry {
	entry.Outcome = report.Failed
	entry.ErrorKind = string(Kind(err))
	entry.Error = err.Error()
	entry.NewMessages = 0
	entry.Reason = ""
	return entry
}
