package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"chatvault/internal/archive"
	"chatvault/internal/importer"
	"chatvault/internal/metrics"
	"chatvault/internal/models"
	"chatvault/internal/note"
	"chatvault/internal/paths"
	"chatvault/internal/report"
	"chatvault/internal/storage"
	"chatvault/internal/vault"
)

// Confirmer decides whether an archive whose digest was seen before is
// processed again.
type Confirmer interface {
	ConfirmReimport(ctx context.Context, fileName string, previous models.ImportedArchive) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, fileName string, previous models.ImportedArchive) bool

func (f ConfirmFunc) ConfirmReimport(ctx context.Context, fileName string, previous models.ImportedArchive) bool {
	return f(ctx, fileName, previous)
}

var (
	// AlwaysReimport re-processes known archives.
	AlwaysReimport = ConfirmFunc(func(context.Context, string, models.ImportedArchive) bool { return true })
	// NeverReimport skips known archives.
	NeverReimport = ConfirmFunc(func(context.Context, string, models.ImportedArchive) bool { return false })
)

type confirmerKey struct{}

// WithConfirmer overrides the importer's Confirmer for calls made with ctx.
func WithConfirmer(ctx context.Context, c Confirmer) context.Context {
	return context.WithValue(ctx, confirmerKey{}, c)
}

func (im *Importer) confirmer(ctx context.Context) Confirmer {
	if c, ok := ctx.Value(confirmerKey{}).(Confirmer); ok && c != nil {
		return c
	}
	return im.opts.Confirmer
}

// Options configures an Importer.
type Options struct {
	Naming       paths.Options
	Provider     string
	ReportFolder string

	// IncrementalSave persists the catalog after every archive, not only at
	// batch end.
	IncrementalSave bool
	// DryRun never persists the catalog. Pair it with a vault.Memory overlay.
	DryRun bool

	Confirmer Confirmer
	Now       func() time.Time
}

// ArchiveInput is one export handed to ImportBatch.
type ArchiveInput struct {
	Name       string
	Data       []byte
	ExportedAt time.Time
}

// BatchOutcome describes a finished batch. Report is always set.
type BatchOutcome struct {
	BatchID    string        `json:"batchId"`
	Counts     report.Counts `json:"counts"`
	ReportPath string        `json:"reportPath,omitempty"`
	// ReportErr is set when the report could not be written; the import
	// itself is unaffected.
	ReportErr error          `json:"-"`
	Report    *report.Report `json:"-"`
}

// Importer drives batches: one at a time, archives strictly in export order.
type Importer struct {
	mu    sync.Mutex
	vault vault.Vault
	store storage.Store
	opts  Options
	log   zerolog.Logger
}

func NewImporter(v vault.Vault, store storage.Store, opts Options, log zerolog.Logger) *Importer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Confirmer == nil {
		opts.Confirmer = NeverReimport
	}
	if opts.Naming.Location == nil {
		opts.Naming.Location = time.UTC
	}
	return &Importer{
		vault: v,
		store: store,
		opts:  opts,
		log:   log.With().Str("component", "importer").Logger(),
	}
}

// batch holds everything scoped to one run.
type batch struct {
	catalog *storage.Catalog
	engine  *Engine
	report  *report.Report
	now     time.Time
	log     zerolog.Logger
}

// ReconcileArchive imports a single export.
func (im *Importer) ReconcileArchive(ctx context.Context, data []byte, displayName string) (BatchOutcome, error) {
	return im.ImportBatch(ctx, []ArchiveInput{{Name: displayName, Data: data}})
}

// ImportBatch imports archives sorted by ExportedAt. Failures inside an
// archive never stop the batch; the returned error only reports state that
// could not be loaded or persisted.
func (im *Importer) ImportBatch(ctx context.Context, inputs []ArchiveInput) (BatchOutcome, error) {
	sorted := append([]ArchiveInput(nil), inputs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExportedAt.Before(sorted[j].ExportedAt)
	})

	return im.run(ctx, func(b *batch) {
		for i, in := range sorted {
			if err := ctx.Err(); err != nil {
				for _, rest := range sorted[i:] {
					b.report.AddGlobalError(rest.Name, string(KindUnknown), "batch cancelled before this archive")
				}
				b.log.Warn().Err(err).Int("remaining", len(sorted)-i).Msg("Batch cancelled")
				return
			}
			im.processArchive(ctx, b, in)
			if im.opts.IncrementalSave {
				im.checkpoint(ctx, b, in.Name)
			}
		}
	})
}

// ReconcileSingleNote imports one note file that carries its own header.
func (im *Importer) ReconcileSingleNote(ctx context.Context, text, displayName string) (BatchOutcome, error) {
	return im.run(ctx, func(b *batch) {
		b.report.AddArchive(displayName)
		h, _, err := note.ParseHeader(text)
		if err == nil {
			var md note.Metadata
			if md, err = note.ReadMetadata(h); err == nil {
				entry := b.engine.ReconcileNote(ctx, md, text)
				entry.Archive = displayName
				b.report.Add(entry)
				return
			}
		}
		err = errors.Wrapf(ErrMalformedArchive, "%s: %v", displayName, err)
		b.log.Error().Err(err).Msg("Note rejected")
		b.report.AddGlobalError(displayName, string(Kind(err)), err.Error())
	})
}

func (im *Importer) run(ctx context.Context, body func(b *batch)) (BatchOutcome, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	now := im.opts.Now()
	rep := report.New(im.log, now, im.opts.Naming.Location)
	log := im.log.With().Str("batch_id", rep.ID()).Logger()
	log.Info().Bool("dry_run", im.opts.DryRun).Msg("Batch started")

	cat, err := im.store.Load(ctx)
	if err != nil {
		err = errors.Wrap(err, "load catalog")
		log.Error().Stack().Err(err).Msg("Failed to load catalog")
		rep.AddGlobalError("state", string(KindUnknown), err.Error())
		return im.finish(ctx, rep), err
	}
	im.checkSettings(log, cat)

	b := &batch{
		catalog: cat,
		engine:  NewEngine(im.vault, cat, paths.NewResolver(im.vault, im.opts.Naming), note.Renderer{Location: im.opts.Naming.Location}, log),
		report:  rep,
		now:     now,
		log:     log,
	}
	body(b)

	var persistErr error
	if !im.opts.DryRun {
		if persistErr = im.store.Persist(ctx, cat); persistErr != nil {
			persistErr = errors.Wrap(persistErr, "persist catalog")
			log.Error().Stack().Err(persistErr).Msg("Failed to persist catalog")
			rep.AddGlobalError("state", string(KindUnknown), persistErr.Error())
		}
	}

	out := im.finish(ctx, rep)
	log.Info().Interface("counts", out.Counts).Str("report", out.ReportPath).Msg("Batch finished")
	return out, persistErr
}

func (im *Importer) finish(ctx context.Context, rep *report.Report) BatchOutcome {
	out := BatchOutcome{BatchID: rep.ID(), Report: rep}
	folder := im.opts.ReportFolder
	if folder == "" {
		folder = im.opts.Naming.BaseFolder
	}
	out.ReportPath, out.ReportErr = rep.Write(ctx, im.vault, folder)
	out.Counts = rep.Counts()
	return out
}

// checkSettings records the naming settings in the catalog. Existing notes
// never move when they change.
func (im *Importer) checkSettings(log zerolog.Logger, cat *storage.Catalog) {
	current := storage.Settings{
		ConversationFolder: im.opts.Naming.BaseFolder,
		DatePrefix:         string(im.opts.Naming.DatePrefix),
		TimeZone:           im.opts.Naming.Location.String(),
	}
	if prev := cat.Settings(); cat.Len() > 0 && prev != (storage.Settings{}) && prev != current {
		log.Warn().
			Interface("previous", prev).
			Interface("current", current).
			Msg("Naming settings changed; existing notes keep their paths")
	}
	cat.SetSettings(current)
}

// processArchive runs one archive. Panics stop at the archive boundary.
func (im *Importer) processArchive(ctx context.Context, b *batch, in ArchiveInput) {
	log := b.log.With().Str("archive", in.Name).Logger()
	b.report.AddArchive(in.Name)

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.Wrapf(ErrUnknown, "panic: %v", rec)
			log.Error().Interface("panic", rec).Msg("Archive processing panicked")
			b.report.AddGlobalError(in.Name, string(KindUnknown), err.Error())
			metrics.ObserveArchive(metrics.ArchiveFailed)
		}
	}()

	digest := archive.Digest(in.Data)
	if prev, seen := b.catalog.Archive(digest); seen {
		if !im.confirmer(ctx).ConfirmReimport(ctx, in.Name, prev) {
			when := time.Unix(prev.ImportedAt, 0).In(im.opts.Naming.Location).Format("2006-01-02 15:04")
			b.report.AddGlobalError(in.Name, string(report.Skipped),
				fmt.Sprintf("%s (as %s on %s)", report.ReasonArchiveSkipped, prev.FileName, when))
			log.Info().Str("digest", digest).Msg("Archive already imported; skipped")
			metrics.ObserveArchive(metrics.ArchiveSkipped)
			return
		}
		log.Info().Str("digest", digest).Msg("Re-importing known archive")
	}

	container, err := importer.Open(in.Data, in.Name)
	if err == nil {
		var convs []models.Conversation
		convs, err = importer.Extract(container, importer.Options{Provider: im.opts.Provider, Now: b.now})
		if err == nil {
			im.reconcileAll(ctx, b, in.Name, convs)
			b.catalog.RecordArchive(digest, models.ImportedArchive{FileName: in.Name, ImportedAt: b.now.Unix()})
			metrics.ObserveArchive(metrics.ArchiveProcessed)
			return
		}
	}

	log.Error().Stack().Err(err).Msg("Archive abandoned")
	b.report.AddGlobalError(in.Name, string(Kind(err)), err.Error())
	metrics.ObserveArchive(metrics.ArchiveFailed)
}

func (im *Importer) reconcileAll(ctx context.Context, b *batch, name string, convs []models.Conversation) {
	b.log.Info().Str("archive", name).Int("conversations", len(convs)).Msg("Reconciling archive")
	for _, conv := range convs {
		entry := b.engine.Reconcile(ctx, conv)
		entry.Archive = name
		b.report.Add(entry)
	}
}

func (im *Importer) checkpoint(ctx context.Context, b *batch, name string) {
	if im.opts.DryRun {
		return
	}
	if err := im.store.Persist(ctx, b.catalog); err != nil {
		err = errors.Wrap(err, "checkpoint catalog")
		b.log.Error().Stack().Err(err).Str("archive", name).Msg("Failed to checkpoint catalog")
		b.report.AddGlobalError(name, string(KindUnknown), err.Error())
	}
}

// Entries lists the catalog sorted by path.
func (im *Importer) Entries(ctx context.Context) ([]models.CatalogEntry, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	cat, err := im.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	return cat.Entries(), nil
}

// Entry fetches one catalog entry; storage.ErrNotFound when absent.
func (im *Importer) Entry(ctx context.Context, id string) (models.CatalogEntry, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	cat, err := im.store.Load(ctx)
	if err != nil {
		return models.CatalogEntry{}, errors.Wrap(err, "load catalog")
	}
	entry, ok := cat.Get(id)
	if !ok {
		return models.CatalogEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

// Forget drops a conversation from the catalog. Its note stays; the next
// import of the conversation creates a fresh note beside it.
func (im *Importer) Forget(ctx context.Context, id string) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	cat, err := im.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	if err := cat.Forget(id); err != nil {
		return err
	}
	if im.opts.DryRun {
		return nil
	}
	return errors.Wrap(im.store.Persist(ctx, cat), "persist catalog")
}

// Prune removes entries whose note is gone or now belongs to another
// conversation, and returns them.
func (im *Importer) Prune(ctx context.Context) ([]models.CatalogEntry, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	cat, err := im.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}

	var removed []models.CatalogEntry
	for _, entry := range cat.Entries() {
		text, err := im.vault.ReadText(ctx, entry.Path)
		switch {
		case errors.Is(err, vault.ErrNotFound):
		case err != nil:
			return nil, errors.Wrapf(err, "read %s", entry.Path)
		case errors.Is(note.CheckOwner(text, entry.ConversationID), note.ErrForeignNote):
		default:
			continue
		}
		cat.Remove(entry.ConversationID)
		removed = append(removed, entry)
		im.log.Info().Str("conversation_id", entry.ConversationID).Str("path", entry.Path).Msg("Catalog entry pruned")
	}

	if len(removed) == 0 || im.opts.DryRun {
		return removed, nil
	}
	return removed, errors.Wrap(im.store.Persist(ctx, cat), "persist catalog")
}
