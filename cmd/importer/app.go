package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"chatvault/internal/config"
	"chatvault/internal/logger"
	"chatvault/internal/models"
	"chatvault/internal/reconcile"
	"chatvault/internal/storage"
	"chatvault/internal/vault"
)

type appOptions struct {
	dryRun      bool
	force       bool
	interactive bool
}

// app holds everything a command needs. Close releases the state store.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    storage.Store
	vault    vault.Vault
	overlay  *vault.Memory
	importer *reconcile.Importer
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.New(envFileFlag)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	log := logger.New("chatvault", logger.Options{Level: level, Pretty: prettyFlag, Out: os.Stderr})
	cfg.Log(log)

	naming, err := cfg.NamingOptions()
	if err != nil {
		return nil, err
	}

	local, err := vault.NewLocal(cfg.VaultDir)
	if err != nil {
		return nil, errors.Wrap(err, "open vault")
	}
	a := &app{cfg: cfg, log: log, vault: local}
	if opts.dryRun {
		a.overlay = vault.NewOverlay(local)
		a.vault = a.overlay
	}

	a.store, err = storage.Open(cfg.StateDriver, cfg.ResolvedStatePath())
	if err != nil {
		return nil, errors.Wrap(err, "open state")
	}

	var confirmer reconcile.Confirmer = reconcile.NeverReimport
	switch {
	case opts.force:
		confirmer = reconcile.AlwaysReimport
	case opts.interactive:
		confirmer = promptConfirmer(os.Stdin, os.Stderr, naming.Location)
	}

	a.importer = reconcile.NewImporter(a.vault, a.store, reconcile.Options{
		Naming:          naming,
		Provider:        cfg.Provider,
		ReportFolder:    cfg.ReportFolder,
		IncrementalSave: cfg.IncrementalSave,
		DryRun:          opts.dryRun,
		Confirmer:       confirmer,
	}, log)
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close state store")
	}
}

// promptConfirmer asks on in before re-importing a known archive.
func promptConfirmer(in io.Reader, out io.Writer, loc *time.Location) reconcile.Confirmer {
	reader := bufio.NewReader(in)
	return reconcile.ConfirmFunc(func(_ context.Context, fileName string, prev models.ImportedArchive) bool {
		fmt.Fprintf(out, "%s was already imported as %s on %s. Import again? [y/N] ",
			fileName, prev.FileName, time.Unix(prev.ImportedAt, 0).In(loc).Format("2006-01-02 15:04"))
		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	})
}

func printOutcome(w io.Writer, out reconcile.BatchOutcome, dryRun bool) {
	c := out.Counts
	fmt.Fprintf(w, "Batch %s: %d created, %d updated, %d skipped, %d failed",
		out.BatchID, c.Created, c.Updated, c.Skipped, c.Failed)
	if c.GlobalErrors > 0 {
		fmt.Fprintf(w, ", %d archive errors", c.GlobalErrors)
	}
	fmt.Fprintln(w)
	switch {
	case out.ReportErr != nil:
		fmt.Fprintf(w, "Report could not be written: %v\n", out.ReportErr)
	case dryRun:
		fmt.Fprintln(w, "Dry run: nothing was written.")
	default:
		fmt.Fprintf(w, "Report: %s\n", out.ReportPath)
	}
}
