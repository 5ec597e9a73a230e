package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"chatvault/internal/importer"
	"chatvault/internal/models"
	"chatvault/internal/reconcile"
)

func newImportCmd() *cobra.Command {
	var opts appOptions
	cmd := &cobra.Command{
		Use:   "import <export.zip|conversations.json>...",
		Short: "Reconcile one or more exports into the vault",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readInputs(args)
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.importer.ImportBatch(cmd.Context(), inputs)
			printOutcome(cmd.OutOrStdout(), out, opts.dryRun)
			if opts.dryRun && a.overlay != nil {
				for _, p := range a.overlay.Files() {
					fmt.Fprintf(cmd.OutOrStdout(), "  would write %s\n", p)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "re-import archives that were imported before")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "ask before re-importing a known archive")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "report what would change without writing")
	return cmd
}

// readInputs loads every file up front; the file's modification time
// orders the batch.
func readInputs(files []string) ([]reconcile.ArchiveInput, error) {
	inputs := make([]reconcile.ArchiveInput, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", f)
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", f)
		}
		inputs = append(inputs, reconcile.ArchiveInput{
			Name:       filepath.Base(f),
			Data:       data,
			ExportedAt: info.ModTime(),
		})
	}
	return inputs, nil
}

func newNoteCmd() *cobra.Command {
	var opts appOptions
	cmd := &cobra.Command{
		Use:   "note <file.md>",
		Short: "Import a single note that carries its own header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "read %s", args[0])
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.importer.ReconcileSingleNote(cmd.Context(), string(data), filepath.Base(args[0]))
			printOutcome(cmd.OutOrStdout(), out, opts.dryRun)
			return err
		},
	}
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "report what would change without writing")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "inspect <export.zip|conversations.json>",
		Short: "List the conversations an export contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := importer.LoadAndConvert(args[0], importer.Options{Provider: provider, Now: time.Now()})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPROVIDER\tUPDATED\tMESSAGES\tTITLE")
			for _, c := range convs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Provider,
					time.Unix(c.UpdateTime, 0).UTC().Format(time.RFC3339), len(c.Messages), c.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "auto", "export format: auto, chatgpt or claude")
	return cmd
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and maintain the conversation catalog",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.importer.Entries(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(cmd, entries)
			return nil
		},
	}

	var pruneOpts appOptions
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Drop entries whose note was deleted or taken over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(pruneOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.importer.Prune(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(cmd, removed)
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries pruned\n", len(removed))
			return nil
		},
	}
	prune.Flags().BoolVarP(&pruneOpts.dryRun, "dry-run", "n", false, "list entries without removing them")

	forget := &cobra.Command{
		Use:   "forget <conversation-id>",
		Short: "Remove one entry; its note is left in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.importer.Forget(cmd.Context(), args[0]); err != nil {
				return errors.Wrapf(err, "forget %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, prune, forget)
	return cmd
}

func printEntries(cmd *cobra.Command, entries []models.CatalogEntry) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tUPDATED\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ConversationID, e.Provider,
			time.Unix(e.UpdateTime, 0).UTC().Format(time.RFC3339), e.Path)
	}
	_ = tw.Flush()
}
