package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFileFlag  string
	logLevelFlag string
	prettyFlag   bool
	rootCmd      = &cobra.Command{
		Use:           "chatvault",
		Short:         "Reconcile chat exports into a folder of Markdown notes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "optional env file with CHATVAULT_* settings")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (overrides CHATVAULT_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&prettyFlag, "pretty", true, "human readable console logs")

	rootCmd.AddCommand(newImportCmd(), newNoteCmd(), newInspectCmd(), newCatalogCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
