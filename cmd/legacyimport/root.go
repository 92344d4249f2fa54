package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// globalFlags 所有子命令共用的参数
type globalFlags struct {
	dir        string
	delimiter  string
	mappings   string
	sourceFile string
	dbVersion  string
	dbType     string
	dsn        string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "legacyimport",
		Short:         "Analyze, dry-run and migrate a legacy POS export directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.dir, "dir", ".", "Directory holding the exported table files (.csv/.txt/.tsv)")
	pf.StringVar(&flags.delimiter, "delimiter", "", `Field delimiter: empty for comma, "tab" for TSV exports`)
	pf.StringVar(&flags.mappings, "mappings", "", "JSON file with per-table column renames {table: {exportColumn: canonicalColumn}}")
	pf.StringVar(&flags.sourceFile, "source-file", "", "Name recorded as the export's source file (defaults to the directory name)")
	pf.StringVar(&flags.dbVersion, "db-version", "", "Legacy database version reported by the export")
	pf.StringVar(&flags.dbType, "db-type", "", "Destination database type: postgres, mysql or sqlite (empty uses config, then memory)")
	pf.StringVar(&flags.dsn, "dsn", "", "Destination database DSN")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Debug logging on stderr")

	cmd.AddCommand(newAnalyzeCmd(flags))
	cmd.AddCommand(newDryRunCmd(flags))
	cmd.AddCommand(newRunCmd(flags))
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
