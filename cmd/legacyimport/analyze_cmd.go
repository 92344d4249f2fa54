package main

import (
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Summarize the export: record counts, date range, carriers and departments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			export, err := readExport(flags)
			if err != nil {
				return err
			}
			e, err := newEnv(flags)
			if err != nil {
				return err
			}
			defer e.close()

			analysis, err := e.migrations.Analyze(cmd.Context(), export)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), analysis)
		},
	}
}
