package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"legacymigrate/backend/internal/domain"
)

func newDryRunCmd(flags *globalFlags) *cobra.Command {
	var (
		tenantID string
		conflict string
		strict   bool
	)

	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Validate the export against the destination tenant without writing anything",
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

			report, err := e.migrations.DryRun(cmd.Context(), tenantID, export, domain.ConflictMode(conflict))
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if strict && report.Blocking {
				return fmt.Errorf("dry run is blocking: %d issues", len(report.Issues))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Destination tenant id (required)")
	cmd.Flags().StringVar(&conflict, "conflict", string(domain.ConflictSkip), "Conflict resolution: skip, merge or create_new")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the report is blocking")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
