package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/report"
	"legacymigrate/backend/internal/service"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		tenantID      string
		conflict      string
		exclude       []string
		acceptDefects bool
		resumeFrom    string
		errorsXLSX    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Migrate the export into the destination tenant and wait for the job to finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := runOptions(conflict, exclude, acceptDefects)
			if err != nil {
				return err
			}
			export, err := readExport(flags)
			if err != nil {
				return err
			}
			e, err := newEnv(flags)
			if err != nil {
				return err
			}
			defer e.close()

			started, err := e.migrations.Start(cmd.Context(), service.StartInput{
				TenantID:   tenantID,
				Export:     export,
				Options:    opts,
				ResumeFrom: resumeFrom,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "migration %s started\n", started.MigrationID)

			final, err := follow(cmd.Context(), e, started.MigrationID, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if errorsXLSX != "" && len(final.Errors) > 0 {
				if err := writeErrorReport(errorsXLSX, final); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "error list written to %s\n", errorsXLSX)
			}
			if err := writeJSON(cmd.OutOrStdout(), final); err != nil {
				return err
			}
			if final.Status == domain.MigrationFailed {
				return fmt.Errorf("migration %s failed: %s", final.MigrationID, lastError(final))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Destination tenant id (required)")
	cmd.Flags().StringVar(&conflict, "conflict", string(domain.ConflictSkip), "Conflict resolution: skip, merge or create_new")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Entities to leave out: customers, addresses, packages, shipments, invoices, products")
	cmd.Flags().BoolVar(&acceptDefects, "accept-defects", false, "Run even when the dry run is blocking; defective records are skipped")
	cmd.Flags().StringVar(&resumeFrom, "resume-from", "", "Failed migration id to resume under the same write tag")
	cmd.Flags().StringVar(&errorsXLSX, "errors-xlsx", "", "Write the job's error list to this XLSX file")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// runOptions 默认包含全部实体，--exclude 逐个排除
func runOptions(conflict string, exclude []string, acceptDefects bool) (domain.MigrationOptions, error) {
	opts := domain.DefaultMigrationOptions()
	opts.ConflictResolution = domain.ConflictMode(conflict)
	opts.AcceptDefects = acceptDefects

	for _, entity := range exclude {
		switch entity {
		case domain.EntityCustomers:
			opts.IncludeCustomers = false
		case domain.EntityAddresses:
			opts.IncludeAddresses = false
		case domain.EntityPackages:
			opts.IncludePackages = false
		case domain.EntityShipments:
			opts.IncludeShipments = false
		case domain.EntityInvoices, "transactions":
			opts.IncludeTransactions = false
		case domain.EntityProducts:
			opts.IncludeProducts = false
		default:
			return opts, fmt.Errorf("unknown entity %q in --exclude", entity)
		}
	}
	return opts, nil
}

// follow 轮询进度直到任务结束；ctx 取消时请求取消任务并继续等待其落盘
func follow(ctx context.Context, e *env, migrationID string, out io.Writer) (*domain.MigrationProgress, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	done := ctx.Done()
	last := ""
	for {
		p, err := e.migrations.Progress(context.WithoutCancel(ctx), migrationID)
		if err != nil {
			return nil, err
		}

		line := fmt.Sprintf("%s %s %d/%d", p.Status, p.CurrentEntity, p.CurrentProgress, p.TotalProgress)
		if line != last {
			fmt.Fprintln(out, line)
			last = line
		}
		if p.Status.IsTerminal() {
			return p, nil
		}

		select {
		case <-done:
			done = nil
			e.log.Warn("interrupted, cancelling migration", zap.String("migration_id", migrationID))
			if _, err := e.migrations.Cancel(context.WithoutCancel(ctx), migrationID); err != nil {
				e.log.Warn("cancel failed", zap.Error(err))
			}
		case <-ticker.C:
		}
	}
}

// lastError 失败原因是错误列表的最后一条
func lastError(p *domain.MigrationProgress) string {
	if n := len(p.Errors); n > 0 {
		return p.Errors[n-1].Message
	}
	return "no error recorded"
}

func writeErrorReport(path string, p *domain.MigrationProgress) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteErrors(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
