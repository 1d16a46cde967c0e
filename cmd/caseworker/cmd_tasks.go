package main

import (
	"context"
	"encoding/json"
	"fmt"

	"voicelegal-backend/app"
	"voicelegal-backend/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Move cases stuck past the stale timeout to error",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Cases.SweepStale(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Swept %d stale cases\n", n)
			return nil
		})
	},
}

var redetectCmd = &cobra.Command{
	Use:   "redetect CASE_ID",
	Short: "Re-run case type detection for one case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid case id: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.Cases.Redetect(ctx, id))
		})
	},
}

var redetectPendingFlags struct {
	limit int
}

var redetectPendingCmd = &cobra.Command{
	Use:   "redetect-pending",
	Short: "Re-run detection for the oldest cases still waiting on a case type",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Cases.RedetectPending(ctx, redetectPendingFlags.limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d pending cases\n", n)
			return nil
		})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate CASE_ID",
	Short: "Generate the document for a case, retrying with backoff",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid case id: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.Runner.RunDocument(ctx, id))
		})
	},
}

var purgeFlags struct {
	dryRun bool
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete errored cases older than the retention period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Cases.PurgeExpired(ctx, purgeFlags.dryRun)
			if err != nil {
				return err
			}
			verb := "Deleted"
			if res.DryRun {
				verb = "Would delete"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d cases and %d documents\n", verb, res.Cases, res.Documents)
			return nil
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print case processing statistics for the last 24 hours",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			r, err := a.Cases.Report(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload case types and print the active set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			types, err := a.Cases.RefreshCaseTypes(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ct := range types {
				fmt.Fprintf(out, "%-30s priority=%d threshold=%.2f questions=%d\n",
					ct.Name, ct.Priority, ct.ConfidenceThreshold, len(ct.Questions))
			}
			return nil
		})
	},
}

func init() {
	redetectPendingCmd.Flags().IntVar(&redetectPendingFlags.limit, "limit", service.MaxPendingBatch, "maximum cases to process")
	purgeCmd.Flags().BoolVar(&purgeFlags.dryRun, "dry-run", false, "only count what would be deleted")
}

func printResult(cmd *cobra.Command, res service.TaskResult) error {
	out := cmd.OutOrStdout()
	if res.Reason != "" {
		fmt.Fprintf(out, "%s: %s\n", res.Outcome, res.Reason)
	} else {
		fmt.Fprintln(out, res.Outcome)
	}
	if res.Outcome == service.TaskTerminalFailure {
		return fmt.Errorf("task failed: %s", res.Reason)
	}
	return nil
}
