package main

import (
	"context"
	"fmt"
	"os"

	"voicelegal-backend/app"
	"voicelegal-backend/config"
	"voicelegal-backend/logging"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "caseworker",
	Short: "Run background tasks for legal cases",
	Long:  "caseworker runs the periodic and on-demand case tasks: stale sweeps,\nre-detection, document generation, retention cleanup and reports.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(redetectCmd)
	rootCmd.AddCommand(redetectPendingCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(refreshCmd)
}

// withApp loads configuration, builds the app and closes it after fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
