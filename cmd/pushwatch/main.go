// Command pushwatch batches entity change events into notifications.
//
// Usage:
//
//	pushwatch run --config ./pushwatch.yaml
//	pushwatch check --config ./pushwatch.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pushwatch/internal/app"
)

func main() {
	// .env is optional; it usually carries PUSHWATCH_TELEGRAM_TOKEN.
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "pushwatch",
		Short:         "Debounced change notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(checkCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var (
		cfgPath     string
		stopTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the notification pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
				defer stop()
				_ = a.Stop(stopCtx)
				return err
			}

			select {
			case <-ctx.Done():
			case <-a.Done():
			}

			stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
			defer stop()
			stopErr := a.Stop(stopCtx)
			if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return stopErr
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "./pushwatch.yaml", "path to config (json or yaml)")
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 15*time.Second, "graceful shutdown budget")
	return cmd
}

func checkCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate config and routes, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Check(cfgPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config ok:", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "./pushwatch.yaml", "path to config (json or yaml)")
	return cmd
}
