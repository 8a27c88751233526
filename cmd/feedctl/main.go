package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobfeed/internal/app"
	"jobfeed/internal/config"
	"jobfeed/internal/pkg/logger"
	"jobfeed/internal/publisher"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "feedctl",
		Short:         "Administrative commands for the activity feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRebuildCmd(), newPruneCmd(), newSweepCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// withContainer loads config, builds the container and hands a signal-aware
// context to fn, closing everything afterwards.
func withContainer(fn func(ctx context.Context, c *app.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zlog, err := logger.New(cfg.App.Environment)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	container, err := app.NewContainer(cfg, zlog)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer func() { _ = container.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, container)
}

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Wipe the feed and replay it from the portal's current open jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(ctx context.Context, c *app.Container) error {
				c.Logger.Warn("rebuilding feed from scratch, existing items will be deleted")
				src := publisher.NewDatabaseSnapshot(c.DB)
				if err := c.Publisher.Rebuild(ctx, src); err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, "feed rebuilt")
				return nil
			})
		},
	}
}

func newPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete inactive feed items past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(ctx context.Context, c *app.Container) error {
				retention := olderThan
				if retention <= 0 {
					retention = c.Config.Feed.Retention
				}
				cutoff := time.Now().Add(-retention)

				deleted, err := c.Publisher.Prune(ctx, cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "pruned %d inactive feed items older than %s\n", deleted, cutoff.Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention window override (default from config)")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Recompute decay scores for all active feed items once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(ctx context.Context, c *app.Container) error {
				if err := c.Publisher.Sweep(ctx); err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, "sweep complete")
				return nil
			})
		},
	}
}
