package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mwarrick/digital-business-card-sub000/internal/cardsync"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync pass",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			rep, err := a.coordinator(ctx).PerformFullSync(ctx)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			return printReport(rep)
		})
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push cards edited within the recent window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			rep, err := a.coordinator(ctx).PushToServer(ctx)
			if err != nil {
				return fmt.Errorf("push: %w", err)
			}

			return printReport(rep)
		})
	},
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate local cards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			n := cardsync.NewReconciler(a.store, a.logger).Sweep(ctx)
			return printReport(cardsync.Report{DuplicatesRemoved: n})
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <local-id>",
	Short: "Delete a card locally and on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.coordinator(ctx).DeleteCard(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync periodically until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(runDaemon)
	},
}

// runDaemon runs periodic full passes, the background push queue and,
// when enabled, the asset watcher until ctx is cancelled.
func runDaemon(ctx context.Context, a *app) error {
	a.logger.Info("cardsync daemon starting",
		slog.String("version", Version),
		slog.Duration("interval", a.cfg.SyncInterval),
		slog.Bool("watch_assets", a.cfg.WatchAssets),
	)

	coordinator := a.coordinator(ctx)
	queue := cardsync.NewPushQueue(coordinator, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Run(gctx)
	})

	g.Go(func() error {
		return syncLoop(gctx, a, coordinator)
	})

	if a.cfg.WatchAssets {
		watcher := cardsync.NewAssetWatcher(a.cfg.AssetDir, a.store, queue, a.logger)
		g.Go(func() error {
			return watcher.Watch(gctx)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		a.logger.Info("cardsync daemon stopped")
		return nil
	}

	return err
}

func syncLoop(ctx context.Context, a *app, coordinator *cardsync.Coordinator) error {
	ticker := time.NewTicker(a.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		rep, err := coordinator.PerformFullSync(ctx)
		if err != nil {
			// A failed pass is retried on the next tick.
			a.logger.Warn("sync pass failed", slog.String("error", err.Error()))
		} else {
			a.logger.Info("sync pass finished",
				slog.Int("pushed", rep.Pushed),
				slog.Int("pulled", rep.Pulled),
				slog.Int("failed", rep.Failed),
				slog.Bool("local_fallback", rep.LocalFallback),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
