package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/taskboard/pkg/api"
	"github.com/harrisonrobin/taskboard/pkg/events"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Long: `Serve the dashboard over HTTP. Requests carry a bearer token issued with
'taskboard token'; the first request of each token runs the auto-sync pass for
its actor. Sync results are streamed on /api/events.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides http.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close backends", zap.Error(err))
		}
	}()

	bus := events.NewBus()
	srv, err := api.NewServer(api.Options{
		Store:   b.chain,
		Roster:  cfg.Roster,
		DataDir: cfg.DataDir,
		Secret:  []byte(cfg.HTTP.JWTSecret),
		Bus:     bus,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	addr := cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	sub := bus.Subscribe(events.TasksSynced)
	defer sub.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, addr)
	})
	g.Go(func() error {
		logSyncEvents(ctx, sub)
		return nil
	})
	return g.Wait()
}

// logSyncEvents records every auto-sync outcome until the bus closes.
func logSyncEvents(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			logger.Info("auto-sync result",
				zap.String("actor", e.ActorID),
				zap.Int("synced", e.Synced.SyncedCount),
				zap.Int("failed", e.Synced.ErrorCount))
		}
	}
}
