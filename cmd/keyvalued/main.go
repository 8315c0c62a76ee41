// Command keyvalued is the persistent, networked key-value store
// daemon: it owns one on-disk block image, accepts client connections
// over TCP, and applies PUT/GET/DELETE through the Job Queue / Worker
// Pool / KV Engine pipeline described in spec.md §2.
//
// Grounded on _examples/rclone-rclone/backend/torrent/cmd/backend.go's
// cobra command shape and the repo-wide use of golang.org/x/sync/errgroup
// for coordinating concurrent subsystems (see backend/combine/combine.go).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Disant-codes/keystore-filesystem/internal/config"
	"github.com/Disant-codes/keystore-filesystem/internal/directory"
	"github.com/Disant-codes/keystore-filesystem/internal/dispatch"
	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/klog"
	"github.com/Disant-codes/keystore-filesystem/internal/kv"
	"github.com/Disant-codes/keystore-filesystem/internal/metrics"
	"github.com/Disant-codes/keystore-filesystem/internal/store"
	"github.com/Disant-codes/keystore-filesystem/internal/worker"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cfg := config.Default()
	cmd := &cobra.Command{
		Use:   "keyvalued",
		Short: "Persistent, networked key-value store daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &cfg)
		},
	}
	cfg.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("argument error: %w", err)
	}
	klog.SetLevel(parseLevel(cfg.LogLevel))

	bs, err := store.OpenOrCreateConfig(cfg.ImagePath, cfg.BlockSize, cfg.NumBlocks, cfg.HashBucketCount)
	if err != nil {
		klog.Errorf("main", "open image %q: %v", cfg.ImagePath, err)
		return err
	}
	defer bs.Close()

	dir := directory.New(bs)
	if err := dir.EnsureBucketBlock(); err != nil {
		klog.Errorf("main", "initialise directory: %v", err)
		return err
	}

	engine := kv.New(dir)
	queue := job.NewQueue()
	pool := worker.New(queue, engine, cfg.Workers)

	dispatcher, err := dispatch.Listen(cfg.BindAddr, queue)
	if err != nil {
		klog.Errorf("main", "listen on %q: %v", cfg.BindAddr, err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	pool.Start()

	g.Go(func() error {
		return dispatcher.Serve(gCtx)
	})

	if cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		g.Go(func() error {
			<-gCtx.Done()
			return metricsSrv.Close()
		})
		g.Go(func() error {
			klog.Infof("main", "metrics listening on %s", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	klog.Infof("main", "keyvalued listening on %s (image %s, %d workers)", cfg.BindAddr, cfg.ImagePath, cfg.Workers)

	<-gCtx.Done()
	klog.Infof("main", "shutting down")
	_ = dispatcher.Close()

	// Let in-flight jobs already pushed onto the queue drain to
	// completion before the process exits, per spec.md §5's shutdown
	// contract, then stop the worker goroutines.
	queue.Close()
	pool.Wait()

	return g.Wait()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
