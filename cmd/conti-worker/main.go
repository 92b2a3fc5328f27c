package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	"conti/internal/config"
	applog "conti/internal/log"
	"conti/internal/worker"
)

const amqpConnectAttempts = 5

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	mirrorCfg, ok, err := backend.MirrorFromAppConfig(cfg)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("MIRROR_BACKEND is not set; nothing to mirror to")
	}
	sourceCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	factory := backend.NewFactory(logger.Slog())
	source, err := factory.CreateBackend(ctx, sourceCfg)
	if err != nil {
		return fmt.Errorf("create source backend: %w", err)
	}
	defer source.Close()

	mirror, err := factory.CreateBackend(ctx, mirrorCfg)
	if err != nil {
		return fmt.Errorf("create mirror backend: %w", err)
	}
	defer mirror.Close()

	logger.Info("Starting conti-worker",
		"source", source.Port.Name(),
		"mirror", mirror.Port.Name(),
		"interval", cfg.MirrorInterval)

	mw := worker.NewMirrorWorker(source.Port, mirror.Port)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mw.Run(ctx, cfg.MirrorInterval)
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqpConnectAttempts)
		if err != nil {
			logger.Warn("AMQP unavailable, mirroring on the timer only", "error", err)
		} else {
			defer client.Close()
			g.Go(func() error {
				logger.Info("Consuming ledger changes", "queue", cfg.AMQPQueue)
				return client.ConsumeLedgerChanged(ctx, mw.HandleLedgerChanged)
			})
		}
	} else {
		logger.Info("AMQP_URL not set, mirroring on the timer only")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
