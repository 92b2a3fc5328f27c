// Package cli holds the process bootstrap shared by cmd/conti and
// cmd/conti-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/config"
	"conti/internal/ledger"
	applog "conti/internal/log"
	"conti/internal/services"
)

// LoadEnvFile loads .env (or the given files) for local development. A
// missing file is not an error.
func LoadEnvFile(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadAndValidateConfig reads the environment into a validated config.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger installs the default logger described by cfg.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	return applog.Setup(cfg.LogLevel, cfg.LogFormat, component)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Session is an opened ledger with everything it depends on.
type Session struct {
	Service *services.LedgerService
	Backend *backend.BackendResult
	AMQP    *amqp.Client
}

// Close releases the broker connection and the backend.
func (s *Session) Close() error {
	var errs []error
	if s.AMQP != nil {
		errs = append(errs, s.AMQP.Close())
	}
	errs = append(errs, s.Backend.Close())
	return errors.Join(errs...)
}

// OpenLedger creates the configured backend, hydrates a ledger store from it
// and wraps it in a service. With publish set and AMQP_URL configured, saved
// changes are announced on the broker; a broker that cannot be reached is
// logged and skipped.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger, publish bool) (*Session, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	logger.InfoContext(ctx, "Storage ready", applog.FieldBackend, res.Port.Name(), "status", res.Status)

	store := ledger.New(ctx, res.Port, ledger.Options{
		ReloadBeforeMutate: res.ReloadBeforeMutate,
		Logger:             logger,
	})

	session := &Session{Backend: res}
	opts := []services.Option{
		services.WithRates(cfg.FXTable()),
		services.WithRefreshOnRead(res.ReloadBeforeMutate),
		services.WithLogger(applog.Wrap(logger)),
	}
	if publish && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without notifications", applog.FieldError, err)
		} else {
			logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
			session.AMQP = client
			opts = append(opts, services.WithPublisher(client))
		}
	}
	session.Service = services.NewLedgerService(store, opts...)
	return session, nil
}
